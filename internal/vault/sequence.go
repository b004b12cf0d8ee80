package vault

import (
	"errors"
	"strings"

	"nirsvault/internal/apperr"
)

// Separator joins natural-key parts.
const Separator = "_"

// Sequence joins natural-key parts into the business key shared by a hub
// and every satellite and link row that refers to it. Equal parts always
// give the same string.
func Sequence(parts ...string) string {
	return strings.Join(parts, Separator)
}

// Part is one named natural-key part.
type Part struct {
	Field string
	Value string
}

var errEmptyPart = errors.New("natural key part is empty")

// RequireParts fails with MalformedHeaderField for the first part that is
// blank: without it the natural key cannot be formed.
func RequireParts(parts ...Part) error {
	for _, p := range parts {
		if strings.TrimSpace(p.Value) == "" {
			return apperr.MalformedHeaderField(p.Field, errEmptyPart)
		}
	}
	return nil
}

// ExperimentSequence is the VM key: date and experiment title.
func ExperimentSequence(date, title string) (string, error) {
	if err := RequireParts(Part{"Date", date}, Part{"title", title}); err != nil {
		return "", err
	}
	return Sequence(date, title), nil
}

// SessionSequence is the Pre-Autism key: file name, date and time of day.
// A time component is needed because sessions can share a date.
func SessionSequence(fileName, date, timeOfDay string) (string, error) {
	if err := RequireParts(Part{"FileName", fileName}, Part{"Date", date}, Part{"Time", timeOfDay}); err != nil {
		return "", err
	}
	return Sequence(fileName, date, timeOfDay), nil
}
