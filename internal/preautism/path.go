package preautism

import (
	"strings"
)

// Identity is what a group's path says about the session: the directory
// names the subject and condition, the leaf names the recording.
//
//	AutismP01-A_NormalConversation\NIRS-2021-05-03_001.hdr
type Identity struct {
	Title            string // leaf without ".hdr"
	Acronym          string // directory without "Autism" and "Conversation"
	ExperimentalUnit string // directory up to the first "_"
	Subject          string // directory up to the first "-"
	Level            string // "Normal" or "Stressed"
}

// Conversation levels.
const (
	LevelNormal   = "Normal"
	LevelStressed = "Stressed"
)

// ParseIdentity tokenizes a "dir\leaf" or "dir/leaf" path. Only the last
// two elements are used.
func ParseIdentity(path string) Identity {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '\\' || r == '/' })
	var dir, leaf string
	switch len(parts) {
	case 0:
	case 1:
		leaf = parts[0]
	default:
		dir, leaf = parts[len(parts)-2], parts[len(parts)-1]
	}

	id := Identity{
		Title:            strings.TrimSuffix(leaf, ".hdr"),
		Acronym:          strings.NewReplacer("Autism", "", "Conversation", "").Replace(dir),
		ExperimentalUnit: before(dir, "_"),
		Subject:          before(dir, "-"),
		Level:            LevelStressed,
	}
	if strings.Contains(path, "NormalConversation") {
		id.Level = LevelNormal
	}
	return id
}

func before(s, sep string) string {
	head, _, _ := strings.Cut(s, sep)
	return head
}

// ObservationName is "title_kind" without "Conversation" and "Autism".
func ObservationName(title string, kind Kind) string {
	return strings.NewReplacer("Conversation", "", "Autism", "").Replace(title + "_" + string(kind))
}
