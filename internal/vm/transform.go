package vm

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"nirsvault/internal/apperr"
	"nirsvault/internal/header"
	"nirsvault/internal/table"
	"nirsvault/internal/vault"
)

// Date layouts: as written by the instrument, and as used in sequences.
const (
	DateLayout     = "02/01/2006 15:04:05"
	SequenceLayout = "2006-01-02 15:04:05"
)

// Group is one VM file: its name, parsed header and sample table.
type Group struct {
	FileName string
	Header   *header.Header
	Data     *table.Table
}

// Transform maps VM files to vault fragments, one file group per file.
// A group that cannot form its natural key or classify its condition fails
// alone; the rest of the batch continues.
//
// The channel scheme is taken from the first file and must hold for every
// file of the batch.
func Transform(groups []Group) *vault.Result {
	res := &vault.Result{}
	if len(groups) == 0 {
		return res
	}
	scheme := SchemeFor(groups[0].FileName)
	for _, g := range groups {
		if SchemeFor(g.FileName) != scheme {
			res.Fail(g.FileName, "transform", apperr.MixedBatch(g.FileName, string(scheme)))
			continue
		}
		f, err := transformGroup(g, scheme)
		if err != nil {
			res.Fail(g.FileName, "transform", err)
			continue
		}
		res.Accept(f)
	}
	return res
}

// Title is the file name without directory and ".csv".
func Title(fileName string) string {
	return strings.TrimSuffix(filepath.Base(fileName), ".csv")
}

// Acronym is the second underscore-delimited token of the title.
func Acronym(title string) string {
	parts := strings.Split(title, "_")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// ParseDate reads the Date field.
func ParseDate(h *header.Header) (time.Time, error) {
	raw := strings.TrimSpace(h.Text(FieldDate))
	if raw == "" {
		return time.Time{}, apperr.MalformedHeaderField(FieldDate, errMissing)
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, apperr.MalformedHeaderField(FieldDate, err)
	}
	return t, nil
}

// ParseAge reads an age like "  34y": trimmed, trailing "y" unit dropped.
func ParseAge(raw string) (int, error) {
	v := strings.TrimSuffix(strings.TrimSpace(raw), "y")
	age, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, apperr.MalformedHeaderField(FieldAge, err)
	}
	if age < 0 {
		return 0, apperr.MalformedHeaderField(FieldAge, fmt.Errorf("negative age %d", age))
	}
	return age, nil
}

// Timestamps returns n sample times: start + i × period seconds.
func Timestamps(start time.Time, period float64, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(math.Round(float64(i) * period * float64(time.Second))))
	}
	return out
}

var errMissing = errors.New("field is missing")

func parsePeriod(h *header.Header) (float64, error) {
	raw := strings.TrimSpace(h.Text(FieldSamplingPeriod))
	if raw == "" {
		return 0, apperr.MalformedHeaderField(FieldSamplingPeriod, errMissing)
	}
	p, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperr.MalformedHeaderField(FieldSamplingPeriod, err)
	}
	if p <= 0 {
		return 0, apperr.MalformedHeaderField(FieldSamplingPeriod, fmt.Errorf("non-positive period %v", p))
	}
	return p, nil
}

func transformGroup(g Group, scheme Scheme) (*vault.Fragments, error) {
	if g.Header == nil || g.Data == nil {
		return nil, apperr.MalformedTable("group has no header or data", nil)
	}
	title := Title(g.FileName)
	acronym := Acronym(title)
	cond, err := Classify(acronym)
	if err != nil {
		return nil, err
	}

	date, err := ParseDate(g.Header)
	if err != nil {
		return nil, err
	}
	seq, err := vault.ExperimentSequence(date.Format(SequenceLayout), title)
	if err != nil {
		return nil, err
	}
	period, err := parsePeriod(g.Header)
	if err != nil {
		return nil, err
	}
	age, err := ParseAge(g.Header.Text(FieldAge))
	if err != nil {
		return nil, err
	}
	values, err := g.Data.Select(scheme.Columns())
	if err != nil {
		return nil, err
	}

	f := vault.NewFragments(g.FileName)

	// Metadata keeps the header's top-level fields; Stim Time[s] stays one
	// mapping value.
	f.Add(vault.HubMetaData{Sequence: seq})
	for _, e := range g.Header.Entries() {
		b, err := e.Value.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", e.Key, err)
		}
		f.Add(vault.SatMetaDataKeyValuePair{Sequence: seq, Key: e.Key, Value: b})
	}

	f.Add(
		vault.HubExperiment{Sequence: seq},
		vault.SatExperimentTitle{Sequence: seq, Title: title},
		vault.SatExperimentAcronym{Sequence: seq, Acronym: acronym},

		vault.HubExperimentalUnit{Sequence: seq},
		vault.SatExperimentalUnitIdentifier{Sequence: seq, Identifier: g.Header.Text(FieldID)},
		vault.HubSubject{Sequence: seq},
		vault.SatSubjectAge{Sequence: seq, Age: age},
		vault.SatSubjectName{Sequence: seq, Name: g.Header.Text(FieldName)},
		vault.ParticipatesIn{Sequence: seq, ExperimentalUnit: seq, Experiment: seq},

		vault.HubTreatment{Sequence: seq, Experiment: seq},
	)
	for _, lvl := range cond.Levels() {
		fseq := vault.Sequence(seq, lvl.Factor)
		f.Add(
			vault.HubFactor{Sequence: fseq, Experiment: seq, IsCofactor: false},
			vault.SatFactorName{Sequence: fseq, Name: lvl.Factor},
			vault.SatFactorLevel{Sequence: fseq, LevelValue: lvl.Value()},
			vault.SatTreatmentFactorLevel{Sequence: seq, FactorLevel: fseq},
		)
	}

	f.Add(
		vault.HubGroup{Sequence: seq, Treatment: seq},
		vault.SatGroupName{Sequence: seq, Name: cond.Group},
		vault.AssignedTo{Sequence: seq, ExperimentalUnit: seq, Group: seq},

		vault.HubSession{Sequence: seq},
		vault.SatSessionName{Sequence: seq, Name: cond.Group},
		vault.AttendsSession{Sequence: seq, ExperimentalUnit: seq, Group: seq, Session: seq},
		vault.SessionMetaData{Sequence: seq, Session: seq, MetaData: seq},

		vault.HubObservation{Sequence: seq, CollectedAtSession: seq},
		vault.ObservationMetaData{Sequence: seq, Observation: seq, MetaData: seq},
		vault.SatObservationName{Sequence: seq, Name: title},
		vault.SatObservationValue{
			Sequence:   seq,
			Value:      values,
			Timestamps: Timestamps(date, period, len(values)),
		},
	)
	return f, nil
}
