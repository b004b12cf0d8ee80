package preautism

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"nirsvault/internal/apperr"
	"nirsvault/internal/header"
	"nirsvault/internal/table"
	"nirsvault/internal/vault"
)

// FactorConversation is the single factor of the conversation design.
const FactorConversation = "Conversation"

// Kind names one of a group's sample files.
type Kind string

// Observation kinds, in load order.
const (
	KindData          Kind = "data"
	KindWavelengthOne Kind = "wavelengthOneData"
	KindWavelengthTwo Kind = "wavelengthTwoData"
	KindEvents        Kind = "eventonsData"
)

// Kinds lists every observation kind a group produces.
var Kinds = []Kind{KindData, KindWavelengthOne, KindWavelengthTwo, KindEvents}

// Group is one recording: the .hdr path, its parsed header and the
// companion sample tables.
type Group struct {
	Path          string
	Header        *header.Header
	Data          *table.Table
	WavelengthOne *table.Table
	WavelengthTwo *table.Table
	Events        *table.Table
}

func (g Group) table(k Kind) *table.Table {
	switch k {
	case KindData:
		return g.Data
	case KindWavelengthOne:
		return g.WavelengthOne
	case KindWavelengthTwo:
		return g.WavelengthTwo
	case KindEvents:
		return g.Events
	}
	return nil
}

// Options tunes the transform.
type Options struct {
	// IncludeEvents also stores the .evt samples as an observation value.
	IncludeEvents bool
}

// Transform maps Pre-Autism recordings to vault fragments, one file group
// per .hdr file. Failed groups are reported and skipped.
//
// Observation values are ordered across the batch: every .dat value
// first, then .wl1, then .wl2.
func Transform(groups []Group, opts Options) *vault.Result {
	res := &vault.Result{}
	for _, g := range groups {
		f, err := transformGroup(g, opts)
		if err != nil {
			res.Fail(g.Path, "transform", err)
			continue
		}
		res.Accept(f)
	}
	return res
}

// ValueOrder ranks SatObservationValue rows by observation kind.
var ValueOrder = vault.Order{
	Table: vault.TableSatObservationValue,
	Rank: func(r vault.Row) int {
		v, ok := r.(vault.SatObservationValue)
		if !ok {
			return len(Kinds)
		}
		for i, k := range Kinds {
			if strings.HasSuffix(v.Sequence, vault.Separator+string(k)) {
				return i
			}
		}
		return len(Kinds)
	},
}

var errMissing = errors.New("field is missing")

// general returns a GeneralInfo or ImagingParameters field.
func general(h *header.Header, section, field string) string {
	v, ok := h.Get(section)
	if !ok {
		return ""
	}
	m, ok := v.AsMapping()
	if !ok {
		return ""
	}
	return strings.TrimSpace(m.Text(field))
}

// Sequence is FileName_Date_Time from GeneralInfo. Every part is required.
func Sequence(h *header.Header) (string, error) {
	return vault.SessionSequence(
		general(h, "GeneralInfo", FieldFileName),
		general(h, "GeneralInfo", FieldDate),
		general(h, "GeneralInfo", FieldTime),
	)
}

// StartTime is the recording start: the date embedded in the file name
// ("NIRS-2021-05-03_001" → "2021-05-03") joined with the header Time.
func StartTime(h *header.Header) (time.Time, error) {
	name := strings.TrimPrefix(general(h, "GeneralInfo", FieldFileName), "NIRS-")
	day, _, _ := strings.Cut(name, "_")
	raw := strings.TrimSpace(day + " " + general(h, "GeneralInfo", FieldTime))
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return time.Time{}, apperr.MalformedHeaderField(FieldTime, err)
	}
	return t, nil
}

// SamplingRate is the step between samples, in seconds.
func SamplingRate(h *header.Header) (float64, error) {
	raw := general(h, "ImagingParameters", FieldSamplingRate)
	if raw == "" {
		return 0, apperr.MalformedHeaderField(FieldSamplingRate, errMissing)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperr.MalformedHeaderField(FieldSamplingRate, err)
	}
	if v <= 0 {
		return 0, apperr.MalformedHeaderField(FieldSamplingRate, fmt.Errorf("non-positive rate %v", v))
	}
	return v, nil
}

// Timestamps returns n sample times: start + i × step seconds.
func Timestamps(start time.Time, step float64, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(math.Round(float64(i) * step * float64(time.Second))))
	}
	return out
}

func transformGroup(g Group, opts Options) (*vault.Fragments, error) {
	if g.Header == nil {
		return nil, apperr.MalformedTable("group has no header", nil)
	}
	seq, err := Sequence(g.Header)
	if err != nil {
		return nil, err
	}
	rate, err := SamplingRate(g.Header)
	if err != nil {
		return nil, err
	}
	start, err := StartTime(g.Header)
	if err != nil {
		return nil, err
	}
	id := ParseIdentity(g.Path)

	f := vault.NewFragments(g.Path)

	leaves, err := g.Header.Flatten()
	if err != nil {
		return nil, err
	}
	f.Add(vault.HubMetaData{Sequence: seq})
	for _, e := range leaves {
		b, err := e.Value.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", e.Key, err)
		}
		f.Add(vault.SatMetaDataKeyValuePair{Sequence: seq, Key: e.Key, Value: b})
	}

	fseq := vault.Sequence(seq, FactorConversation)
	f.Add(
		vault.HubExperiment{Sequence: seq},
		vault.SatExperimentTitle{Sequence: seq, Title: id.Title},
		vault.SatExperimentAcronym{Sequence: seq, Acronym: id.Acronym},

		vault.HubExperimentalUnit{Sequence: seq},
		vault.SatExperimentalUnitIdentifier{Sequence: seq, Identifier: id.ExperimentalUnit},
		vault.HubSubject{Sequence: seq},
		vault.SatSubjectAge{Sequence: seq, Age: 0},
		vault.SatSubjectName{Sequence: seq, Name: id.Subject},
		vault.ParticipatesIn{Sequence: seq, ExperimentalUnit: seq, Experiment: seq},

		vault.HubFactor{Sequence: fseq, Experiment: seq, IsCofactor: false},
		vault.SatFactorName{Sequence: fseq, Name: FactorConversation},
		vault.SatFactorLevel{Sequence: fseq, LevelValue: id.Level},
		vault.HubTreatment{Sequence: seq, Experiment: seq},
		vault.SatTreatmentFactorLevel{Sequence: seq, FactorLevel: fseq},

		vault.HubGroup{Sequence: seq, Treatment: seq},
		vault.SatGroupName{Sequence: seq, Name: id.Level},
		vault.AssignedTo{Sequence: seq, ExperimentalUnit: seq, Group: seq},

		vault.HubSession{Sequence: seq},
		vault.SatSessionName{Sequence: seq, Name: id.Level},
		vault.AttendsSession{Sequence: seq, ExperimentalUnit: seq, Group: seq, Session: seq},
		vault.SessionMetaData{Sequence: seq, Session: seq, MetaData: seq},
	)

	for _, k := range Kinds {
		oseq := vault.Sequence(seq, string(k))
		f.Add(
			vault.HubObservation{Sequence: oseq, CollectedAtSession: seq},
			vault.SatObservationName{Sequence: oseq, Name: ObservationName(id.Title, k)},
			vault.ObservationMetaData{Sequence: oseq, Observation: oseq, MetaData: seq},
		)
		if k == KindEvents && !opts.IncludeEvents {
			continue
		}
		t := g.table(k)
		if t == nil {
			return nil, apperr.IncompleteGroup(g.Path, string(k))
		}
		values, err := t.Matrix()
		if err != nil {
			return nil, err
		}
		f.Add(vault.SatObservationValue{
			Sequence:   oseq,
			Value:      values,
			Timestamps: Timestamps(start, rate, len(values)),
		})
	}
	return f, nil
}
