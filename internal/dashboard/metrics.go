package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"nirsvault/internal/apperr"
	"nirsvault/internal/etl"
	"nirsvault/internal/header"
	"nirsvault/internal/vault"
)

func observations(ctx context.Context, r Reader, p Params) ([]etl.Record, error) {
	if len(p.Match) == 0 {
		return nil, fmt.Errorf("%w: match is required", ErrInvalidParams)
	}
	lo, hi, all, err := channelRange(p.Channels)
	if err != nil {
		return nil, err
	}

	names, err := latest(ctx, r, vault.TableSatObservationName)
	if err != nil {
		return nil, err
	}
	wanted := map[string]string{}
	for seq, rec := range names {
		name, _ := rec.Data["name"].(string)
		if matchesAll(name, p.Match) {
			wanted[seq] = name
		}
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	values, err := latest(ctx, r, vault.TableSatObservationValue)
	if err != nil {
		return nil, err
	}
	var out []etl.Record
	for seq, name := range wanted {
		rec, ok := values[seq]
		if !ok {
			continue
		}
		m, _ := rec.Data["value"].([][]float64)
		if !all {
			if m, err = sliceColumns(m, lo, hi); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		}
		out = append(out, etl.Record{Data: map[string]any{
			"observation": seq,
			"name":        name,
			"value":       m,
			"timestamps":  rec.Data["timestamps"],
		}})
	}
	sortBy(out, "name", "observation")
	return out, nil
}

func matchesAll(name string, patterns []string) bool {
	for _, p := range patterns {
		if !strings.Contains(name, p) {
			return false
		}
	}
	return true
}

func observationMetadata(ctx context.Context, r Reader, p Params) ([]etl.Record, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidParams)
	}
	names, err := latest(ctx, r, vault.TableSatObservationName)
	if err != nil {
		return nil, err
	}
	observationSeqs := map[string]bool{}
	for seq, rec := range names {
		if rec.Data["name"] == p.Name {
			observationSeqs[seq] = true
		}
	}
	if len(observationSeqs) == 0 {
		return nil, apperr.NotFound(fmt.Sprintf("observation %q", p.Name))
	}

	links, err := distinct(ctx, r, vault.TableObservationMetaData)
	if err != nil {
		return nil, err
	}
	metadataSeqs := map[string]bool{}
	for _, l := range links {
		if observationSeqs[seqOf(l, "observation")] {
			metadataSeqs[seqOf(l, "metadata")] = true
		}
	}

	pairs, err := latestMany(ctx, r, vault.TableSatMetaDataKeyValuePair)
	if err != nil {
		return nil, err
	}
	var out []etl.Record
	for seq := range metadataSeqs {
		for _, rec := range pairs[seq] {
			raw, _ := rec.Data["value"].([]byte)
			v, err := header.UnmarshalValue(raw)
			if err != nil {
				return nil, fmt.Errorf("metadata %v: %w", rec.Data["key"], err)
			}
			out = append(out, etl.Record{Data: map[string]any{
				"key":   rec.Data["key"],
				"value": v.Native(),
			}})
		}
	}
	sortBy(out, "key")
	return out, nil
}

func experimentFactors(ctx context.Context, r Reader, _ Params) ([]etl.Record, error) {
	factors, err := distinct(ctx, r, vault.TableHubFactor)
	if err != nil {
		return nil, err
	}
	titles, err := latest(ctx, r, vault.TableSatExperimentTitle)
	if err != nil {
		return nil, err
	}
	factorNames, err := latest(ctx, r, vault.TableSatFactorName)
	if err != nil {
		return nil, err
	}
	levels, err := latest(ctx, r, vault.TableSatFactorLevel)
	if err != nil {
		return nil, err
	}

	var out []etl.Record
	for _, f := range factors {
		seq := seqOf(f, "sequence")
		title, ok := titles[seqOf(f, "experiment")]
		if !ok {
			continue
		}
		out = append(out, etl.Record{Data: map[string]any{
			"experiment": title.Data["title"],
			"factor":     factorNames[seq].Data["name"],
			"level":      levels[seq].Data["levelValue"],
		}})
	}
	sortBy(out, "experiment", "factor", "level")
	return out, nil
}

func groupMembers(ctx context.Context, r Reader, p Params) ([]etl.Record, error) {
	assignments, err := distinct(ctx, r, vault.TableAssignedTo)
	if err != nil {
		return nil, err
	}
	groupNames, err := latest(ctx, r, vault.TableSatGroupName)
	if err != nil {
		return nil, err
	}
	subjectNames, err := latest(ctx, r, vault.TableSatSubjectName)
	if err != nil {
		return nil, err
	}

	var out []etl.Record
	for _, a := range assignments {
		// An experimental unit shares its sequence with its subject.
		subject, ok := subjectNames[seqOf(a, "experimentalUnit")]
		if !ok {
			continue
		}
		name, _ := subject.Data["name"].(string)
		if !strings.HasPrefix(name, p.Prefix) {
			continue
		}
		out = append(out, etl.Record{Data: map[string]any{
			"group":   groupNames[seqOf(a, "group")].Data["name"],
			"subject": name,
		}})
	}
	sortBy(out, "group", "subject")
	return out, nil
}

// sortBy orders records by the given fields, compared as text.
func sortBy(records []etl.Record, fields ...string) {
	sort.SliceStable(records, func(i, j int) bool {
		for _, f := range fields {
			a, b := fmt.Sprint(records[i].Data[f]), fmt.Sprint(records[j].Data[f])
			if a != b {
				return a < b
			}
		}
		return false
	})
}
