package vault_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nirsvault/internal/apperr"
	"nirsvault/internal/etl"
	"nirsvault/internal/vault"
)

func TestSequence_Deterministic(t *testing.T) {
	a := vault.Sequence("2020-02-01 10:00:00", "VM0001_Moto_HBA_Probe1_Deoxy")
	b := vault.Sequence("2020-02-01 10:00:00", "VM0001_Moto_HBA_Probe1_Deoxy")
	assert.Equal(t, "2020-02-01 10:00:00_VM0001_Moto_HBA_Probe1_Deoxy", a)
	assert.Equal(t, a, b)

	seen := map[string]bool{}
	for _, parts := range [][]string{
		{"NIRS-2021-05-03_001", "2021-05-03", "10:00"},
		{"NIRS-2021-05-03_001", "2021-05-03", "11:00"},
		{"NIRS-2021-05-03_002", "2021-05-03", "10:00"},
	} {
		s := vault.Sequence(parts...)
		assert.False(t, seen[s], "duplicate %s", s)
		seen[s] = true
	}
}

// Parts containing the separator can join to the same key; such keys are
// reported as collisions at load time rather than merged.
func TestSequence_SeparatorInPartsCollides(t *testing.T) {
	a := vault.Sequence("a_b", "c")
	b := vault.Sequence("a", "b_c")
	require.Equal(t, a, b)

	first := vault.NewFragments("first.csv")
	first.Add(vault.HubSubject{Sequence: a})
	second := vault.NewFragments("second.csv")
	second.Add(vault.HubSubject{Sequence: b})

	tables := etl.MergeTables([]*etl.BatchOutput{{Tables: first.Tables()}, {Tables: second.Tables()}})
	failures := etl.DetectCollisions(tables)
	require.Len(t, failures, 1)
	assert.Equal(t, "second.csv", failures[0].Group)
	assert.Equal(t, apperr.KindNaturalKeyCollision, failures[0].Kind)
}

func TestRequireParts(t *testing.T) {
	_, err := vault.SessionSequence("NIRS-2021-05-03_001", "", "10:00")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrMalformedHeaderField))
	assert.Contains(t, err.Error(), `"Date"`)

	s, err := vault.ExperimentSequence("2020-02-01 10:00:00", "x")
	require.NoError(t, err)
	assert.Equal(t, "2020-02-01 10:00:00_x", s)
}

func TestCatalog_HubsLinksSatellites(t *testing.T) {
	defs := vault.Catalog()
	require.Len(t, defs, 27)
	for i := 1; i < len(defs); i++ {
		assert.LessOrEqual(t, defs[i-1].Kind.Rank(), defs[i].Kind.Rank(), defs[i].Name)
	}
	for _, d := range defs {
		for _, f := range d.Schema.Fields {
			if f.Ref == "" {
				continue
			}
			ref, ok := vault.Lookup(f.Ref)
			require.True(t, ok, "%s.%s", d.Name, f.Name)
			assert.Equal(t, etl.KindHub, ref.Kind)
		}
	}
}

func groupFragments(origin, seq string) *vault.Fragments {
	f := vault.NewFragments(origin)
	f.Add(
		vault.HubSubject{Sequence: seq},
		vault.SatSubjectName{Sequence: seq, Name: "Subj001"},
		vault.SatSubjectAge{Sequence: seq, Age: 34},
	)
	return f
}

func TestFragments_Validate(t *testing.T) {
	require.NoError(t, groupFragments("g", "s").Validate())

	f := vault.NewFragments("g")
	f.Add(vault.SatGroupName{Sequence: "nohub", Name: "Rest"})
	err := f.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrDanglingReference))

	f = vault.NewFragments("g")
	f.Add(vault.HubExperiment{Sequence: "e"}, vault.HubTreatment{Sequence: "t", Experiment: "missing"})
	assert.True(t, errors.Is(f.Validate(), apperr.ErrDanglingReference))

	f = vault.NewFragments("g")
	f.Add(vault.HubSession{})
	assert.True(t, errors.Is(f.Validate(), apperr.ErrMalformedTable))
}

func TestResult_AcceptRejectsInvalid(t *testing.T) {
	var r vault.Result
	r.Accept(groupFragments("good", "s"))

	bad := vault.NewFragments("bad")
	bad.Add(vault.SatSessionName{Sequence: "x", Name: "Normal"})
	r.Accept(bad)

	out := r.Output()
	assert.Equal(t, []string{"good"}, out.Groups)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, "bad", out.Failures[0].Group)
	assert.Equal(t, "validate", out.Failures[0].Stage)
	for _, tbl := range out.Tables {
		for _, rec := range tbl.Records {
			assert.Equal(t, "good", rec.Origin)
		}
	}
}

func TestAssemble_GroupOrderAndRank(t *testing.T) {
	groups := []*vault.Fragments{groupFragments("g1", "s1"), groupFragments("g2", "s2")}
	for i, g := range groups {
		g.Add(
			vault.HubObservation{Sequence: fmt.Sprintf("o%d_b", i)},
			vault.SatObservationName{Sequence: fmt.Sprintf("o%d_b", i), Name: "b"},
			vault.HubObservation{Sequence: fmt.Sprintf("o%d_a", i)},
			vault.SatObservationName{Sequence: fmt.Sprintf("o%d_a", i), Name: "a"},
		)
	}

	tables := vault.Assemble(groups, vault.Order{
		Table: vault.TableSatObservationName,
		Rank: func(r vault.Row) int {
			if r.(vault.SatObservationName).Name == "a" {
				return 0
			}
			return 1
		},
	})

	byName := map[string]etl.Table{}
	for _, tbl := range tables {
		byName[tbl.Name] = tbl
	}

	var subjects []any
	for _, rec := range byName[vault.TableHubSubject].Records {
		subjects = append(subjects, rec.Data["sequence"])
	}
	assert.Equal(t, []any{"s1", "s2"}, subjects)

	var names []any
	for _, rec := range byName[vault.TableSatObservationName].Records {
		names = append(names, rec.Data["sequence"])
	}
	assert.Equal(t, []any{"o0_a", "o1_a", "o0_b", "o1_b"}, names)

	age := byName[vault.TableSatSubjectAge].Records[0]
	assert.Equal(t, 34, age.Data["age"])
	assert.Equal(t, "g1", age.Origin)
}
