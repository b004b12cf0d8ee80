package dashboard_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nirsvault/internal/apperr"
	"nirsvault/internal/dashboard"
	"nirsvault/internal/dbclient"
	"nirsvault/internal/domain"
	"nirsvault/internal/etl"
	"nirsvault/internal/header"
	"nirsvault/internal/vault"
)

var loadTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func encode(t *testing.T, v header.Value) []byte {
	t.Helper()
	b, err := v.MarshalBinary()
	require.NoError(t, err)
	return b
}

func observation(seq, name string, m [][]float64) []vault.Row {
	ts := make([]time.Time, len(m))
	for i := range ts {
		ts[i] = time.Date(2020, 2, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(i) * 100 * time.Millisecond)
	}
	return []vault.Row{
		vault.HubSession{Sequence: seq},
		vault.HubObservation{Sequence: seq, CollectedAtSession: seq},
		vault.SatObservationName{Sequence: seq, Name: name},
		vault.SatObservationValue{Sequence: seq, Value: m, Timestamps: ts},
	}
}

func member(seq, subject, group string) []vault.Row {
	return []vault.Row{
		vault.HubExperimentalUnit{Sequence: seq},
		vault.HubSubject{Sequence: seq},
		vault.SatSubjectName{Sequence: seq, Name: subject},
		vault.HubGroup{Sequence: seq, Treatment: seq},
		vault.SatGroupName{Sequence: seq, Name: group},
		vault.AssignedTo{Sequence: seq, ExperimentalUnit: seq, Group: seq},
	}
}

// warehouse loads rows into a fresh SQLite vault with the given clock.
func load(t *testing.T, path string, at time.Time, rows ...vault.Row) {
	t.Helper()
	w := &domain.Warehouse{Driver: domain.WarehouseDriverSQLite, Host: path, Source: "test"}
	c, err := dbclient.NewConnector(w, "", dbclient.Options{Now: func() time.Time { return at }})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.EnsureSchema(ctx, vault.Tables()))
	f := vault.NewFragments("test")
	f.Add(rows...)
	for _, tbl := range f.Tables() {
		_, err := c.Write(ctx, tbl)
		require.NoError(t, err)
	}
}

func reader(t *testing.T, path string) dashboard.Reader {
	t.Helper()
	w := &domain.Warehouse{Driver: domain.WarehouseDriverSQLite, Host: path}
	c, err := dbclient.NewConnector(w, "", dbclient.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func seedVault(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.db")
	var rows []vault.Row
	rows = append(rows, observation("s1", "VM0001_Moto_HBA_Probe1_Deoxy", [][]float64{{1, 2, 3}, {4, 5, 6}})...)
	rows = append(rows, observation("s2", "VM0002_ViMo_HBA_Probe1_Oxy", [][]float64{{7, 8, 9}})...)
	rows = append(rows, observation("s3", "VM0003_ViMo_HBA_Probe1_Deoxy", [][]float64{{0, 0, 0}})...)
	rows = append(rows,
		vault.HubMetaData{Sequence: "s1"},
		vault.ObservationMetaData{Sequence: "s1", Observation: "s1", MetaData: "s1"},
		vault.SatMetaDataKeyValuePair{Sequence: "s1", Key: "ID", Value: encode(t, header.Scalar("VM0001"))},
		vault.SatMetaDataKeyValuePair{Sequence: "s1", Key: "Wave[nm]", Value: encode(t, header.List([]string{"695", "830"}))},

		vault.HubExperiment{Sequence: "s1"},
		vault.SatExperimentTitle{Sequence: "s1", Title: "Visuomotor functional connectivity"},
		vault.HubFactor{Sequence: "s1_Visual Stimulus", Experiment: "s1"},
		vault.SatFactorName{Sequence: "s1_Visual Stimulus", Name: "Visual Stimulus"},
		vault.SatFactorLevel{Sequence: "s1_Visual Stimulus", LevelValue: "Absent"},
		vault.HubFactor{Sequence: "s1_Motor Task", Experiment: "s1"},
		vault.SatFactorName{Sequence: "s1_Motor Task", Name: "Motor Task"},
		vault.SatFactorLevel{Sequence: "s1_Motor Task", LevelValue: "Present"},
	)
	rows = append(rows, member("s1", "Subj001", "Moto")...)
	rows = append(rows, member("p1", "Autism01", "Normal")...)
	load(t, path, loadTime, rows...)
	return path
}

func TestObservations_MatchAllAndChannels(t *testing.T) {
	r := reader(t, seedVault(t))

	res, err := dashboard.Run(context.Background(), r, dashboard.MetricObservations,
		dashboard.Params{Match: []string{"ViMo", "Oxy"}, Channels: "2:3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"observation", "name", "value", "timestamps"}, res.Columns)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, dbclient.Hash("s2"), res.Rows[0][0])
	assert.Equal(t, "VM0002_ViMo_HBA_Probe1_Oxy", res.Rows[0][1])
	assert.Equal(t, [][]float64{{8, 9}}, res.Rows[0][2])

	res, err = dashboard.Run(context.Background(), r, dashboard.MetricObservations,
		dashboard.Params{Match: []string{"Deoxy"}})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "VM0001_Moto_HBA_Probe1_Deoxy", res.Rows[0][1])
	assert.Equal(t, [][]float64{{1, 2, 3}, {4, 5, 6}}, res.Rows[0][2])
	ts := res.Rows[0][3].([]time.Time)
	assert.Equal(t, 100*time.Millisecond, ts[1].Sub(ts[0]))
}

func TestObservations_BadParams(t *testing.T) {
	r := reader(t, seedVault(t))
	ctx := context.Background()

	_, err := dashboard.Run(ctx, r, dashboard.MetricObservations, dashboard.Params{})
	assert.True(t, errors.Is(err, dashboard.ErrInvalidParams))

	for _, ch := range []string{"0:2", "3:1", "a:b"} {
		_, err = dashboard.Run(ctx, r, dashboard.MetricObservations, dashboard.Params{Match: []string{"Oxy"}, Channels: ch})
		assert.True(t, errors.Is(err, dashboard.ErrInvalidParams), ch)
	}
	_, err = dashboard.Run(ctx, r, dashboard.MetricObservations, dashboard.Params{Match: []string{"Oxy"}, Channels: "2:9"})
	assert.True(t, errors.Is(err, dashboard.ErrInvalidParams))

	_, err = dashboard.Run(ctx, r, "histogram", dashboard.Params{})
	assert.True(t, errors.Is(err, dashboard.ErrInvalidParams))
}

func TestObservationMetadata_Decoded(t *testing.T) {
	r := reader(t, seedVault(t))

	res, err := dashboard.Run(context.Background(), r, dashboard.MetricObservationMetadata,
		dashboard.Params{Name: "VM0001_Moto_HBA_Probe1_Deoxy"})
	require.NoError(t, err)
	want := [][]any{
		{"ID", "VM0001"},
		{"Wave[nm]", []string{"695", "830"}},
	}
	if diff := cmp.Diff(want, res.Rows); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}

	_, err = dashboard.Run(context.Background(), r, dashboard.MetricObservationMetadata,
		dashboard.Params{Name: "VM9999"})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestExperimentFactors(t *testing.T) {
	r := reader(t, seedVault(t))

	res, err := dashboard.Run(context.Background(), r, dashboard.MetricExperimentFactors, dashboard.Params{})
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{"Visuomotor functional connectivity", "Motor Task", "Present"},
		{"Visuomotor functional connectivity", "Visual Stimulus", "Absent"},
	}, res.Rows)
}

func TestGroupMembers_PrefixAndLatestLoad(t *testing.T) {
	path := seedVault(t)
	// A later load renames the subject; the dashboard shows the newest row.
	load(t, path, loadTime.Add(time.Hour), vault.SatSubjectName{Sequence: "s1", Name: "Subj001b"})
	r := reader(t, path)

	res, err := dashboard.Run(context.Background(), r, dashboard.MetricGroupMembers, dashboard.Params{Prefix: "Subj"})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Moto", "Subj001b"}}, res.Rows)

	res, err = dashboard.Run(context.Background(), r, dashboard.MetricGroupMembers, dashboard.Params{Prefix: "Autism"})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Normal", "Autism01"}}, res.Rows)
}

func TestRun_AppliesTransforms(t *testing.T) {
	r := reader(t, seedVault(t))

	res, err := dashboard.Run(context.Background(), r, dashboard.MetricExperimentFactors, dashboard.Params{
		Transforms: []etl.TransformConfig{
			{Type: "filter", Config: map[string]any{"field": "level", "op": "eq", "value": "Present"}},
			{Type: "select", Config: map[string]any{"fields": []any{"factor"}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"factor"}, res.Columns)
	assert.Equal(t, [][]any{{"Motor Task"}}, res.Rows)

	_, err = dashboard.Run(context.Background(), r, dashboard.MetricExperimentFactors, dashboard.Params{
		Transforms: []etl.TransformConfig{{Type: "pivot"}},
	})
	assert.True(t, errors.Is(err, dashboard.ErrInvalidParams))
}

func TestParamsKey(t *testing.T) {
	p := dashboard.Params{Match: []string{"ViMo", "Oxy"}, Channels: "1:2"}
	assert.Equal(t, "channels=1%3A2&match=ViMo&match=Oxy", p.Key())
	assert.Equal(t, "", dashboard.Params{}.Key())
}

func TestTransform_OnComputedResult(t *testing.T) {
	res := &dashboard.Result{
		Metric:  dashboard.MetricGroupMembers,
		Columns: []string{"group", "subject"},
		Rows:    [][]any{{"Moto", "Subj001"}, {"ViMo", "Subj002"}},
	}
	out, err := dashboard.Transform(res, []etl.TransformConfig{
		{Type: "rename", Config: map[string]any{"mapping": map[string]any{"subject": "participant"}}},
		{Type: "filter", Config: map[string]any{"field": "group", "op": "eq", "value": "ViMo"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"group", "participant"}, out.Columns)
	assert.Equal(t, [][]any{{"ViMo", "Subj002"}}, out.Rows)

	same, err := dashboard.Transform(res, nil)
	require.NoError(t, err)
	assert.Same(t, res, same)
}
