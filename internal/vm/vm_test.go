package vm_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nirsvault/internal/apperr"
	"nirsvault/internal/header"
	"nirsvault/internal/vault"
	"nirsvault/internal/vm"
)

// ─────────────────────────────────────────────────────────────
// VM reader + transformer tests
// Files are generated in memory: a header block, the Data marker and a
// channel table with the requested scheme's columns.
// ─────────────────────────────────────────────────────────────

type vmFile struct {
	id, name, age, date, period string
	columns                     []string
	rows                        int
}

func (f vmFile) text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID,%s\n", f.id)
	fmt.Fprintf(&b, "Name,%s\n", f.name)
	fmt.Fprintf(&b, "Age,%s\n", f.age)
	b.WriteString("Sex,Male\n")
	b.WriteString("AnalyzeMode,Continuous\n")
	b.WriteString("Pre Time[s],5\nPost Time[s],5\nRecovery Time[s],10\nBase Time[s],5\n")
	if f.date != "" {
		fmt.Fprintf(&b, "Date,%s\n", f.date)
	}
	b.WriteString("Wave[nm],695,830,\n")
	if f.period != "" {
		fmt.Fprintf(&b, "Sampling Period[s],%s\n", f.period)
	}
	b.WriteString("StimType,STIM\n")
	b.WriteString("Stim Time[s]\n")
	b.WriteString("A,20,,B,30,,C\n")
	b.WriteString("Repeat Count,3\n")
	b.WriteString("Data\n")
	b.WriteString("Time," + strings.Join(f.columns, ",") + ",Mark\n")
	for r := 0; r < f.rows; r++ {
		cells := []string{fmt.Sprintf("%.1f", float64(r)/10)}
		for c := range f.columns {
			cells = append(cells, fmt.Sprintf("%d.%d", r, c))
		}
		cells = append(cells, "")
		b.WriteString(strings.Join(cells, ",") + "\n")
	}
	return b.String()
}

func plainFile() vmFile {
	return vmFile{
		id: ",VM0001", name: ",Subj001", age: "  34y",
		date: "01/02/2020 10:00:00", period: "0.1",
		columns: vm.SchemePlain.Columns(), rows: 3,
	}
}

func group(t *testing.T, fileName string, f vmFile) vm.Group {
	t.Helper()
	h, data, err := vm.ReadFile(strings.NewReader(f.text()))
	require.NoError(t, err)
	return vm.Group{FileName: fileName, Header: h, Data: data}
}

func TestReadFile_Header(t *testing.T) {
	h, data, err := vm.ReadFile(strings.NewReader(plainFile().text()))
	require.NoError(t, err)

	assert.Equal(t, vm.Fields, h.Keys())
	assert.Equal(t, "VM0001", h.Text(vm.FieldID))
	assert.Equal(t, "Subj001", h.Text(vm.FieldName))
	assert.Equal(t, "  34y", h.Text(vm.FieldAge))
	assert.Equal(t, "01/02/2020 10:00:00", h.Text(vm.FieldDate))
	assert.Equal(t, "0.1", h.Text(vm.FieldSamplingPeriod))

	wave, _ := h.Get(vm.FieldWave)
	list, ok := wave.AsList()
	require.True(t, ok)
	assert.Equal(t, []string{"695", "830"}, list)

	stim, _ := h.Get(vm.FieldStimTime)
	m, ok := stim.AsMapping()
	require.True(t, ok)
	// "A,20,,B,30,,C" → A,20B,30C: pairs (A,20B); trailing 30C is unpaired.
	assert.Equal(t, []string{"A"}, m.Keys())
	assert.Equal(t, "20B", m.Text("A"))

	assert.Equal(t, 3, data.Len())
	assert.Equal(t, "CH1", data.Columns[1])
}

func TestReadFile_MissingFieldsAreEmpty(t *testing.T) {
	f := plainFile()
	f.date = ""
	h, _, err := vm.ReadFile(strings.NewReader(f.text()))
	require.NoError(t, err)
	assert.Equal(t, "", h.Text(vm.FieldDate))
}

func TestReadFile_NoDataMarker(t *testing.T) {
	_, _, err := vm.ReadFile(strings.NewReader("ID,VM0001\nName,Subj001\n"))
	assert.True(t, errors.Is(err, apperr.ErrMalformedTable))
}

func TestParseAge(t *testing.T) {
	for raw, want := range map[string]int{"  34y": 34, "0y": 0, " 7 ": 7, "12": 12} {
		got, err := vm.ParseAge(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	for _, raw := range []string{"", "y", "old", "-3y"} {
		_, err := vm.ParseAge(raw)
		assert.True(t, errors.Is(err, apperr.ErrMalformedHeaderField), raw)
	}
}

func TestClassify(t *testing.T) {
	c, err := vm.Classify("ViMo")
	require.NoError(t, err)
	assert.True(t, c.Visual)
	assert.True(t, c.Motor)

	c, err = vm.Classify("Rest")
	require.NoError(t, err)
	assert.False(t, c.Visual)
	assert.False(t, c.Motor)

	_, err = vm.Classify("Jump")
	assert.True(t, errors.Is(err, apperr.ErrUnknownAcronym))
}

func TestSchemeColumns(t *testing.T) {
	mes := vm.SchemeMES.Columns()
	require.Len(t, mes, 48)
	assert.Equal(t, "CH1(698.1)", mes[0])
	assert.Equal(t, "CH10(829.0)", mes[19])
	assert.Equal(t, "CH24(828.8)", mes[47])

	assert.Equal(t, vm.SchemeMES, vm.SchemeFor("VM0001_Moto_MES_Probe1.csv"))
	assert.Equal(t, vm.SchemePlain, vm.SchemeFor("VM0001_Moto_HBA_Probe1_Deoxy.csv"))
	assert.Len(t, vm.SchemePlain.Columns(), 24)
}

func TestTransform_EndToEnd(t *testing.T) {
	g := group(t, "VM0001_Moto_HBA_Probe1_Deoxy.csv", plainFile())

	res := vm.Transform([]vm.Group{g})
	require.Empty(t, res.Failures)
	f := res.Fragments("VM0001_Moto_HBA_Probe1_Deoxy.csv")
	require.NotNil(t, f)

	const seq = "2020-02-01 10:00:00_VM0001_Moto_HBA_Probe1_Deoxy"
	assert.Equal(t, []vault.Row{vault.HubExperiment{Sequence: seq}}, f.Rows(vault.TableHubExperiment))
	assert.Equal(t, []vault.Row{vault.SatSubjectAge{Sequence: seq, Age: 34}}, f.Rows(vault.TableSatSubjectAge))
	assert.Equal(t, []vault.Row{vault.SatSubjectName{Sequence: seq, Name: "Subj001"}}, f.Rows(vault.TableSatSubjectName))
	assert.Equal(t, []vault.Row{vault.SatGroupName{Sequence: seq, Name: "Motor Stimulus"}}, f.Rows(vault.TableSatGroupName))
	assert.Equal(t, []vault.Row{vault.SatExperimentAcronym{Sequence: seq, Acronym: "Moto"}}, f.Rows(vault.TableSatExperimentAcronym))

	vals := f.Rows(vault.TableSatObservationValue)
	require.Len(t, vals, 1)
	obs := vals[0].(vault.SatObservationValue)
	base := time.Date(2020, 2, 1, 10, 0, 0, 0, time.UTC)
	want := []time.Time{base, base.Add(100 * time.Millisecond), base.Add(200 * time.Millisecond)}
	if diff := cmp.Diff(want, obs.Timestamps); diff != "" {
		t.Errorf("timestamps mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, obs.Value, 3)
	assert.Len(t, obs.Value[0], 24)
	assert.Equal(t, 1.0, obs.Value[1][0])

	levels := map[string]string{}
	for _, r := range f.Rows(vault.TableSatFactorLevel) {
		l := r.(vault.SatFactorLevel)
		levels[l.Sequence] = l.LevelValue
	}
	assert.Equal(t, map[string]string{
		seq + "_Visual Stimulus": "False",
		seq + "_Motor Stimulus":  "True",
	}, levels)

	meta := f.Rows(vault.TableSatMetaDataKeyValuePair)
	require.Len(t, meta, len(vm.Fields))
	kv := meta[0].(vault.SatMetaDataKeyValuePair)
	assert.Equal(t, vm.FieldID, kv.Key)
	v, err := header.UnmarshalValue(kv.Value)
	require.NoError(t, err)
	assert.Equal(t, "VM0001", v.Text())

	require.NoError(t, f.Validate())
}

func TestTransform_Idempotent(t *testing.T) {
	g := group(t, "VM0002_ViMo_HBA_Probe1_Oxy.csv", plainFile())

	a := vm.Transform([]vm.Group{g}).Output()
	b := vm.Transform([]vm.Group{g}).Output()
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("transform is not a pure function (-first +second):\n%s", diff)
	}
}

func TestTransform_FailuresStayLocal(t *testing.T) {
	noDate := plainFile()
	noDate.date = ""
	badDate := plainFile()
	badDate.date = "2020-02-01"
	noPeriod := plainFile()
	noPeriod.period = ""

	groups := []vm.Group{
		group(t, "VM0001_Moto_HBA_Probe1_Deoxy.csv", plainFile()),
		group(t, "VM0002_Moto_HBA_Probe1_Deoxy.csv", noDate),
		group(t, "VM0003_Jump_HBA_Probe1_Deoxy.csv", plainFile()),
		group(t, "VM0004_Rest_HBA_Probe1_Deoxy.csv", badDate),
		group(t, "VM0005_Rest_HBA_Probe1_Deoxy.csv", noPeriod),
		group(t, "VM0006_Viso_MES_Probe1.csv", plainFile()),
		group(t, "VM0007_Rest_HBA_Probe1_Deoxy.csv", plainFile()),
	}
	res := vm.Transform(groups)

	out := res.Output()
	assert.Equal(t, []string{"VM0001_Moto_HBA_Probe1_Deoxy.csv", "VM0007_Rest_HBA_Probe1_Deoxy.csv"}, out.Groups)

	kinds := map[string]apperr.Kind{}
	for _, f := range res.Failures {
		kinds[f.Group] = f.Kind
	}
	assert.Equal(t, map[string]apperr.Kind{
		"VM0002_Moto_HBA_Probe1_Deoxy.csv": apperr.KindMalformedHeaderField,
		"VM0003_Jump_HBA_Probe1_Deoxy.csv": apperr.KindUnknownAcronym,
		"VM0004_Rest_HBA_Probe1_Deoxy.csv": apperr.KindMalformedHeaderField,
		"VM0005_Rest_HBA_Probe1_Deoxy.csv": apperr.KindMalformedHeaderField,
		"VM0006_Viso_MES_Probe1.csv":       apperr.KindMixedBatch,
	}, kinds)

	for _, tbl := range out.Tables {
		for _, rec := range tbl.Records {
			assert.Contains(t, out.Groups, rec.Origin)
		}
	}
}

func TestTransform_MESBatch(t *testing.T) {
	f := plainFile()
	f.columns = vm.SchemeMES.Columns()
	g := group(t, "VM0001_ViMo_MES_Probe1.csv", f)

	res := vm.Transform([]vm.Group{g})
	require.Empty(t, res.Failures)
	obs := res.Groups[0].Rows(vault.TableSatObservationValue)[0].(vault.SatObservationValue)
	assert.Len(t, obs.Value[0], 48)
}

func TestTransform_MissingChannels(t *testing.T) {
	f := plainFile()
	f.columns = []string{"CH1", "CH2"}
	res := vm.Transform([]vm.Group{group(t, "VM0001_Moto_HBA_Probe1_Deoxy.csv", f)})
	require.Len(t, res.Failures, 1)
	assert.Equal(t, apperr.KindMalformedTable, res.Failures[0].Kind)
}
