package preautism_test

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
	"nirsvault/internal/preautism"
	"nirsvault/internal/table"
	"nirsvault/internal/vault"
)

type hdrFile struct {
	fileName, date, clock, rate string
	dropEvents                  bool
	openGains                   bool
}

func defaultHdr() hdrFile {
	return hdrFile{
		fileName: "NIRS-2021-05-03_001",
		date:     "Mon, 03 May 2021",
		clock:    "14:25:43",
		rate:     "7.8125",
	}
}

func (f hdrFile) text() string {
	var b strings.Builder
	b.WriteString("[GeneralInfo]\n")
	fmt.Fprintf(&b, "FileName=\"%s\"\n", f.fileName)
	if f.date != "" {
		fmt.Fprintf(&b, "Date=\"%s\"\n", f.date)
	}
	fmt.Fprintf(&b, "Time=\"%s\"\n", f.clock)
	b.WriteString("Device=\"NIRScout\"\nSource=\"LED\"\nMod=\"Human Subject\"\nAPD=\"\"\nNIRStar=\"15.2\"\nSubject=1\n\n")

	b.WriteString("[ImagingParameters]\n")
	b.WriteString("Sources=8\nDetectors=8\nShortBundles=0\nShortDetIndex=\"\"\nSteps=8\n")
	b.WriteString("Wavelengths=\"760\t850\"\nTrigIns=4\nTrigOuts=0\nAnIns=0\n")
	if f.rate != "" {
		fmt.Fprintf(&b, "SamplingRate=%s\n", f.rate)
	}
	b.WriteString("Mod Amp=\"1.00\t1.00\"\nThreshold=\"0.00\t0.00\"\n\n")

	b.WriteString("[Paradigm]\nStimulusType=\"event\"\n\n")
	b.WriteString("[ExperimentNotes]\nNotes=\"\"\n\n")

	b.WriteString("[GainSettings]\nGains=\"#\n5\t6\n7\t8\n")
	if !f.openGains {
		b.WriteString("#\"\n")
	}
	b.WriteString("\n")

	if f.openGains {
		return b.String()
	}

	b.WriteString("[Markers]\n")
	if !f.dropEvents {
		b.WriteString("Events=\"#\n1\t2\t100\n#\"\n")
	}
	b.WriteString("\n")

	b.WriteString("[DataStructure]\nS-D-Key=\"1-1:1,1-2:2,\"\nS-D-Mask=\"#\n1\t1\n#\"\n\n")
	b.WriteString("[DarkNoise]\nWavelength1=\"#\n0.1\t0.2\n#\"\nWavelength2=\"#\n0.3\t0.4\n#\"\n\n")
	b.WriteString("[ChannelsDistance]\nChanDis=\"30.0\t30.0\"\n")
	return b.String()
}

func readHdr(t *testing.T, f hdrFile) *header.Header {
	t.Helper()
	h, err := preautism.ReadHeader(strings.NewReader(f.text()))
	require.NoError(t, err)
	return h
}

func samples(t *testing.T, rows int, base float64) *table.Table {
	t.Helper()
	var b strings.Builder
	for r := 0; r < rows; r++ {
		fmt.Fprintf(&b, "%v %v\n", base+float64(r), base+float64(r)+0.5)
	}
	tbl, err := table.ReadWhitespace(strings.NewReader(b.String()))
	require.NoError(t, err)
	return tbl
}

func recording(t *testing.T, path string, f hdrFile) preautism.Group {
	t.Helper()
	return preautism.Group{
		Path:          path,
		Header:        readHdr(t, f),
		Data:          samples(t, 3, 0),
		WavelengthOne: samples(t, 3, 10),
		WavelengthTwo: samples(t, 3, 20),
		Events:        samples(t, 1, 30),
	}
}

const normalPath = `AutismP01-A_NormalConversation\NIRS-2021-05-03_001.hdr`

func TestReadHeader_Sections(t *testing.T) {
	h := readHdr(t, defaultHdr())
	assert.Equal(t, preautism.Sections(), h.Keys())

	gi, _ := h.Get("GeneralInfo")
	m, ok := gi.AsMapping()
	require.True(t, ok)
	assert.Equal(t, "NIRS-2021-05-03_001", m.Text("FileName"))
	assert.Equal(t, "Mon, 03 May 2021", m.Text("Date"))
	assert.Equal(t, "14:25:43", m.Text("Time"))

	ip, _ := h.Get("ImagingParameters")
	m, _ = ip.AsMapping()
	assert.Equal(t, "760,850", m.Text("Wavelengths"))
	assert.Equal(t, "7.8125", m.Text("SamplingRate"))

	gs, _ := h.Get("GainSettings")
	m, _ = gs.AsMapping()
	gains, _ := m.Get("Gains")
	got, ok := gains.AsMatrix()
	require.True(t, ok)
	assert.Equal(t, [][]float64{{5, 6}, {7, 8}}, got)

	leaves, err := h.Flatten()
	require.NoError(t, err)
	assert.Equal(t, "FileName", leaves[0].Key)
}

func TestReadHeader_MissingFieldReadsEmpty(t *testing.T) {
	f := defaultHdr()
	f.date = ""
	h := readHdr(t, f)
	gi, _ := h.Get("GeneralInfo")
	m, _ := gi.AsMapping()
	assert.Equal(t, "", m.Text("Date"))
}

func TestReadHeader_ArrayErrors(t *testing.T) {
	f := defaultHdr()
	f.openGains = true
	_, err := preautism.ReadHeader(strings.NewReader(f.text()))
	assert.True(t, errors.Is(err, apperr.ErrArrayTerminatorNotFound), "got %v", err)

	f = defaultHdr()
	f.dropEvents = true
	_, err = preautism.ReadHeader(strings.NewReader(f.text()))
	assert.True(t, errors.Is(err, apperr.ErrMalformedHeaderField), "got %v", err)
}

func TestParseIdentity(t *testing.T) {
	for _, path := range []string{normalPath, "data/AutismP01-A_NormalConversation/NIRS-2021-05-03_001.hdr"} {
		id := preautism.ParseIdentity(path)
		assert.Equal(t, preautism.Identity{
			Title:            "NIRS-2021-05-03_001",
			Acronym:          "P01-A_Normal",
			ExperimentalUnit: "AutismP01-A",
			Subject:          "AutismP01",
			Level:            preautism.LevelNormal,
		}, id, path)
	}

	id := preautism.ParseIdentity(`AutismP02-B_StressedConversation\NIRS-2021-05-04_002.hdr`)
	assert.Equal(t, preautism.LevelStressed, id.Level)
	assert.Equal(t, "P02-B_Stressed", id.Acronym)

	assert.Equal(t, "NIRS-2021-05-03_001_data", preautism.ObservationName("NIRS-2021-05-03_001", preautism.KindData))
}

func TestStartTimeAndRate(t *testing.T) {
	h := readHdr(t, defaultHdr())
	start, err := preautism.StartTime(h)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 5, 3, 14, 25, 43, 0, time.UTC), start)

	rate, err := preautism.SamplingRate(h)
	require.NoError(t, err)
	assert.Equal(t, 7.8125, rate)

	f := defaultHdr()
	f.rate = ""
	_, err = preautism.SamplingRate(readHdr(t, f))
	assert.True(t, errors.Is(err, apperr.ErrMalformedHeaderField))
}

func TestTransform_EndToEnd(t *testing.T) {
	g := recording(t, normalPath, defaultHdr())
	res := preautism.Transform([]preautism.Group{g}, preautism.Options{})
	require.Empty(t, res.Failures)

	f := res.Fragments(normalPath)
	require.NotNil(t, f)
	const seq = "NIRS-2021-05-03_001_Mon, 03 May 2021_14:25:43"

	assert.Equal(t, []vault.Row{vault.HubSession{Sequence: seq}}, f.Rows(vault.TableHubSession))
	assert.Equal(t, []vault.Row{vault.SatSubjectAge{Sequence: seq, Age: 0}}, f.Rows(vault.TableSatSubjectAge))
	assert.Equal(t, []vault.Row{vault.SatSubjectName{Sequence: seq, Name: "AutismP01"}}, f.Rows(vault.TableSatSubjectName))
	assert.Equal(t, []vault.Row{vault.SatGroupName{Sequence: seq, Name: "Normal"}}, f.Rows(vault.TableSatGroupName))
	assert.Equal(t, []vault.Row{vault.SatFactorLevel{Sequence: seq + "_Conversation", LevelValue: "Normal"}},
		f.Rows(vault.TableSatFactorLevel))

	assert.Len(t, f.Rows(vault.TableHubObservation), len(preautism.Kinds))
	vals := f.Rows(vault.TableSatObservationValue)
	require.Len(t, vals, 3, "events are left out by default")

	data := vals[0].(vault.SatObservationValue)
	assert.Equal(t, seq+"_data", data.Sequence)
	assert.Equal(t, [][]float64{{0, 0.5}, {1, 1.5}, {2, 2.5}}, data.Value)
	start := time.Date(2021, 5, 3, 14, 25, 43, 0, time.UTC)
	want := []time.Time{start, start.Add(7812500 * time.Microsecond), start.Add(15625 * time.Millisecond)}
	if diff := cmp.Diff(want, data.Timestamps); diff != "" {
		t.Errorf("timestamps mismatch (-want +got):\n%s", diff)
	}

	meta := f.Rows(vault.TableSatMetaDataKeyValuePair)
	keys := make([]string, len(meta))
	for i, r := range meta {
		keys[i] = r.(vault.SatMetaDataKeyValuePair).Key
	}
	assert.Contains(t, keys, "SamplingRate")
	assert.Contains(t, keys, "Gains")
	assert.NotContains(t, keys, "GeneralInfo")

	require.NoError(t, f.Validate())
}

func TestTransform_ObservationMetaDataPerObservation(t *testing.T) {
	g := recording(t, normalPath, defaultHdr())
	res := preautism.Transform([]preautism.Group{g}, preautism.Options{})
	require.Empty(t, res.Failures)
	const seq = "NIRS-2021-05-03_001_Mon, 03 May 2021_14:25:43"

	links := res.Fragments(normalPath).Rows(vault.TableObservationMetaData)
	require.Len(t, links, len(preautism.Kinds))
	for i, k := range preautism.Kinds {
		oseq := vault.Sequence(seq, string(k))
		assert.Equal(t, vault.ObservationMetaData{Sequence: oseq, Observation: oseq, MetaData: seq}, links[i])
	}
}

func TestTransform_IncludeEvents(t *testing.T) {
	g := recording(t, normalPath, defaultHdr())
	res := preautism.Transform([]preautism.Group{g}, preautism.Options{IncludeEvents: true})
	require.Empty(t, res.Failures)
	assert.Len(t, res.Groups[0].Rows(vault.TableSatObservationValue), 4)

	g.Events = nil
	res = preautism.Transform([]preautism.Group{g}, preautism.Options{IncludeEvents: true})
	require.Len(t, res.Failures, 1)
	assert.Equal(t, apperr.KindIncompleteGroup, res.Failures[0].Kind)
}

func TestTransform_MissingDateFailsGroup(t *testing.T) {
	noDate := defaultHdr()
	noDate.date = ""
	second := defaultHdr()
	second.fileName = "NIRS-2021-05-04_002"

	const stressed = `AutismP02-B_StressedConversation\NIRS-2021-05-04_002.hdr`
	res := preautism.Transform([]preautism.Group{
		recording(t, normalPath, noDate),
		recording(t, stressed, second),
	}, preautism.Options{})

	require.Len(t, res.Failures, 1)
	fail := res.Failures[0]
	assert.Equal(t, normalPath, fail.Group)
	assert.Equal(t, apperr.KindMalformedHeaderField, fail.Kind)
	assert.True(t, errors.Is(fail.Err, apperr.ErrMalformedHeaderField))
	assert.Contains(t, fail.Error, "Date")

	out := res.Output()
	assert.Equal(t, []string{stressed}, out.Groups)
}

func TestTransform_ValueOrderAcrossBatch(t *testing.T) {
	second := defaultHdr()
	second.fileName = "NIRS-2021-05-04_002"
	const stressed = `AutismP02-B_StressedConversation\NIRS-2021-05-04_002.hdr`

	res := preautism.Transform([]preautism.Group{
		recording(t, normalPath, defaultHdr()),
		recording(t, stressed, second),
	}, preautism.Options{})
	require.Empty(t, res.Failures)

	out := res.Output(preautism.ValueOrder)
	var suffixes []string
	for _, tbl := range out.Tables {
		if tbl.Name != vault.TableSatObservationValue {
			continue
		}
		for _, rec := range tbl.Records {
			seq := rec.Data["sequence"].(string)
			suffixes = append(suffixes, seq[strings.LastIndex(seq, "_")+1:])
		}
	}
	assert.Equal(t, []string{"data", "data", "wavelengthOneData", "wavelengthOneData", "wavelengthTwoData", "wavelengthTwoData"}, suffixes)
}
