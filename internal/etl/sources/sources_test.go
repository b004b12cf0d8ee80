package sources_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nirsvault/internal/apperr"
	"nirsvault/internal/etl"
	"nirsvault/internal/etl/sources"
	"nirsvault/internal/vault"
	"nirsvault/internal/vm"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func vmText(columns []string) string {
	var b strings.Builder
	b.WriteString("ID,VM0001\nName,Subj001\nAge,  34y\nDate,01/02/2020 10:00:00\n")
	b.WriteString("Wave[nm],695,830\nSampling Period[s],0.1\nStim Time[s]\nA,20\nData\n")
	b.WriteString("Time," + strings.Join(columns, ",") + "\n")
	for r := 0; r < 2; r++ {
		cells := []string{fmt.Sprint(r)}
		for range columns {
			cells = append(cells, "1.5")
		}
		b.WriteString(strings.Join(cells, ",") + "\n")
	}
	return b.String()
}

const hdrText = `[GeneralInfo]
FileName="NIRS-2021-05-03_001"
Date="Mon, 03 May 2021"
Time="14:25:43"
[ImagingParameters]
SamplingRate=7.8125
[GainSettings]
Gains="#
1	2
#"
[Markers]
Events="#
1	2	3
#"
[DataStructure]
S-D-Mask="#
1	1
#"
[DarkNoise]
Wavelength1="#
0.1
#"
Wavelength2="#
0.2
#"
`

func run(t *testing.T, sourceType string, cfg etl.SourceConfig) ([]etl.Batch, []*etl.BatchOutput) {
	t.Helper()
	src, err := etl.GetSource(sourceType)
	require.NoError(t, err)
	batches, err := src.Discover(context.Background(), cfg)
	require.NoError(t, err)
	var outs []*etl.BatchOutput
	for _, b := range batches {
		out, err := src.Process(context.Background(), cfg, b)
		require.NoError(t, err)
		outs = append(outs, out)
	}
	return batches, outs
}

func TestVMSource_BatchesPerPattern(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "VM0001_Moto_HBA_Probe1_Deoxy.csv"), vmText(vm.SchemePlain.Columns()))
	writeFile(t, filepath.Join(dir, "VM0002_Rest_HBA_Probe1_Deoxy.csv"), vmText(vm.SchemePlain.Columns()))
	writeFile(t, filepath.Join(dir, "VM0001_Moto_MES_Probe1.csv"), vmText(vm.SchemeMES.Columns()))
	writeFile(t, filepath.Join(dir, "VM0003_Moto_HBA_Probe1_Oxy.csv"), "ID,VM0003\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	batches, outs := run(t, sources.SourceVM, etl.SourceConfig{"folder": dir, "workers": 2})

	require.Len(t, batches, 3)
	assert.Equal(t, sources.VMPatterns, []string{batches[0].Name, batches[1].Name, batches[2].Name})
	assert.Equal(t, []string{"VM0001_Moto_HBA_Probe1_Deoxy.csv", "VM0002_Rest_HBA_Probe1_Deoxy.csv"}, outs[0].Groups)

	require.Len(t, outs[1].Failures, 1, "the Oxy file has no Data section")
	assert.Equal(t, "extract", outs[1].Failures[0].Stage)
	assert.Equal(t, apperr.KindMalformedTable, outs[1].Failures[0].Kind)

	assert.Equal(t, []string{"VM0001_Moto_MES_Probe1.csv"}, outs[2].Groups)
}

func TestVMSource_MissingFolder(t *testing.T) {
	src, err := etl.GetSource(sources.SourceVM)
	require.NoError(t, err)
	_, err = src.Discover(context.Background(), etl.SourceConfig{})
	assert.True(t, errors.Is(err, apperr.ErrConfig))

	_, err = src.Discover(context.Background(), etl.SourceConfig{"folder": filepath.Join(t.TempDir(), "nope")})
	assert.True(t, errors.Is(err, apperr.ErrConfig))
}

func writeRecording(t *testing.T, dir, rel string, skip ...string) {
	t.Helper()
	stem := filepath.Join(dir, strings.TrimSuffix(rel, ".hdr"))
	writeFile(t, stem+".hdr", hdrText)
	for _, ext := range []string{".dat", ".wl1", ".wl2", ".evt"} {
		skipped := false
		for _, s := range skip {
			skipped = skipped || s == ext
		}
		if !skipped {
			writeFile(t, stem+ext, "1.0 2.0\n3.0 4.0\n")
		}
	}
}

func TestPreAutismSource_GroupsByStem(t *testing.T) {
	dir := t.TempDir()
	writeRecording(t, dir, "AutismP02-B_StressedConversation/NIRS-2021-05-04_001.hdr")
	writeRecording(t, dir, "AutismP01-A_NormalConversation/NIRS-2021-05-03_001.hdr")
	writeRecording(t, dir, "AutismP03-C_NormalConversation/NIRS-2021-05-05_001.hdr", ".wl2")

	batches, outs := run(t, sources.SourcePreAutism, etl.SourceConfig{"folder": dir})
	require.Len(t, batches, 1)

	names := make([]string, len(batches[0].Groups))
	for i, g := range batches[0].Groups {
		names[i] = g.Name
	}
	assert.Equal(t, []string{
		"AutismP01-A_NormalConversation/NIRS-2021-05-03_001.hdr",
		"AutismP03-C_NormalConversation/NIRS-2021-05-05_001.hdr",
		"AutismP02-B_StressedConversation/NIRS-2021-05-04_001.hdr",
	}, names, "normal conversations come first")

	out := outs[0]
	require.Len(t, out.Failures, 1)
	assert.Equal(t, "AutismP03-C_NormalConversation/NIRS-2021-05-05_001.hdr", out.Failures[0].Group)
	assert.Equal(t, apperr.KindIncompleteGroup, out.Failures[0].Kind)
	assert.Equal(t, []string{
		"AutismP01-A_NormalConversation/NIRS-2021-05-03_001.hdr",
		"AutismP02-B_StressedConversation/NIRS-2021-05-04_001.hdr",
	}, out.Groups)
}

func TestPreAutismSource_EventsOptional(t *testing.T) {
	dir := t.TempDir()
	writeRecording(t, dir, "AutismP01-A_NormalConversation/NIRS-2021-05-03_001.hdr", ".evt")

	_, outs := run(t, sources.SourcePreAutism, etl.SourceConfig{"folder": dir})
	require.Empty(t, outs[0].Failures)
	require.Len(t, outs[0].Groups, 1)

	var values int
	for _, tbl := range outs[0].Tables {
		if tbl.Name == vault.TableSatObservationValue {
			values = tbl.Len()
		}
	}
	assert.Equal(t, 3, values)

	_, outs = run(t, sources.SourcePreAutism, etl.SourceConfig{"folder": dir, "includeEvents": "true"})
	require.Len(t, outs[0].Failures, 1)
	assert.Equal(t, apperr.KindIncompleteGroup, outs[0].Failures[0].Kind)
}

func TestPreAutismSource_CorruptEventsFailGroup(t *testing.T) {
	dir := t.TempDir()
	writeRecording(t, dir, "AutismP01-A_NormalConversation/NIRS-2021-05-03_001.hdr")
	writeFile(t, filepath.Join(dir, "AutismP01-A_NormalConversation/NIRS-2021-05-03_001.evt"), "1.0 2.0\n3.0 x\n")

	for _, include := range []string{"false", "true"} {
		_, outs := run(t, sources.SourcePreAutism, etl.SourceConfig{"folder": dir, "includeEvents": include})
		require.Len(t, outs[0].Failures, 1, "includeEvents=%s", include)
		assert.Equal(t, apperr.KindMalformedTable, outs[0].Failures[0].Kind)
		assert.Empty(t, outs[0].Groups)
	}
}

func TestPreAutismSource_EmptyFolder(t *testing.T) {
	batches, _ := run(t, sources.SourcePreAutism, etl.SourceConfig{"folder": t.TempDir()})
	assert.Empty(t, batches)
}
