package sources

import (
	"context"
	"path/filepath"

	"nirsvault/internal/etl"
	"nirsvault/internal/header"
	"nirsvault/internal/table"
	"nirsvault/internal/vm"
)

// ── Visuomotor Source ───────────────────────────────────────
// Reads VM .csv exports. Each glob below is one batch: the files of a
// batch share a channel scheme.

// VMPatterns are the VM batch globs, in load order.
var VMPatterns = []string{
	"*_HBA_Probe1_Deoxy.csv",
	"*_HBA_Probe1_Oxy.csv",
	"*_MES_Probe1.csv",
}

// SourceVM is the registered type of the VM source.
const SourceVM = "vm"

const roleCSV = "csv"

type vmSource struct{}

func init() { etl.RegisterSource(&vmSource{}) }

func (s *vmSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:         SourceVM,
		Label:        "Visuomotor (VM) export",
		ConfigFields: []etl.ConfigField{folderField, workersField},
	}
}

func (s *vmSource) Discover(ctx context.Context, cfg etl.SourceConfig) ([]etl.Batch, error) {
	dir, err := folder(cfg)
	if err != nil {
		return nil, err
	}
	var batches []etl.Batch
	for _, pattern := range VMPatterns {
		files, err := glob(dir, pattern)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			continue
		}
		b := etl.Batch{Name: pattern}
		for _, path := range files {
			b.Groups = append(b.Groups, etl.GroupRef{
				Name:  filepath.Base(path),
				Files: map[string]string{roleCSV: path},
			})
		}
		batches = append(batches, b)
	}
	return batches, nil
}

type vmFile struct {
	header *header.Header
	data   *table.Table
}

func (s *vmSource) Process(ctx context.Context, cfg etl.SourceConfig, batch etl.Batch) (*etl.BatchOutput, error) {
	files, ok, failures, err := extractAll(ctx, batch.Groups, cfg.Int(KeyWorkers, defaultWorkers),
		func(ref etl.GroupRef) (vmFile, error) {
			f, err := open(ref, roleCSV)
			if err != nil {
				return vmFile{}, err
			}
			defer f.Close()
			h, data, err := vm.ReadFile(f)
			if err != nil {
				return vmFile{}, err
			}
			return vmFile{header: h, data: data}, nil
		})
	if err != nil {
		return nil, err
	}

	groups := make([]vm.Group, 0, len(files))
	for i, f := range files {
		if !ok[i] {
			continue
		}
		groups = append(groups, vm.Group{FileName: batch.Groups[i].Name, Header: f.header, Data: f.data})
	}

	out := vm.Transform(groups).Output()
	out.Failures = append(failures, out.Failures...)
	return out, nil
}
