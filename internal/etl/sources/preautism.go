package sources

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"nirsvault/internal/etl"
	"nirsvault/internal/preautism"
	"nirsvault/internal/table"
)

// ── Pre-Autism Source ───────────────────────────────────────
// Reads NIRx recordings: one .hdr file per group plus its .dat, .wl1,
// .wl2 and .evt companions sharing the stem. Normal conversations load
// before stressed ones; the whole folder is one batch.

// PreAutismPatterns are the header globs, in load order.
var PreAutismPatterns = []string{
	"*_NormalConversation/*.hdr",
	"*_StressedConversation/*.hdr",
}

// SourcePreAutism is the registered type of the Pre-Autism source.
const SourcePreAutism = "preautism"

const KeyIncludeEvents = "includeEvents"

// Companion file roles, keyed by extension.
const (
	roleHeader        = ".hdr"
	roleData          = ".dat"
	roleWavelengthOne = ".wl1"
	roleWavelengthTwo = ".wl2"
	roleEvents        = ".evt"
)

var companionRoles = []string{roleData, roleWavelengthOne, roleWavelengthTwo, roleEvents}

type preAutismSource struct{}

func init() { etl.RegisterSource(&preAutismSource{}) }

func (s *preAutismSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  SourcePreAutism,
		Label: "Pre-Autism (NIRx) recordings",
		ConfigFields: []etl.ConfigField{
			folderField,
			workersField,
			{
				Key: KeyIncludeEvents, Label: "Include Events", Type: "select",
				Options: []string{"true", "false"}, Default: "false",
				Help: "Also load .evt samples as an observation value",
			},
		},
	}
}

func (s *preAutismSource) Discover(ctx context.Context, cfg etl.SourceConfig) ([]etl.Batch, error) {
	dir, err := folder(cfg)
	if err != nil {
		return nil, err
	}
	b := etl.Batch{Name: SourcePreAutism}
	for _, pattern := range PreAutismPatterns {
		files, err := glob(dir, pattern)
		if err != nil {
			return nil, err
		}
		for _, path := range files {
			b.Groups = append(b.Groups, preAutismGroup(dir, path))
		}
	}
	if len(b.Groups) == 0 {
		return nil, nil
	}
	return []etl.Batch{b}, nil
}

// preAutismGroup names a group by its path relative to the folder and
// lists the companions that exist. Missing ones surface when the group is
// read.
func preAutismGroup(dir, hdr string) etl.GroupRef {
	name, err := filepath.Rel(dir, hdr)
	if err != nil {
		name = hdr
	}
	ref := etl.GroupRef{
		Name:  filepath.ToSlash(name),
		Files: map[string]string{roleHeader: hdr},
	}
	stem := strings.TrimSuffix(hdr, roleHeader)
	for _, role := range companionRoles {
		if _, err := os.Stat(stem + role); err == nil {
			ref.Files[role] = stem + role
		}
	}
	return ref
}

func (s *preAutismSource) Process(ctx context.Context, cfg etl.SourceConfig, batch etl.Batch) (*etl.BatchOutput, error) {
	opts := preautism.Options{IncludeEvents: cfg.Bool(KeyIncludeEvents)}

	groups, ok, failures, err := extractAll(ctx, batch.Groups, cfg.Int(KeyWorkers, defaultWorkers),
		func(ref etl.GroupRef) (preautism.Group, error) {
			return readRecording(ref, opts)
		})
	if err != nil {
		return nil, err
	}

	kept := make([]preautism.Group, 0, len(groups))
	for i, g := range groups {
		if ok[i] {
			kept = append(kept, g)
		}
	}

	out := preautism.Transform(kept, opts).Output(preautism.ValueOrder)
	out.Failures = append(failures, out.Failures...)
	return out, nil
}

func readRecording(ref etl.GroupRef, opts preautism.Options) (preautism.Group, error) {
	g := preautism.Group{Path: ref.Name}

	f, err := open(ref, roleHeader)
	if err != nil {
		return g, err
	}
	h, err := preautism.ReadHeader(f)
	f.Close()
	if err != nil {
		return g, err
	}
	g.Header = h

	targets := map[string]**table.Table{
		roleData:          &g.Data,
		roleWavelengthOne: &g.WavelengthOne,
		roleWavelengthTwo: &g.WavelengthTwo,
		roleEvents:        &g.Events,
	}
	for _, role := range companionRoles {
		dst, wanted := targets[role]
		if !wanted {
			continue
		}
		// events are always parsed when present, but only required when
		// they are loaded
		if _, present := ref.Files[role]; role == roleEvents && !present && !opts.IncludeEvents {
			continue
		}
		t, err := readSamples(ref, role)
		if err != nil {
			return g, err
		}
		*dst = t
	}
	return g, nil
}

func readSamples(ref etl.GroupRef, role string) (*table.Table, error) {
	f, err := open(ref, role)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return table.ReadWhitespace(f)
}
