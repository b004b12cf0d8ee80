package etl

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"nirsvault/internal/apperr"
)

// ── Source ──────────────────────────────────────────────────
// A Source turns instrument exports into vault tables.
// Implementations live in etl/sources/, one file per export format.
//
// Pattern: Airbyte connector protocol (spec → discover → read), with read
// split per batch so one bad file group never sinks the run.

// SourceConfig is an opaque configuration map parsed per source type.
type SourceConfig map[string]any

// String returns a string option, or "".
func (c SourceConfig) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// Bool returns a boolean option; "true" strings count.
func (c SourceConfig) Bool(key string) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

// Int returns an integer option, or def.
func (c SourceConfig) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

// ConfigField describes a single configuration input for a source.
type ConfigField struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // "string" | "select" | "folder" | "number"
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"` // for "select" type
	Default  string   `json:"default,omitempty"`
	Help     string   `json:"help,omitempty"`
}

// SourceSpec describes a source type: its label and config fields.
type SourceSpec struct {
	Type         string        `json:"type"`
	Label        string        `json:"label"`
	ConfigFields []ConfigField `json:"configFields"`
}

// GroupRef names the files of one file group: role → path.
type GroupRef struct {
	Name  string            `json:"name"`
	Files map[string]string `json:"files"`
}

// Batch is a list of file groups transformed together.
type Batch struct {
	Name   string     `json:"name"`
	Groups []GroupRef `json:"groups"`
}

// GroupFailure reports one file group that did not reach the sink.
type GroupFailure struct {
	Group string      `json:"group"`
	Stage string      `json:"stage"` // "discover" | "extract" | "transform" | "validate" | "collision"
	Kind  apperr.Kind `json:"kind,omitempty"`
	Error string      `json:"error"`
	Err   error       `json:"-"`
}

// NewGroupFailure wraps err for the run report.
func NewGroupFailure(group, stage string, err error) GroupFailure {
	return GroupFailure{
		Group: group,
		Stage: stage,
		Kind:  apperr.KindOf(err),
		Error: err.Error(),
		Err:   err,
	}
}

// BatchOutput is what Process produced for one batch: the tables of every
// surviving group, the names of those groups, and the failures.
type BatchOutput struct {
	Tables   []Table        `json:"tables"`
	Groups   []string       `json:"groups"`
	Failures []GroupFailure `json:"failures,omitempty"`
}

// Source is the interface every export format must implement.
type Source interface {
	// Spec returns metadata about this source type.
	Spec() SourceSpec

	// Discover lists the batches of file groups under the configured folder.
	Discover(ctx context.Context, cfg SourceConfig) ([]Batch, error)

	// Process extracts and transforms one batch. Per-group failures are
	// reported in the output; the error is for failures of the whole batch.
	Process(ctx context.Context, cfg SourceConfig, batch Batch) (*BatchOutput, error)
}

// ── Source Registry ────────────────────────────────────────
// Compile-time registration via init() in each source file.

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{}
)

// RegisterSource registers a source by its spec type.
// Called from init() in each source implementation file.
func RegisterSource(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Spec().Type] = s
}

// GetSource returns a registered source by type, or an error if not found.
func GetSource(typ string) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[typ]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("source type %q", typ))
	}
	return s, nil
}

// ListSources returns the specs of all registered sources, by type.
func ListSources() []SourceSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]SourceSpec, 0, len(registry))
	for _, s := range registry {
		specs = append(specs, s.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}
