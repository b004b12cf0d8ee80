// Package dashboard answers the named questions asked of a loaded vault:
// which observations match, what metadata one carries, which factors an
// experiment varies and who belongs to which group.
//
// Metrics read the persisted tables through a Reader. Every sequence
// column holds a hash, so joins compare stored hashes and never need the
// natural keys back.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"nirsvault/internal/etl"
	"nirsvault/internal/vault"
)

// Reader streams the stored rows of a vault table. dbclient.Connector
// implements it.
type Reader interface {
	Scan(ctx context.Context, table etl.Table, fn func(etl.Record) error) error
}

// ErrInvalidParams reports metric parameters that cannot be honored.
var ErrInvalidParams = errors.New("invalid metric parameters")

// Params are the inputs of a metric; each metric reads the ones it needs.
type Params struct {
	// observations: substrings the name must all contain, and an optional
	// 1-based inclusive column range "a:b".
	Match    []string `json:"match,omitempty" yaml:"match"`
	Channels string   `json:"channels,omitempty" yaml:"channels"`

	// observation-metadata: exact observation name.
	Name string `json:"name,omitempty" yaml:"name"`

	// group-members: subject name prefix.
	Prefix string `json:"prefix,omitempty" yaml:"prefix"`

	Transforms []etl.TransformConfig `json:"transforms,omitempty" yaml:"transforms"`
}

// Key is a canonical form of the params, used to cache snapshots.
// Transforms are not part of it; they are applied on read.
func (p Params) Key() string {
	v := url.Values{}
	for _, m := range p.Match {
		v.Add("match", m)
	}
	if p.Channels != "" {
		v.Set("channels", p.Channels)
	}
	if p.Name != "" {
		v.Set("name", p.Name)
	}
	if p.Prefix != "" {
		v.Set("prefix", p.Prefix)
	}
	return v.Encode()
}

// Result is a metric's table.
type Result struct {
	Metric   string        `json:"metric"`
	Columns  []string      `json:"columns"`
	Rows     [][]any       `json:"rows"`
	Duration time.Duration `json:"duration"`
}

// Metric is a named dashboard question.
type Metric struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Params      []string `json:"params"`
	Columns     []string `json:"columns"`

	run func(ctx context.Context, r Reader, p Params) ([]etl.Record, error)
}

// Metric names.
const (
	MetricObservations        = "observations"
	MetricObservationMetadata = "observation-metadata"
	MetricExperimentFactors   = "experiment-factors"
	MetricGroupMembers        = "group-members"
)

var metrics = []Metric{
	{
		Name:        MetricObservations,
		Description: "Observations whose name contains every match pattern, with samples and timestamps",
		Params:      []string{"match", "channels"},
		Columns:     []string{"observation", "name", "value", "timestamps"},
		run:         observations,
	},
	{
		Name:        MetricObservationMetadata,
		Description: "Decoded header metadata of one named observation",
		Params:      []string{"name"},
		Columns:     []string{"key", "value"},
		run:         observationMetadata,
	},
	{
		Name:        MetricExperimentFactors,
		Description: "Experiments with the factors they vary and each factor's level",
		Columns:     []string{"experiment", "factor", "level"},
		run:         experimentFactors,
	},
	{
		Name:        MetricGroupMembers,
		Description: "Group name and subject name for subjects whose name has the prefix",
		Params:      []string{"prefix"},
		Columns:     []string{"group", "subject"},
		run:         groupMembers,
	},
}

// Metrics lists the available metrics.
func Metrics() []Metric {
	out := make([]Metric, len(metrics))
	copy(out, metrics)
	return out
}

// Lookup returns a metric by name.
func Lookup(name string) (Metric, bool) {
	for _, m := range metrics {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// Run evaluates a metric, then applies the params' transforms.
func Run(ctx context.Context, r Reader, name string, p Params) (*Result, error) {
	m, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown metric %q", ErrInvalidParams, name)
	}
	ts, err := etl.BuildTransformers(p.Transforms)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	start := time.Now()
	records, err := m.run(ctx, r, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	res := tabulate(name, m.Columns, etl.Apply(records, ts))
	res.Duration = time.Since(start)
	return res, nil
}

// Transform applies transforms to an already computed result, such as one
// read back from a snapshot.
func Transform(res *Result, configs []etl.TransformConfig) (*Result, error) {
	if len(configs) == 0 {
		return res, nil
	}
	ts, err := etl.BuildTransformers(configs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	records := make([]etl.Record, len(res.Rows))
	for i, row := range res.Rows {
		data := make(map[string]any, len(res.Columns))
		for j, c := range res.Columns {
			if j < len(row) {
				data[c] = row[j]
			}
		}
		records[i] = etl.Record{Data: data}
	}
	out := tabulate(res.Metric, res.Columns, etl.Apply(records, ts))
	out.Duration = res.Duration
	return out, nil
}

func tabulate(metric string, declared []string, records []etl.Record) *Result {
	res := &Result{Metric: metric, Columns: columnsOf(declared, records), Rows: make([][]any, len(records))}
	for i, rec := range records {
		row := make([]any, len(res.Columns))
		for j, c := range res.Columns {
			row[j] = rec.Data[c]
		}
		res.Rows[i] = row
	}
	return res
}

// columnsOf keeps the metric's column order, dropping columns a select or
// rename transform removed and appending renamed ones.
func columnsOf(declared []string, records []etl.Record) []string {
	if len(records) == 0 {
		return declared
	}
	present := records[0].Data
	var cols []string
	seen := map[string]bool{}
	for _, c := range declared {
		if _, ok := present[c]; ok {
			cols = append(cols, c)
			seen[c] = true
		}
	}
	var extra []string
	for k := range present {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(cols, extra...)
}

// ── Table access ───────────────────────────────────────────

func table(name string) etl.Table {
	d, _ := vault.Lookup(name)
	return d.Table()
}

func seqOf(r etl.Record, field string) string {
	s, _ := r.Data[field].(string)
	return s
}

// latest reads a satellite keeping, per sequence, the row with the newest
// load timestamp. Re-runs append; the last load wins.
func latest(ctx context.Context, r Reader, name string) (map[string]etl.Record, error) {
	out := map[string]etl.Record{}
	err := r.Scan(ctx, table(name), func(rec etl.Record) error {
		seq := seqOf(rec, "sequence")
		prev, ok := out[seq]
		if !ok || !loadedAt(rec).Before(loadedAt(prev)) {
			out[seq] = rec
		}
		return nil
	})
	return out, err
}

// latestMany is latest for satellites with several rows per sequence
// (metadata pairs, treatment factor levels): the rows of the newest load
// are kept.
func latestMany(ctx context.Context, r Reader, name string) (map[string][]etl.Record, error) {
	out := map[string][]etl.Record{}
	err := r.Scan(ctx, table(name), func(rec etl.Record) error {
		seq := seqOf(rec, "sequence")
		prev := out[seq]
		switch {
		case len(prev) == 0 || loadedAt(rec).Equal(loadedAt(prev[0])):
			out[seq] = append(prev, rec)
		case loadedAt(rec).After(loadedAt(prev[0])):
			out[seq] = []etl.Record{rec}
		}
		return nil
	})
	return out, err
}

// distinct reads a hub or link once per sequence.
func distinct(ctx context.Context, r Reader, name string) ([]etl.Record, error) {
	var out []etl.Record
	seen := map[string]bool{}
	err := r.Scan(ctx, table(name), func(rec etl.Record) error {
		seq := seqOf(rec, "sequence")
		if !seen[seq] {
			seen[seq] = true
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func loadedAt(r etl.Record) time.Time {
	t, _ := r.Data["timestamp"].(time.Time)
	return t
}

// ── Channel ranges ─────────────────────────────────────────

// channelRange parses "a:b" (1-based, inclusive) into a half-open column
// interval. An empty spec selects every column.
func channelRange(spec string) (lo, hi int, all bool, err error) {
	if spec == "" {
		return 0, 0, true, nil
	}
	a, b, ok := strings.Cut(spec, ":")
	if !ok {
		b = a
	}
	first, err1 := strconv.Atoi(strings.TrimSpace(a))
	last, err2 := strconv.Atoi(strings.TrimSpace(b))
	if err1 != nil || err2 != nil || first < 1 || last < first {
		return 0, 0, false, fmt.Errorf("%w: channels %q", ErrInvalidParams, spec)
	}
	return first - 1, last, false, nil
}

func sliceColumns(m [][]float64, lo, hi int) ([][]float64, error) {
	out := make([][]float64, len(m))
	for i, row := range m {
		if hi > len(row) {
			return nil, fmt.Errorf("%w: channels %d:%d beyond %d columns", ErrInvalidParams, lo+1, hi, len(row))
		}
		out[i] = append([]float64(nil), row[lo:hi]...)
	}
	return out, nil
}
