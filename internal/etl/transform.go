package etl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ── Transformer ────────────────────────────────────────────
// Transformers post-process query results before they are served or
// exported. They are composable: each takes a record, returns a (possibly
// modified) record and a boolean indicating whether to keep it.
//
// Pattern: Benthos processor chain.

// Transformer processes a single record.
// Returns (transformed record, keep). If keep is false, the record is dropped.
type Transformer interface {
	Transform(Record) (Record, bool)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(Record) (Record, bool)

func (f TransformerFunc) Transform(r Record) (Record, bool) { return f(r) }

// TransformConfig is a declarative transform definition.
type TransformConfig struct {
	Type   string         `json:"type" yaml:"type"` // "filter" | "rename" | "select" | "dedupe" | "sort" | "limit"
	Config map[string]any `json:"config" yaml:"config"`
}

// ── Built-in Transforms ────────────────────────────────────

// FilterTransform drops records where the given field does not match the value.
type FilterTransform struct {
	Field string
	Op    string // "eq" | "neq" | "gt" | "lt" | "contains" | "prefix"
	Value any
}

func (t *FilterTransform) Transform(r Record) (Record, bool) {
	v, ok := r.Data[t.Field]
	if !ok {
		return r, false
	}
	switch t.Op {
	case "eq":
		return r, fmt.Sprint(v) == fmt.Sprint(t.Value)
	case "neq":
		return r, fmt.Sprint(v) != fmt.Sprint(t.Value)
	case "contains":
		return r, strings.Contains(fmt.Sprint(v), fmt.Sprint(t.Value))
	case "prefix":
		return r, strings.HasPrefix(fmt.Sprint(v), fmt.Sprint(t.Value))
	case "gt":
		return r, toFloat(v) > toFloat(t.Value)
	case "lt":
		return r, toFloat(v) < toFloat(t.Value)
	default:
		return r, true
	}
}

// RenameTransform renames fields in a record.
type RenameTransform struct {
	Mapping map[string]string // oldName → newName
}

func (t *RenameTransform) Transform(r Record) (Record, bool) {
	data := make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		if to, ok := t.Mapping[k]; ok {
			k = to
		}
		data[k] = v
	}
	r.Data = data
	return r, true
}

// SelectTransform keeps only the specified fields.
type SelectTransform struct {
	Fields []string
}

func (t *SelectTransform) Transform(r Record) (Record, bool) {
	filtered := make(map[string]any, len(t.Fields))
	for _, f := range t.Fields {
		if v, ok := r.Data[f]; ok {
			filtered[f] = v
		}
	}
	r.Data = filtered
	return r, true
}

// DedupeTransform drops records with duplicate values for the given key.
type DedupeTransform struct {
	Key  string
	seen map[string]bool
}

func NewDedupeTransform(key string) *DedupeTransform {
	return &DedupeTransform{Key: key, seen: make(map[string]bool)}
}

func (t *DedupeTransform) Transform(r Record) (Record, bool) {
	v := fmt.Sprint(r.Data[t.Key])
	if t.seen[v] {
		return r, false
	}
	t.seen[v] = true
	return r, true
}

// SortTransform sorts all collected records by a field.
// NOTE: This is a batch transform: it must see ALL records, so Apply runs
// it after the per-record chain.
type SortTransform struct {
	Field     string
	Direction string // "asc" | "desc"
}

func (t *SortTransform) Transform(r Record) (Record, bool) {
	return r, true
}

// LimitTransform caps the number of records.
type LimitTransform struct {
	Count int
	seen  int
}

func NewLimitTransform(count int) *LimitTransform {
	return &LimitTransform{Count: count}
}

func (t *LimitTransform) Transform(r Record) (Record, bool) {
	t.seen++
	return r, t.seen <= t.Count
}

// BuildTransformers converts declarative TransformConfig into Transformer instances.
func BuildTransformers(configs []TransformConfig) ([]Transformer, error) {
	var ts []Transformer

	for _, tc := range configs {
		switch tc.Type {
		case "filter":
			field, _ := tc.Config["field"].(string)
			op, _ := tc.Config["op"].(string)
			if field == "" || op == "" {
				return nil, fmt.Errorf("filter: field and op are required")
			}
			ts = append(ts, &FilterTransform{Field: field, Op: op, Value: tc.Config["value"]})

		case "rename":
			mapping, ok := tc.Config["mapping"].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("rename: mapping is required")
			}
			m := make(map[string]string, len(mapping))
			for k, v := range mapping {
				m[k] = fmt.Sprint(v)
			}
			ts = append(ts, &RenameTransform{Mapping: m})

		case "select":
			fields, ok := tc.Config["fields"].([]any)
			if !ok {
				return nil, fmt.Errorf("select: fields is required")
			}
			ff := make([]string, 0, len(fields))
			for _, f := range fields {
				ff = append(ff, fmt.Sprint(f))
			}
			ts = append(ts, &SelectTransform{Fields: ff})

		case "dedupe":
			key, _ := tc.Config["key"].(string)
			if key == "" {
				return nil, fmt.Errorf("dedupe: key is required")
			}
			ts = append(ts, NewDedupeTransform(key))

		case "sort":
			field, _ := tc.Config["field"].(string)
			direction, _ := tc.Config["direction"].(string)
			if direction == "" {
				direction = "asc"
			}
			if field == "" {
				return nil, fmt.Errorf("sort: field is required")
			}
			ts = append(ts, &SortTransform{Field: field, Direction: direction})

		case "limit":
			count := int(toFloat(tc.Config["count"]))
			if count <= 0 {
				return nil, fmt.Errorf("limit: count must be positive")
			}
			ts = append(ts, NewLimitTransform(count))

		default:
			return nil, fmt.Errorf("unknown transform type %q", tc.Type)
		}
	}

	return ts, nil
}

// Apply runs the chain over records: per-record transforms first, then
// any sort.
func Apply(records []Record, ts []Transformer) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if t, keep := ApplyTransformers(r, ts); keep {
			out = append(out, t)
		}
	}
	return ApplyBatchSort(out, ts)
}

// ── Batch Transforms ──────────────────────────────────────

// ApplyBatchSort sorts records if a SortTransform exists in the chain.
func ApplyBatchSort(records []Record, ts []Transformer) []Record {
	for _, t := range ts {
		if st, ok := t.(*SortTransform); ok && st.Field != "" {
			sorted := make([]Record, len(records))
			copy(sorted, records)
			dir := 1
			if st.Direction == "desc" {
				dir = -1
			}
			sort.SliceStable(sorted, func(i, j int) bool {
				return compareValues(sorted[i].Data[st.Field], sorted[j].Data[st.Field])*dir < 0
			})
			return sorted
		}
	}
	return records
}

func compareValues(a, b any) int {
	fa, aOk := toFloatSafe(a)
	fb, bOk := toFloatSafe(b)
	if aOk && bOk {
		if fa < fb {
			return -1
		}
		if fa > fb {
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloatSafe(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ── Helpers ────────────────────────────────────────────────

// ApplyTransformers runs a chain of transformers on a record.
func ApplyTransformers(r Record, ts []Transformer) (Record, bool) {
	for _, t := range ts {
		var keep bool
		r, keep = t.Transform(r)
		if !keep {
			return r, false
		}
	}
	return r, true
}

func toFloat(v any) float64 {
	f, _ := toFloatSafe(v)
	return f
}
