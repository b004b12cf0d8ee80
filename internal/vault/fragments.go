package vault

import (
	"fmt"
	"sort"

	"nirsvault/internal/apperr"
	"nirsvault/internal/etl"
)

// ── Fragments ──────────────────────────────────────────────
// One file group's rows for every vault table. A transformer builds a
// Fragments value with Add and hands it on; rows are never changed after.

// Fragments holds the rows one file group produced, per table.
type Fragments struct {
	Origin string
	rows   map[string][]Row
}

// NewFragments starts an empty set for the named file group.
func NewFragments(origin string) *Fragments {
	return &Fragments{Origin: origin, rows: make(map[string][]Row)}
}

// Add appends rows to their tables.
func (f *Fragments) Add(rows ...Row) {
	for _, r := range rows {
		f.rows[r.Table()] = append(f.rows[r.Table()], r)
	}
}

// Rows returns the rows of one table.
func (f *Fragments) Rows(table string) []Row {
	return f.rows[table]
}

// Len returns the total number of rows.
func (f *Fragments) Len() int {
	n := 0
	for _, rs := range f.rows {
		n += len(rs)
	}
	return n
}

// Validate checks referential integrity within the group: every satellite
// and link sequence resolves to a hub row produced alongside it, and every
// table is in the catalog.
func (f *Fragments) Validate() error {
	hubs := make(map[string]map[string]bool)
	for _, d := range catalog {
		if d.Kind != etl.KindHub {
			continue
		}
		set := make(map[string]bool, len(f.rows[d.Name]))
		for _, r := range f.rows[d.Name] {
			set[r.Values()[0].(string)] = true
		}
		hubs[d.Name] = set
	}

	for name, rs := range f.rows {
		d, ok := Lookup(name)
		if !ok {
			return apperr.MalformedTable(fmt.Sprintf("unknown table %q", name), nil)
		}
		for _, r := range rs {
			vals := r.Values()
			if len(vals) != len(d.Schema.Fields) {
				return apperr.MalformedTable(
					fmt.Sprintf("%s row has %d values, want %d", name, len(vals), len(d.Schema.Fields)), nil)
			}
			for i, field := range d.Schema.Fields {
				if field.Type != etl.TypeSequence {
					continue
				}
				s, _ := vals[i].(string)
				if s == "" {
					return apperr.MalformedTable(fmt.Sprintf("%s.%s is empty", name, field.Name), nil)
				}
				if field.Ref != "" && !hubs[field.Ref][s] {
					return apperr.DanglingReference(name, field.Name, field.Ref).WithContext("sequence", s)
				}
			}
		}
	}
	return nil
}

// Tables converts the rows to etl tables in catalog order, one table per
// catalog entry, empty tables included.
func (f *Fragments) Tables() []etl.Table {
	out := make([]etl.Table, len(catalog))
	for i, d := range catalog {
		out[i] = etl.Table{Name: d.Name, Kind: d.Kind, Schema: d.Schema}
		for _, r := range f.rows[d.Name] {
			out[i].Records = append(out[i].Records, toRecord(d, r, f.Origin))
		}
	}
	return out
}

func toRecord(d Definition, r Row, origin string) etl.Record {
	vals := r.Values()
	data := make(map[string]any, len(vals))
	for i, field := range d.Schema.Fields {
		data[field.Name] = vals[i]
	}
	return etl.Record{Data: data, Origin: origin}
}

// ── Result ─────────────────────────────────────────────────

// Result is a transformer's output for a batch: the fragments of every
// group that succeeded, in input order, and the groups that failed.
type Result struct {
	Groups   []*Fragments
	Failures []etl.GroupFailure
}

// Fail records a failed group.
func (r *Result) Fail(group, stage string, err error) {
	r.Failures = append(r.Failures, etl.NewGroupFailure(group, stage, err))
}

// Accept validates a group's fragments and keeps them, or records the
// validation failure. No row of an invalid group survives.
func (r *Result) Accept(f *Fragments) {
	if err := f.Validate(); err != nil {
		r.Fail(f.Origin, "validate", err)
		return
	}
	r.Groups = append(r.Groups, f)
}

// Fragments returns the fragments of the named group, or nil.
func (r *Result) Fragments(origin string) *Fragments {
	for _, g := range r.Groups {
		if g.Origin == origin {
			return g
		}
	}
	return nil
}

// Order reorders one table's rows across groups with a stable sort on Rank.
type Order struct {
	Table string
	Rank  func(Row) int
}

// Output assembles the batch's tables.
func (r *Result) Output(orders ...Order) *etl.BatchOutput {
	out := &etl.BatchOutput{
		Tables:   Assemble(r.Groups, orders...),
		Failures: r.Failures,
	}
	for _, g := range r.Groups {
		out.Groups = append(out.Groups, g.Origin)
	}
	return out
}

// Assemble merges per-group fragments into one table per catalog entry,
// rows in group order unless an Order applies.
func Assemble(groups []*Fragments, orders ...Order) []etl.Table {
	rank := make(map[string]func(Row) int, len(orders))
	for _, o := range orders {
		rank[o.Table] = o.Rank
	}

	out := make([]etl.Table, len(catalog))
	for i, d := range catalog {
		type owned struct {
			row    Row
			origin string
		}
		var rows []owned
		for _, g := range groups {
			for _, r := range g.rows[d.Name] {
				rows = append(rows, owned{r, g.Origin})
			}
		}
		if fn, ok := rank[d.Name]; ok {
			sort.SliceStable(rows, func(a, b int) bool { return fn(rows[a].row) < fn(rows[b].row) })
		}

		out[i] = etl.Table{Name: d.Name, Kind: d.Kind, Schema: d.Schema}
		for _, o := range rows {
			out[i].Records = append(out[i].Records, toRecord(d, o.row, o.origin))
		}
	}
	return out
}
