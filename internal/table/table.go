package table

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"nirsvault/internal/apperr"
)

// ── Raw observation table ──────────────────────────────────
// Samples × columns, kept as text until a transformer selects the columns
// it needs. Headerless tables get positional names col_1, col_2, ...

// Table is one parsed data block.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of sample rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of a column, or -1.
func (t *Table) Index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Select returns the named columns as a numeric matrix, rows in table order.
func (t *Table) Select(columns []string) ([][]float64, error) {
	idx := make([]int, len(columns))
	for i, c := range columns {
		j := t.Index(c)
		if j < 0 {
			return nil, apperr.MalformedTable(fmt.Sprintf("column %q not found", c), nil)
		}
		idx[i] = j
	}
	return t.project(idx)
}

// Matrix returns every column as a numeric matrix.
func (t *Table) Matrix() ([][]float64, error) {
	idx := make([]int, len(t.Columns))
	for i := range idx {
		idx[i] = i
	}
	return t.project(idx)
}

func (t *Table) project(idx []int) ([][]float64, error) {
	out := make([][]float64, len(t.Rows))
	for r, row := range t.Rows {
		vals := make([]float64, len(idx))
		for i, j := range idx {
			if j >= len(row) {
				return nil, apperr.MalformedTable(
					fmt.Sprintf("row %d: missing column %q", r+1, t.Columns[j]), nil)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[j]), 64)
			if err != nil {
				return nil, apperr.MalformedTable(
					fmt.Sprintf("row %d column %q", r+1, t.Columns[j]), err)
			}
			vals[i] = v
		}
		out[r] = vals
	}
	return out, nil
}

// ReadDelimited parses a comma-delimited table whose first row holds the
// column names.
func ReadDelimited(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperr.MalformedTable("parse csv", err)
	}
	if len(records) == 0 {
		return nil, apperr.MalformedTable("empty table", nil)
	}

	cols := make([]string, len(records[0]))
	for i, c := range records[0] {
		cols[i] = strings.TrimSpace(c)
	}

	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blankRecord(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	return &Table{Columns: cols, Rows: rows}, nil
}

// ReadLines parses already-split lines with ReadDelimited.
func ReadLines(lines []string) (*Table, error) {
	return ReadDelimited(strings.NewReader(strings.Join(lines, "\n")))
}

func blankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

var errRagged = errors.New("ragged row")

// ReadWhitespace parses a headerless whitespace-separated numeric matrix.
// Every row must have the width of the first.
func ReadWhitespace(r io.Reader) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	t := &Table{}
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if t.Columns == nil {
			t.Columns = make([]string, len(fields))
			for i := range fields {
				t.Columns[i] = fmt.Sprintf("col_%d", i+1)
			}
		} else if len(fields) != len(t.Columns) {
			return nil, apperr.MalformedTable(
				fmt.Sprintf("line %d has %d fields, want %d", line, len(fields), len(t.Columns)), errRagged)
		}
		for _, f := range fields {
			if _, err := strconv.ParseFloat(f, 64); err != nil {
				return nil, apperr.MalformedTable(fmt.Sprintf("line %d", line), err)
			}
		}
		t.Rows = append(t.Rows, fields)
	}
	if err := sc.Err(); err != nil {
		return nil, apperr.MalformedTable("read lines", err)
	}
	if t.Columns == nil {
		t.Columns = []string{}
	}
	return t, nil
}
