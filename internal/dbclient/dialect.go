package dbclient

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"nirsvault/internal/domain"
	"nirsvault/internal/etl"
)

// ── SQL dialects ────────────────────────────────────────────
// Postgres, MySQL and SQLite share sqlConnector; a dialect carries what
// differs: identifier quoting, placeholders, column types and how the
// matrix and timestamp-list columns are encoded.

type sqlDialect struct {
	driver     domain.WarehouseDriver
	driverName string // database/sql driver name
	quoteChar  string
	numbered   bool // $1, $2 placeholders instead of ?
	types      map[string]string

	// encode converts a value of the given field type to a driver value.
	encode func(typ string, v any) (any, error)
	// decode converts a scanned value back to the field type's Go type.
	decode func(typ string, v any) (any, error)
}

func (d sqlDialect) quote(ident string) string {
	return d.quoteChar + strings.ReplaceAll(ident, d.quoteChar, d.quoteChar+d.quoteChar) + d.quoteChar
}

func (d sqlDialect) placeholder(i int) string {
	if d.numbered {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

func (d sqlDialect) columnType(typ string) string {
	if t, ok := d.types[typ]; ok {
		return t
	}
	return d.types[etl.TypeText]
}

// createTable builds the DDL for one table.
func (d sqlDialect) createTable(t etl.Table) string {
	cols := storedColumns(t.Schema)
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = d.quote(c.Name) + " " + d.columnType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.quote(t.Name), strings.Join(defs, ", "))
}

// insert builds the parameterized INSERT for one table.
func (d sqlDialect) insert(t etl.Table) string {
	cols := storedColumns(t.Schema)
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		names[i] = d.quote(c.Name)
		marks[i] = d.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.quote(t.Name), strings.Join(names, ", "), strings.Join(marks, ", "))
}

// selectAll builds the SELECT that Scan reads a table with.
func (d sqlDialect) selectAll(t etl.Table) string {
	cols := storedColumns(t.Schema)
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = d.quote(c.Name)
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), d.quote(t.Name))
}

// ── JSON encoding for engines without array columns ─────────

func encodeJSON(typ string, v any) (any, error) {
	switch typ {
	case etl.TypeMatrix, etl.TypeTimestamps:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", typ, err)
		}
		return string(b), nil
	}
	return v, nil
}

func decodeJSON(typ string, v any) (any, error) {
	switch typ {
	case etl.TypeMatrix:
		var m [][]float64
		if err := json.Unmarshal([]byte(asString(v)), &m); err != nil {
			return nil, fmt.Errorf("decode matrix: %w", err)
		}
		return m, nil
	case etl.TypeTimestamps:
		var ts []time.Time
		if err := json.Unmarshal([]byte(asString(v)), &ts); err != nil {
			return nil, fmt.Errorf("decode timestamps: %w", err)
		}
		return ts, nil
	}
	return decodeScalar(typ, v)
}

// decodeScalar normalizes the driver's representation of scalar columns.
func decodeScalar(typ string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch typ {
	case etl.TypeSequence, etl.TypeText:
		return asString(v), nil
	case etl.TypeInteger:
		switch n := v.(type) {
		case int64:
			return int(n), nil
		case int32:
			return int(n), nil
		case int:
			return n, nil
		default:
			i, err := strconv.Atoi(asString(v))
			if err != nil {
				return nil, fmt.Errorf("decode integer: %w", err)
			}
			return i, nil
		}
	case etl.TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		default:
			return strconv.ParseBool(asString(v))
		}
	case etl.TypeBinary:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
	case typeTimestamp:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		default:
			return parseTimestamp(asString(v))
		}
	}
	return v, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}
