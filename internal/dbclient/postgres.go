package dbclient

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"nirsvault/internal/domain"
	"nirsvault/internal/etl"
)

// Postgres stores matrices and timestamp lists as native arrays.
var postgresDialect = sqlDialect{
	driver:     domain.WarehouseDriverPostgres,
	driverName: "postgres",
	quoteChar:  `"`,
	numbered:   true,
	types: map[string]string{
		etl.TypeSequence:   "VARCHAR(32)",
		etl.TypeText:       "TEXT",
		etl.TypeInteger:    "INTEGER",
		etl.TypeBoolean:    "BOOLEAN",
		etl.TypeBinary:     "BYTEA",
		etl.TypeMatrix:     "DOUBLE PRECISION[][]",
		etl.TypeTimestamps: "TIMESTAMP[]",
		typeTimestamp:      "TIMESTAMP",
	},
	encode: encodePostgres,
	decode: decodePostgres,
}

// buildPostgresDSN constructs a Postgres connection string from a Warehouse.
func buildPostgresDSN(w *domain.Warehouse, password string) string {
	port := w.Port
	if port == 0 {
		port = 5432
	}
	sslMode := w.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		w.Host, port, w.Username, password, w.Database, sslMode,
	)
}

func encodePostgres(typ string, v any) (any, error) {
	switch typ {
	case etl.TypeMatrix, etl.TypeTimestamps:
		return pq.Array(v), nil
	}
	return v, nil
}

func decodePostgres(typ string, v any) (any, error) {
	switch typ {
	case etl.TypeMatrix:
		if v == nil {
			return nil, nil
		}
		m, err := parsePostgresMatrix(asString(v))
		if err != nil {
			return nil, fmt.Errorf("decode matrix: %w", err)
		}
		return m, nil
	case etl.TypeTimestamps:
		var raw pq.StringArray
		if err := raw.Scan(v); err != nil {
			return nil, fmt.Errorf("decode timestamps: %w", err)
		}
		ts := make([]time.Time, len(raw))
		for i, s := range raw {
			t, err := parseTimestamp(s)
			if err != nil {
				return nil, err
			}
			ts[i] = t
		}
		return ts, nil
	}
	return decodeScalar(typ, v)
}

// parsePostgresMatrix reads a two-dimensional array literal such as
// {{1,2},{3,NULL}}. lib/pq only scans one-dimensional arrays. NULL cells
// read as 0.
func parsePostgresMatrix(src string) ([][]float64, error) {
	s := strings.TrimSpace(src)
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, fmt.Errorf("array literal %q: want {...}", src)
	}
	body := s[1 : len(s)-1]
	m := [][]float64{}
	for body != "" {
		if body[0] != '{' {
			return nil, fmt.Errorf("array literal %q: want a row at %q", src, body)
		}
		end := strings.IndexByte(body, '}')
		if end < 0 {
			return nil, fmt.Errorf("array literal %q: unterminated row", src)
		}
		row, err := parsePostgresRow(body[1:end])
		if err != nil {
			return nil, fmt.Errorf("array literal row %d: %w", len(m), err)
		}
		m = append(m, row)

		body = body[end+1:]
		if body == "" {
			break
		}
		if body[0] != ',' || len(body) == 1 {
			return nil, fmt.Errorf("array literal %q: unexpected %q", src, body)
		}
		body = body[1:]
	}
	return m, nil
}

func parsePostgresRow(s string) ([]float64, error) {
	if s == "" {
		return []float64{}, nil
	}
	cells := strings.Split(s, ",")
	row := make([]float64, len(cells))
	for i, c := range cells {
		c = strings.Trim(c, `"`)
		if c == "NULL" {
			continue
		}
		f, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return nil, err
		}
		row[i] = f
	}
	return row, nil
}
