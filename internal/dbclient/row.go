package dbclient

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"nirsvault/internal/etl"
)

// Columns every stored row gains on top of its schema.
const (
	ColumnTimestamp = "timestamp"
	ColumnSource    = "source"
)

// Hash is the stored form of a natural-key sequence: md5, hex encoded.
func Hash(sequence string) string {
	sum := md5.Sum([]byte(sequence))
	return hex.EncodeToString(sum[:])
}

// column is one stored column: a schema field or an audit column.
type column struct {
	Name string
	Type string
}

// storedColumns lists a table's columns in write order: schema fields,
// then timestamp and source.
func storedColumns(s etl.Schema) []column {
	cols := make([]column, 0, len(s.Fields)+2)
	for _, f := range s.Fields {
		cols = append(cols, column{Name: f.Name, Type: f.Type})
	}
	return append(cols,
		column{Name: ColumnTimestamp, Type: typeTimestamp},
		column{Name: ColumnSource, Type: etl.TypeText},
	)
}

// typeTimestamp is the audit column's type; it is not a schema field type.
const typeTimestamp = "timestamp"

// storedRow returns a record's values in storedColumns order with
// sequences hashed. Values keep their Go types; dialects encode them.
func storedRow(s etl.Schema, rec etl.Record, now time.Time, source string) ([]any, error) {
	vals := make([]any, 0, len(s.Fields)+2)
	for _, f := range s.Fields {
		v, ok := rec.Data[f.Name]
		if !ok {
			return nil, fmt.Errorf("record from %q has no %s", rec.Origin, f.Name)
		}
		if f.Type == etl.TypeSequence {
			seq, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%s is %T, want string", f.Name, v)
			}
			v = Hash(seq)
		}
		vals = append(vals, v)
	}
	return append(vals, now.UTC(), source), nil
}
