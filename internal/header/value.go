package header

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"nirsvault/internal/apperr"
)

// ── Value ──────────────────────────────────────────────────
// Tagged union for header values: a field is a scalar string, a list of
// strings, a nested mapping (a section), or a numeric matrix (an embedded
// array block).

// Kind tags a Value.
type Kind int

const (
	KindScalar Kind = iota
	KindList
	KindMapping
	KindMatrix
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindMapping:
		return "mapping"
	case KindMatrix:
		return "matrix"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is one header value. The zero Value is the empty scalar.
type Value struct {
	kind    Kind
	scalar  string
	list    []string
	mapping *Header
	matrix  [][]float64
}

func Scalar(s string) Value      { return Value{kind: KindScalar, scalar: s} }
func List(items []string) Value  { return Value{kind: KindList, list: items} }
func Mapping(h *Header) Value    { return Value{kind: KindMapping, mapping: h} }
func Matrix(m [][]float64) Value { return Value{kind: KindMatrix, matrix: m} }

func (v Value) Kind() Kind { return v.kind }

// Text returns the scalar, or "" for other kinds.
func (v Value) Text() string {
	if v.kind != KindScalar {
		return ""
	}
	return v.scalar
}

func (v Value) AsList() ([]string, bool) {
	return v.list, v.kind == KindList
}

func (v Value) AsMapping() (*Header, bool) {
	return v.mapping, v.kind == KindMapping
}

func (v Value) AsMatrix() ([][]float64, bool) {
	return v.matrix, v.kind == KindMatrix
}

// String renders the value for logs and dashboards.
func (v Value) String() string {
	switch v.kind {
	case KindList:
		return strings.Join(v.list, ",")
	case KindMapping:
		if v.mapping == nil {
			return "{}"
		}
		parts := make([]string, 0, v.mapping.Len())
		for _, e := range v.mapping.Entries() {
			parts = append(parts, e.Key+"="+e.Value.String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindMatrix:
		return fmt.Sprintf("matrix[%dx%d]", len(v.matrix), matrixWidth(v.matrix))
	default:
		return v.scalar
	}
}

// Native converts the value to plain Go types: string, []string,
// map[string]any or [][]float64.
func (v Value) Native() any {
	switch v.kind {
	case KindList:
		return v.list
	case KindMapping:
		m := map[string]any{}
		if v.mapping != nil {
			for _, e := range v.mapping.Entries() {
				m[e.Key] = e.Value.Native()
			}
		}
		return m
	case KindMatrix:
		return v.matrix
	default:
		return v.scalar
	}
}

func matrixWidth(m [][]float64) int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// ── Binary form ────────────────────────────────────────────
// Metadata values are stored opaquely in the warehouse as BSON documents.

type valueDoc struct {
	Kind    Kind        `bson:"kind"`
	Scalar  string      `bson:"s,omitempty"`
	List    []string    `bson:"l,omitempty"`
	Matrix  [][]float64 `bson:"m,omitempty"`
	Entries []entryDoc  `bson:"e,omitempty"`
}

type entryDoc struct {
	Key   string   `bson:"k"`
	Value valueDoc `bson:"v"`
}

func (v Value) doc() valueDoc {
	d := valueDoc{Kind: v.kind}
	switch v.kind {
	case KindList:
		d.List = v.list
	case KindMapping:
		if v.mapping != nil {
			for _, e := range v.mapping.Entries() {
				d.Entries = append(d.Entries, entryDoc{Key: e.Key, Value: e.Value.doc()})
			}
		}
	case KindMatrix:
		d.Matrix = v.matrix
	default:
		d.Scalar = v.scalar
	}
	return d
}

func fromDoc(d valueDoc) Value {
	switch d.Kind {
	case KindList:
		if d.List == nil {
			d.List = []string{}
		}
		return List(d.List)
	case KindMapping:
		h := New()
		for _, e := range d.Entries {
			h.Set(e.Key, fromDoc(e.Value))
		}
		return Mapping(h)
	case KindMatrix:
		if d.Matrix == nil {
			d.Matrix = [][]float64{}
		}
		return Matrix(d.Matrix)
	default:
		return Scalar(d.Scalar)
	}
}

// MarshalBinary encodes the value as a BSON document.
func (v Value) MarshalBinary() ([]byte, error) {
	return bson.Marshal(v.doc())
}

// UnmarshalValue decodes bytes produced by MarshalBinary.
func UnmarshalValue(b []byte) (Value, error) {
	var d valueDoc
	if err := bson.Unmarshal(b, &d); err != nil {
		return Value{}, apperr.New(apperr.KindMalformedHeaderField, "decode metadata value", err)
	}
	return fromDoc(d), nil
}
