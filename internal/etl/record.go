package etl

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// Transformers emit Tables of Records, destinations consume them one Table
// at a time.

// Field types. Sequence fields hold natural-key strings that the warehouse
// hashes into surrogate keys; every other type is stored as-is.
const (
	TypeSequence   = "sequence"
	TypeText       = "text"
	TypeInteger    = "integer"
	TypeBoolean    = "boolean"
	TypeBinary     = "binary"     // []byte
	TypeMatrix     = "matrix"     // [][]float64
	TypeTimestamps = "timestamps" // []time.Time
)

// Field describes a single column in a dataset.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Ref  string `json:"ref,omitempty"` // hub table a sequence field points at
}

// Schema describes the shape of a table's records.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Record is a single row of data flowing through the pipeline.
// Origin names the file group that produced it.
type Record struct {
	Data   map[string]any `json:"data"`
	Origin string         `json:"origin,omitempty"`
}

// TableKind is the data-vault role of a table.
type TableKind string

const (
	KindHub       TableKind = "hub"
	KindLink      TableKind = "link"
	KindSatellite TableKind = "satellite"
)

// Rank orders kinds for loading: hubs, then links, then satellites.
func (k TableKind) Rank() int {
	switch k {
	case KindHub:
		return 0
	case KindLink:
		return 1
	default:
		return 2
	}
}

// Table is a named, column-homogeneous record set bound for one warehouse table.
type Table struct {
	Name    string    `json:"name"`
	Kind    TableKind `json:"kind"`
	Schema  Schema    `json:"schema"`
	Records []Record  `json:"records"`
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.Records)
}
