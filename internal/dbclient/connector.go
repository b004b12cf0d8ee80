package dbclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"nirsvault/internal/domain"
	"nirsvault/internal/etl"
)

// QueryPage is a batch of rows fetched from a query cursor.
type QueryPage struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	TotalFetched int      `json:"totalFetched"` // total rows fetched so far
	HasMore      bool     `json:"hasMore"`      // cursor has more rows
	IsWrite      bool     `json:"isWrite"`
	AffectedRows int      `json:"affectedRows"`
}

// SchemaInfo describes what the warehouse currently holds.
type SchemaInfo struct {
	Tables []TableInfo `json:"tables"`
}

// TableInfo describes a table/collection.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// ColumnInfo describes a column/field.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Connector is the warehouse sink and reader. It is an etl.Destination.
//
// Write stores one table's records in a single transaction: every sequence
// and foreign sequence is replaced by its md5 hex, and each row gains the
// insertion timestamp and the source tag. A failure is SinkWriteFailure
// naming the table; nothing is retried.
type Connector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// EnsureSchema creates missing tables for the given definitions.
	EnsureSchema(ctx context.Context, tables []etl.Table) error

	// Write appends a table's records.
	Write(ctx context.Context, table etl.Table) (int, error)

	// Scan streams every stored row of a table, decoded per its schema.
	// Stored sequences are hashes; timestamp and source columns are included.
	Scan(ctx context.Context, table etl.Table, fn func(etl.Record) error) error

	// Execute runs a query and returns the first batch of rows.
	// For reads: opens a cursor and fetches fetchSize rows.
	// For writes: executes and returns affected rows count.
	Execute(ctx context.Context, query string, args []any, fetchSize int) (*QueryPage, error)

	// FetchMore continues reading from the open cursor.
	FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error)

	// Introspect lists stored tables and their columns.
	Introspect(ctx context.Context) (*SchemaInfo, error)

	// Dialect names the warehouse engine.
	Dialect() domain.WarehouseDriver

	// Close closes the connection and any open cursors.
	Close() error
}

// Options tunes a connector.
type Options struct {
	Logger *zap.Logger
	Now    func() time.Time // insertion clock; time.Now when nil
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// NewConnector creates a Connector for the given warehouse.
// The password must be provided separately (from a secret store).
func NewConnector(w *domain.Warehouse, password string, opts Options) (Connector, error) {
	opts = opts.withDefaults()
	opts.Logger = opts.Logger.Named("warehouse").With(zap.String("driver", string(w.Driver)))
	source := w.Provenance()

	switch w.Driver {
	case domain.WarehouseDriverSQLite:
		return newSQLiteConnector(w, source, opts)
	case domain.WarehouseDriverMySQL:
		return newSQLConnector(mysqlDialect, buildMySQLDSN(w, password), source, opts)
	case domain.WarehouseDriverPostgres:
		return newSQLConnector(postgresDialect, buildPostgresDSN(w, password), source, opts)
	case domain.WarehouseDriverMongoDB:
		return newMongoConnector(w, password, source, opts)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", w.Driver)
	}
}
