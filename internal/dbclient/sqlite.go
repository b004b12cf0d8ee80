package dbclient

import (
	_ "modernc.org/sqlite"

	"nirsvault/internal/domain"
	"nirsvault/internal/etl"
)

// SQLite stores matrices and timestamp lists as JSON text.
var sqliteDialect = sqlDialect{
	driver:     domain.WarehouseDriverSQLite,
	driverName: "sqlite",
	quoteChar:  `"`,
	types: map[string]string{
		etl.TypeSequence:   "TEXT",
		etl.TypeText:       "TEXT",
		etl.TypeInteger:    "INTEGER",
		etl.TypeBoolean:    "BOOLEAN",
		etl.TypeBinary:     "BLOB",
		etl.TypeMatrix:     "TEXT",
		etl.TypeTimestamps: "TEXT",
		typeTimestamp:      "TIMESTAMP",
	},
	encode: encodeJSON,
	decode: decodeJSON,
}

// newSQLiteConnector creates a connector for a SQLite warehouse file.
// Opens in WAL mode with busy timeout for concurrent access.
func newSQLiteConnector(w *domain.Warehouse, source string, opts Options) (*sqlConnector, error) {
	dsn := w.Host + "?_journal_mode=WAL&_busy_timeout=5000"
	return newSQLConnector(sqliteDialect, dsn, source, opts)
}
