package dbclient

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"nirsvault/internal/domain"
	"nirsvault/internal/etl"
)

// MySQL stores matrices and timestamp lists as JSON documents.
var mysqlDialect = sqlDialect{
	driver:     domain.WarehouseDriverMySQL,
	driverName: "mysql",
	quoteChar:  "`",
	types: map[string]string{
		etl.TypeSequence:   "CHAR(32)",
		etl.TypeText:       "TEXT",
		etl.TypeInteger:    "INT",
		etl.TypeBoolean:    "BOOLEAN",
		etl.TypeBinary:     "LONGBLOB",
		etl.TypeMatrix:     "JSON",
		etl.TypeTimestamps: "JSON",
		typeTimestamp:      "DATETIME(6)",
	},
	encode: encodeJSON,
	decode: decodeJSON,
}

// buildMySQLDSN constructs a MySQL DSN from a Warehouse.
func buildMySQLDSN(w *domain.Warehouse, password string) string {
	port := w.Port
	if port == 0 {
		port = 3306
	}
	// Format: user:password@tcp(host:port)/dbname?parseTime=true
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		w.Username, password, w.Host, port, w.Database,
	)
	if w.SSLMode == "require" {
		dsn += "&tls=true"
	}
	return dsn
}
