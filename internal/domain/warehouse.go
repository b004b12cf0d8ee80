package domain

// WarehouseDriver represents the engine the data vault is loaded into.
type WarehouseDriver string

const (
	WarehouseDriverPostgres WarehouseDriver = "postgres"
	WarehouseDriverMySQL    WarehouseDriver = "mysql"
	WarehouseDriverSQLite   WarehouseDriver = "sqlite"
	WarehouseDriverMongoDB  WarehouseDriver = "mongodb"
)

// WarehouseDrivers lists the supported drivers.
var WarehouseDrivers = []WarehouseDriver{
	WarehouseDriverPostgres,
	WarehouseDriverMySQL,
	WarehouseDriverSQLite,
	WarehouseDriverMongoDB,
}

// Warehouse holds the metadata for connecting to the data-vault warehouse.
// The password is resolved separately through a secret store unless it is
// set inline.
type Warehouse struct {
	Driver   WarehouseDriver   `json:"driver" yaml:"driver" validate:"required,oneof=postgres mysql sqlite mongodb"`
	Host     string            `json:"host" yaml:"host" validate:"required"` // hostname, URI (mongodb) or file path (sqlite)
	Port     int               `json:"port" yaml:"port" validate:"gte=0,lte=65535"`
	Database string            `json:"database" yaml:"database"`
	Username string            `json:"username" yaml:"username"`
	Password string            `json:"-" yaml:"password"`
	SSLMode  string            `json:"sslMode" yaml:"ssl_mode"`
	Source   string            `json:"source" yaml:"source"` // provenance tag stored with every row
	Extra    map[string]string `json:"extra,omitempty" yaml:"extra"`
}

// SecretKey is the secret-store key holding the warehouse password.
func (w *Warehouse) SecretKey() string {
	return "warehouse/" + string(w.Driver) + "/" + w.Username + "@" + w.Host
}

// Provenance is the source tag: Source if set, else the user name.
func (w *Warehouse) Provenance() string {
	switch {
	case w.Source != "":
		return w.Source
	case w.Username != "":
		return w.Username
	default:
		return "nirsvault"
	}
}
