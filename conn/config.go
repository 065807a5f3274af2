package conn

import "time"

// TLSMode names how a driver should negotiate transport security.
// Connection parameters are supplied by the caller as a typed struct;
// no environment variables are consulted.
type TLSMode int

const (
	TLSDisable TLSMode = iota
	TLSPrefer
	TLSRequire
	TLSVerifyCA
	TLSVerifyFull
)

// PostgresConfig configures driver/postgres.
type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	ApplicationName string
	TLSMode         TLSMode
	ConnectTimeout  time.Duration
	Options         map[string]string
	MaxMessageSize  int
}

// MySQLConfig configures driver/mysql.
type MySQLConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	TLSMode         TLSMode
	ConnectTimeout  time.Duration
	Options         map[string]string
	MaxPacketSize   int
	Collation       string
}

// SQLiteConfig configures driver/sqlite.
type SQLiteConfig struct {
	Path          string
	ReadOnly      bool
	BusyTimeout   time.Duration
	ForeignKeys   bool
	JournalMode   string
	Options       map[string]string
}
