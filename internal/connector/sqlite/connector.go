package sqlite

import (
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/druidgo/druid-boot/internal/connector"
)

// SQLiteConnector implements connector.Connector for SQLite databases.
type SQLiteConnector struct{}

// New creates a SQLiteConnector.
func New() connector.Connector {
	return &SQLiteConnector{}
}

// DriverName returns "sqlite".
func (c *SQLiteConnector) DriverName() string { return "sqlite" }

// DBType returns "sqlite".
func (c *SQLiteConnector) DBType() string { return "sqlite" }

// ValidationQuery returns the connection check statement.
func (c *SQLiteConnector) ValidationQuery() string { return "SELECT 1" }

// BuildDSN returns the file path or URI. SQLite has no credentials, so the
// username and password are ignored. A "sqlite:" scheme is stripped.
func (c *SQLiteConnector) BuildDSN(cfg connector.ConnectionConfig) (string, error) {
	dsn := connector.StripJDBC(cfg.URL)
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	dsn = strings.TrimPrefix(dsn, "sqlite:")
	return dsn, nil
}

// Open creates the SQLite pool. The DSN is a file path, a file: URI or
// ":memory:". Query parameters like ?_journal_mode=WAL are supported.
func (c *SQLiteConnector) Open(dsn string) (*sqlx.DB, error) {
	return connector.Open(c.DriverName(), dsn)
}
