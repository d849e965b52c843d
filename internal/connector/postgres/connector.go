package postgres

import (
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/druidgo/druid-boot/internal/connector"
)

// PostgresConnector implements connector.Connector for PostgreSQL through pgx.
type PostgresConnector struct{}

// New creates a PostgresConnector.
func New() connector.Connector {
	return &PostgresConnector{}
}

// DriverName returns the database/sql name of the pgx stdlib driver.
func (c *PostgresConnector) DriverName() string { return "pgx" }

// DBType returns "postgresql".
func (c *PostgresConnector) DBType() string { return "postgresql" }

// ValidationQuery returns the connection check statement.
func (c *PostgresConnector) ValidationQuery() string { return "SELECT 1" }

// BuildDSN accepts both URL DSNs (postgres://host/db) and keyword/value
// DSNs (host=... dbname=...). Credentials are only added when the DSN has
// none of its own.
func (c *PostgresConnector) BuildDSN(cfg connector.ConnectionConfig) (string, error) {
	dsn := connector.StripJDBC(cfg.URL)
	if strings.HasPrefix(dsn, "postgresql://") {
		dsn = "postgres://" + strings.TrimPrefix(dsn, "postgresql://")
	}
	if strings.Contains(dsn, "://") {
		return connector.WithURLCredentials(connector.SanitizeDSN("postgres", dsn), cfg.Username, cfg.Password)
	}

	if cfg.Username != "" && !strings.Contains(dsn, "user=") {
		dsn += " user=" + quoteValue(cfg.Username)
	}
	if cfg.Password != "" && !strings.Contains(dsn, "password=") {
		dsn += " password=" + quoteValue(cfg.Password)
	}
	return strings.TrimSpace(dsn), nil
}

// Open creates the pgx backed pool.
func (c *PostgresConnector) Open(dsn string) (*sqlx.DB, error) {
	return connector.Open(c.DriverName(), dsn)
}

// quoteValue quotes a keyword/value DSN value, escaping \ and '.
func quoteValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
