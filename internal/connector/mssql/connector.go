package mssql

import (
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/druidgo/druid-boot/internal/connector"
)

// MSSQLConnector implements connector.Connector for SQL Server databases.
type MSSQLConnector struct{}

// New creates a MSSQLConnector.
func New() connector.Connector {
	return &MSSQLConnector{}
}

// DriverName returns "sqlserver".
func (c *MSSQLConnector) DriverName() string { return "sqlserver" }

// DBType returns "sqlserver".
func (c *MSSQLConnector) DBType() string { return "sqlserver" }

// ValidationQuery returns the connection check statement.
func (c *MSSQLConnector) ValidationQuery() string { return "SELECT 1" }

// BuildDSN accepts sqlserver:// URLs and ADO style "server=...;" strings.
func (c *MSSQLConnector) BuildDSN(cfg connector.ConnectionConfig) (string, error) {
	dsn := connector.StripJDBC(cfg.URL)
	if strings.HasPrefix(dsn, "mssql://") {
		dsn = "sqlserver://" + strings.TrimPrefix(dsn, "mssql://")
	}
	if strings.Contains(dsn, "://") {
		return connector.WithURLCredentials(connector.SanitizeDSN("mssql", dsn), cfg.Username, cfg.Password)
	}

	lower := strings.ToLower(dsn)
	dsn = strings.TrimSuffix(dsn, ";")
	if cfg.Username != "" && !strings.Contains(lower, "user id=") {
		dsn += ";user id=" + cfg.Username
	}
	if cfg.Password != "" && !strings.Contains(lower, "password=") {
		dsn += ";password=" + cfg.Password
	}
	return dsn, nil
}

// Open creates the SQL Server pool.
func (c *MSSQLConnector) Open(dsn string) (*sqlx.DB, error) {
	return connector.Open(c.DriverName(), dsn)
}
