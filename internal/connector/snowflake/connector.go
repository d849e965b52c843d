package snowflake

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jmoiron/sqlx"
	gosnowflake "github.com/snowflakedb/gosnowflake"

	"github.com/druidgo/druid-boot/internal/connector"
)

// SnowflakeConnector implements connector.Connector for Snowflake.
type SnowflakeConnector struct{}

// New creates a SnowflakeConnector.
func New() connector.Connector {
	return &SnowflakeConnector{}
}

// DriverName returns "snowflake".
func (c *SnowflakeConnector) DriverName() string { return "snowflake" }

// DBType returns "snowflake".
func (c *SnowflakeConnector) DBType() string { return "snowflake" }

// ValidationQuery returns the connection check statement.
func (c *SnowflakeConnector) ValidationQuery() string { return "SELECT 1" }

// BuildDSN parses the gosnowflake DSN (user:pass@account/db/schema) and
// fills in configured credentials. A DSN without userinfo gets the
// configured user and password prepended, since the parser requires both.
func (c *SnowflakeConnector) BuildDSN(cfg connector.ConnectionConfig) (string, error) {
	dsn := strings.TrimPrefix(connector.StripJDBC(cfg.URL), "snowflake://")
	if !strings.Contains(dsn, "@") && cfg.Username != "" {
		dsn = url.UserPassword(cfg.Username, cfg.Password).String() + "@" + dsn
	}

	sfConfig, err := gosnowflake.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse DSN: %w", err)
	}
	if sfConfig.User == "" {
		sfConfig.User = cfg.Username
	}
	if sfConfig.Password == "" {
		sfConfig.Password = cfg.Password
	}

	out, err := gosnowflake.DSN(sfConfig)
	if err != nil {
		return "", fmt.Errorf("rebuild DSN: %w", err)
	}
	return out, nil
}

// Open creates the Snowflake pool.
func (c *SnowflakeConnector) Open(dsn string) (*sqlx.DB, error) {
	return connector.Open(c.DriverName(), dsn)
}
