package autoconfigure

import (
	"github.com/druidgo/druid-boot/internal/connector"
	"github.com/druidgo/druid-boot/internal/connector/mssql"
	"github.com/druidgo/druid-boot/internal/connector/mysql"
	"github.com/druidgo/druid-boot/internal/connector/oracle"
	"github.com/druidgo/druid-boot/internal/connector/postgres"
	"github.com/druidgo/druid-boot/internal/connector/snowflake"
	"github.com/druidgo/druid-boot/internal/connector/sqlite"
)

// DefaultRegistry returns a connector registry with every supported driver.
// Besides the Go driver names, the JDBC driver class names people carry over
// in driverClassName resolve to the matching connector.
func DefaultRegistry() *connector.Registry {
	registry := connector.NewRegistry()
	registry.RegisterDriver("postgres", func() connector.Connector { return postgres.New() },
		"postgresql", "pgx", "org.postgresql.Driver")
	registry.RegisterDriver("mysql", func() connector.Connector { return mysql.New() },
		"mariadb", "com.mysql.jdbc.Driver", "com.mysql.cj.jdbc.Driver", "org.mariadb.jdbc.Driver")
	registry.RegisterDriver("mssql", func() connector.Connector { return mssql.New() },
		"sqlserver", "com.microsoft.sqlserver.jdbc.SQLServerDriver")
	registry.RegisterDriver("oracle", func() connector.Connector { return oracle.New() },
		"go-ora", "oracle.jdbc.OracleDriver", "oracle.jdbc.driver.OracleDriver")
	registry.RegisterDriver("snowflake", func() connector.Connector { return snowflake.New() },
		"net.snowflake.client.jdbc.SnowflakeDriver")
	registry.RegisterDriver("sqlite", func() connector.Connector { return sqlite.New() },
		"sqlite3", "org.sqlite.JDBC")
	return registry
}
