package oracle

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	go_ora "github.com/sijms/go-ora/v2"

	"github.com/druidgo/druid-boot/internal/connector"
)

// OracleConnector implements connector.Connector for Oracle through go-ora.
type OracleConnector struct{}

// New creates an OracleConnector.
func New() connector.Connector {
	return &OracleConnector{}
}

// DriverName returns "oracle".
func (c *OracleConnector) DriverName() string { return "oracle" }

// DBType returns "oracle".
func (c *OracleConnector) DBType() string { return "oracle" }

// ValidationQuery returns the connection check statement.
func (c *OracleConnector) ValidationQuery() string { return "SELECT 1 FROM DUAL" }

// BuildDSN accepts oracle:// URLs and EZConnect style host:port/service.
func (c *OracleConnector) BuildDSN(cfg connector.ConnectionConfig) (string, error) {
	dsn := connector.StripJDBC(cfg.URL)
	if strings.HasPrefix(dsn, "oracle://") {
		return connector.WithURLCredentials(connector.SanitizeDSN("oracle", dsn), cfg.Username, cfg.Password)
	}

	// JDBC thin form: oracle:thin:@host:port/service
	dsn = strings.TrimPrefix(dsn, "oracle:thin:@")
	hostport, service, _ := strings.Cut(dsn, "/")
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		host, portStr = hostport, "1521"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("oracle port %q: %w", portStr, err)
	}
	return go_ora.BuildUrl(host, port, service, cfg.Username, cfg.Password, nil), nil
}

// Open creates the go-ora pool.
func (c *OracleConnector) Open(dsn string) (*sqlx.DB, error) {
	return connector.Open(c.DriverName(), dsn)
}
