// Package connector maps database/sql drivers onto the data source. Each
// supported database lives in its own sub-package and registers a Factory
// with a Registry; the data source resolves one from the configured driver
// name or, failing that, from the URL.
package connector

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// ConnectionConfig holds what is needed to reach a database.
type ConnectionConfig struct {
	Driver   string // registered driver name or alias, may be empty
	URL      string
	Username string
	Password string
}

// Connector describes one database/sql driver.
type Connector interface {
	// DriverName is the name the driver registered with database/sql.
	DriverName() string
	// DBType is the database product, e.g. "mysql" or "postgresql".
	DBType() string
	// ValidationQuery is a cheap statement that proves a connection works.
	ValidationQuery() string
	// BuildDSN folds the username and password into the URL the way the
	// driver expects them.
	BuildDSN(cfg ConnectionConfig) (string, error)
	// Open creates the pool without connecting.
	Open(dsn string) (*sqlx.DB, error)
}

// Open is the common Connector.Open implementation.
func Open(driverName, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s open: %w", driverName, err)
	}
	return db, nil
}

// WithURLCredentials sets the userinfo of a URL-style DSN when the DSN does
// not already carry one and a username was configured.
func WithURLCredentials(dsn, username, password string) (string, error) {
	if username == "" {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.User != nil && u.User.Username() != "" {
		return dsn, nil
	}
	if password != "" {
		u.User = url.UserPassword(username, password)
	} else {
		u.User = url.User(username)
	}
	return u.String(), nil
}

// StripJDBC removes a leading "jdbc:" so JDBC style URLs can be reused.
func StripJDBC(rawURL string) string {
	return strings.TrimPrefix(rawURL, "jdbc:")
}

// InferDriver guesses the driver name from a URL. It returns "" when the
// URL gives no hint.
func InferDriver(rawURL string) string {
	u := strings.ToLower(StripJDBC(rawURL))
	switch {
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(u, "mysql://"), strings.Contains(u, "@tcp("), strings.Contains(u, "@unix("):
		return "mysql"
	case strings.HasPrefix(u, "sqlserver://"), strings.HasPrefix(u, "mssql://"):
		return "mssql"
	case strings.HasPrefix(u, "oracle://"):
		return "oracle"
	case strings.HasPrefix(u, "snowflake://"), strings.Contains(u, ".snowflakecomputing.com"):
		return "snowflake"
	case strings.HasPrefix(u, "file:"), strings.HasPrefix(u, "sqlite:"), u == ":memory:",
		strings.HasSuffix(u, ".db"), strings.HasSuffix(u, ".sqlite"), strings.HasSuffix(u, ".sqlite3"):
		return "sqlite"
	default:
		return ""
	}
}

// SanitizeDSN ensures that URL-style DSNs (postgres://, sqlserver://) have
// their userinfo (especially the password) properly percent-encoded. Raw
// passwords containing @, #, %, or other URL-special characters cause the
// Go URL parser to mis-split the authority component.
//
// MySQL DSNs are normalized to use the tcp() wrapper required by go-sql-driver.
// Snowflake and SQLite DSNs are returned unchanged.
func SanitizeDSN(driver, dsn string) string {
	switch driver {
	case "postgres", "postgresql", "mssql", "sqlserver", "oracle":
		return sanitizeURLDSN(dsn)
	case "mysql":
		return sanitizeMySQLDSN(dsn)
	default:
		return dsn
	}
}

// mysqlBareHostPort matches "user:pass@host:port/db" (no tcp() wrapper, no ()
// wrapper). We look for the last "@" followed by what looks like host:port/db.
var mysqlBareHostPort = regexp.MustCompile(`^(.+)@([^(@]+:\d+)(/.*)?$`)

// sanitizeMySQLDSN normalizes a MySQL DSN so that go-sql-driver/mysql can
// parse it correctly. The driver requires the format:
//
//	user:pass@tcp(host:port)/dbname
//
// Common mistakes from users:
//
//	user:pass@host:port/db          → missing tcp() wrapper
//	user:pass@(host:port)/db        → missing "tcp" before parens
//	user:pass@tcp(host:port)/db     → already correct
//
// When the password contains "@", the driver's ParseDSN splits on the last
// "@" before "/"; this works ONLY when "tcp(" is present, otherwise the
// parser treats the password fragment as a network name.
func sanitizeMySQLDSN(dsn string) string {
	// If it already parses cleanly and has a known network, trust it.
	if cfg, err := mysqldriver.ParseDSN(dsn); err == nil && (cfg.Net == "tcp" || cfg.Net == "unix") {
		return cfg.FormatDSN()
	}

	// Try to fix common patterns.

	// Pattern: user:pass@(host:port)/db, missing "tcp" keyword.
	// Find the last "@" followed immediately by "(" but NOT preceded by
	// a network name like "tcp" or "unix".
	if idx := strings.LastIndex(dsn, "@("); idx >= 0 {
		// Insert "tcp" between "@" and "("
		fixed := dsn[:idx] + "@tcp" + dsn[idx+1:]
		if cfg, err := mysqldriver.ParseDSN(fixed); err == nil {
			return cfg.FormatDSN()
		}
	}

	// Pattern: user:pass@host:port/db, no parens at all.
	if m := mysqlBareHostPort.FindStringSubmatch(dsn); m != nil {
		userpass := m[1] // everything before the last @host:port
		hostport := m[2]
		dbpart := m[3] // /dbname or empty
		fixed := userpass + "@tcp(" + hostport + ")" + dbpart
		if cfg, err := mysqldriver.ParseDSN(fixed); err == nil {
			return cfg.FormatDSN()
		}
	}

	// Nothing worked: return as-is and let the connect call give a clear error.
	return dsn
}

// sanitizeURLDSN parses a DSN that begins with a scheme (e.g.
// postgres://user:p@ss#word@host/db) and re-encodes the password so the
// URL library can parse it unambiguously.
func sanitizeURLDSN(dsn string) string {
	// Find the scheme separator.
	schemeEnd := strings.Index(dsn, "://")
	if schemeEnd < 0 {
		return dsn // not a URL-style DSN, return as-is
	}

	scheme := dsn[:schemeEnd]
	rest := dsn[schemeEnd+3:] // everything after "://"

	// Split off query/fragment from the authority+path portion.
	query := ""
	if qi := strings.IndexByte(rest, '?'); qi >= 0 {
		query = rest[qi:]
		rest = rest[:qi]
	}

	// Find the LAST '@': everything before it is userinfo, everything after is host+path.
	atIdx := strings.LastIndex(rest, "@")
	if atIdx < 0 {
		return dsn // no credentials in the DSN
	}

	userinfo := rest[:atIdx]
	hostpath := rest[atIdx+1:]

	// Split userinfo into user and password at the FIRST ':'.
	user := userinfo
	pass := ""
	if ci := strings.IndexByte(userinfo, ':'); ci >= 0 {
		user = userinfo[:ci]
		pass = userinfo[ci+1:]
	}

	// Re-encode. url.PathEscape is too aggressive; url.QueryEscape encodes
	// spaces as '+' which isn't great for passwords. Use a manual approach:
	// percent-encode only the characters that break URL parsing.
	encodedUser := url.PathEscape(user)
	encodedPass := url.PathEscape(pass)

	return scheme + "://" + encodedUser + ":" + encodedPass + "@" + hostpath + query
}
