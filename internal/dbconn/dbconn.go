// Package dbconn builds connection strings and opens database handles for the
// supported backends: SQL Server over ODBC style strings, SQLite files and
// PostgreSQL through pgx.
package dbconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"      // sqlite3 driver
	_ "github.com/microsoft/go-mssqldb" // sqlserver driver

	"github.com/your-org/healthcareai-go/internal/config"
)

// ErrUnsupportedDriver is returned by Open for an unknown driver name.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

const odbcDriver = "DRIVER={ODBC Driver 13 for SQL Server}"

// Conn is an open database. Pool is set only for PostgreSQL, where DB is a
// database/sql view of the same pool.
type Conn struct {
	DB      *sql.DB
	Pool    *pgxpool.Pool
	Dialect string
}

// Close releases the handle and, for PostgreSQL, the pool behind it.
func (c *Conn) Close() error {
	err := c.DB.Close()
	if c.Pool != nil {
		c.Pool.Close()
	}
	return err
}

// BuildMSSQLTrustedConnectionString returns an ODBC connection string that
// authenticates with the caller's Windows login.
func BuildMSSQLTrustedConnectionString(server, database string) string {
	return odbcDriver + ";Server=" + server + ";Database=" + database + ";Trusted_Connection=yes;"
}

// BuildMSSQLConnectionString returns an ODBC connection string with explicit
// credentials.
func BuildMSSQLConnectionString(server, database, userid, password string) string {
	return odbcDriver + ";Server=" + server + ";Database=" + database + ";Uid=" + userid + ";Pwd=" + password
}

// SQLiteInMemoryConnectionString names an in-memory database shared by every
// connection of one *sql.DB.
func SQLiteInMemoryConnectionString() string {
	return "file::memory:?cache=shared"
}

// OpenMSSQL connects to SQL Server. With secure set the trusted connection
// string is used and userid and password are ignored.
func OpenMSSQL(ctx context.Context, server, database, userid, password string, secure bool) (*Conn, error) {
	connStr := BuildMSSQLConnectionString(server, database, userid, password)
	if secure {
		connStr = BuildMSSQLTrustedConnectionString(server, database)
	}
	db, err := sql.Open("sqlserver", "odbc:"+connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open mssql connection: %w", err)
	}
	return ping(ctx, &Conn{DB: db, Dialect: config.DriverMSSQL})
}

// OpenSQLite opens (creating if needed) the SQLite database at path.
func OpenSQLite(ctx context.Context, path string) (*Conn, error) {
	if path == "" || path == ":memory:" {
		path = SQLiteInMemoryConnectionString()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return ping(ctx, &Conn{DB: db, Dialect: config.DriverSQLite})
}

// OpenPostgres creates a pgx pool for dsn.
func OpenPostgres(ctx context.Context, dsn string) (*Conn, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return ping(ctx, &Conn{DB: stdlib.OpenDBFromPool(pool), Pool: pool, Dialect: config.DriverPostgres})
}

// PostgresDSN renders cfg as a postgres:// URL.
func PostgresDSN(cfg config.DatabaseConfig) string {
	host := cfg.Host
	if cfg.Port != 0 {
		host = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   host,
		Path:   "/" + cfg.Name,
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{cfg.SSLMode}}.Encode()
	}
	return u.String()
}

// Open dispatches on cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Conn, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.Path)
	case config.DriverMSSQL:
		server := cfg.Host
		if cfg.Port != 0 {
			server += "," + strconv.Itoa(cfg.Port)
		}
		return OpenMSSQL(ctx, server, cfg.Name, cfg.User, cfg.Password, cfg.Trusted.Bool())
	case config.DriverPostgres:
		return OpenPostgres(ctx, PostgresDSN(cfg))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
}

func ping(ctx context.Context, c *Conn) (*Conn, error) {
	if err := c.DB.PingContext(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", c.Dialect, err)
	}
	return c, nil
}

// Rebind rewrites the ? placeholders of query for dialect: $n for postgres,
// @pn for SQL Server. SQLite queries are returned unchanged.
func Rebind(dialect, query string) string {
	var prefix string
	switch dialect {
	case config.DriverPostgres:
		prefix = "$"
	case config.DriverMSSQL:
		prefix = "@p"
	default:
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(prefix)
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
