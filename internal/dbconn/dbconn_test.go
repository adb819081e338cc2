package dbconn

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/healthcareai-go/internal/config"
)

func TestBuildMSSQLConnectionStrings(t *testing.T) {
	assert.Equal(t,
		"DRIVER={ODBC Driver 13 for SQL Server};Server=localhost;Database=SAM;Trusted_Connection=yes;",
		BuildMSSQLTrustedConnectionString("localhost", "SAM"))
	assert.Equal(t,
		"DRIVER={ODBC Driver 13 for SQL Server};Server=edw01;Database=SAM;Uid=svc;Pwd=s3cret",
		BuildMSSQLConnectionString("edw01", "SAM", "svc", "s3cret"))
}

func TestRebind(t *testing.T) {
	q := "INSERT INTO t (a, b) VALUES (?, ?)"
	assert.Equal(t, q, Rebind(config.DriverSQLite, q))
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2)", Rebind(config.DriverPostgres, q))
	assert.Equal(t, "INSERT INTO t (a, b) VALUES (@p1, @p2)", Rebind(config.DriverMSSQL, q))
}

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DatabaseConfig{
		Host: "db", Port: 5432, User: "hcai", Password: "p@ss", Name: "scores", SSLMode: "disable",
	})
	assert.Equal(t, "postgres://hcai:p%40ss@db:5432/scores?sslmode=disable", dsn)
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hcai.db")

	c, err := Open(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, Path: path})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, config.DriverSQLite, c.Dialect)
	assert.Nil(t, c.Pool)

	_, err = c.DB.ExecContext(ctx, `CREATE TABLE x (id INTEGER)`)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestOpenSQLiteInMemory(t *testing.T) {
	c, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer c.Close()
	assert.NoError(t, c.DB.Ping())
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}
