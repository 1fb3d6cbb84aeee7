// Package storagetest builds initialized gateways for tests.
package storagetest

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/ritw/internal/logging"
	"github.com/dmitrijs2005/ritw/internal/server/storage"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// NewSQLite returns a gateway over a private in-memory SQLite database.
// The gateway is closed when the test ends.
func NewSQLite(t testing.TB) *storage.Gateway {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	g := storage.NewGateway(logging.Discard())
	require.NoError(t, g.InitWithDB(context.Background(), db, storage.DialectSQLite, 0))
	t.Cleanup(func() { _ = g.Close() })
	return g
}

// NewMock returns a postgres-dialect gateway backed by sqlmock with the
// liveness probe already satisfied. Queries are matched as regular
// expressions.
func NewMock(t testing.TB) (*storage.Gateway, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT CAST($1 AS TEXT) AS probe")).
		WithArgs(storage.ProbeValue).
		WillReturnRows(sqlmock.NewRows([]string{"probe"}).AddRow(storage.ProbeValue))

	g := storage.NewGateway(logging.Discard())
	require.NoError(t, g.InitWithDB(context.Background(), db, storage.DialectPostgres, 0))
	return g, mock
}
