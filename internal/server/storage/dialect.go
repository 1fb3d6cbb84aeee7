package storage

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/ritw/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect names the database/sql driver behind the gateway.
type Dialect string

const (
	DialectPostgres Dialect = "pgx"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect accepts the driver names used in configuration.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "", "pgx", "postgres", "postgresql":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", s)
}

var dollarParamRe = regexp.MustCompile(`\$(\d+)`)

// Rebind rewrites $n placeholders for the dialect. Statements are written
// for PostgreSQL; SQLite gets the equivalent ?n form.
func (d Dialect) Rebind(query string) string {
	if d != DialectSQLite {
		return query
	}
	return dollarParamRe.ReplaceAllString(query, "?$1")
}

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
			strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
	}

	return false
}

// translate keeps the driver error in the chain so callers can still
// errors.As it.
func translate(err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %w", common.ErrorConflict, err)
	}
	return fmt.Errorf("db error: %w", err)
}
