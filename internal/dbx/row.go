// Package dbx provides tiny database/sql helpers shared by the storage
// layer: the Conn subset the gateway drives, and Row, a generic
// column-name-to-value view of a result row that entities map themselves
// from.
package dbx

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Conn is the subset of database/sql used by the gateway.
// *sql.Conn satisfies it.
type Conn interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PingContext(ctx context.Context) error
	Close() error
}

// Row maps column names to the values the driver returned for them.
type Row map[string]any

// String returns the named column as a string. Drivers return text
// columns either as string or []byte; both are accepted.
func (r Row) String(col string) (string, error) {
	v, ok := r[col]
	if !ok {
		return "", fmt.Errorf("column %q missing", col)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	}
	return "", fmt.Errorf("column %q: unexpected type %T", col, v)
}

// Bytes returns the named column as a byte slice.
func (r Row) Bytes(col string) ([]byte, error) {
	v, ok := r[col]
	if !ok {
		return nil, fmt.Errorf("column %q missing", col)
	}
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	}
	return nil, fmt.Errorf("column %q: unexpected type %T", col, v)
}

// Int64 returns the named column as an int64.
func (r Row) Int64(col string) (int64, error) {
	v, ok := r[col]
	if !ok {
		return 0, fmt.Errorf("column %q missing", col)
	}
	switch x := v.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	}
	return 0, fmt.Errorf("column %q: unexpected type %T", col, v)
}

// Time returns the named column as a time.Time.
func (r Row) Time(col string) (time.Time, error) {
	v, ok := r[col]
	if !ok {
		return time.Time{}, fmt.Errorf("column %q missing", col)
	}
	if t, ok := v.(time.Time); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("column %q: unexpected type %T", col, v)
}

// ScanRows drains rows into Row values and closes them.
//
// Byte slices are copied: database/sql only guarantees them until the
// next call to Next.
func ScanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				vals[i] = append([]byte(nil), b...)
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
