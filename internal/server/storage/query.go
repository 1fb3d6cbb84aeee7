package storage

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/ritw/internal/common"
	"github.com/dmitrijs2005/ritw/internal/dbx"
	"github.com/dmitrijs2005/ritw/internal/server/statements"
)

// Query runs plan and maps every returned row with mapper, which builds a
// T from a generic result row.
func Query[T any](ctx context.Context, g *Gateway, plan *statements.Plan, mapper func(dbx.Row) (T, error), args ...any) ([]T, error) {
	rows, err := g.query(ctx, plan, args)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(rows))
	for _, r := range rows {
		v, err := mapper(r)
		if err != nil {
			return nil, fmt.Errorf("%s: map row: %w", plan.Name, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// QueryOne runs plan and maps its single row. No rows yields
// common.ErrorNotFound.
func QueryOne[T any](ctx context.Context, g *Gateway, plan *statements.Plan, mapper func(dbx.Row) (T, error), args ...any) (T, error) {
	var zero T

	rows, err := g.query(ctx, plan, args)
	if err != nil {
		return zero, err
	}

	switch len(rows) {
	case 0:
		return zero, common.ErrorNotFound
	case 1:
	default:
		return zero, fmt.Errorf("db error: %s: expected one row, got %d", plan.Name, len(rows))
	}

	v, err := mapper(rows[0])
	if err != nil {
		return zero, fmt.Errorf("%s: map row: %w", plan.Name, err)
	}
	return v, nil
}

// Execute runs plan and returns the number of affected rows.
func (g *Gateway) Execute(ctx context.Context, plan *statements.Plan, args ...any) (int64, error) {
	if err := plan.Bind(args); err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil {
		return 0, ErrNotInitialized
	}

	res, err := plan.Stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, translate(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (g *Gateway) query(ctx context.Context, plan *statements.Plan, args []any) ([]dbx.Row, error) {
	if err := plan.Bind(args); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil {
		return nil, ErrNotInitialized
	}

	rows, err := plan.Stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, translate(err)
	}

	out, err := dbx.ScanRows(rows)
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}
