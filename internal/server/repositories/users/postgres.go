// Package users persists models.User through the storage gateway. Every
// query it runs is a named statement from the shared registry, compiled on
// first use.
package users

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/ritw/internal/common"
	"github.com/dmitrijs2005/ritw/internal/server/models"
	"github.com/dmitrijs2005/ritw/internal/server/statements"
	"github.com/dmitrijs2005/ritw/internal/server/storage"
)

var (
	upStatement = statements.Definition{
		Name: "users.up",
		Query: `CREATE TABLE IF NOT EXISTS users (
			id       VARCHAR PRIMARY KEY,
			name     VARCHAR NOT NULL,
			password BYTEA   NOT NULL
		)`,
	}

	createStatement = statements.Definition{
		Name: "users.create",
		Query: `INSERT INTO users (id, name, password)
		 VALUES ($1, $2, $3)
		 RETURNING id, name, password`,
		Params: []statements.ParamType{statements.Varchar, statements.Varchar, statements.Bytea},
	}

	readStatement = statements.Definition{
		Name: "users.read",
		Query: `SELECT id, name, password FROM users
		 WHERE id = $1`,
		Params: []statements.ParamType{statements.Varchar},
	}

	updateStatement = statements.Definition{
		Name: "users.update",
		Query: `UPDATE users SET name = $2, password = $3
		 WHERE id = $1`,
		Params: []statements.ParamType{statements.Varchar, statements.Varchar, statements.Bytea},
	}

	deleteStatement = statements.Definition{
		Name: "users.delete",
		Query: `DELETE FROM users
		 WHERE id = $1`,
		Params: []statements.ParamType{statements.Varchar},
	}
)

// Statements lists the users statements in the order they are registered.
func Statements() []statements.Definition {
	return []statements.Definition{upStatement, createStatement, readStatement, updateStatement, deleteStatement}
}

// SQLRepository implements Repository on top of storage.Gateway. The same
// SQL serves PostgreSQL and SQLite.
type SQLRepository struct {
	gw *storage.Gateway

	up     *statements.Lazy
	create *statements.Lazy
	read   *statements.Lazy
	update *statements.Lazy
	delete *statements.Lazy
}

var _ Repository = (*SQLRepository)(nil)

// NewSQLRepository registers the users statements in reg. Nothing is
// compiled until first use.
func NewSQLRepository(gw *storage.Gateway, reg *statements.Registry) *SQLRepository {
	return &SQLRepository{
		gw:     gw,
		up:     reg.Register(upStatement),
		create: reg.Register(createStatement),
		read:   reg.Register(readStatement),
		update: reg.Register(updateStatement),
		delete: reg.Register(deleteStatement),
	}
}

func (r *SQLRepository) FromDTO(dto models.UserCreateInfo) *models.User {
	return models.NewUser(dto)
}

// ProvisionSchema creates the users table if it does not exist.
func (r *SQLRepository) ProvisionSchema(ctx context.Context) error {
	if _, err := r.gw.Execute(ctx, r.up.Get()); err != nil {
		return fmt.Errorf("provision users: %w", err)
	}
	return nil
}

// Create inserts user. An existing id yields common.ErrorConflict; the
// stored row is left untouched.
func (r *SQLRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	return storage.QueryOne(ctx, r.gw, r.create.Get(), models.UserFromRow,
		user.ID, user.Name, user.Password)
}

// Read returns the user with the given id or common.ErrorNotFound.
func (r *SQLRepository) Read(ctx context.Context, id string) (*models.User, error) {
	return storage.QueryOne(ctx, r.gw, r.read.Get(), models.UserFromRow, id)
}

// Update replaces name and password of old with those of new.
func (r *SQLRepository) Update(ctx context.Context, old, new *models.User) error {
	models.MustMatchIdentity[string](old, new)

	n, err := r.gw.Execute(ctx, r.update.Get(), old.ID, new.Name, new.Password)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// Delete removes the user with the given id.
func (r *SQLRepository) Delete(ctx context.Context, id string) error {
	n, err := r.gw.Execute(ctx, r.delete.Get(), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
