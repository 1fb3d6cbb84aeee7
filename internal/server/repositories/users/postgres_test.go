package users

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/ritw/internal/common"
	"github.com/dmitrijs2005/ritw/internal/server/models"
	"github.com/dmitrijs2005/ritw/internal/server/statements"
	"github.com/dmitrijs2005/ritw/internal/server/storage/storagetest"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	createQuery = `(?s)^INSERT\s+INTO\s+users\s*\(id,\s*name,\s*password\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s*RETURNING\s+id,\s*name,\s*password$`
	readQuery   = `(?s)^SELECT\s+id,\s*name,\s*password\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`
	updateQuery = `(?s)^UPDATE\s+users\s+SET\s+name\s*=\s*\$2,\s*password\s*=\s*\$3\s+WHERE\s+id\s*=\s*\$1$`
	deleteQuery = `(?s)^DELETE\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`
)

var userColumns = []string{"id", "name", "password"}

func newRepoWithMock(t *testing.T) (*SQLRepository, sqlmock.Sqlmock) {
	t.Helper()
	gw, mock := storagetest.NewMock(t)
	return NewSQLRepository(gw, statements.NewRegistry(gw)), mock
}

func TestStatements_Registered(t *testing.T) {
	gw, _ := storagetest.NewMock(t)
	reg := statements.NewRegistry(gw)
	NewSQLRepository(gw, reg)

	assert.ElementsMatch(t,
		[]string{"users.up", "users.create", "users.read", "users.update", "users.delete"},
		reg.Names())

	for _, def := range Statements() {
		require.NoError(t, def.Validate(), def.Name)
	}
}

func TestCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectPrepare(createQuery).
		ExpectQuery().
		WithArgs("u1", "Alice", []byte("verifier")).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow("u1", "Alice", []byte("verifier")))

	got, err := repo.Create(context.Background(), &models.User{ID: "u1", Name: "Alice", Password: []byte("verifier")})
	require.NoError(t, err)
	assert.Equal(t, &models.User{ID: "u1", Name: "Alice", Password: []byte("verifier")}, got)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DuplicateIsConflict(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectPrepare(createQuery).
		ExpectQuery().
		WithArgs("u1", "Alice", []byte("verifier")).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	_, err := repo.Create(context.Background(), &models.User{ID: "u1", Name: "Alice", Password: []byte("verifier")})
	assert.ErrorIs(t, err, common.ErrorConflict)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectPrepare(createQuery).
		ExpectQuery().
		WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.User{ID: "u1", Name: "Alice", Password: []byte("v")})
	require.Error(t, err)
	assert.Regexp(t, `db error: .*db down`, err.Error())
	assert.NotErrorIs(t, err, common.ErrorConflict)
}

func TestRead_FoundAndNotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	prep := mock.ExpectPrepare(readQuery)
	prep.ExpectQuery().
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow("u1", "Alice", []byte("v")))
	prep.ExpectQuery().
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(userColumns))

	u, err := repo.Read(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)

	_, err = repo.Read(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectPrepare(updateQuery).
		ExpectExec().
		WithArgs("u1", "Alicia", []byte("new")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	old := &models.User{ID: "u1", Name: "Alice", Password: []byte("old")}
	next := &models.User{ID: "u1", Name: "Alicia", Password: []byte("new")}
	require.NoError(t, repo.Update(context.Background(), old, next))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_MissingRowIsNotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectPrepare(updateQuery).
		ExpectExec().
		WillReturnResult(sqlmock.NewResult(0, 0))

	u := &models.User{ID: "ghost", Name: "x", Password: []byte("y")}
	assert.ErrorIs(t, repo.Update(context.Background(), u, u), common.ErrorNotFound)
}

func TestUpdate_IdentityMismatchPanicsBeforeTouchingStore(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	assert.Panics(t, func() {
		_ = repo.Update(context.Background(),
			&models.User{ID: "u1"},
			&models.User{ID: "u2"})
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	prep := mock.ExpectPrepare(deleteQuery)
	prep.ExpectExec().WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("ghost").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "u1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "ghost"), common.ErrorNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisionSchema(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectPrepare(`CREATE TABLE IF NOT EXISTS users`).
		ExpectExec().
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.ProvisionSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
