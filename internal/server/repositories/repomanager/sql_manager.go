package repomanager

import (
	"context"

	"github.com/dmitrijs2005/ritw/internal/server/repositories/users"
	"github.com/dmitrijs2005/ritw/internal/server/statements"
	"github.com/dmitrijs2005/ritw/internal/server/storage"
)

type provisioner interface {
	ProvisionSchema(ctx context.Context) error
}

type SQLRepositoryManager struct {
	registry *statements.Registry
	users    *users.SQLRepository
	schema   []provisioner
}

var _ RepositoryManager = (*SQLRepositoryManager)(nil)

func NewSQLRepositoryManager(gw *storage.Gateway) *SQLRepositoryManager {
	reg := statements.NewRegistry(gw)
	u := users.NewSQLRepository(gw, reg)

	return &SQLRepositoryManager{
		registry: reg,
		users:    u,
		schema:   []provisioner{u},
	}
}

func (m *SQLRepositoryManager) ProvisionSchema(ctx context.Context) error {
	for _, p := range m.schema {
		if err := p.ProvisionSchema(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *SQLRepositoryManager) Warm() {
	m.registry.Warm()
}

func (m *SQLRepositoryManager) Users() users.Repository {
	return m.users
}

// Statements returns the names of all registered statements.
func (m *SQLRepositoryManager) Statements() []string {
	return m.registry.Names()
}
