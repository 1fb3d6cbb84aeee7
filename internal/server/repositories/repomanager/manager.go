// Package repomanager assembles the entity repositories over one gateway
// and one statement registry.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/ritw/internal/server/repositories/users"
)

type RepositoryManager interface {
	// ProvisionSchema creates every entity's tables. It is idempotent.
	ProvisionSchema(ctx context.Context) error
	// Warm compiles every registered statement, panicking on the first
	// failure. Call it after ProvisionSchema.
	Warm()
	Users() users.Repository
}
