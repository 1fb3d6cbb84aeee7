// Package models defines the entity contract shared by every persisted
// type and the server-side entities themselves.
package models

import "context"

// Entity is anything with a stable identity.
type Entity[ID comparable] interface {
	Identity() ID
}

// Model is the persistence capability set of an entity type E, created
// from untrusted input of type D and identified by ID.
//
// Update replaces every non-key column of old with the values of new.
// old and new must share the same identity; passing different ones is a
// programming error and panics.
type Model[E Entity[ID], D any, ID comparable] interface {
	FromDTO(dto D) E

	ProvisionSchema(ctx context.Context) error
	Create(ctx context.Context, candidate E) (E, error)
	Read(ctx context.Context, id ID) (E, error)
	Update(ctx context.Context, old, new E) error
	Delete(ctx context.Context, id ID) error
}

// MustMatchIdentity panics unless old and new identify the same entity.
func MustMatchIdentity[ID comparable](old, new Entity[ID]) {
	if old.Identity() != new.Identity() {
		panic("models: update must not change the entity identity")
	}
}
