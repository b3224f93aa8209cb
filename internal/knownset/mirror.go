package knownset

import (
	"context"

	"github.com/yourco/faceid/internal/models"
)

// PostgresMirror adapts storage.PostgresStore to the Mirror interface.
type postgresStore interface {
	ReplaceKnownFaces(ctx context.Context, identities []models.KnownIdentity) error
}

type PostgresMirror struct {
	store postgresStore
}

func NewPostgresMirror(store postgresStore) *PostgresMirror {
	return &PostgresMirror{store: store}
}

func (m *PostgresMirror) Replace(ctx context.Context, identities []models.KnownIdentity) error {
	return m.store.ReplaceKnownFaces(ctx, identities)
}
