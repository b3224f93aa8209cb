package enrichment

import (
	"context"
	"fmt"

	"github.com/yourco/faceid/internal/storage"
)

// PostgresRecordStore adapts storage.PostgresStore to the RecordStore
// interface, converting between the storage package's row shape and the
// enrichment package's external-record shape.
type PostgresRecordStore struct {
	store *storage.PostgresStore
}

func NewPostgresRecordStore(store *storage.PostgresStore) *PostgresRecordStore {
	return &PostgresRecordStore{store: store}
}

func (a *PostgresRecordStore) FindByTriggerSuffix(ctx context.Context, suffix string) (*Record, error) {
	row, err := a.store.FindByTriggerSuffix(ctx, suffix)
	if err != nil {
		return nil, fmt.Errorf("find enrichment record: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return &Record{
		Trigger:     row.Trigger,
		FullName:    row.FullName,
		DisplayText: row.DisplayText,
		ImageURLs:   row.ImageURLs,
	}, nil
}

// IsTransientPostgresError adapts storage.TransientPgError to this
// package's IsTransientError shape.
func IsTransientPostgresError(err error) bool {
	return storage.TransientPgError(err)
}
