package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/yourco/faceid/internal/config"
	"github.com/yourco/faceid/internal/models"
)

// PostgresStore backs the durable side stores used by C1's known-set
// mirror and C7's enrichment record store. Neither the registry (C2) nor
// the event log persists here — both have their own contracts (spec.md
// §6) that Postgres would only obscure.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the two tables this store owns if absent. Run once
// at startup; migrations beyond additive column changes are out of scope.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS known_faces (
    label     TEXT NOT NULL,
    embedding vector(512) NOT NULL
);
CREATE TABLE IF NOT EXISTS enrichment_records (
    trigger_image_url TEXT PRIMARY KEY,
    full_name         TEXT NOT NULL,
    text_to_display   TEXT NOT NULL DEFAULT '',
    result_image_urls TEXT[] NOT NULL DEFAULT '{}',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// --- known-set mirror (C1) ---

// ReplaceKnownFaces atomically swaps the known_faces table's contents to
// match identities, used by knownset.KnownSet.Rebuild.
func (s *PostgresStore) ReplaceKnownFaces(ctx context.Context, identities []models.KnownIdentity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM known_faces`); err != nil {
		return fmt.Errorf("clear known_faces: %w", err)
	}
	for _, id := range identities {
		for _, e := range id.Embeddings {
			vec := pgvector.NewVector([]float32(e))
			if _, err := tx.Exec(ctx,
				`INSERT INTO known_faces (label, embedding) VALUES ($1, $2)`, id.Name, vec,
			); err != nil {
				return fmt.Errorf("insert known face %q: %w", id.Name, err)
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LoadKnownFaces reads the mirror back into memory, grouped by label with
// labels in ascending order. Nothing in this repository calls it: the
// known set is always rebuilt by re-embedding the enrollment images.
func (s *PostgresStore) LoadKnownFaces(ctx context.Context) ([]models.KnownIdentity, error) {
	rows, err := s.pool.Query(ctx, `SELECT label, embedding FROM known_faces ORDER BY label`)
	if err != nil {
		return nil, fmt.Errorf("load known faces: %w", err)
	}
	defer rows.Close()

	byLabel := map[string]*models.KnownIdentity{}
	var order []string
	for rows.Next() {
		var label string
		var vec pgvector.Vector
		if err := rows.Scan(&label, &vec); err != nil {
			return nil, fmt.Errorf("scan known face: %w", err)
		}
		id, ok := byLabel[label]
		if !ok {
			id = &models.KnownIdentity{Name: label}
			byLabel[label] = id
			order = append(order, label)
		}
		id.Embeddings = append(id.Embeddings, models.Embedding(vec.Slice()))
	}

	out := make([]models.KnownIdentity, 0, len(order))
	for _, label := range order {
		out = append(out, *byLabel[label])
	}
	return out, nil
}

// --- enrichment record store (C7) ---

// EnrichmentRecord is the external, authoritative row C7 polls for — the
// spec.md §6 "record" shape.
type EnrichmentRecord struct {
	Trigger     string
	FullName    string
	DisplayText string
	ImageURLs   []string
}

// FindByTriggerSuffix looks up a record whose trigger ends with suffix
// (spec.md §4.6's "record whose trigger ends with image_key"). Returns
// (nil, nil) if no record exists yet — the caller treats that as "still
// Scraping", not an error.
func (s *PostgresStore) FindByTriggerSuffix(ctx context.Context, suffix string) (*EnrichmentRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT trigger_image_url, full_name, text_to_display, result_image_urls
		   FROM enrichment_records WHERE trigger_image_url LIKE '%'||$1
		   ORDER BY created_at DESC LIMIT 1`, suffix)

	var rec EnrichmentRecord
	if err := row.Scan(&rec.Trigger, &rec.FullName, &rec.DisplayText, &rec.ImageURLs); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find enrichment record: %w", err)
	}
	return &rec, nil
}

// TransientPgError reports whether err is a retryable Postgres condition
// (connection reset, timeout, deadlock) as opposed to a permanent one
// (syntax/auth/constraint), per spec.md §7's two distinct error rows.
func TransientPgError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "57014", "08000", "08003", "08006":
			return true
		}
		return false
	}
	// Connection-level errors (no PgError code) are treated as transient:
	// a closed connection or context deadline is recoverable on the next
	// poll tick.
	return true
}
