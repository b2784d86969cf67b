package featureflags

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	listFlagsSQL = `SELECT key, value, updated_at FROM scene_flags`

	upsertFlagSQL = `
		INSERT INTO scene_flags (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`

	deleteFlagSQL = `DELETE FROM scene_flags WHERE key = $1`
)

// PostgresRepository stores overrides in the scene_flags table with values
// encoded as JSON, so they survive restarts and are shared by replicas.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository over pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// List returns every stored override.
func (r *PostgresRepository) List(ctx context.Context) (map[string]*Flag, error) {
	rows, err := r.pool.Query(ctx, listFlagsSQL)
	if err != nil {
		return nil, fmt.Errorf("query scene_flags: %w", err)
	}

	flags, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Flag, error) {
		var (
			f   Flag
			raw []byte
		)
		if err := row.Scan(&f.Key, &raw, &f.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &f.Value); err != nil {
			return nil, fmt.Errorf("decode flag %q: %w", f.Key, err)
		}
		return &f, nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]*Flag, len(flags))
	for _, f := range flags {
		out[f.Key] = f
	}
	return out, nil
}

// Upsert writes flags in one batch inside a transaction.
func (r *PostgresRepository) Upsert(ctx context.Context, flags ...*Flag) error {
	if len(flags) == 0 {
		return nil
	}

	now := time.Now()
	batch := &pgx.Batch{}
	for _, f := range flags {
		raw, err := json.Marshal(f.Value)
		if err != nil {
			return fmt.Errorf("encode flag %q: %w", f.Key, err)
		}
		batch.Queue(upsertFlagSQL, f.Key, raw, now)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
}

// Delete drops one override.
func (r *PostgresRepository) Delete(ctx context.Context, key string) error {
	tag, err := r.pool.Exec(ctx, deleteFlagSQL, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFlagNotFound
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
