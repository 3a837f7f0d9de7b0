package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sevigo/review-warden/internal/core"
)

func (s *postgresStore) GetUsage(ctx context.Context, key core.UsageKey) (int, error) {
	var count int
	query := `SELECT count FROM usage_counters WHERE user_id = $1 AND repository_id = $2 AND kind = $3`
	err := s.db.GetContext(ctx, &count, query, key.UserID, key.RepositoryID, key.Kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get usage: %w", err)
	}
	return count, nil
}

// incrementUsageQuery is a single conditional upsert. Postgres locks the
// conflicting row, so concurrent callers serialize on it and the WHERE
// clause sees the committed count.
const incrementUsageQuery = `
	INSERT INTO usage_counters (user_id, repository_id, kind, count, updated_at)
	VALUES ($1, $2, $3, 1, NOW())
	ON CONFLICT (user_id, repository_id, kind) DO UPDATE
	SET count = usage_counters.count + 1, updated_at = NOW()
	WHERE $4::INTEGER IS NULL OR usage_counters.count < $4::INTEGER
	RETURNING count`

func (s *postgresStore) IncrementUsage(ctx context.Context, key core.UsageKey, limit *int) (int, error) {
	if limit != nil && *limit <= 0 {
		return 0, core.ErrQuotaExceeded
	}

	var limitArg sql.NullInt64
	if limit != nil {
		limitArg = sql.NullInt64{Int64: int64(*limit), Valid: true}
	}

	var count int
	err := s.db.QueryRowxContext(ctx, incrementUsageQuery, key.UserID, key.RepositoryID, key.Kind, limitArg).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, core.ErrQuotaExceeded
		}
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}
	return count, nil
}

func (s *postgresStore) DecrementUsage(ctx context.Context, key core.UsageKey) error {
	query := `
		UPDATE usage_counters SET count = count - 1, updated_at = NOW()
		WHERE user_id = $1 AND repository_id = $2 AND kind = $3 AND count > 0`
	if _, err := s.db.ExecContext(ctx, query, key.UserID, key.RepositoryID, key.Kind); err != nil {
		return fmt.Errorf("failed to decrement usage: %w", err)
	}
	return nil
}

func (s *postgresStore) ListUsage(ctx context.Context, userID string) ([]core.UsageCounter, error) {
	var counters []core.UsageCounter
	query := `
		SELECT user_id, repository_id, kind, count, updated_at
		FROM usage_counters
		WHERE user_id = $1
		ORDER BY kind, repository_id`
	if err := s.db.SelectContext(ctx, &counters, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	return counters, nil
}

func (s *postgresStore) GetRepositoryIndex(ctx context.Context, repositoryKey string) (*core.RepositoryIndex, error) {
	var idx core.RepositoryIndex
	query := `
		SELECT repository_key, collection_name, embedder_model, chunk_count, indexed_at
		FROM repository_indexes
		WHERE repository_key = $1`
	if err := s.db.GetContext(ctx, &idx, query, repositoryKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get index for %s: %w", repositoryKey, err)
	}
	return &idx, nil
}

func (s *postgresStore) SwapRepositoryIndex(ctx context.Context, idx *core.RepositoryIndex) (string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var previous string
	err = tx.GetContext(ctx, &previous,
		`SELECT collection_name FROM repository_indexes WHERE repository_key = $1 FOR UPDATE`, idx.RepositoryKey)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to lock index for %s: %w", idx.RepositoryKey, err)
	}

	query := `
		INSERT INTO repository_indexes (repository_key, collection_name, embedder_model, chunk_count, indexed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (repository_key) DO UPDATE
		SET collection_name = EXCLUDED.collection_name,
		    embedder_model = EXCLUDED.embedder_model,
		    chunk_count = EXCLUDED.chunk_count,
		    indexed_at = EXCLUDED.indexed_at`
	if _, err := tx.ExecContext(ctx, query, idx.RepositoryKey, idx.CollectionName, idx.EmbedderModel, idx.ChunkCount); err != nil {
		return "", fmt.Errorf("failed to swap index for %s: %w", idx.RepositoryKey, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit index swap: %w", err)
	}
	return previous, nil
}
