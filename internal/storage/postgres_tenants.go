package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/sevigo/review-warden/internal/core"
)

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func (s *postgresStore) GetUser(ctx context.Context, id string) (*core.User, error) {
	var u core.User
	err := s.db.GetContext(ctx, &u, `SELECT id, name, email, subscription_tier, created_at FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &u, nil
}

func (s *postgresStore) UpsertUser(ctx context.Context, user *core.User) error {
	tier := user.Tier
	if tier == "" {
		tier = core.TierFree
	}
	query := `
		INSERT INTO users (id, name, email, subscription_tier)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, subscription_tier = EXCLUDED.subscription_tier`
	if _, err := s.db.ExecContext(ctx, query, user.ID, user.Name, user.Email, tier); err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.ID, err)
	}
	return nil
}

func (s *postgresStore) GetAccessToken(ctx context.Context, userID, provider string) (string, error) {
	var token sql.NullString
	err := s.db.GetContext(ctx, &token,
		`SELECT access_token FROM accounts WHERE user_id = $1 AND provider_id = $2`, userID, provider)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}
	if !token.Valid || token.String == "" {
		return "", ErrNotFound
	}
	return token.String, nil
}

func (s *postgresStore) SaveAccessToken(ctx context.Context, userID, provider, token string) error {
	query := `
		INSERT INTO accounts (user_id, provider_id, access_token)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, provider_id) DO UPDATE SET access_token = EXCLUDED.access_token`
	if _, err := s.db.ExecContext(ctx, query, userID, provider, token); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

func (s *postgresStore) CreateRepository(ctx context.Context, repo *core.Repository) error {
	query := `
		INSERT INTO repositories (github_id, name, owner, full_name, url, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	err := s.db.QueryRowxContext(ctx, query,
		repo.GitHubID, repo.Name, repo.Owner, repo.FullName, repo.URL, repo.UserID,
	).Scan(&repo.ID, &repo.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", repo.FullName, ErrRepositoryExists)
		}
		return fmt.Errorf("failed to create repository %s: %w", repo.FullName, err)
	}
	return nil
}

func (s *postgresStore) GetRepositoryByOwnerName(ctx context.Context, owner, name string) (*core.Repository, error) {
	var r core.Repository
	query := `
		SELECT id, github_id, name, owner, full_name, url, user_id, created_at
		FROM repositories
		WHERE owner = $1 AND name = $2`
	if err := s.db.GetContext(ctx, &r, query, owner, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("repository %s/%s: %w", owner, name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get repository %s/%s: %w", owner, name, err)
	}
	return &r, nil
}

func (s *postgresStore) ListRepositoriesByUser(ctx context.Context, userID string) ([]core.Repository, error) {
	var repos []core.Repository
	query := `
		SELECT id, github_id, name, owner, full_name, url, user_id, created_at
		FROM repositories
		WHERE user_id = $1
		ORDER BY created_at DESC`
	if err := s.db.SelectContext(ctx, &repos, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	return repos, nil
}

func (s *postgresStore) SaveReview(ctx context.Context, review *core.ReviewRecord) error {
	query := `
		INSERT INTO reviews (repository_id, pr_number, pr_title, pr_url, review, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	err := s.db.QueryRowxContext(ctx, query,
		review.RepositoryID, review.PRNumber, review.PRTitle, review.PRURL, review.ReviewText, review.Status,
	).Scan(&review.ID, &review.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save review for %s: %w", review.PRURL, err)
	}
	return nil
}

func (s *postgresStore) ListReviews(ctx context.Context, repositoryID int64, limit int) ([]core.ReviewRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var reviews []core.ReviewRecord
	query := `
		SELECT id, repository_id, pr_number, pr_title, pr_url, review, status, created_at
		FROM reviews
		WHERE repository_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	if err := s.db.SelectContext(ctx, &reviews, query, repositoryID, limit); err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}
