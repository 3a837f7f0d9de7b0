// Package storage persists the service's relational state (tenants,
// repositories, reviews, usage counters, workflow runs and index pointers)
// and wraps the vector database used for repository context.
package storage

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/sevigo/review-warden/internal/core"
	"github.com/sevigo/review-warden/internal/workflow"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = core.ErrNotFound
	// ErrRepositoryExists is returned when a repository is connected twice.
	ErrRepositoryExists = errors.New("repository already connected")
)

// ProviderGitHub is the account provider whose token is used for GitHub calls.
const ProviderGitHub = "github"

type UserStore interface {
	GetUser(ctx context.Context, id string) (*core.User, error)
	UpsertUser(ctx context.Context, user *core.User) error
}

type AccountStore interface {
	// GetAccessToken returns ErrNotFound when the user has no token for provider.
	GetAccessToken(ctx context.Context, userID, provider string) (string, error)
	SaveAccessToken(ctx context.Context, userID, provider, token string) error
}

type RepositoryStore interface {
	CreateRepository(ctx context.Context, repo *core.Repository) error
	GetRepositoryByOwnerName(ctx context.Context, owner, name string) (*core.Repository, error)
	ListRepositoriesByUser(ctx context.Context, userID string) ([]core.Repository, error)
}

type ReviewStore interface {
	SaveReview(ctx context.Context, review *core.ReviewRecord) error
	ListReviews(ctx context.Context, repositoryID int64, limit int) ([]core.ReviewRecord, error)
}

type UsageStore interface {
	GetUsage(ctx context.Context, key core.UsageKey) (int, error)
	// IncrementUsage adds one to the counter unless it already reached
	// limit, in which case it returns core.ErrQuotaExceeded and leaves the
	// counter untouched. A nil limit means unlimited.
	IncrementUsage(ctx context.Context, key core.UsageKey, limit *int) (int, error)
	DecrementUsage(ctx context.Context, key core.UsageKey) error
	ListUsage(ctx context.Context, userID string) ([]core.UsageCounter, error)
}

type IndexStore interface {
	GetRepositoryIndex(ctx context.Context, repositoryKey string) (*core.RepositoryIndex, error)
	// SwapRepositoryIndex points repositoryKey at a new collection and
	// returns the collection it replaced, or "" if there was none.
	SwapRepositoryIndex(ctx context.Context, idx *core.RepositoryIndex) (string, error)
}

// Store defines all relational operations of the service.
type Store interface {
	UserStore
	AccountStore
	RepositoryStore
	ReviewStore
	UsageStore
	IndexStore
	workflow.Store
}

type postgresStore struct {
	db *sqlx.DB
}

// NewStore creates a Postgres-backed Store.
func NewStore(db *sqlx.DB) Store {
	if db == nil {
		panic("database connection is required")
	}
	return &postgresStore{db: db}
}
