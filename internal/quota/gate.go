// Package quota enforces per-tenant usage limits. Reviews are limited per
// repository and connected repositories per user; paid tiers are unlimited.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sevigo/review-warden/internal/config"
	"github.com/sevigo/review-warden/internal/core"
	"github.com/sevigo/review-warden/internal/storage"
)

// Store is the persistence the gate needs.
type Store interface {
	storage.UsageStore
	GetUser(ctx context.Context, id string) (*core.User, error)
}

// Gate decides whether a tenant may consume one more unit of a resource.
type Gate struct {
	store  Store
	limits map[core.UsageKind]*int
	logger *slog.Logger
}

// NewGate builds a Gate with free-tier limits from cfg. Non-positive limits
// are treated as unlimited.
func NewGate(store Store, cfg config.QuotaConfig, logger *slog.Logger) *Gate {
	if store == nil {
		panic("quota store is required")
	}
	return &Gate{
		store: store,
		limits: map[core.UsageKind]*int{
			core.UsageRepository: limitOf(cfg.FreeRepositories),
			core.UsageReview:     limitOf(cfg.FreeReviewsPerRepository),
		},
		logger: logger,
	}
}

func limitOf(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}

func keyFor(userID string, repositoryID int64, kind core.UsageKind) core.UsageKey {
	if kind == core.UsageRepository {
		repositoryID = 0
	}
	return core.UsageKey{UserID: userID, RepositoryID: repositoryID, Kind: kind}
}

// limitFor resolves the limit for the user's tier. Unknown users are on the
// free tier.
func (g *Gate) limitFor(ctx context.Context, userID string, kind core.UsageKind) (*int, error) {
	user, err := g.store.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	if user != nil && user.Tier == core.TierPro {
		return nil, nil
	}
	return g.limits[kind], nil
}

// CanAdmit is an advisory read: the answer may be stale by the time the
// caller acts on it. Use Commit to actually consume quota.
func (g *Gate) CanAdmit(ctx context.Context, userID string, repositoryID int64, kind core.UsageKind) (bool, error) {
	limit, err := g.limitFor(ctx, userID, kind)
	if err != nil {
		return false, err
	}
	if limit == nil {
		return true, nil
	}
	count, err := g.store.GetUsage(ctx, keyFor(userID, repositoryID, kind))
	if err != nil {
		return false, err
	}
	return count < *limit, nil
}

// Commit atomically checks and increments the counter. It returns
// core.ErrQuotaExceeded when the counter is already at its limit; the
// counter never exceeds the limit regardless of concurrency.
func (g *Gate) Commit(ctx context.Context, userID string, repositoryID int64, kind core.UsageKind) error {
	limit, err := g.limitFor(ctx, userID, kind)
	if err != nil {
		return err
	}
	count, err := g.store.IncrementUsage(ctx, keyFor(userID, repositoryID, kind), limit)
	if err != nil {
		if errors.Is(err, core.ErrQuotaExceeded) {
			g.logger.Info("quota exceeded", "user_id", userID, "repository_id", repositoryID, "kind", kind)
			return fmt.Errorf("%s limit reached for user %s: %w", kind, userID, core.ErrQuotaExceeded)
		}
		return fmt.Errorf("failed to commit %s usage: %w", kind, err)
	}
	g.logger.Debug("quota committed", "user_id", userID, "repository_id", repositoryID, "kind", kind, "count", count)
	return nil
}

// Release gives back one unit after a failed admission.
func (g *Gate) Release(ctx context.Context, userID string, repositoryID int64, kind core.UsageKind) error {
	if err := g.store.DecrementUsage(ctx, keyFor(userID, repositoryID, kind)); err != nil {
		return fmt.Errorf("failed to release %s usage: %w", kind, err)
	}
	return nil
}

// Usage describes one counter against its limit. Limit is nil when unlimited.
type Usage struct {
	Current int  `json:"current"`
	Limit   *int `json:"limit"`
	CanAdd  bool `json:"can_add"`
}

// Summary is the remaining-limits view of a tenant.
type Summary struct {
	Tier         core.Tier       `json:"tier"`
	Repositories Usage           `json:"repositories"`
	Reviews      map[int64]Usage `json:"reviews"`
}

// Limits reports current usage and limits for every counter of the user.
func (g *Gate) Limits(ctx context.Context, userID string) (*Summary, error) {
	tier := core.TierFree
	user, err := g.store.GetUser(ctx, userID)
	switch {
	case err == nil:
		tier = user.Tier
	case !errors.Is(err, core.ErrNotFound):
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	limit := func(kind core.UsageKind) *int {
		if tier == core.TierPro {
			return nil
		}
		return g.limits[kind]
	}
	usage := func(count int, l *int) Usage {
		return Usage{Current: count, Limit: l, CanAdd: l == nil || count < *l}
	}

	counters, err := g.store.ListUsage(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Tier:         tier,
		Repositories: usage(0, limit(core.UsageRepository)),
		Reviews:      make(map[int64]Usage),
	}
	for _, c := range counters {
		switch c.Kind {
		case core.UsageRepository:
			summary.Repositories = usage(c.Count, limit(core.UsageRepository))
		case core.UsageReview:
			summary.Reviews[c.RepositoryID] = usage(c.Count, limit(core.UsageReview))
		}
	}
	return summary, nil
}
