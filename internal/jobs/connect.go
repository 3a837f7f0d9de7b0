package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sevigo/review-warden/internal/core"
	"github.com/sevigo/review-warden/internal/storage"
	"github.com/sevigo/review-warden/internal/workflow"
)

// ConnectStore is the persistence repository connection needs.
type ConnectStore interface {
	workflow.Store
	CreateRepository(ctx context.Context, repo *core.Repository) error
	GetRepositoryByOwnerName(ctx context.Context, owner, name string) (*core.Repository, error)
}

// ConnectRequest describes a repository a user wants reviewed.
type ConnectRequest struct {
	UserID         string
	Owner          string
	Repo           string
	GitHubID       int64
	InstallationID int64
}

// Connector connects repositories to users and triggers their indexing.
type Connector struct {
	store      ConnectStore
	gate       QuotaGate
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewConnector(store ConnectStore, gate QuotaGate, dispatcher Dispatcher, logger *slog.Logger) *Connector {
	if store == nil || gate == nil || dispatcher == nil {
		panic("connector dependencies are required")
	}
	return &Connector{store: store, gate: gate, dispatcher: dispatcher, logger: logger}
}

// Connect charges one repository against the user's quota, records the
// repository and schedules its indexing.
func (c *Connector) Connect(ctx context.Context, req ConnectRequest) (*core.Repository, error) {
	_, err := c.store.GetRepositoryByOwnerName(ctx, req.Owner, req.Repo)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%s/%s: %w", req.Owner, req.Repo, storage.ErrRepositoryExists)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	if err := c.gate.Commit(ctx, req.UserID, 0, core.UsageRepository); err != nil {
		return nil, err
	}

	repo := &core.Repository{
		GitHubID:  req.GitHubID,
		Name:      req.Repo,
		Owner:     req.Owner,
		FullName:  req.Owner + "/" + req.Repo,
		URL:       fmt.Sprintf("https://github.com/%s/%s", req.Owner, req.Repo),
		UserID:    req.UserID,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.CreateRepository(ctx, repo); err != nil {
		if releaseErr := c.gate.Release(context.WithoutCancel(ctx), req.UserID, 0, core.UsageRepository); releaseErr != nil {
			c.logger.Error("failed to release repository quota", "user_id", req.UserID, "error", releaseErr)
		}
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}
	c.logger.Info("repository connected", "repo", repo.FullName, "user_id", req.UserID, "repository_id", repo.ID)

	if err := c.Reindex(ctx, repo, req.InstallationID); err != nil {
		return repo, err
	}
	return repo, nil
}

// Reindex schedules an indexing run for a connected repository.
func (c *Connector) Reindex(ctx context.Context, repo *core.Repository, installationID int64) error {
	event := &core.IndexRequestEvent{
		Owner:          repo.Owner,
		Repo:           repo.Name,
		UserID:         repo.UserID,
		RequestID:      uuid.NewString(),
		InstallationID: installationID,
	}
	run, err := workflow.NewRun(KindIndex, event.RequestID, event)
	if err != nil {
		return err
	}
	if err := c.store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to create index run: %w", err)
	}
	return c.dispatcher.Dispatch(ctx, run)
}
