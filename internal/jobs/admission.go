package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sevigo/review-warden/internal/core"
	"github.com/sevigo/review-warden/internal/workflow"
)

// QuotaGate commits and releases usage units.
type QuotaGate interface {
	Commit(ctx context.Context, userID string, repositoryID int64, kind core.UsageKind) error
	Release(ctx context.Context, userID string, repositoryID int64, kind core.UsageKind) error
}

// AdmissionStore is the persistence admission needs.
type AdmissionStore interface {
	workflow.Store
	GetRepositoryByOwnerName(ctx context.Context, owner, name string) (*core.Repository, error)
}

// Admitter turns review requests into persisted, dispatched runs.
type Admitter struct {
	store      AdmissionStore
	gate       QuotaGate
	dispatcher Dispatcher
	logger     *slog.Logger
}

var _ core.ReviewAdmitter = (*Admitter)(nil)

func NewAdmitter(store AdmissionStore, gate QuotaGate, dispatcher Dispatcher, logger *slog.Logger) *Admitter {
	if store == nil || gate == nil || dispatcher == nil {
		panic("admitter dependencies are required")
	}
	return &Admitter{store: store, gate: gate, dispatcher: dispatcher, logger: logger}
}

// Admit deduplicates by request id, charges one review against the
// repository owner's quota and schedules a review run. A request id that
// already has a run never starts a second one.
func (a *Admitter) Admit(ctx context.Context, event *core.ReviewRequestEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	logger := a.logger.With("repo", event.FullName(), "pr", event.PRNumber, "request_id", event.RequestID)

	existing, err := a.store.GetRunByRequestID(ctx, event.RequestID)
	switch {
	case err == nil:
		logger.Info("duplicate review request", "run_id", existing.ID, "status", existing.Status)
		if !existing.Status.Terminal() {
			return a.dispatcher.Dispatch(ctx, existing)
		}
		return nil
	case !errors.Is(err, workflow.ErrRunNotFound):
		return fmt.Errorf("failed to look up run for request %s: %w", event.RequestID, err)
	}

	repo, err := a.store.GetRepositoryByOwnerName(ctx, event.Owner, event.Repo)
	if err != nil {
		return fmt.Errorf("repository %s: %w", event.FullName(), err)
	}
	if event.UserID == "" {
		event.UserID = repo.UserID
	}

	if err := a.gate.Commit(ctx, event.UserID, repo.ID, core.UsageReview); err != nil {
		logger.Warn("review rejected", "user_id", event.UserID, "error", err)
		return err
	}

	run, err := workflow.NewRun(KindReview, event.RequestID, event)
	if err == nil {
		err = a.store.CreateRun(ctx, run)
	}
	if err != nil {
		a.release(ctx, event.UserID, repo.ID, core.UsageReview)
		if errors.Is(err, workflow.ErrDuplicateRun) {
			logger.Info("concurrent duplicate review request")
			return nil
		}
		return fmt.Errorf("failed to create review run: %w", err)
	}

	logger.Info("review admitted", "run_id", run.ID, "user_id", event.UserID)
	if err := a.dispatcher.Dispatch(ctx, run); err != nil {
		logger.Warn("failed to dispatch review run, it stays pending", "run_id", run.ID, "error", err)
	}
	return nil
}

func (a *Admitter) release(ctx context.Context, userID string, repositoryID int64, kind core.UsageKind) {
	if err := a.gate.Release(context.WithoutCancel(ctx), userID, repositoryID, kind); err != nil {
		a.logger.Error("failed to release quota", "user_id", userID, "repository_id", repositoryID, "kind", kind, "error", err)
	}
}

// Recover re-dispatches every run left Pending or Running by a previous
// process. Each resumes after its last completed step.
func Recover(ctx context.Context, store workflow.Store, dispatcher Dispatcher, logger *slog.Logger) (int, error) {
	runs, err := store.ListRunsByStatus(ctx, workflow.StatusPending, workflow.StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to list unfinished runs: %w", err)
	}
	for _, run := range runs {
		if err := dispatcher.Dispatch(ctx, run); err != nil {
			return 0, fmt.Errorf("failed to dispatch run %s: %w", run.ID, err)
		}
	}
	if len(runs) > 0 {
		logger.Info("recovered unfinished workflow runs", "count", len(runs))
	}
	return len(runs), nil
}
