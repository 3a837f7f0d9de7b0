package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sevigo/review-warden/internal/core"
	"github.com/sevigo/review-warden/internal/github"
	"github.com/sevigo/review-warden/internal/llm"
	"github.com/sevigo/review-warden/internal/storage"
)

// SinkStore is the persistence the sink writes audit rows through.
type SinkStore interface {
	GetRepositoryByOwnerName(ctx context.Context, owner, name string) (*core.Repository, error)
	SaveReview(ctx context.Context, review *core.ReviewRecord) error
}

// Sink delivers review results: the PR comment and the audit row.
type Sink struct {
	store   SinkStore
	clients github.ClientFactory
	logger  *slog.Logger
}

func NewSink(store SinkStore, clients github.ClientFactory, logger *slog.Logger) *Sink {
	if store == nil {
		panic("sink store is required")
	}
	if clients == nil {
		panic("client factory is required")
	}
	return &Sink{store: store, clients: clients, logger: logger}
}

// PostReview comments text, followed by the attribution footer, on the
// event's pull request.
func (s *Sink) PostReview(ctx context.Context, token string, event *core.ReviewRequestEvent, text string) error {
	client := s.clients(ctx, token)
	if err := client.CreateComment(ctx, event.Owner, event.Repo, event.PRNumber, text+llm.ReviewFooter); err != nil {
		return err
	}
	s.logger.Info("posted review comment", "repo", event.FullName(), "pr", event.PRNumber)
	return nil
}

// SaveCompleted writes a completed audit row. It reports false without
// error when the repository is not connected.
func (s *Sink) SaveCompleted(ctx context.Context, event *core.ReviewRequestEvent, title, text string) (bool, error) {
	return s.save(ctx, event, &core.ReviewRecord{
		PRTitle:    title,
		ReviewText: text,
		Status:     core.ReviewStatusCompleted,
	})
}

// SaveFailed writes a failed audit row for a run that did not finish. It is
// best effort and only logs its own errors.
func (s *Sink) SaveFailed(ctx context.Context, event *core.ReviewRequestEvent, title string, cause error) {
	if title == "" {
		title = core.FailedReviewTitle
	}
	_, err := s.save(ctx, event, &core.ReviewRecord{
		PRTitle:    title,
		ReviewText: "Error: " + cause.Error(),
		Status:     core.ReviewStatusFailed,
	})
	if err != nil {
		s.logger.Error("failed to save failed review record", "repo", event.FullName(), "pr", event.PRNumber, "error", err)
	}
}

func (s *Sink) save(ctx context.Context, event *core.ReviewRequestEvent, record *core.ReviewRecord) (bool, error) {
	repo, err := s.store.GetRepositoryByOwnerName(ctx, event.Owner, event.Repo)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Info("repository not connected, skipping review record", "repo", event.FullName())
		return false, nil
	}
	if err != nil {
		return false, core.Transient(fmt.Errorf("failed to look up repository %s: %w", event.FullName(), err))
	}

	record.RepositoryID = repo.ID
	record.PRNumber = event.PRNumber
	record.PRURL = event.PRURL()
	record.CreatedAt = time.Now().UTC()
	if err := s.store.SaveReview(ctx, record); err != nil {
		return false, core.Transient(fmt.Errorf("failed to save review: %w", err))
	}
	return true, nil
}
