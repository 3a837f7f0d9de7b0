package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/sevigo/review-warden/internal/config"
	"github.com/sevigo/review-warden/internal/core"
	"github.com/sevigo/review-warden/internal/github"
	"github.com/sevigo/review-warden/internal/gitutil"
	"github.com/sevigo/review-warden/internal/rag"
	"github.com/sevigo/review-warden/internal/workflow"
)

// Index workflow steps, in execution order.
const (
	StepFetchFiles    = "fetch-files"
	StepIndexCodebase = "index-codebase"
)

// RepoFetcher checks out a repository and reads its indexable files.
type RepoFetcher interface {
	CloneTemp(ctx context.Context, repoURL, token string) (string, func(), error)
	LoadFiles(root string, limits gitutil.LoadLimits) ([]rag.File, error)
}

// CodeIndexer writes a repository's files into its vector index.
type CodeIndexer interface {
	Index(ctx context.Context, repositoryKey string, files []rag.File) (int, error)
}

// IndexWorkflow builds the vector index of one repository per run.
type IndexWorkflow struct {
	engine      *workflow.Engine
	creds       github.CredentialResolver
	fetcher     RepoFetcher
	indexer     CodeIndexer
	limits      gitutil.LoadLimits
	timeout     time.Duration
	logger      *slog.Logger
}

func NewIndexWorkflow(cfg *config.Config, engine *workflow.Engine, creds github.CredentialResolver, fetcher RepoFetcher, indexer CodeIndexer, logger *slog.Logger) *IndexWorkflow {
	if engine == nil || creds == nil || fetcher == nil || indexer == nil {
		panic("index workflow dependencies cannot be nil")
	}
	return &IndexWorkflow{
		engine:      engine,
		creds:       creds,
		fetcher:     fetcher,
		indexer:     indexer,
		limits:      gitutil.LoadLimits{MaxFileSize: cfg.RAG.MaxFileSize, MaxTotalSize: cfg.RAG.MaxTotalSize},
		timeout:     cfg.Workflow.IndexTimeout,
		logger:      logger,
	}
}

func (w *IndexWorkflow) Kind() string { return KindIndex }

func (w *IndexWorkflow) Execute(ctx context.Context, run *workflow.Run) error {
	var event core.IndexRequestEvent
	if err := run.Decode(&event); err != nil {
		return err
	}
	w.logger.Info("starting repository indexing", "repo", event.FullName(), "run_id", run.ID)

	steps := []workflow.Step{
		{Name: StepFetchFiles, Timeout: w.timeout, Run: func(ctx context.Context, _ *workflow.State) (any, error) {
			return w.fetchFiles(ctx, &event)
		}},
		{Name: StepIndexCodebase, Timeout: w.timeout, Run: func(ctx context.Context, state *workflow.State) (any, error) {
			files, err := output[[]rag.File](state, StepFetchFiles)
			if err != nil {
				return nil, err
			}
			return w.indexer.Index(ctx, event.FullName(), files)
		}},
	}
	return w.engine.Execute(ctx, run, steps, func(_ context.Context, run *workflow.Run, _ *workflow.State, cause error) {
		w.logger.Error("repository indexing failed", "repo", event.FullName(), "run_id", run.ID, "error", cause)
	})
}

func (w *IndexWorkflow) fetchFiles(ctx context.Context, event *core.IndexRequestEvent) ([]rag.File, error) {
	token, err := w.creds.Resolve(ctx, event.UserID, event.InstallationID)
	if err != nil {
		return nil, err
	}

	repoPath, cleanup, err := w.fetcher.CloneTemp(ctx, gitutil.CloneURL(event.Owner, event.Repo), token)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	files, err := w.fetcher.LoadFiles(repoPath, w.limits)
	if err != nil {
		return nil, core.Permanent(err)
	}
	w.logger.Info("loaded repository files", "repo", event.FullName(), "files", len(files))
	return files, nil
}
