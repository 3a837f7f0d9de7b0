// Code generated manually. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package wire

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sevigo/review-warden/internal/app"
	"github.com/sevigo/review-warden/internal/config"
	"github.com/sevigo/review-warden/internal/github"
	"github.com/sevigo/review-warden/internal/jobs"
	"github.com/sevigo/review-warden/internal/llm"
	"github.com/sevigo/review-warden/internal/server"
	"github.com/sevigo/review-warden/internal/storage"
)

// InitializeApp creates and wires the webhook service.
func InitializeApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := provideLogger(cfg)

	store, cleanup, err := provideStore(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}

	review, index, err := initializeWorkflows(ctx, cfg, store, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	dispatcher := provideDispatcher(cfg, review, index, logger)
	gate := provideGate(cfg, store, logger)
	admitter := jobs.NewAdmitter(store, gate, dispatcher, logger)
	httpServer := server.NewServer(cfg, admitter, logger)

	logger.Info("review-warden application initialized successfully")
	return app.NewApp(cfg, httpServer, dispatcher, store, logger), cleanup, nil
}

// InitializeCLI creates and wires the command line tool.
func InitializeCLI(ctx context.Context) (*app.CLI, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := provideLogger(cfg)

	store, cleanup, err := provideStore(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}

	review, index, err := initializeWorkflows(ctx, cfg, store, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	dispatcher := provideInlineDispatcher(review, index)
	gate := provideGate(cfg, store, logger)
	connector := jobs.NewConnector(store, gate, dispatcher, logger)

	return app.NewCLI(cfg, store, gate, connector, logger), cleanup, nil
}

func initializeWorkflows(ctx context.Context, cfg *config.Config, store storage.Store, logger *slog.Logger) (*jobs.ReviewWorkflow, *jobs.IndexWorkflow, error) {
	model, err := provideGeneratorLLM(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create generator LLM: %w", err)
	}
	generator := provideGenerator(cfg, model, logger)

	embedder, err := provideEmbedder(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	vectorStore := provideVectorStore(cfg, embedder, logger)

	chunker, err := provideChunker(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	indexer := provideIndexer(cfg, vectorStore, store, chunker, logger)
	retriever := provideRetriever(vectorStore, store, logger)

	prompts, err := llm.NewPromptManager()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prompt manager: %w", err)
	}

	appTokens, err := github.NewAppTokenSource(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GitHub App token source: %w", err)
	}
	creds := provideCredentialResolver(store, appTokens, logger)
	clients := github.NewClientFactory(logger)

	engine := provideEngine(cfg, store, logger)
	sink := jobs.NewSink(store, clients, logger)
	gitClient := provideGitClient(cfg, logger)

	review := provideReviewWorkflow(cfg, engine, creds, clients, retriever, prompts, generator, sink, logger)
	index := provideIndexWorkflow(cfg, engine, creds, gitClient, indexer, logger)
	return review, index, nil
}
