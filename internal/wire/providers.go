package wire

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/sevigo/goframe/embeddings"
	"github.com/sevigo/goframe/llms"
	"github.com/sevigo/goframe/llms/gemini"
	"github.com/sevigo/goframe/llms/ollama"
	"github.com/sevigo/goframe/parsers"

	"github.com/sevigo/review-warden/internal/app"
	"github.com/sevigo/review-warden/internal/config"
	"github.com/sevigo/review-warden/internal/core"
	"github.com/sevigo/review-warden/internal/db"
	"github.com/sevigo/review-warden/internal/github"
	"github.com/sevigo/review-warden/internal/gitutil"
	"github.com/sevigo/review-warden/internal/jobs"
	"github.com/sevigo/review-warden/internal/llm"
	"github.com/sevigo/review-warden/internal/logger"
	"github.com/sevigo/review-warden/internal/quota"
	"github.com/sevigo/review-warden/internal/rag"
	"github.com/sevigo/review-warden/internal/server"
	"github.com/sevigo/review-warden/internal/storage"
	"github.com/sevigo/review-warden/internal/workflow"
)

// CoreSet provides everything shared by the server and the CLI.
var CoreSet = wire.NewSet(
	config.LoadConfig,
	provideLogger,
	provideStore,
	provideGeneratorLLM,
	provideGenerator,
	provideEmbedder,
	provideVectorStore,
	provideChunker,
	provideIndexer,
	provideRetriever,
	provideEngine,
	provideGate,
	provideCredentialResolver,
	provideGitClient,
	llm.NewPromptManager,
	github.NewAppTokenSource,
	github.NewClientFactory,
	jobs.NewSink,
	provideReviewWorkflow,
	provideIndexWorkflow,
	jobs.NewAdmitter,
	jobs.NewConnector,
	wire.Bind(new(jobs.SinkStore), new(storage.Store)),
	wire.Bind(new(jobs.AdmissionStore), new(storage.Store)),
	wire.Bind(new(jobs.ConnectStore), new(storage.Store)),
	wire.Bind(new(jobs.QuotaGate), new(*quota.Gate)),
	wire.Bind(new(jobs.ContextRetriever), new(*rag.Retriever)),
	wire.Bind(new(jobs.CodeIndexer), new(*rag.Indexer)),
	wire.Bind(new(jobs.RepoFetcher), new(*gitutil.Client)),
)

// ServerSet assembles the webhook service.
var ServerSet = wire.NewSet(
	CoreSet,
	provideDispatcher,
	server.NewServer,
	app.NewApp,
	wire.Bind(new(core.ReviewAdmitter), new(*jobs.Admitter)),
)

// CLISet assembles the command line tool.
var CLISet = wire.NewSet(
	CoreSet,
	provideInlineDispatcher,
	app.NewCLI,
)

func provideLogger(cfg *config.Config) *slog.Logger {
	return logger.NewLogger(cfg.Logging, logger.OpenOutput(cfg.Logging))
}

// provideStore selects the persistence backend. The memory driver keeps
// nothing across restarts and is meant for local development.
func provideStore(cfg *config.Config, logger *slog.Logger) (storage.Store, func(), error) {
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("using in-memory store, state is lost on restart")
		return storage.NewMemoryStore(), func() {}, nil
	case "postgres", "":
		conn, cleanup, err := db.NewDatabase(&cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewStore(conn.DB), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

func provideGeneratorLLM(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llms.Model, error) {
	switch cfg.AI.LLMProvider {
	case "gemini":
		if cfg.AI.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini api key is not set for gemini provider")
		}
		return gemini.New(ctx, gemini.WithModel(cfg.AI.GeneratorModel), gemini.WithAPIKey(cfg.AI.GeminiAPIKey))
	case "ollama":
		return ollama.New(
			ollama.WithServerURL(cfg.AI.OllamaHost),
			ollama.WithHTTPClient(newOllamaHTTPClient()),
			ollama.WithModel(cfg.AI.GeneratorModel),
			ollama.WithLogger(logger),
		)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.AI.LLMProvider)
	}
}

func provideGenerator(cfg *config.Config, model llms.Model, logger *slog.Logger) llm.Generator {
	return llm.NewGenerator(model, cfg.AI.RequestsPerMin, cfg.AI.Timeout, logger)
}

func provideEmbedder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (embeddings.Embedder, error) {
	var embedderLLM embeddings.Embedder
	var err error

	switch cfg.AI.EmbedderProvider {
	case "gemini":
		embedderLLM, err = gemini.New(ctx,
			gemini.WithEmbeddingModel(cfg.AI.EmbedderModel),
			gemini.WithAPIKey(cfg.AI.GeminiAPIKey),
		)
	case "ollama":
		embedderLLM, err = ollama.New(
			ollama.WithServerURL(cfg.AI.OllamaHost),
			ollama.WithModel(cfg.AI.EmbedderModel),
			ollama.WithHTTPClient(newOllamaHTTPClient()),
			ollama.WithLogger(logger),
		)
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", cfg.AI.EmbedderProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder LLM: %w", err)
	}
	return embeddings.NewEmbedder(embedderLLM)
}

func provideVectorStore(cfg *config.Config, embedder embeddings.Embedder, logger *slog.Logger) storage.VectorStore {
	return storage.NewQdrantVectorStore(cfg.Storage.QdrantHost, embedder, logger)
}

func provideChunker(cfg *config.Config, logger *slog.Logger) (rag.Chunker, error) {
	lines := rag.LineChunker{Size: cfg.RAG.ChunkSize, Overlap: cfg.RAG.ChunkOverlap}
	if !cfg.RAG.CodeAwareChunking {
		return lines, nil
	}
	registry, err := parsers.RegisterLanguagePlugins(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to register language parsers: %w", err)
	}
	return rag.NewCodeChunker(registry, lines, logger), nil
}

func provideIndexer(cfg *config.Config, vectors storage.VectorStore, store storage.Store, chunker rag.Chunker, logger *slog.Logger) *rag.Indexer {
	return rag.NewIndexer(vectors, store, chunker, cfg.AI.EmbedderModel, cfg.RAG.IndexWorkers, logger)
}

func provideRetriever(vectors storage.VectorStore, store storage.Store, logger *slog.Logger) *rag.Retriever {
	return rag.NewRetriever(vectors, store, logger)
}

func provideEngine(cfg *config.Config, store storage.Store, logger *slog.Logger) *workflow.Engine {
	return workflow.NewEngine(store, workflow.RetryPolicy{
		MaxAttempts: cfg.Workflow.MaxAttempts,
		BaseDelay:   cfg.Workflow.BaseDelay,
		MaxDelay:    cfg.Workflow.MaxDelay,
		Timeout:     cfg.Workflow.StepTimeout,
	}, logger)
}

func provideGate(cfg *config.Config, store storage.Store, logger *slog.Logger) *quota.Gate {
	return quota.NewGate(store, cfg.Quota, logger)
}

func provideCredentialResolver(store storage.Store, app github.InstallationTokenSource, logger *slog.Logger) github.CredentialResolver {
	return github.NewCredentialResolver(store, storage.ProviderGitHub, app, logger)
}

func provideGitClient(cfg *config.Config, logger *slog.Logger) *gitutil.Client {
	return gitutil.NewClient(cfg.Storage.CloneDir, logger)
}

func provideReviewWorkflow(
	cfg *config.Config,
	engine *workflow.Engine,
	creds github.CredentialResolver,
	clients github.ClientFactory,
	retriever jobs.ContextRetriever,
	prompts *llm.PromptManager,
	generator llm.Generator,
	sink *jobs.Sink,
	logger *slog.Logger,
) *jobs.ReviewWorkflow {
	return jobs.NewReviewWorkflow(cfg, jobs.ReviewDeps{
		Engine:    engine,
		Creds:     creds,
		Clients:   clients,
		Retriever: retriever,
		Prompts:   prompts,
		Generator: generator,
		Sink:      sink,
	}, logger)
}

func provideIndexWorkflow(
	cfg *config.Config,
	engine *workflow.Engine,
	creds github.CredentialResolver,
	fetcher jobs.RepoFetcher,
	indexer jobs.CodeIndexer,
	logger *slog.Logger,
) *jobs.IndexWorkflow {
	return jobs.NewIndexWorkflow(cfg, engine, creds, fetcher, indexer, logger)
}

func provideDispatcher(cfg *config.Config, review *jobs.ReviewWorkflow, index *jobs.IndexWorkflow, logger *slog.Logger) jobs.Dispatcher {
	return jobs.NewDispatcher([]jobs.Workflow{review, index}, cfg.Workflow.MaxConcurrent, logger)
}

func provideInlineDispatcher(review *jobs.ReviewWorkflow, index *jobs.IndexWorkflow) jobs.Dispatcher {
	return jobs.NewInlineDispatcher(review, index)
}

func newOllamaHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxConnsPerHost:     10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		Timeout: 15 * time.Minute,
	}
}
