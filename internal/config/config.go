// Package config loads the service configuration from config.yaml and the
// environment using viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sevigo/review-warden/internal/logger"
)

// Config holds the application's configuration values.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	AI       AIConfig       `mapstructure:"ai"`
	Database DBConfig       `mapstructure:"database"`
	Logging  logger.Config  `mapstructure:"logging"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	RAG      RAGConfig      `mapstructure:"rag"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// AdmitTimeout bounds the detached admission of a review request.
	AdmitTimeout time.Duration `mapstructure:"admit_timeout"`
}

type GitHubConfig struct {
	WebhookSecret  string `mapstructure:"webhook_secret"`
	AppID          int64  `mapstructure:"app_id"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	// Token is a personal access token used by the CLI when no stored
	// account token exists.
	Token string `mapstructure:"token"`
}

// AppConfigured reports whether installation tokens can be minted.
func (g GitHubConfig) AppConfigured() bool {
	return g.AppID != 0 && g.PrivateKeyPath != ""
}

type AIConfig struct {
	LLMProvider      string        `mapstructure:"llm_provider"`
	EmbedderProvider string        `mapstructure:"embedder_provider"`
	GeneratorModel   string        `mapstructure:"generator_model"`
	EmbedderModel    string        `mapstructure:"embedder_model"`
	GeminiAPIKey     string        `mapstructure:"gemini_api_key"`
	OllamaHost       string        `mapstructure:"ollama_host"`
	RequestsPerMin   int           `mapstructure:"requests_per_minute"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// QuotaConfig holds the free-tier limits. Zero or negative means unlimited.
type QuotaConfig struct {
	FreeRepositories         int `mapstructure:"free_repositories"`
	FreeReviewsPerRepository int `mapstructure:"free_reviews_per_repository"`
}

type WorkflowConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	StepTimeout   time.Duration `mapstructure:"step_timeout"`
	IndexTimeout  time.Duration `mapstructure:"index_timeout"`
	BaseDelay     time.Duration `mapstructure:"base_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	RecentPRs     int           `mapstructure:"recent_prs"`
}

type RAGConfig struct {
	ChunkSize         int   `mapstructure:"chunk_size"`
	ChunkOverlap      int   `mapstructure:"chunk_overlap"`
	TopK              int   `mapstructure:"top_k"`
	MaxFileSize       int64 `mapstructure:"max_file_size"`
	MaxTotalSize      int64 `mapstructure:"max_total_size"`
	IndexWorkers      int   `mapstructure:"index_workers"`
	CodeAwareChunking bool  `mapstructure:"code_aware_chunking"`
}

type StorageConfig struct {
	QdrantHost string `mapstructure:"qdrant_host"`
	CloneDir   string `mapstructure:"clone_dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.admit_timeout", 30*time.Second)

	v.SetDefault("github.private_key_path", "keys/review-warden.private-key.pem")

	v.SetDefault("ai.llm_provider", "gemini")
	v.SetDefault("ai.embedder_provider", "gemini")
	v.SetDefault("ai.generator_model", "gemini-2.5-flash")
	v.SetDefault("ai.embedder_model", "text-embedding-004")
	v.SetDefault("ai.ollama_host", "http://localhost:11434")
	v.SetDefault("ai.requests_per_minute", 60)
	v.SetDefault("ai.timeout", 2*time.Minute)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.username", "warden")
	v.SetDefault("database.database", "review_warden")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 1*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("quota.free_repositories", 5)
	v.SetDefault("quota.free_reviews_per_repository", 5)

	v.SetDefault("workflow.max_concurrent", 5)
	v.SetDefault("workflow.max_attempts", 4)
	v.SetDefault("workflow.step_timeout", 3*time.Minute)
	v.SetDefault("workflow.index_timeout", 30*time.Minute)
	v.SetDefault("workflow.base_delay", 1*time.Second)
	v.SetDefault("workflow.max_delay", 30*time.Second)
	v.SetDefault("workflow.recent_prs", 20)

	v.SetDefault("rag.chunk_size", 60)
	v.SetDefault("rag.chunk_overlap", 10)
	v.SetDefault("rag.top_k", 5)
	v.SetDefault("rag.max_file_size", 1<<20)
	v.SetDefault("rag.max_total_size", 32<<20)
	v.SetDefault("rag.index_workers", 8)
	v.SetDefault("rag.code_aware_chunking", false)

	v.SetDefault("storage.qdrant_host", "localhost:6334")
	v.SetDefault("storage.clone_dir", "")
}

// LoadConfig reads config.yaml (if present) and RW_* environment variables,
// applies defaults and validates the result.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/review-warden")
	v.SetEnvPrefix("RW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		slog.Debug("no config file found, using defaults and environment")
	}

	// AutomaticEnv only applies to keys viper already knows about. Secrets
	// have no default, so bind them explicitly.
	for _, key := range []string{"github.webhook_secret", "github.app_id", "github.token", "ai.gemini_api_key", "database.password"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	var errs []error

	if c.GitHub.WebhookSecret == "" {
		errs = append(errs, errors.New("github.webhook_secret must be set"))
	}
	if err := c.AI.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver: %q", c.Database.Driver))
	}
	if c.Workflow.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("workflow.max_concurrent must be positive"))
	}
	if c.Workflow.MaxAttempts <= 0 {
		errs = append(errs, errors.New("workflow.max_attempts must be positive"))
	}
	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, errors.New("rag.chunk_size must be positive"))
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunk_overlap must be in [0, %d)", c.RAG.ChunkSize))
	}
	if c.RAG.TopK <= 0 {
		errs = append(errs, errors.New("rag.top_k must be positive"))
	}
	return errors.Join(errs...)
}

// Validate checks the model provider settings.
func (a *AIConfig) Validate() error {
	for _, p := range []string{a.LLMProvider, a.EmbedderProvider} {
		switch p {
		case "gemini", "ollama":
		default:
			return fmt.Errorf("unsupported AI provider: %q", p)
		}
	}
	if (a.LLMProvider == "gemini" || a.EmbedderProvider == "gemini") && a.GeminiAPIKey == "" {
		return errors.New("ai.gemini_api_key must be set for the gemini provider")
	}
	if a.GeneratorModel == "" || a.EmbedderModel == "" {
		return errors.New("ai.generator_model and ai.embedder_model must be set")
	}
	return nil
}

// DSN builds the lib/pq connection string.
func (d *DBConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, sslMode)
}
