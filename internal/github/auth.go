package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v73/github"

	"github.com/sevigo/review-warden/internal/config"
	"github.com/sevigo/review-warden/internal/core"
)

// TokenStore looks up a user's stored OAuth token.
type TokenStore interface {
	GetAccessToken(ctx context.Context, userID, provider string) (string, error)
}

// CredentialResolver finds the token to act as for a user.
type CredentialResolver interface {
	// Resolve returns core.ErrCredentialMissing when no token is available.
	Resolve(ctx context.Context, userID string, installationID int64) (string, error)
}

// InstallationTokenSource mints GitHub App installation tokens.
type InstallationTokenSource interface {
	InstallationToken(ctx context.Context, installationID int64) (string, error)
}

type credentialResolver struct {
	tokens   TokenStore
	provider string
	app      InstallationTokenSource
	logger   *slog.Logger
}

// NewCredentialResolver prefers the user's stored account token and falls
// back to an installation token when app is configured and the event came
// from an installation. app may be nil.
func NewCredentialResolver(tokens TokenStore, provider string, app InstallationTokenSource, logger *slog.Logger) CredentialResolver {
	if tokens == nil {
		panic("token store is required")
	}
	return &credentialResolver{tokens: tokens, provider: provider, app: app, logger: logger}
}

func (r *credentialResolver) Resolve(ctx context.Context, userID string, installationID int64) (string, error) {
	token, err := r.tokens.GetAccessToken(ctx, userID, r.provider)
	switch {
	case err == nil:
		return token, nil
	case !errors.Is(err, core.ErrNotFound):
		return "", core.Transient(fmt.Errorf("failed to load access token: %w", err))
	}

	if r.app != nil && installationID != 0 {
		r.logger.Debug("no account token, using installation token", "user_id", userID, "installation_id", installationID)
		token, err := r.app.InstallationToken(ctx, installationID)
		if err != nil {
			return "", fmt.Errorf("failed to create installation token: %w", err)
		}
		return token, nil
	}

	return "", fmt.Errorf("user %s: %w", userID, core.ErrCredentialMissing)
}

type appTokenSource struct {
	client *github.Client
	logger *slog.Logger
}

// NewAppTokenSource returns nil when the GitHub App is not configured.
func NewAppTokenSource(cfg *config.Config, logger *slog.Logger) (InstallationTokenSource, error) {
	if !cfg.GitHub.AppConfigured() {
		return nil, nil
	}

	privateKey, err := os.ReadFile(cfg.GitHub.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key from %s: %w", cfg.GitHub.PrivateKeyPath, err)
	}

	transport, err := ghinstallation.NewAppsTransport(http.DefaultTransport, cfg.GitHub.AppID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub App transport: %w", err)
	}

	return &appTokenSource{
		client: github.NewClient(&http.Client{Transport: transport}),
		logger: logger,
	}, nil
}

func (s *appTokenSource) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	token, _, err := s.client.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", fmt.Errorf("installation %d: %w", installationID, err)
	}
	if token.GetToken() == "" {
		return "", errors.New("received an empty installation token")
	}
	s.logger.Info("created installation token", "installation_id", installationID, "expires_at", token.GetExpiresAt())
	return token.GetToken(), nil
}
