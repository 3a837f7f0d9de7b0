package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sevigo/review-warden/internal/app"
	"github.com/sevigo/review-warden/internal/core"
	"github.com/sevigo/review-warden/internal/gitutil"
	"github.com/sevigo/review-warden/internal/jobs"
	"github.com/sevigo/review-warden/internal/storage"
	"github.com/sevigo/review-warden/internal/wire"
)

var (
	installationID int64
	githubRepoID   int64
)

var connectCmd = &cobra.Command{
	Use:   "connect [owner/repo]",
	Short: "Connect a repository and build its index",
	Long: `Connect a GitHub repository to a user. The repository counts against the
user's repository quota and is cloned and indexed before the command returns.

Examples:
  review-warden-cli connect --user u1 --github-token $TOKEN acme/widgets
  review-warden-cli connect --user u1 https://github.com/acme/widgets`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	connectCmd.Flags().Int64Var(&installationID, "installation-id", 0, "GitHub App installation used when the user has no token")
	connectCmd.Flags().Int64Var(&githubRepoID, "github-id", 0, "GitHub repository id")
	rootCmd.AddCommand(connectCmd)
}

func runConnect(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	owner, repo, err := gitutil.ParseRepository(args[0])
	if err != nil {
		return err
	}
	user := currentUser()
	if user == "" {
		return errors.New("--user is required")
	}

	cli, cleanup, err := wire.InitializeCLI(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w\n\nTip: Check that your config.yaml exists and is valid", err)
	}
	defer cleanup()

	if err := ensureUser(ctx, cli, user); err != nil {
		return err
	}

	titleColor.Printf("Connecting %s/%s\n", owner, repo)
	connected, err := cli.Connector.Connect(ctx, jobs.ConnectRequest{
		UserID:         user,
		Owner:          owner,
		Repo:           repo,
		GitHubID:       githubRepoID,
		InstallationID: installationID,
	})
	switch {
	case errors.Is(err, core.ErrQuotaExceeded):
		errorColor.Println("Repository limit reached for this user.")
		return err
	case errors.Is(err, storage.ErrRepositoryExists):
		warnColor.Printf("%s/%s is already connected. Use reindex to rebuild its index.\n", owner, repo)
		return err
	case err != nil && connected != nil:
		warnColor.Printf("Connected %s, but indexing failed: %v\n", connected.FullName, err)
		return err
	case err != nil:
		return err
	}

	successColor.Printf("Connected and indexed %s (id %d)\n", connected.FullName, connected.ID)
	return nil
}

// ensureUser creates the user on first use and stores the GitHub token when
// one is given.
func ensureUser(ctx context.Context, cli *app.CLI, user string) error {
	_, err := cli.Store.GetUser(ctx, user)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if err := cli.Store.UpsertUser(ctx, &core.User{ID: user, Name: user, Tier: core.TierFree}); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		dimColor.Printf("Created user %s on the free tier\n", user)
	case err != nil:
		return err
	}

	token := viper.GetString("GITHUB_TOKEN")
	if token == "" {
		token = cli.Config.GitHub.Token
	}
	if token == "" {
		return nil
	}
	if err := cli.Store.SaveAccessToken(ctx, user, storage.ProviderGitHub, token); err != nil {
		return fmt.Errorf("failed to store GitHub token: %w", err)
	}
	return nil
}
