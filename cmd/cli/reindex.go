package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sevigo/review-warden/internal/gitutil"
	"github.com/sevigo/review-warden/internal/wire"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex [owner/repo]",
	Short: "Rebuild the index of a connected repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx := context.Background()
		owner, name, err := gitutil.ParseRepository(args[0])
		if err != nil {
			return err
		}

		cli, cleanup, err := wire.InitializeCLI(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()

		repo, err := cli.Store.GetRepositoryByOwnerName(ctx, owner, name)
		if err != nil {
			return err
		}
		if err := ensureUser(ctx, cli, repo.UserID); err != nil {
			return err
		}

		titleColor.Printf("Re-indexing %s\n", repo.FullName)
		if err := cli.Connector.Reindex(ctx, repo, installationID); err != nil {
			return fmt.Errorf("failed to re-index %s: %w", repo.FullName, err)
		}

		idx, err := cli.Store.GetRepositoryIndex(ctx, repo.FullName)
		if err != nil {
			return err
		}
		successColor.Printf("Indexed %d chunks into %s\n", idx.ChunkCount, idx.CollectionName)
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra command registration
	reindexCmd.Flags().Int64Var(&installationID, "installation-id", 0, "GitHub App installation used when the owner has no token")
	rootCmd.AddCommand(reindexCmd)
}
