package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sevigo/review-warden/internal/storage"
	"github.com/sevigo/review-warden/internal/wire"
)

var outputJSON bool

type repoStatus struct {
	FullName   string    `json:"full_name"`
	Collection string    `json:"collection,omitempty"`
	Chunks     int       `json:"chunks"`
	IndexedAt  time.Time `json:"indexed_at,omitzero"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows the repositories connected by a user and their index state",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()
		user := currentUser()
		if user == "" {
			return errors.New("--user is required")
		}

		cli, cleanup, err := wire.InitializeCLI(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()

		repos, err := cli.Store.ListRepositoriesByUser(ctx, user)
		if err != nil {
			return fmt.Errorf("failed to retrieve repositories: %w", err)
		}

		statuses := make([]repoStatus, 0, len(repos))
		for _, repo := range repos {
			st := repoStatus{FullName: repo.FullName}
			idx, err := cli.Store.GetRepositoryIndex(ctx, repo.FullName)
			switch {
			case err == nil:
				st.Collection = idx.CollectionName
				st.Chunks = idx.ChunkCount
				st.IndexedAt = idx.IndexedAt
			case !errors.Is(err, storage.ErrNotFound):
				return err
			}
			statuses = append(statuses, st)
		}

		if outputJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(statuses)
		}

		if len(statuses) == 0 {
			dimColor.Printf("No repositories are connected for %s.\n", user)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "REPOSITORY\tCOLLECTION\tCHUNKS\tLAST INDEXED")
		for _, st := range statuses {
			indexed := "never"
			if !st.IndexedAt.IsZero() {
				indexed = st.IndexedAt.Format(time.RFC822)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", st.FullName, st.Collection, st.Chunks, indexed)
		}
		return w.Flush()
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	statusCmd.Flags().BoolVar(&outputJSON, "json", false, "Output status as JSON")
	rootCmd.AddCommand(statusCmd)
}
