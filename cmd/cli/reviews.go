package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/sevigo/review-warden/internal/core"
	"github.com/sevigo/review-warden/internal/gitutil"
	"github.com/sevigo/review-warden/internal/wire"
)

var reviewsLimit int

var reviewsCmd = &cobra.Command{
	Use:   "reviews [owner/repo]",
	Short: "List the most recent reviews of a repository",
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
		reviews, err := cli.Store.ListReviews(ctx, repo.ID, reviewsLimit)
		if err != nil {
			return err
		}
		if len(reviews) == 0 {
			dimColor.Printf("No reviews recorded for %s yet.\n", repo.FullName)
			return nil
		}

		renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return fmt.Errorf("failed to create markdown renderer: %w", err)
		}
		out, err := renderer.Render(reviewsMarkdown(repo.FullName, reviews))
		if err != nil {
			return fmt.Errorf("failed to render reviews: %w", err)
		}
		fmt.Print(out)
		return nil
	},
}

func reviewsMarkdown(repoName string, reviews []core.ReviewRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Reviews of %s\n\n", repoName)
	for _, r := range reviews {
		mark := "✅"
		if r.Status == core.ReviewStatusFailed {
			mark = "❌"
		}
		fmt.Fprintf(&b, "## %s #%d %s\n\n", mark, r.PRNumber, r.PRTitle)
		fmt.Fprintf(&b, "*%s* · %s · [%s](%s)\n\n", r.Status, r.CreatedAt.Format("2006-01-02 15:04"), r.PRURL, r.PRURL)
		b.WriteString(r.ReviewText)
		b.WriteString("\n\n---\n\n")
	}
	return b.String()
}

func init() { //nolint:gochecknoinits // Cobra command registration
	reviewsCmd.Flags().IntVarP(&reviewsLimit, "limit", "n", 5, "Number of reviews to show")
	rootCmd.AddCommand(reviewsCmd)
}
