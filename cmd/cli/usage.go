package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sevigo/review-warden/internal/quota"
	"github.com/sevigo/review-warden/internal/wire"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show a user's quota usage and remaining limits",
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

		summary, err := cli.Gate.Limits(ctx, user)
		if err != nil {
			return err
		}
		if outputJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(summary)
		}

		repos, err := cli.Store.ListRepositoriesByUser(ctx, user)
		if err != nil {
			return err
		}
		names := make(map[int64]string, len(repos))
		for _, r := range repos {
			names[r.ID] = r.FullName
		}

		titleColor.Printf("Usage for %s ", user)
		dimColor.Printf("(%s tier)\n", summary.Tier)
		printUsage("Repositories", summary.Repositories)

		ids := make([]int64, 0, len(summary.Reviews))
		for id := range summary.Reviews {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			name := names[id]
			if name == "" {
				name = fmt.Sprintf("repository %d", id)
			}
			printUsage("Reviews of "+name, summary.Reviews[id])
		}
		return nil
	},
}

func printUsage(label string, u quota.Usage) {
	boldColor.Printf("  %-40s ", label)
	limit := "unlimited"
	if u.Limit != nil {
		limit = fmt.Sprintf("%d", *u.Limit)
	}
	c := successColor
	if !u.CanAdd {
		c = errorColor
	} else if u.Limit != nil && *u.Limit-u.Current <= 1 {
		c = warnColor
	}
	c.Printf("%d / %s\n", u.Current, limit)
}

func init() { //nolint:gochecknoinits // Cobra command registration
	usageCmd.Flags().BoolVar(&outputJSON, "json", false, "Output usage as JSON")
	rootCmd.AddCommand(usageCmd)
}
