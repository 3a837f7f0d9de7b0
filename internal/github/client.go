// Package github talks to the GitHub API on behalf of a tenant.
package github

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"
)

// PullRequestData is what a review needs to know about a pull request.
type PullRequestData struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Diff        string `json:"diff"`
}

// PullRequestSummary is a short description of another pull request in the
// same repository.
type PullRequestSummary struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
}

// Client defines the GitHub operations used by the workflows.
//
//go:generate mockgen -destination=../../mocks/mock_github_client.go -package=mocks . Client
type Client interface {
	GetPullRequestData(ctx context.Context, owner, repo string, number int) (*PullRequestData, error)
	ListRecentPullRequests(ctx context.Context, owner, repo string, limit int) ([]PullRequestSummary, error)
	CreateComment(ctx context.Context, owner, repo string, number int, body string) error
}

// ClientFactory builds a Client authenticated with token.
type ClientFactory func(ctx context.Context, token string) Client

type gitHubClient struct {
	client *github.Client
	logger *slog.Logger
}

// NewGitHubClient wraps a go-github client.
func NewGitHubClient(client *github.Client, logger *slog.Logger) Client {
	return &gitHubClient{client: client, logger: logger}
}

// NewTokenClient creates a Client authenticated with an OAuth or
// installation access token.
func NewTokenClient(ctx context.Context, token string, logger *slog.Logger) Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &gitHubClient{client: github.NewClient(oauth2.NewClient(ctx, ts)), logger: logger}
}

// NewClientFactory returns a ClientFactory backed by NewTokenClient.
func NewClientFactory(logger *slog.Logger) ClientFactory {
	return func(ctx context.Context, token string) Client {
		return NewTokenClient(ctx, token, logger)
	}
}

func (g *gitHubClient) GetPullRequestData(ctx context.Context, owner, repo string, number int) (*PullRequestData, error) {
	pr, _, err := g.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		g.logger.Error("failed to get pull request", "owner", owner, "repo", repo, "pr", number, "error", err)
		return nil, fmt.Errorf("failed to get pull request %s/%s#%d: %w", owner, repo, number, err)
	}

	diff, _, err := g.client.PullRequests.GetRaw(ctx, owner, repo, number, github.RawOptions{Type: github.Diff})
	if err != nil {
		g.logger.Error("failed to get pull request diff", "owner", owner, "repo", repo, "pr", number, "error", err)
		return nil, fmt.Errorf("failed to get diff of %s/%s#%d: %w", owner, repo, number, err)
	}

	return &PullRequestData{
		Title:       pr.GetTitle(),
		Description: pr.GetBody(),
		Diff:        diff,
	}, nil
}

// ListRecentPullRequests lists the most recently updated pull requests in
// any state.
func (g *gitHubClient) ListRecentPullRequests(ctx context.Context, owner, repo string, limit int) ([]PullRequestSummary, error) {
	opts := &github.PullRequestListOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: max(min(limit, 100), 1)},
	}
	prs, _, err := g.client.PullRequests.List(ctx, owner, repo, opts)
	if err != nil {
		g.logger.Warn("failed to list pull requests", "owner", owner, "repo", repo, "error", err)
		return nil, fmt.Errorf("failed to list pull requests of %s/%s: %w", owner, repo, err)
	}

	out := make([]PullRequestSummary, 0, len(prs))
	for _, pr := range prs {
		out = append(out, PullRequestSummary{
			Number: pr.GetNumber(),
			Title:  pr.GetTitle(),
			Body:   pr.GetBody(),
			State:  pr.GetState(),
		})
	}
	return out, nil
}

func (g *gitHubClient) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	comment := &github.IssueComment{Body: &body}
	if _, _, err := g.client.Issues.CreateComment(ctx, owner, repo, number, comment); err != nil {
		g.logger.Error("failed to create comment", "owner", owner, "repo", repo, "pr", number, "error", err)
		return fmt.Errorf("failed to comment on %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}
