// Package core defines the domain types and contracts shared across the
// application: the events that flow from ingress to the workflows, the
// records persisted for tenants, and the error taxonomy used to decide
// whether a failed operation is worth retrying.
package core

import (
	"fmt"
	"strings"

	"github.com/google/go-github/v73/github"
)

// ReviewRequestEvent is the internal request to review a single pull request.
// UserID is empty when the event leaves ingress and is resolved at admission
// from the owner of the connected repository.
type ReviewRequestEvent struct {
	Owner          string `json:"owner"`
	Repo           string `json:"repo"`
	PRNumber       int    `json:"pr_number"`
	UserID         string `json:"user_id"`
	RequestID      string `json:"request_id"`
	InstallationID int64  `json:"installation_id,omitempty"`
}

// FullName returns the "owner/repo" key used for indexes and lookups.
func (e *ReviewRequestEvent) FullName() string {
	return e.Owner + "/" + e.Repo
}

// PRURL returns the canonical web URL of the pull request.
func (e *ReviewRequestEvent) PRURL() string {
	return fmt.Sprintf("https://github.com/%s/%s/pull/%d", e.Owner, e.Repo, e.PRNumber)
}

// Validate checks that the event identifies exactly one pull request.
func (e *ReviewRequestEvent) Validate() error {
	if strings.TrimSpace(e.Owner) == "" || strings.TrimSpace(e.Repo) == "" {
		return NewParseError("owner and repo are required")
	}
	if e.PRNumber <= 0 {
		return NewParseError(fmt.Sprintf("invalid pull request number: %d", e.PRNumber))
	}
	if e.RequestID == "" {
		return NewParseError("request id is required")
	}
	return nil
}

// IndexRequestEvent asks for the codebase of a connected repository to be
// (re)indexed into the vector store.
type IndexRequestEvent struct {
	Owner          string `json:"owner"`
	Repo           string `json:"repo"`
	UserID         string `json:"user_id"`
	RequestID      string `json:"request_id"`
	InstallationID int64  `json:"installation_id,omitempty"`
}

// FullName returns the "owner/repo" key of the repository being indexed.
func (e *IndexRequestEvent) FullName() string {
	return e.Owner + "/" + e.Repo
}

// reviewActions are the pull_request actions that request a review.
var reviewActions = map[string]bool{
	"opened":      true,
	"synchronize": true,
}

// IsReviewAction reports whether a pull_request action should trigger a review.
func IsReviewAction(action string) bool {
	return reviewActions[action]
}

// EventFromPullRequest transforms a GitHub PullRequestEvent into the internal
// ReviewRequestEvent. It is the anti-corruption layer between the webhook
// payload and the workflows: anything missing from the payload is reported as
// a ParseError here so nothing downstream has to re-check it.
func EventFromPullRequest(event *github.PullRequestEvent, requestID string) (*ReviewRequestEvent, error) {
	repo := event.GetRepo()
	if repo == nil || repo.GetOwner().GetLogin() == "" || repo.GetName() == "" {
		return nil, NewParseError("repository or owner information is missing from the event")
	}

	number := event.GetNumber()
	if number == 0 {
		number = event.GetPullRequest().GetNumber()
	}

	ev := &ReviewRequestEvent{
		Owner:          repo.GetOwner().GetLogin(),
		Repo:           repo.GetName(),
		PRNumber:       number,
		RequestID:      requestID,
		InstallationID: event.GetInstallation().GetID(),
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}
