// Package ingress turns raw GitHub webhook deliveries into review requests.
package ingress

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-github/v73/github"
	"github.com/google/uuid"

	"github.com/sevigo/review-warden/internal/core"
)

// Kind is the classification of a webhook delivery.
type Kind int

const (
	KindIgnored Kind = iota
	KindPing
	KindReviewRequested
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindReviewRequested:
		return "review_requested"
	default:
		return "ignored"
	}
}

// Outcome is the result of classifying one delivery. Event is set only for
// KindReviewRequested.
type Outcome struct {
	Kind  Kind
	Event *core.ReviewRequestEvent
}

const (
	eventPing        = "ping"
	eventPullRequest = "pull_request"
)

// Classify decides what a delivery asks for. Malformed payloads yield a
// *core.ParseError. deliveryID becomes the request id of a review; a new
// UUID is used when GitHub did not send one.
func Classify(payload []byte, eventType, deliveryID string) (Outcome, error) {
	switch eventType {
	case eventPing:
		if !json.Valid(payload) {
			return Outcome{}, core.NewParseError("ping payload is not valid JSON")
		}
		return Outcome{Kind: KindPing}, nil

	case eventPullRequest:
		parsed, err := github.ParseWebHook(eventType, payload)
		if err != nil {
			return Outcome{}, core.NewParseError(fmt.Sprintf("could not parse pull_request payload: %v", err))
		}
		pr, ok := parsed.(*github.PullRequestEvent)
		if !ok {
			return Outcome{}, core.NewParseError(fmt.Sprintf("unexpected payload type %T", parsed))
		}
		if !core.IsReviewAction(pr.GetAction()) {
			return Outcome{Kind: KindIgnored}, nil
		}

		if deliveryID == "" {
			deliveryID = uuid.NewString()
		}
		event, err := core.EventFromPullRequest(pr, deliveryID)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: KindReviewRequested, Event: event}, nil

	default:
		if !json.Valid(payload) {
			return Outcome{}, core.NewParseError(fmt.Sprintf("%s payload is not valid JSON", eventType))
		}
		return Outcome{Kind: KindIgnored}, nil
	}
}
