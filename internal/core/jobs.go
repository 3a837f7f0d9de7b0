package core

import (
	"context"
)

// ReviewAdmitter accepts review requests produced by ingress. Admission is
// where deduplication, quota accounting and dispatch happen; the webhook
// handler only needs to hand the event over.
type ReviewAdmitter interface {
	// Admit records and schedules a review. It returns ErrQuotaExceeded when
	// the tenant has no reviews left and ErrNotFound when the repository has
	// not been connected.
	Admit(ctx context.Context, event *ReviewRequestEvent) error
}
