package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sevigo/review-warden/internal/core"
)

func TestReviewsMarkdown(t *testing.T) {
	md := reviewsMarkdown("acme/widgets", []core.ReviewRecord{
		{PRNumber: 42, PRTitle: "Add cache", PRURL: "https://github.com/acme/widgets/pull/42", ReviewText: "Looks good.", Status: core.ReviewStatusCompleted, CreatedAt: time.Now()},
		{PRNumber: 43, PRTitle: core.FailedReviewTitle, ReviewText: "Error: boom", Status: core.ReviewStatusFailed, CreatedAt: time.Now()},
	})

	assert.Contains(t, md, "# Reviews of acme/widgets")
	assert.Contains(t, md, "## ✅ #42 Add cache")
	assert.Contains(t, md, "## ❌ #43 Failed to fetch PR")
	assert.Contains(t, md, "Looks good.")
	assert.Contains(t, md, "Error: boom")
}
