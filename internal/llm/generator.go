package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sevigo/goframe/llms"
	"golang.org/x/time/rate"

	"github.com/sevigo/review-warden/internal/core"
)

// Generator produces text from a prompt.
//
//go:generate mockgen -destination=../../mocks/mock_generator.go -package=mocks . Generator
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// modelGenerator adapts a goframe model. Calls are rate limited so a burst
// of reviews does not trip the provider's quota.
type modelGenerator struct {
	model   llms.Model
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
}

// NewGenerator wraps model. requestsPerMinute <= 0 disables rate limiting.
func NewGenerator(model llms.Model, requestsPerMinute int, timeout time.Duration, logger *slog.Logger) Generator {
	if model == nil {
		panic("language model is required")
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}
	return &modelGenerator{model: model, limiter: limiter, timeout: timeout, logger: logger}
}

// policyMarkers are the refusal texts of the supported providers: Gemini
// finish and block reasons (SAFETY, PROHIBITED_CONTENT, BLOCKLIST) and
// OpenAI-compatible content filters. Matching is case-insensitive.
var policyMarkers = []string{
	"safety",
	"prohibited_content",
	"prohibited content",
	"blocklist",
	"content_filter",
	"content policy",
}

func (g *modelGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", core.Transient(fmt.Errorf("rate limiter: %w", err))
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := g.model.Call(ctx, prompt)
	if err != nil {
		return "", classifyModelError(err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", core.Transient(errors.New("model returned an empty response"))
	}
	g.logger.Debug("model call finished", "duration", time.Since(start), "prompt_chars", len(prompt), "response_chars", len(text))
	return text, nil
}

func classifyModelError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.Transient(fmt.Errorf("model call timed out: %w", err))
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range policyMarkers {
		if strings.Contains(msg, marker) {
			return core.Permanent(fmt.Errorf("%w: %w", core.ErrModelPolicy, err))
		}
	}
	return core.Transient(fmt.Errorf("model call failed: %w", err))
}

// ReviewFooter is appended to every posted review.
const ReviewFooter = "\n\n---\n*Automated review by review-warden.*"
