// Package handler provides HTTP handlers for review-warden.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/go-github/v73/github"

	"github.com/sevigo/review-warden/internal/config"
	"github.com/sevigo/review-warden/internal/core"
	"github.com/sevigo/review-warden/internal/ingress"
)

// WebhookHandler processes incoming webhooks from GitHub.
type WebhookHandler struct {
	secret       []byte
	admitter     core.ReviewAdmitter
	admitTimeout time.Duration
	logger       *slog.Logger
}

// NewWebhookHandler creates a new webhook handler with the given configuration and admitter.
func NewWebhookHandler(cfg *config.Config, admitter core.ReviewAdmitter, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret:       []byte(cfg.GitHub.WebhookSecret),
		admitter:     admitter,
		admitTimeout: cfg.Server.AdmitTimeout,
		logger:       logger,
	}
}

// Handle validates, classifies and acknowledges a GitHub webhook. Review
// requests are admitted in the background; the response never depends on
// what happens to them.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := github.ValidatePayload(r, h.secret)
	if err != nil {
		h.logger.Warn("invalid webhook payload signature", "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
		return
	}

	eventType := github.WebHookType(r)
	outcome, err := ingress.Classify(payload, eventType, github.DeliveryID(r))
	if err != nil {
		h.logger.Error("could not parse webhook", "event", eventType, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
		return
	}

	switch outcome.Kind {
	case ingress.KindPing:
		h.logger.Info("received ping webhook")
		writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
		return
	case ingress.KindReviewRequested:
		h.admit(r.Context(), outcome.Event)
	default:
		h.logger.Debug("ignoring webhook event", "event", eventType)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Event Processed"})
}

// admit hands the event to the admitter on its own goroutine, detached from
// the request context.
func (h *WebhookHandler) admit(ctx context.Context, event *core.ReviewRequestEvent) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if h.admitTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.admitTimeout)
			defer cancel()
		}
		logger := h.logger.With("repo", event.FullName(), "pr", event.PRNumber, "request_id", event.RequestID)
		if err := h.admitter.Admit(ctx, event); err != nil {
			logger.Warn("review request not admitted", "error", err)
			return
		}
		logger.Info("review request admitted")
	}()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
