package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sevigo/review-warden/internal/config"
	"github.com/sevigo/review-warden/internal/core"
	"github.com/sevigo/review-warden/internal/github"
	"github.com/sevigo/review-warden/internal/llm"
	"github.com/sevigo/review-warden/internal/quota"
	"github.com/sevigo/review-warden/internal/storage"
	"github.com/sevigo/review-warden/internal/workflow"
	"github.com/sevigo/review-warden/mocks"
)

type staticRetriever struct {
	snippets []string
	queries  []string
}

func (r *staticRetriever) Retrieve(_ context.Context, query, _ string, _ int) ([]string, error) {
	r.queries = append(r.queries, query)
	return r.snippets, nil
}

type harness struct {
	store     storage.Store
	gate      *quota.Gate
	client    *mocks.MockClient
	generator *mocks.MockGenerator
	retriever *staticRetriever
	admitter  *Admitter
	connector *Connector
	fetcher   *fakeFetcher
	indexer   *fakeIndexer
	inline    *InlineDispatcher
	repo      *core.Repository
}

func testConfig() *config.Config {
	return &config.Config{
		AI:       config.AIConfig{LLMProvider: "gemini"},
		Quota:    config.QuotaConfig{FreeRepositories: 5, FreeReviewsPerRepository: 5},
		Workflow: config.WorkflowConfig{RecentPRs: 20, IndexTimeout: time.Second},
		RAG:      config.RAGConfig{TopK: 5, MaxFileSize: 1 << 20, MaxTotalSize: 8 << 20},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	cfg := testConfig()
	logger := discardLogger()

	h := &harness{
		store:     storage.NewMemoryStore(),
		client:    mocks.NewMockClient(ctrl),
		generator: mocks.NewMockGenerator(ctrl),
		retriever: &staticRetriever{snippets: []string{"func Widget() {}"}},
		fetcher:   &fakeFetcher{},
		indexer:   &fakeIndexer{},
	}
	h.gate = quota.NewGate(h.store, cfg.Quota, logger)

	engine := workflow.NewEngine(h.store, workflow.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Timeout:     time.Second,
	}, logger)
	prompts, err := llm.NewPromptManager()
	require.NoError(t, err)

	clients := func(context.Context, string) github.Client { return h.client }
	creds := github.NewCredentialResolver(h.store, storage.ProviderGitHub, nil, logger)

	review := NewReviewWorkflow(cfg, ReviewDeps{
		Engine:    engine,
		Creds:     creds,
		Clients:   clients,
		Retriever: h.retriever,
		Prompts:   prompts,
		Generator: h.generator,
		Sink:      NewSink(h.store, clients, logger),
	}, logger)
	index := NewIndexWorkflow(cfg, engine, creds, h.fetcher, h.indexer, logger)

	h.inline = NewInlineDispatcher(review, index)
	h.admitter = NewAdmitter(h.store, h.gate, h.inline, logger)
	h.connector = NewConnector(h.store, h.gate, h.inline, logger)

	ctx := context.Background()
	require.NoError(t, h.store.UpsertUser(ctx, &core.User{ID: "u1", Name: "Ada", Tier: core.TierFree}))
	h.repo = &core.Repository{Owner: "acme", Name: "widgets", FullName: "acme/widgets", UserID: "u1"}
	require.NoError(t, h.store.CreateRepository(ctx, h.repo))
	return h
}

func (h *harness) reviewCount(t *testing.T) int {
	t.Helper()
	n, err := h.store.GetUsage(context.Background(), core.UsageKey{UserID: "u1", RepositoryID: h.repo.ID, Kind: core.UsageReview})
	require.NoError(t, err)
	return n
}

func (h *harness) reviews(t *testing.T) []core.ReviewRecord {
	t.Helper()
	records, err := h.store.ListReviews(context.Background(), h.repo.ID, 10)
	require.NoError(t, err)
	return records
}

func reviewEvent(requestID string) *core.ReviewRequestEvent {
	return &core.ReviewRequestEvent{Owner: "acme", Repo: "widgets", PRNumber: 42, RequestID: requestID}
}

func TestReviewCompletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.SaveAccessToken(ctx, "u1", storage.ProviderGitHub, "gho_token"))

	h.client.EXPECT().GetPullRequestData(gomock.Any(), "acme", "widgets", 42).Return(&github.PullRequestData{
		Title:       "Add widget cache",
		Description: "Caches widgets in memory.",
		Diff:        "+func cache() {}",
	}, nil)
	h.client.EXPECT().ListRecentPullRequests(gomock.Any(), "acme", "widgets", 21).Return([]github.PullRequestSummary{
		{Number: 42, Title: "Add widget cache"},
		{Number: 41, Title: "Widget eviction", Body: "Evicts stale widgets every minute."},
		{Number: 40, Title: "Bump deps"},
	}, nil)

	var prompt string
	h.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "Looks good.", nil
	})

	var comment string
	h.client.EXPECT().CreateComment(gomock.Any(), "acme", "widgets", 42, gomock.Any()).DoAndReturn(
		func(_ context.Context, _, _ string, _ int, body string) error {
			comment = body
			return nil
		})

	require.NoError(t, h.admitter.Admit(ctx, reviewEvent("delivery-1")))

	run, err := h.store.GetRunByRequestID(ctx, "delivery-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, run.Status)

	assert.Equal(t, "Looks good."+llm.ReviewFooter, comment)
	assert.Contains(t, prompt, "+func cache() {}")
	assert.Contains(t, prompt, "func Widget() {}")
	assert.Contains(t, prompt, "#41: Widget eviction\nEvicts stale widgets every minute.")
	assert.Contains(t, prompt, "#40: Bump deps\nNo description")
	assert.NotContains(t, prompt, "#42:")
	assert.Equal(t, []string{"Add widget cache\nCaches widgets in memory."}, h.retriever.queries)

	records := h.reviews(t)
	require.Len(t, records, 1)
	assert.Equal(t, core.ReviewStatusCompleted, records[0].Status)
	assert.Equal(t, "Add widget cache", records[0].PRTitle)
	assert.Equal(t, "Looks good.", records[0].ReviewText)
	assert.Equal(t, "https://github.com/acme/widgets/pull/42", records[0].PRURL)
	assert.Equal(t, 1, h.reviewCount(t))
}

func TestReviewRejectedAtQuota(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for range 5 {
		require.NoError(t, h.gate.Commit(ctx, "u1", h.repo.ID, core.UsageReview))
	}

	err := h.admitter.Admit(ctx, reviewEvent("delivery-2"))
	require.ErrorIs(t, err, core.ErrQuotaExceeded)

	_, err = h.store.GetRunByRequestID(ctx, "delivery-2")
	assert.ErrorIs(t, err, workflow.ErrRunNotFound)
	assert.Empty(t, h.reviews(t))
	assert.Equal(t, 5, h.reviewCount(t))
}

func TestReviewWithoutCredentialFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.client.EXPECT().CreateComment(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	require.NoError(t, h.admitter.Admit(ctx, reviewEvent("delivery-3")))

	run, err := h.store.GetRunByRequestID(ctx, "delivery-3")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusFailed, run.Status)

	steps, err := h.store.ListStepResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, StepFetchPRData, steps[0].Name)
	assert.Equal(t, workflow.StepFailed, steps[0].Status)
	assert.Equal(t, 1, steps[0].Attempts)

	records := h.reviews(t)
	require.Len(t, records, 1)
	assert.Equal(t, core.ReviewStatusFailed, records[0].Status)
	assert.Equal(t, core.FailedReviewTitle, records[0].PRTitle)
	assert.True(t, strings.HasPrefix(records[0].ReviewText, "Error: "))
	assert.Contains(t, records[0].ReviewText, core.ErrCredentialMissing.Error())
}

func TestReviewGenerationPolicyFailureKeepsTitle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.SaveAccessToken(ctx, "u1", storage.ProviderGitHub, "gho_token"))

	h.client.EXPECT().GetPullRequestData(gomock.Any(), "acme", "widgets", 42).Return(&github.PullRequestData{Title: "Risky change", Diff: "+x"}, nil)
	h.client.EXPECT().ListRecentPullRequests(gomock.Any(), "acme", "widgets", 21).Return(nil, nil)
	h.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("", core.Permanent(core.ErrModelPolicy)).Times(1)

	require.NoError(t, h.admitter.Admit(ctx, reviewEvent("delivery-4")))

	records := h.reviews(t)
	require.Len(t, records, 1)
	assert.Equal(t, core.ReviewStatusFailed, records[0].Status)
	assert.Equal(t, "Risky change", records[0].PRTitle)
}

func TestReviewRetriesTransientRecentPRFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.SaveAccessToken(ctx, "u1", storage.ProviderGitHub, "gho_token"))

	h.client.EXPECT().GetPullRequestData(gomock.Any(), "acme", "widgets", 42).Return(&github.PullRequestData{Title: "t", Diff: "+x"}, nil)
	gomock.InOrder(
		h.client.EXPECT().ListRecentPullRequests(gomock.Any(), "acme", "widgets", 21).Return(nil, errors.New("502 bad gateway")),
		h.client.EXPECT().ListRecentPullRequests(gomock.Any(), "acme", "widgets", 21).Return(nil, nil),
	)
	h.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("ok", nil)
	h.client.EXPECT().CreateComment(gomock.Any(), "acme", "widgets", 42, gomock.Any()).Return(nil)

	require.NoError(t, h.admitter.Admit(ctx, reviewEvent("delivery-5")))

	run, err := h.store.GetRunByRequestID(ctx, "delivery-5")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, run.Status)
}

func TestAdmitDeduplicatesRequestID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.SaveAccessToken(ctx, "u1", storage.ProviderGitHub, "gho_token"))

	h.client.EXPECT().GetPullRequestData(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(&github.PullRequestData{Title: "t", Diff: "+x"}, nil).Times(1)
	h.client.EXPECT().ListRecentPullRequests(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)
	h.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("ok", nil).Times(1)
	h.client.EXPECT().CreateComment(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)

	require.NoError(t, h.admitter.Admit(ctx, reviewEvent("delivery-6")))
	require.NoError(t, h.admitter.Admit(ctx, reviewEvent("delivery-6")))

	assert.Equal(t, 1, h.reviewCount(t))
	assert.Len(t, h.reviews(t), 1)
}

func TestStaleSnapshotOfFailedRunDoesNotRunAgain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.client.EXPECT().CreateComment(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	require.NoError(t, h.admitter.Admit(ctx, reviewEvent("delivery-dup")))
	run, err := h.store.GetRunByRequestID(ctx, "delivery-dup")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusFailed, run.Status)
	require.Len(t, h.reviews(t), 1)

	// A copy read while the run was still executing.
	stale := *run
	stale.Status = workflow.StatusRunning
	require.NoError(t, h.inline.Dispatch(ctx, &stale))

	got, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusFailed, got.Status)
	assert.Len(t, h.reviews(t), 1)

	steps, err := h.store.ListStepResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, 1, steps[0].Attempts)
}

func TestAdmitUnknownRepository(t *testing.T) {
	h := newHarness(t)
	event := &core.ReviewRequestEvent{Owner: "acme", Repo: "gadgets", PRNumber: 1, RequestID: "delivery-7"}

	err := h.admitter.Admit(context.Background(), event)
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, 0, h.reviewCount(t))
}

func TestRecoverResumesAfterLastCompletedStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	run, err := workflow.NewRun(KindReview, "delivery-8", reviewEvent("delivery-8"))
	require.NoError(t, err)
	run.Status = workflow.StatusRunning
	require.NoError(t, h.store.CreateRun(ctx, run))

	memo := map[string]any{
		StepFetchPRData:     github.PullRequestData{Title: "Resumed PR", Diff: "+x"},
		StepRetrieveContext: []string{},
		StepFetchRecentPRs:  []string{},
		StepGenerateReview:  "Resumed review.",
		StepPostComment:     true,
	}
	for name, out := range memo {
		raw, err := json.Marshal(out)
		require.NoError(t, err)
		require.NoError(t, h.store.SaveStepResult(ctx, &workflow.StepResult{
			RunID: run.ID, Name: name, Status: workflow.StepOK, Output: raw, Attempts: 1,
		}))
	}

	// No GitHub or model expectations: the comment must not be posted twice.
	n, err := Recover(ctx, h.store, h.inline, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, got.Status)

	records := h.reviews(t)
	require.Len(t, records, 1)
	assert.Equal(t, "Resumed PR", records[0].PRTitle)
	assert.Equal(t, "Resumed review.", records[0].ReviewText)
}

func TestSaveCompletedSkipsUnknownRepository(t *testing.T) {
	store := storage.NewMemoryStore()
	sink := NewSink(store, func(context.Context, string) github.Client { return nil }, discardLogger())

	saved, err := sink.SaveCompleted(context.Background(), &core.ReviewRequestEvent{Owner: "ghost", Repo: "town", PRNumber: 1}, "t", "text")
	require.NoError(t, err)
	assert.False(t, saved)
}

func TestFormatRecentPR(t *testing.T) {
	tests := []struct {
		name string
		pr   github.PullRequestSummary
		want string
	}{
		{"with body", github.PullRequestSummary{Number: 7, Title: "Fix", Body: "  Fixes the cache.\n"}, "#7: Fix\nFixes the cache."},
		{"without body", github.PullRequestSummary{Number: 8, Title: "Chore"}, "#8: Chore\nNo description"},
		{"long body", github.PullRequestSummary{Number: 9, Title: "Big", Body: strings.Repeat("é", recentPRBodyLimit+50)}, "#9: Big\n" + strings.Repeat("é", recentPRBodyLimit) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatRecentPR(tt.pr))
		})
	}
}
