package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sevigo/review-warden/internal/config"
	"github.com/sevigo/review-warden/internal/core"
	"github.com/sevigo/review-warden/internal/github"
	"github.com/sevigo/review-warden/internal/llm"
	"github.com/sevigo/review-warden/internal/workflow"
)

// Run kinds.
const (
	KindReview = "review"
	KindIndex  = "index"
)

// Review workflow steps, in execution order.
const (
	StepFetchPRData     = "fetch-pr-data"
	StepRetrieveContext = "retrieve-context"
	StepFetchRecentPRs  = "fetch-recent-prs"
	StepGenerateReview  = "generate-review"
	StepPostComment     = "post-review-comment"
	StepSaveReview      = "save-review"
)

// promptRecentPRs caps how many recent pull requests are put in the prompt.
const promptRecentPRs = 10

// recentPRBodyLimit caps the description kept per recent pull request, in runes.
const recentPRBodyLimit = 500

// ContextRetriever returns snippets of indexed code relevant to a query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query, repositoryKey string, k int) ([]string, error)
}

// ReviewWorkflow reviews one pull request per run.
type ReviewWorkflow struct {
	engine    *workflow.Engine
	creds     github.CredentialResolver
	clients   github.ClientFactory
	retriever ContextRetriever
	prompts   *llm.PromptManager
	provider  llm.ModelProvider
	generator llm.Generator
	sink      *Sink
	topK      int
	recentPRs int
	logger    *slog.Logger
}

// ReviewDeps groups the collaborators of a ReviewWorkflow.
type ReviewDeps struct {
	Engine    *workflow.Engine
	Creds     github.CredentialResolver
	Clients   github.ClientFactory
	Retriever ContextRetriever
	Prompts   *llm.PromptManager
	Generator llm.Generator
	Sink      *Sink
}

func NewReviewWorkflow(cfg *config.Config, deps ReviewDeps, logger *slog.Logger) *ReviewWorkflow {
	if cfg == nil {
		panic("config cannot be nil")
	}
	if deps.Engine == nil || deps.Creds == nil || deps.Clients == nil || deps.Retriever == nil ||
		deps.Prompts == nil || deps.Generator == nil || deps.Sink == nil {
		panic("review workflow dependencies cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &ReviewWorkflow{
		engine:    deps.Engine,
		creds:     deps.Creds,
		clients:   deps.Clients,
		retriever: deps.Retriever,
		prompts:   deps.Prompts,
		provider:  llm.ModelProvider(cfg.AI.LLMProvider),
		generator: deps.Generator,
		sink:      deps.Sink,
		topK:      cfg.RAG.TopK,
		recentPRs: cfg.Workflow.RecentPRs,
		logger:    logger,
	}
}

func (w *ReviewWorkflow) Kind() string { return KindReview }

// Execute runs the review steps for the event stored in run. A run that
// fails writes a failed audit row.
func (w *ReviewWorkflow) Execute(ctx context.Context, run *workflow.Run) error {
	var event core.ReviewRequestEvent
	if err := run.Decode(&event); err != nil {
		return err
	}
	w.logger.Info("starting review", "repo", event.FullName(), "pr", event.PRNumber, "run_id", run.ID)
	return w.engine.Execute(ctx, run, w.steps(&event), w.onFailure(&event))
}

func (w *ReviewWorkflow) steps(event *core.ReviewRequestEvent) []workflow.Step {
	return []workflow.Step{
		{Name: StepFetchPRData, Run: func(ctx context.Context, _ *workflow.State) (any, error) {
			return w.fetchPRData(ctx, event)
		}},
		{Name: StepRetrieveContext, Run: func(ctx context.Context, state *workflow.State) (any, error) {
			return w.retrieveContext(ctx, event, state)
		}},
		{Name: StepFetchRecentPRs, Run: func(ctx context.Context, _ *workflow.State) (any, error) {
			return w.fetchRecentPRs(ctx, event)
		}},
		{Name: StepGenerateReview, Run: func(ctx context.Context, state *workflow.State) (any, error) {
			return w.generateReview(ctx, state)
		}},
		{Name: StepPostComment, Run: func(ctx context.Context, state *workflow.State) (any, error) {
			return w.postComment(ctx, event, state)
		}},
		{Name: StepSaveReview, Run: func(ctx context.Context, state *workflow.State) (any, error) {
			return w.saveReview(ctx, event, state)
		}},
	}
}

// client resolves the user's credential for each step that needs it.
// Tokens are never persisted in step outputs.
func (w *ReviewWorkflow) client(ctx context.Context, event *core.ReviewRequestEvent) (string, github.Client, error) {
	token, err := w.creds.Resolve(ctx, event.UserID, event.InstallationID)
	if err != nil {
		return "", nil, err
	}
	return token, w.clients(ctx, token), nil
}

func (w *ReviewWorkflow) fetchPRData(ctx context.Context, event *core.ReviewRequestEvent) (*github.PullRequestData, error) {
	_, client, err := w.client(ctx, event)
	if err != nil {
		return nil, err
	}
	data, err := client.GetPullRequestData(ctx, event.Owner, event.Repo, event.PRNumber)
	if err != nil {
		return nil, err
	}
	w.logger.Info("fetched pull request", "repo", event.FullName(), "pr", event.PRNumber, "diff_bytes", len(data.Diff))
	return data, nil
}

func (w *ReviewWorkflow) retrieveContext(ctx context.Context, event *core.ReviewRequestEvent, state *workflow.State) ([]string, error) {
	data, err := output[github.PullRequestData](state, StepFetchPRData)
	if err != nil {
		return nil, err
	}
	snippets, err := w.retriever.Retrieve(ctx, data.Title+"\n"+data.Description, event.FullName(), w.topK)
	if err != nil {
		return nil, err
	}
	if snippets == nil {
		snippets = []string{}
	}
	return snippets, nil
}

func (w *ReviewWorkflow) fetchRecentPRs(ctx context.Context, event *core.ReviewRequestEvent) ([]string, error) {
	_, client, err := w.client(ctx, event)
	if err != nil {
		return nil, err
	}
	prs, err := client.ListRecentPullRequests(ctx, event.Owner, event.Repo, w.recentPRs+1)
	if err != nil {
		return nil, core.Transient(err)
	}

	recent := make([]string, 0, len(prs))
	for _, pr := range prs {
		if pr.Number == event.PRNumber {
			continue
		}
		if len(recent) == w.recentPRs {
			break
		}
		recent = append(recent, formatRecentPR(pr))
	}
	return recent, nil
}

func formatRecentPR(pr github.PullRequestSummary) string {
	body := strings.TrimSpace(pr.Body)
	if body == "" {
		body = "No description"
	} else if runes := []rune(body); len(runes) > recentPRBodyLimit {
		body = strings.TrimSpace(string(runes[:recentPRBodyLimit])) + "..."
	}
	return fmt.Sprintf("#%d: %s\n%s", pr.Number, pr.Title, body)
}

func (w *ReviewWorkflow) generateReview(ctx context.Context, state *workflow.State) (string, error) {
	data, err := output[github.PullRequestData](state, StepFetchPRData)
	if err != nil {
		return "", err
	}
	snippets, err := output[[]string](state, StepRetrieveContext)
	if err != nil {
		return "", err
	}
	recent, err := output[[]string](state, StepFetchRecentPRs)
	if err != nil {
		return "", err
	}
	if len(recent) > promptRecentPRs {
		recent = recent[:promptRecentPRs]
	}

	prompt, err := w.prompts.Render(llm.CodeReviewPrompt, w.provider, core.ReviewPromptData{
		Title:       data.Title,
		Description: data.Description,
		Diff:        data.Diff,
		Context:     snippets,
		RecentPRs:   recent,
	})
	if err != nil {
		return "", core.Permanent(fmt.Errorf("failed to render review prompt: %w", err))
	}
	return w.generator.Generate(ctx, prompt)
}

func (w *ReviewWorkflow) postComment(ctx context.Context, event *core.ReviewRequestEvent, state *workflow.State) (bool, error) {
	text, err := output[string](state, StepGenerateReview)
	if err != nil {
		return false, err
	}
	token, _, err := w.client(ctx, event)
	if err != nil {
		return false, err
	}
	if err := w.sink.PostReview(ctx, token, event, text); err != nil {
		return false, err
	}
	return true, nil
}

func (w *ReviewWorkflow) saveReview(ctx context.Context, event *core.ReviewRequestEvent, state *workflow.State) (bool, error) {
	data, err := output[github.PullRequestData](state, StepFetchPRData)
	if err != nil {
		return false, err
	}
	text, err := output[string](state, StepGenerateReview)
	if err != nil {
		return false, err
	}
	return w.sink.SaveCompleted(ctx, event, data.Title, text)
}

func (w *ReviewWorkflow) onFailure(event *core.ReviewRequestEvent) workflow.FailureHook {
	return func(ctx context.Context, run *workflow.Run, state *workflow.State, cause error) {
		title := core.FailedReviewTitle
		if data, err := output[github.PullRequestData](state, StepFetchPRData); err == nil && data.Title != "" {
			title = data.Title
		}
		w.logger.Error("review failed", "repo", event.FullName(), "pr", event.PRNumber, "run_id", run.ID, "error", cause)
		w.sink.SaveFailed(ctx, event, title, unwrapStep(cause))
	}
}

// output reads a previous step's result. A missing or undecodable output
// cannot be fixed by retrying.
func output[T any](state *workflow.State, step string) (T, error) {
	v, err := workflow.Output[T](state, step)
	if err != nil {
		return v, core.Permanent(err)
	}
	return v, nil
}

func unwrapStep(err error) error {
	var stepErr *workflow.StepError
	if errors.As(err, &stepErr) {
		return stepErr.Err
	}
	return err
}
