package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sevigo/review-warden/internal/core"
)

// ErrInterrupted is returned when a run stops because its context was
// cancelled. The run is left Running so recovery can resume it.
var ErrInterrupted = errors.New("workflow run interrupted")

const failureHookTimeout = 30 * time.Second

// StepFunc performs one step. The returned value must be JSON-encodable; it
// is persisted and made available to later steps through State.
type StepFunc func(ctx context.Context, state *State) (any, error)

// Step is a named unit of a workflow.
type Step struct {
	Name string
	Run  StepFunc
	// Timeout overrides the per-attempt timeout of the policy.
	Timeout time.Duration
	// MaxAttempts overrides the attempt limit of the policy.
	MaxAttempts int
}

// FailureHook runs once when a run ends in Failed. It is best effort: its
// errors are the hook's business and never change the outcome of the run.
type FailureHook func(ctx context.Context, run *Run, state *State, cause error)

// StepError reports the step that failed a run.
type StepError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed after %d attempt(s): %v", e.Step, e.Attempts, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Engine executes runs step by step.
type Engine struct {
	store   Store
	policy  RetryPolicy
	logger  *slog.Logger
	running atomic.Int64
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an Engine.
func NewEngine(store Store, policy RetryPolicy, logger *slog.Logger) *Engine {
	if store == nil {
		panic("workflow store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Engine{store: store, policy: policy, logger: logger, sleep: sleep}
}

// Running returns the number of runs currently executing in this engine.
func (e *Engine) Running() int {
	return int(e.running.Load())
}

// Execute drives run through steps in order. Steps with a recorded ok result
// are not executed again; their stored output is loaded instead. A step that
// fails with a non-retryable error, or exhausts its attempts, fails the run,
// skips the remaining steps and triggers onFailure.
func (e *Engine) Execute(ctx context.Context, run *Run, steps []Step, onFailure FailureHook) (err error) {
	logger := e.logger.With("run_id", run.ID, "kind", run.Kind)

	// The caller's copy may predate the run finishing.
	current, err := e.store.GetRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", run.ID, err)
	}
	run.Status = current.Status
	run.Error = current.Error

	if run.Status.Terminal() {
		logger.Info("run already finished, nothing to do", "status", run.Status)
		return nil
	}
	if !CanTransition(run.Status, StatusRunning) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, run.Status, StatusRunning)
	}

	results, err := e.store.ListStepResults(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load step results for run %s: %w", run.ID, err)
	}
	memo := make(map[string]StepResult, len(results))
	for _, r := range results {
		memo[r.Name] = r
	}

	if err := e.store.UpdateRunStatus(ctx, run.ID, StatusRunning, ""); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			logger.Info("run finished concurrently, nothing to do", "error", err)
			return nil
		}
		return fmt.Errorf("failed to mark run %s running: %w", run.ID, err)
	}
	run.Status = StatusRunning

	e.running.Add(1)
	defer e.running.Add(-1)

	state := newState()
	defer func() {
		if err == nil || errors.Is(err, ErrInterrupted) {
			return
		}
		e.fail(ctx, run, state, err, onFailure)
	}()

	logger.Info("executing workflow run", "steps", len(steps), "memoized", len(memo))

	for _, step := range steps {
		prev, seen := memo[step.Name]
		if seen && prev.Status == StepOK {
			logger.Debug("step already completed, using stored output", "step", step.Name)
			state.set(step.Name, prev.Output)
			continue
		}

		output, stepErr := e.runStep(ctx, logger, run, step, state, prev.Attempts)
		if stepErr != nil {
			return stepErr
		}
		state.set(step.Name, output)
	}

	if err := e.store.UpdateRunStatus(context.WithoutCancel(ctx), run.ID, StatusCompleted, ""); err != nil {
		// Every step is recorded; a resumed run only has to flip the status.
		logger.Error("failed to mark run completed", "error", err)
		return fmt.Errorf("%w: failed to mark run completed: %w", ErrInterrupted, err)
	}
	run.Status = StatusCompleted
	logger.Info("workflow run completed")
	return nil
}

func (e *Engine) runStep(ctx context.Context, logger *slog.Logger, run *Run, step Step, state *State, prior int) (json.RawMessage, error) {
	maxAttempts := step.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = e.policy.MaxAttempts
	}
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = e.policy.Timeout
	}

	attempt := prior
	for {
		attempt++
		logger.Debug("running step", "step", step.Name, "attempt", attempt)

		out, err := e.attempt(ctx, step, timeout, state)
		if err == nil {
			raw, encErr := json.Marshal(out)
			if encErr == nil {
				e.saveStep(ctx, logger, &StepResult{RunID: run.ID, Name: step.Name, Status: StepOK, Output: raw, Attempts: attempt})
				return raw, nil
			}
			err = core.Permanent(fmt.Errorf("failed to encode output: %w", encErr))
		}

		if ctx.Err() != nil {
			logger.Warn("run interrupted", "step", step.Name, "attempt", attempt, "error", err)
			return nil, fmt.Errorf("%w during step %q: %w", ErrInterrupted, step.Name, ctx.Err())
		}

		if !core.IsRetryable(err) || attempt >= maxAttempts {
			e.saveStep(ctx, logger, &StepResult{RunID: run.ID, Name: step.Name, Status: StepFailed, Attempts: attempt, Error: err.Error()})
			logger.Error("step failed", "step", step.Name, "attempt", attempt, "retryable", core.IsRetryable(err), "error", err)
			return nil, &StepError{Step: step.Name, Attempts: attempt, Err: err}
		}

		e.saveStep(ctx, logger, &StepResult{RunID: run.ID, Name: step.Name, Status: StepRetrying, Attempts: attempt, Error: err.Error()})
		delay := e.policy.Backoff(attempt)
		logger.Warn("step failed, retrying", "step", step.Name, "attempt", attempt, "max_attempts", maxAttempts, "delay", delay, "error", err)
		if err := e.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w during backoff of step %q: %w", ErrInterrupted, step.Name, err)
		}
	}
}

func (e *Engine) attempt(ctx context.Context, step Step, timeout time.Duration, state *State) (out any, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = core.Permanent(fmt.Errorf("step %q panicked: %v", step.Name, r))
		}
	}()
	return step.Run(ctx, state)
}

func (e *Engine) saveStep(ctx context.Context, logger *slog.Logger, result *StepResult) {
	result.UpdatedAt = time.Now().UTC()
	if err := e.store.SaveStepResult(context.WithoutCancel(ctx), result); err != nil {
		logger.Error("failed to persist step result", "step", result.Name, "status", result.Status, "error", err)
	}
}

func (e *Engine) fail(ctx context.Context, run *Run, state *State, cause error, onFailure FailureHook) {
	logger := e.logger.With("run_id", run.ID, "kind", run.Kind)
	bg := context.WithoutCancel(ctx)

	if err := e.store.UpdateRunStatus(bg, run.ID, StatusFailed, cause.Error()); err != nil {
		logger.Error("failed to mark run failed", "error", err)
	}
	run.Status = StatusFailed
	run.Error = cause.Error()

	if onFailure == nil {
		return
	}

	hookCtx, cancel := context.WithTimeout(bg, failureHookTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("failure hook panicked", "panic", r)
		}
	}()
	onFailure(hookCtx, run, state, cause)
}
