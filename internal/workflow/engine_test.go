package workflow_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/review-warden/internal/core"
	"github.com/sevigo/review-warden/internal/storage"
	"github.com/sevigo/review-warden/internal/workflow"
)

func testPolicy() workflow.RetryPolicy {
	return workflow.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Timeout: time.Second}
}

func newRun(t *testing.T, store workflow.Store) *workflow.Run {
	t.Helper()
	run, err := workflow.NewRun("test", t.Name(), map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, store.CreateRun(context.Background(), run))
	return run
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEngine_RunsStepsInOrderAndPassesOutputs(t *testing.T) {
	store := storage.NewMemoryStore()
	engine := workflow.NewEngine(store, testPolicy(), discard())
	run := newRun(t, store)

	var order []string
	steps := []workflow.Step{
		{Name: "first", Run: func(context.Context, *workflow.State) (any, error) {
			order = append(order, "first")
			return map[string]int{"n": 41}, nil
		}},
		{Name: "second", Run: func(_ context.Context, state *workflow.State) (any, error) {
			order = append(order, "second")
			in, err := workflow.Output[map[string]int](state, "first")
			if err != nil {
				return nil, err
			}
			return in["n"] + 1, nil
		}},
	}

	require.NoError(t, engine.Execute(context.Background(), run, steps, nil))
	assert.Equal(t, []string{"first", "second"}, order)

	stored, err := store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, stored.Status)

	results, err := store.ListStepResults(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, workflow.StepOK, r.Status)
	}
	assert.Equal(t, 0, engine.Running())
}

func TestEngine_ResumeSkipsCompletedSteps(t *testing.T) {
	store := storage.NewMemoryStore()
	engine := workflow.NewEngine(store, testPolicy(), discard())
	run := newRun(t, store)
	ctx := context.Background()

	var posted atomic.Int32
	var failSave atomic.Bool
	failSave.Store(true)

	steps := []workflow.Step{
		{Name: "post-comment", Run: func(context.Context, *workflow.State) (any, error) {
			posted.Add(1)
			return "posted", nil
		}},
		{Name: "save", MaxAttempts: 1, Run: func(context.Context, *workflow.State) (any, error) {
			if failSave.Load() {
				return nil, errors.New("connection reset")
			}
			return "saved", nil
		}},
	}

	// Simulate a crash: the first execution is interrupted by cancellation
	// after the comment was posted.
	cctx, cancel := context.WithCancel(ctx)
	interrupting := []workflow.Step{steps[0], {Name: "save", Run: func(context.Context, *workflow.State) (any, error) {
		cancel()
		return nil, context.Canceled
	}}}
	err := engine.Execute(cctx, run, interrupting, nil)
	require.ErrorIs(t, err, workflow.ErrInterrupted)

	stored, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusRunning, stored.Status, "interrupted runs stay resumable")

	failSave.Store(false)
	require.NoError(t, engine.Execute(ctx, stored, steps, nil))
	assert.Equal(t, int32(1), posted.Load(), "completed side effects are not repeated")
}

func TestEngine_RetriesTransientErrors(t *testing.T) {
	store := storage.NewMemoryStore()
	engine := workflow.NewEngine(store, testPolicy(), discard())
	run := newRun(t, store)

	var calls atomic.Int32
	steps := []workflow.Step{{Name: "flaky", Run: func(context.Context, *workflow.State) (any, error) {
		if calls.Add(1) < 3 {
			return nil, core.Transient(errors.New("upstream 503"))
		}
		return "ok", nil
	}}}

	require.NoError(t, engine.Execute(context.Background(), run, steps, nil))
	assert.Equal(t, int32(3), calls.Load())

	results, err := store.ListStepResults(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 3, results[0].Attempts)
}

func TestEngine_FatalErrorFailsRunAndSkipsRemainingSteps(t *testing.T) {
	store := storage.NewMemoryStore()
	engine := workflow.NewEngine(store, testPolicy(), discard())
	run := newRun(t, store)

	var attempts, laterCalls, hookCalls atomic.Int32
	var hookCause error
	steps := []workflow.Step{
		{Name: "resolve-credential", Run: func(context.Context, *workflow.State) (any, error) {
			attempts.Add(1)
			return nil, core.ErrCredentialMissing
		}},
		{Name: "post-comment", Run: func(context.Context, *workflow.State) (any, error) {
			laterCalls.Add(1)
			return nil, nil
		}},
	}
	hook := func(_ context.Context, _ *workflow.Run, _ *workflow.State, cause error) {
		hookCalls.Add(1)
		hookCause = cause
	}

	err := engine.Execute(context.Background(), run, steps, hook)
	require.Error(t, err)

	var stepErr *workflow.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "resolve-credential", stepErr.Step)
	assert.ErrorIs(t, err, core.ErrCredentialMissing)

	assert.Equal(t, int32(1), attempts.Load(), "fatal errors are not retried")
	assert.Equal(t, int32(0), laterCalls.Load())
	assert.Equal(t, int32(1), hookCalls.Load())
	assert.ErrorIs(t, hookCause, core.ErrCredentialMissing)

	stored, err := store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "resolve-credential")
}

func TestEngine_ExhaustedRetriesFailRun(t *testing.T) {
	store := storage.NewMemoryStore()
	engine := workflow.NewEngine(store, testPolicy(), discard())
	run := newRun(t, store)

	var calls atomic.Int32
	steps := []workflow.Step{{Name: "always-timeout", Timeout: 5 * time.Millisecond, Run: func(ctx context.Context, _ *workflow.State) (any, error) {
		calls.Add(1)
		<-ctx.Done()
		return nil, ctx.Err()
	}}}

	err := engine.Execute(context.Background(), run, steps, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEngine_PanickingStepFailsRun(t *testing.T) {
	store := storage.NewMemoryStore()
	engine := workflow.NewEngine(store, testPolicy(), discard())
	run := newRun(t, store)

	steps := []workflow.Step{{Name: "boom", Run: func(context.Context, *workflow.State) (any, error) {
		panic("nil map")
	}}}

	err := engine.Execute(context.Background(), run, steps, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestEngine_HookPanicDoesNotEscape(t *testing.T) {
	store := storage.NewMemoryStore()
	engine := workflow.NewEngine(store, testPolicy(), discard())
	run := newRun(t, store)

	steps := []workflow.Step{{Name: "fatal", Run: func(context.Context, *workflow.State) (any, error) {
		return nil, core.Permanent(errors.New("bad input"))
	}}}
	hook := func(context.Context, *workflow.Run, *workflow.State, error) { panic("hook failed") }

	assert.NotPanics(t, func() {
		_ = engine.Execute(context.Background(), run, steps, hook)
	})
}

func TestEngine_TerminalRunIsNoop(t *testing.T) {
	store := storage.NewMemoryStore()
	engine := workflow.NewEngine(store, testPolicy(), discard())
	run := newRun(t, store)
	require.NoError(t, store.UpdateRunStatus(context.Background(), run.ID, workflow.StatusCompleted, ""))
	run.Status = workflow.StatusCompleted

	var calls atomic.Int32
	steps := []workflow.Step{{Name: "never", Run: func(context.Context, *workflow.State) (any, error) {
		calls.Add(1)
		return nil, nil
	}}}
	require.NoError(t, engine.Execute(context.Background(), run, steps, nil))
	assert.Equal(t, int32(0), calls.Load())
}

func TestEngine_StaleSnapshotOfTerminalRunIsNoop(t *testing.T) {
	store := storage.NewMemoryStore()
	engine := workflow.NewEngine(store, testPolicy(), discard())
	run := newRun(t, store)
	ctx := context.Background()
	require.NoError(t, store.UpdateRunStatus(ctx, run.ID, workflow.StatusFailed, "boom"))

	var calls, hooks atomic.Int32
	steps := []workflow.Step{{Name: "never", Run: func(context.Context, *workflow.State) (any, error) {
		calls.Add(1)
		return nil, nil
	}}}
	hook := func(context.Context, *workflow.Run, *workflow.State, error) { hooks.Add(1) }

	stale := *run
	stale.Status = workflow.StatusRunning
	require.NoError(t, engine.Execute(ctx, &stale, steps, hook))

	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, int32(0), hooks.Load())
	assert.Equal(t, workflow.StatusFailed, stale.Status)

	stored, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusFailed, stored.Status)
	assert.Equal(t, "boom", stored.Error)
}

func TestEngine_UnknownRunIsRejected(t *testing.T) {
	store := storage.NewMemoryStore()
	engine := workflow.NewEngine(store, testPolicy(), discard())
	run, err := workflow.NewRun("test", t.Name(), nil)
	require.NoError(t, err)

	err = engine.Execute(context.Background(), run, nil, nil)
	assert.ErrorIs(t, err, workflow.ErrRunNotFound)
}
