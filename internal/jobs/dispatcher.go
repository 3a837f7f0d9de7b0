// Package jobs wires the review and indexing workflows to the service: it
// admits incoming events, queues their runs and executes them on a bounded
// pool of workers.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sevigo/review-warden/internal/workflow"
)

// ErrDispatcherStopped is returned by Dispatch after Stop.
var ErrDispatcherStopped = errors.New("dispatcher is stopped")

// Workflow executes runs of one kind.
type Workflow interface {
	Kind() string
	Execute(ctx context.Context, run *workflow.Run) error
}

// Dispatcher hands runs to workers.
type Dispatcher interface {
	// Dispatch queues run. A run that is already queued or executing is
	// coalesced into the existing entry.
	Dispatch(ctx context.Context, run *workflow.Run) error
	Stop(ctx context.Context)
}

// dispatcher keeps an unbounded FIFO of runs and a fixed number of workers,
// so at most maxWorkers runs execute at once.
type dispatcher struct {
	handlers   map[string]Workflow
	maxWorkers int
	logger     *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*workflow.Run
	inFlight map[string]struct{}
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher starts maxWorkers workers executing runs through the
// workflow registered for each run's kind. If maxWorkers is 0 or negative,
// it defaults to 1.
func NewDispatcher(workflows []Workflow, maxWorkers int, logger *slog.Logger) Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &dispatcher{
		handlers:   make(map[string]Workflow, len(workflows)),
		maxWorkers: maxWorkers,
		logger:     logger,
		inFlight:   make(map[string]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	d.cond = sync.NewCond(&d.mu)
	for _, w := range workflows {
		d.handlers[w.Kind()] = w
	}
	d.startWorkers()
	return d
}

func (d *dispatcher) startWorkers() {
	for i := range d.maxWorkers {
		d.wg.Add(1)
		go d.startWorker(i)
	}
}

func (d *dispatcher) startWorker(workerID int) {
	defer d.wg.Done()
	d.logger.Debug("starting workflow worker", "id", workerID)

	for {
		run, ok := d.next()
		if !ok {
			d.logger.Debug("shutting down workflow worker", "id", workerID)
			return
		}
		d.process(workerID, run)

		d.mu.Lock()
		delete(d.inFlight, run.ID)
		d.mu.Unlock()
	}
}

// next blocks until a run is queued or the dispatcher is stopped. Runs still
// queued at Stop stay Pending in the store and are picked up by recovery.
func (d *dispatcher) next() (*workflow.Run, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) == 0 && !d.closed {
		d.cond.Wait()
	}
	if d.closed {
		return nil, false
	}
	run := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	return run, true
}

func (d *dispatcher) process(workerID int, run *workflow.Run) {
	logger := d.logger.With("worker_id", workerID, "run_id", run.ID, "kind", run.Kind)

	handler, ok := d.handlers[run.Kind]
	if !ok {
		logger.Error("no workflow registered for run kind")
		return
	}

	logger.Info("worker processing run")
	err := handler.Execute(d.ctx, run)
	switch {
	case err == nil:
	case errors.Is(err, workflow.ErrInterrupted):
		logger.Warn("workflow run interrupted, will resume on restart", "error", err)
	default:
		logger.Error("workflow run failed", "error", err)
	}
}

func (d *dispatcher) Dispatch(_ context.Context, run *workflow.Run) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherStopped
	}
	if _, ok := d.inFlight[run.ID]; ok {
		d.logger.Debug("run already queued, coalescing", "run_id", run.ID, "request_id", run.RequestID)
		return nil
	}
	d.inFlight[run.ID] = struct{}{}
	d.queue = append(d.queue, run)
	d.logger.Info("queued workflow run", "run_id", run.ID, "kind", run.Kind, "queued", len(d.queue))
	d.cond.Signal()
	return nil
}

// Stop stops accepting runs and waits for executing ones. When ctx expires
// first, executing runs are cancelled; they stay Running and resume on the
// next start.
func (d *dispatcher) Stop(ctx context.Context) {
	d.logger.Info("stopping dispatcher and waiting for runs to finish")
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("shutdown timeout reached, interrupting runs")
		d.cancel()
		<-done
	}
	d.cancel()
	d.logger.Info("all workflow workers have finished")
}

// InlineDispatcher executes runs synchronously on the caller's goroutine.
// It is used by the CLI, where the process lives only as long as the run.
type InlineDispatcher struct {
	handlers map[string]Workflow
}

func NewInlineDispatcher(workflows ...Workflow) *InlineDispatcher {
	d := &InlineDispatcher{handlers: make(map[string]Workflow, len(workflows))}
	for _, w := range workflows {
		d.handlers[w.Kind()] = w
	}
	return d
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, run *workflow.Run) error {
	handler, ok := d.handlers[run.Kind]
	if !ok {
		return fmt.Errorf("no workflow registered for kind %q", run.Kind)
	}
	return handler.Execute(ctx, run)
}

func (d *InlineDispatcher) Stop(context.Context) {}
