// Package workflow executes durable, step-sequenced runs. Each step's output
// is persisted once it succeeds, so a run that is resumed after a crash or
// redelivery continues after its last completed step instead of repeating
// side effects.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var validTransitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusFailed},
	StatusRunning: {StatusRunning, StatusCompleted, StatusFailed},
}

// CanTransition reports whether a run may move from one status to another.
// Running → Running is allowed so a recovered run can be resumed.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StepStatus is the outcome recorded for one step.
type StepStatus string

const (
	StepOK       StepStatus = "ok"
	StepRetrying StepStatus = "retrying"
	StepFailed   StepStatus = "failed"
)

var (
	// ErrDuplicateRun is returned by Store.CreateRun when a run with the same
	// request id already exists.
	ErrDuplicateRun = errors.New("workflow run already exists for request")
	// ErrRunNotFound is returned when a run lookup misses.
	ErrRunNotFound = errors.New("workflow run not found")
	// ErrInvalidTransition is returned on an illegal status change.
	ErrInvalidTransition = errors.New("invalid run status transition")
)

// Run is one execution of a workflow for one triggering event.
type Run struct {
	ID        string          `db:"id" json:"id"`
	Kind      string          `db:"kind" json:"kind"`
	RequestID string          `db:"request_id" json:"request_id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	Status    Status          `db:"status" json:"status"`
	Error     string          `db:"error" json:"error,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// NewRun builds a pending run whose payload is the JSON encoding of event.
func NewRun(kind, requestID string, event any) (*Run, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run payload: %w", err)
	}
	now := time.Now().UTC()
	return &Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		RequestID: requestID,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Decode unmarshals the run payload into v.
func (r *Run) Decode(v any) error {
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("failed to decode payload of run %s: %w", r.ID, err)
	}
	return nil
}

// StepResult is the persisted record of one step of a run.
type StepResult struct {
	RunID     string          `db:"run_id" json:"run_id"`
	Name      string          `db:"step_name" json:"name"`
	Status    StepStatus      `db:"status" json:"status"`
	Output    json.RawMessage `db:"output" json:"output,omitempty"`
	Attempts  int             `db:"attempts" json:"attempts"`
	Error     string          `db:"error" json:"error,omitempty"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Store persists runs and their step results.
type Store interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	GetRunByRequestID(ctx context.Context, requestID string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id string, status Status, errMsg string) error
	ListRunsByStatus(ctx context.Context, statuses ...Status) ([]*Run, error)
	SaveStepResult(ctx context.Context, result *StepResult) error
	ListStepResults(ctx context.Context, runID string) ([]StepResult, error)
}
