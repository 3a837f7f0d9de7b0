package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sevigo/review-warden/internal/workflow"
)

const runColumns = `id, kind, request_id, payload, status, error, created_at, updated_at`

func (s *postgresStore) CreateRun(ctx context.Context, run *workflow.Run) error {
	query := `
		INSERT INTO workflow_runs (id, kind, request_id, payload, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Kind, run.RequestID, string(run.Payload), run.Status, run.Error, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("request %s: %w", run.RequestID, workflow.ErrDuplicateRun)
		}
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (s *postgresStore) GetRun(ctx context.Context, id string) (*workflow.Run, error) {
	return s.getRun(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE id = $1`, id)
}

func (s *postgresStore) GetRunByRequestID(ctx context.Context, requestID string) (*workflow.Run, error) {
	return s.getRun(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE request_id = $1`, requestID)
}

func (s *postgresStore) getRun(ctx context.Context, query string, arg any) (*workflow.Run, error) {
	var run workflow.Run
	if err := s.db.GetContext(ctx, &run, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, workflow.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

func (s *postgresStore) UpdateRunStatus(ctx context.Context, id string, status workflow.Status, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_runs SET status = $2, error = $3, updated_at = NOW()
		 WHERE id = $1 AND status NOT IN ('completed', 'failed')`, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", id, err)
	}
	if n > 0 {
		return nil
	}

	// Nothing changed: either the run is gone or it already finished.
	var current workflow.Status
	if err := s.db.GetContext(ctx, &current, `SELECT status FROM workflow_runs WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return workflow.ErrRunNotFound
		}
		return fmt.Errorf("failed to read status of run %s: %w", id, err)
	}
	return fmt.Errorf("run %s: %w: %s -> %s", id, workflow.ErrInvalidTransition, current, status)
}

func (s *postgresStore) ListRunsByStatus(ctx context.Context, statuses ...workflow.Status) ([]*workflow.Run, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+runColumns+` FROM workflow_runs WHERE status IN (?) ORDER BY created_at`, statuses)
	if err != nil {
		return nil, fmt.Errorf("failed to build run query: %w", err)
	}
	var runs []*workflow.Run
	if err := s.db.SelectContext(ctx, &runs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

func (s *postgresStore) SaveStepResult(ctx context.Context, result *workflow.StepResult) error {
	var output sql.NullString
	if len(result.Output) > 0 {
		output = sql.NullString{String: string(result.Output), Valid: true}
	}
	query := `
		INSERT INTO workflow_steps (run_id, step_name, status, output, attempts, error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (run_id, step_name) DO UPDATE
		SET status = EXCLUDED.status, output = EXCLUDED.output, attempts = EXCLUDED.attempts,
		    error = EXCLUDED.error, updated_at = EXCLUDED.updated_at`
	if _, err := s.db.ExecContext(ctx, query,
		result.RunID, result.Name, result.Status, output, result.Attempts, result.Error); err != nil {
		return fmt.Errorf("failed to save step %s of run %s: %w", result.Name, result.RunID, err)
	}
	return nil
}

func (s *postgresStore) ListStepResults(ctx context.Context, runID string) ([]workflow.StepResult, error) {
	var results []workflow.StepResult
	query := `
		SELECT run_id, step_name, status, COALESCE(output, 'null'::jsonb) AS output, attempts, error, updated_at
		FROM workflow_steps
		WHERE run_id = $1`
	if err := s.db.SelectContext(ctx, &results, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list steps of run %s: %w", runID, err)
	}
	return results, nil
}
