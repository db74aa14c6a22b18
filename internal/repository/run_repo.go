// SPDX-License-Identifier: Apache-2.0

// Package repository persists pipeline run history to Postgres. It is
// optional infrastructure; pipeline execution never depends on it.
package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/instantprod/proposal-engine/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RunRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewRunRepository(pool *pgxpool.Pool, logger *slog.Logger) *RunRepository {
	return &RunRepository{
		pool:   pool,
		logger: logger,
	}
}

func (r *RunRepository) RecordRunStart(ctx context.Context, run *domain.PipelineRun) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, client_name, client_slug, status, stage, sync_ok, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.ClientName, run.ClientSlug, domain.RunRunning, run.Stage, run.SyncOK, run.StartedAt,
	)
	if err != nil {
		r.logger.Error("insert run failed", "run_id", run.ID, "error", err)
		return err
	}
	return nil
}

func (r *RunRepository) RecordStage(ctx context.Context, runID uuid.UUID, rec domain.StageRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO pipeline_stages (id, run_id, stage, status, reason, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), runID, rec.Stage, rec.Status, rec.Reason, rec.DurationMS,
	)
	if err != nil {
		r.logger.Error("insert stage failed",
			"run_id", runID,
			"stage", rec.Stage,
			"error", err,
		)
		return err
	}
	return nil
}

func (r *RunRepository) RecordRunFinish(ctx context.Context, run *domain.PipelineRun, status domain.RunStatus) error {
	var reason string
	var failedStage domain.Stage
	if run.Failure != nil {
		reason = run.Failure.Reason
		failedStage = run.Failure.Stage
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE pipeline_runs
		 SET status=$2, stage=$3, live_url=$4, sync_ok=$5,
		     failed_stage=NULLIF($6, ''), failure_reason=NULLIF($7, ''),
		     finished_at=NOW()
		 WHERE id=$1`,
		run.ID, status, run.Stage, run.LiveURL, run.SyncOK, string(failedStage), reason,
	)
	if err != nil {
		r.logger.Error("finish run failed", "run_id", run.ID, "error", err)
		return err
	}
	return nil
}

// RecordDeployment keeps the durable deployment history next to the
// workspace-local record file.
func (r *RunRepository) RecordDeployment(ctx context.Context, runID uuid.UUID, rec domain.DeploymentRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO deployments (id, run_id, project_name, url, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), runID, rec.ProjectName, rec.URL, rec.CreatedAt,
	)
	if err != nil {
		r.logger.Error("insert deployment failed", "run_id", runID, "error", err)
		return err
	}
	return nil
}

func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, client_name, client_slug, status, stage,
		        COALESCE(live_url, ''), sync_ok, started_at, finished_at
		 FROM pipeline_runs
		 ORDER BY started_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		r.logger.Error("list runs failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunSummary
	for rows.Next() {
		summary, err := scanRunSummary(rows)
		if err != nil {
			r.logger.Error("scan run failed", "error", err)
			return nil, err
		}
		runs = append(runs, summary)
	}
	return runs, rows.Err()
}

func (r *RunRepository) GetRun(ctx context.Context, id uuid.UUID) (domain.RunSummary, []domain.StageRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, client_name, client_slug, status, stage,
		        COALESCE(live_url, ''), sync_ok, started_at, finished_at
		 FROM pipeline_runs
		 WHERE id=$1`,
		id,
	)
	summary, err := scanRunSummary(row)
	if err != nil {
		if err != pgx.ErrNoRows {
			r.logger.Error("get run failed", "run_id", id, "error", err)
		}
		return domain.RunSummary{}, nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT stage, status, COALESCE(reason, ''), duration_ms
		 FROM pipeline_stages
		 WHERE run_id=$1
		 ORDER BY recorded_at ASC`,
		id,
	)
	if err != nil {
		r.logger.Error("list stages failed", "run_id", id, "error", err)
		return domain.RunSummary{}, nil, err
	}
	defer rows.Close()

	var stages []domain.StageRecord
	for rows.Next() {
		var rec domain.StageRecord
		if err := rows.Scan(&rec.Stage, &rec.Status, &rec.Reason, &rec.DurationMS); err != nil {
			return domain.RunSummary{}, nil, err
		}
		stages = append(stages, rec)
	}
	return summary, stages, rows.Err()
}

func scanRunSummary(row pgx.Row) (domain.RunSummary, error) {
	var summary domain.RunSummary
	var finished *time.Time
	err := row.Scan(
		&summary.ID,
		&summary.ClientName,
		&summary.ClientSlug,
		&summary.Status,
		&summary.Stage,
		&summary.LiveURL,
		&summary.SyncOK,
		&summary.StartedAt,
		&finished,
	)
	if err != nil {
		return domain.RunSummary{}, err
	}
	if finished != nil {
		summary.FinishedAt = *finished
	}
	return summary, nil
}
