//go:build integration

// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/instantprod/proposal-engine/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestRunRepositoryIntegration(t *testing.T) {
	ctx := context.Background()
	pool := integrationPool(t, ctx)
	defer pool.Close()

	if err := truncateAll(ctx, pool); err != nil {
		t.Skipf("skip integration test: database not reachable (%v)", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewRunRepository(pool, logger)

	run := &domain.PipelineRun{
		ID:         uuid.New(),
		ClientName: "Acme Corp",
		ClientSlug: "acme-corp",
		Stage:      domain.StageAnalyze,
		SyncOK:     true,
		StartedAt:  time.Now().UTC(),
	}
	if err := repo.RecordRunStart(ctx, run); err != nil {
		t.Fatalf("record run start: %v", err)
	}

	stages := []domain.StageRecord{
		{Stage: domain.StageAnalyze, Status: domain.RunSuccess, DurationMS: 1200},
		{Stage: domain.StageGenerate, Status: domain.RunSuccess, DurationMS: 3400},
		{Stage: domain.StageDeploy, Status: domain.RunSuccess, DurationMS: 800},
		{Stage: domain.StageSync, Status: domain.RunFailed, Reason: "credentials expired", DurationMS: 150},
	}
	for _, rec := range stages {
		if err := repo.RecordStage(ctx, run.ID, rec); err != nil {
			t.Fatalf("record stage %s: %v", rec.Stage, err)
		}
	}

	run.Stage = domain.StageDone
	run.LiveURL = "https://acme.example.app"
	run.SyncOK = false
	if err := repo.RecordRunFinish(ctx, run, domain.RunSuccess); err != nil {
		t.Fatalf("record run finish: %v", err)
	}

	if err := repo.RecordDeployment(ctx, run.ID, domain.DeploymentRecord{
		ProjectName: "proposal-acme-corp",
		URL:         run.LiveURL,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		t.Fatalf("record deployment: %v", err)
	}

	summary, gotStages, err := repo.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if summary.Status != domain.RunSuccess {
		t.Fatalf("expected status %s got %s", domain.RunSuccess, summary.Status)
	}
	if summary.LiveURL != run.LiveURL {
		t.Fatalf("expected live URL %s got %s", run.LiveURL, summary.LiveURL)
	}
	if summary.SyncOK {
		t.Fatal("expected sync_ok=false persisted")
	}
	if summary.FinishedAt.IsZero() {
		t.Fatal("expected finished_at set")
	}
	if len(gotStages) != len(stages) {
		t.Fatalf("expected %d stages got %d", len(stages), len(gotStages))
	}
	if gotStages[3].Stage != domain.StageSync || gotStages[3].Reason != "credentials expired" {
		t.Fatalf("unexpected sync stage record %+v", gotStages[3])
	}

	runs, err := repo.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID {
		t.Fatalf("unexpected run listing %+v", runs)
	}
}

func TestRecordRunFinishFailureIntegration(t *testing.T) {
	ctx := context.Background()
	pool := integrationPool(t, ctx)
	defer pool.Close()

	if err := truncateAll(ctx, pool); err != nil {
		t.Skipf("skip integration test: database not reachable (%v)", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewRunRepository(pool, logger)

	run := &domain.PipelineRun{
		ID:         uuid.New(),
		ClientName: "Globex",
		ClientSlug: "globex",
		Stage:      domain.StageAnalyze,
		SyncOK:     true,
		StartedAt:  time.Now().UTC(),
	}
	if err := repo.RecordRunStart(ctx, run); err != nil {
		t.Fatalf("record run start: %v", err)
	}

	run.Stage = domain.StageGenerate
	run.Failure = &domain.FailureRecord{
		Stage:  domain.StageGenerate,
		Reason: "exited with code 2",
	}
	if err := repo.RecordRunFinish(ctx, run, domain.RunFailed); err != nil {
		t.Fatalf("record run finish: %v", err)
	}

	var failedStage, reason string
	err := pool.QueryRow(ctx,
		`SELECT failed_stage, failure_reason FROM pipeline_runs WHERE id=$1`,
		run.ID,
	).Scan(&failedStage, &reason)
	if err != nil {
		t.Fatalf("query failure columns: %v", err)
	}
	if failedStage != string(domain.StageGenerate) || reason != "exited with code 2" {
		t.Fatalf("unexpected failure columns %q %q", failedStage, reason)
	}
}

func truncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `TRUNCATE TABLE deployments, pipeline_stages, pipeline_runs RESTART IDENTITY CASCADE`)
	return err
}

func integrationPool(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set DATABASE_URL to run integration tests")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		t.Skipf("skip integration test: cannot create pgx pool (%v)", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skip integration test: cannot reach database (%v)", err)
	}

	return pool
}
