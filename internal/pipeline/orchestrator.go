// SPDX-License-Identifier: Apache-2.0

// Package pipeline sequences the proposal stages (ANALYZE, GENERATE,
// DEPLOY, SYNC) into one logical run. Completed artifacts are kept on
// failure of later stages; there is no rollback.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/instantprod/proposal-engine/internal/config"
	"github.com/instantprod/proposal-engine/internal/deploy"
	"github.com/instantprod/proposal-engine/internal/domain"
	"github.com/instantprod/proposal-engine/internal/extract"
	"github.com/instantprod/proposal-engine/internal/metrics"
	"github.com/instantprod/proposal-engine/internal/step"
)

const minTranscriptLen = 50

const dataSidecarSuffix = "_data.json"

// StepRunner is the subprocess isolation boundary.
type StepRunner interface {
	Run(ctx context.Context, s step.Step) step.Result
}

// Deployer publishes an artifact and returns its durable record.
type Deployer interface {
	Deploy(ctx context.Context, artifact []byte, projectName string) (domain.DeploymentRecord, error)
}

// RunRecorder optionally persists run history. All Orchestrator call
// sites tolerate a nil recorder.
type RunRecorder interface {
	RecordRunStart(ctx context.Context, run *domain.PipelineRun) error
	RecordStage(ctx context.Context, runID uuid.UUID, rec domain.StageRecord) error
	RecordDeployment(ctx context.Context, runID uuid.UUID, rec domain.DeploymentRecord) error
	RecordRunFinish(ctx context.Context, run *domain.PipelineRun, status domain.RunStatus) error
}

// StageSpec carries the per-stage failure policy. The DEPLOY/SYNC
// asymmetry lives here as data, not in conditional logic: a non-fatal
// stage failure downgrades to a warning and leaves the run's verdict
// alone.
type StageSpec struct {
	Stage domain.Stage
	Fatal bool
}

// Stages returns the pipeline order with each stage's failure policy.
func Stages() []StageSpec {
	return []StageSpec{
		{Stage: domain.StageAnalyze, Fatal: true},
		{Stage: domain.StageGenerate, Fatal: true},
		{Stage: domain.StageDeploy, Fatal: true},
		{Stage: domain.StageSync, Fatal: false},
	}
}

type Deps struct {
	Runner   StepRunner
	Deployer Deployer
	Records  *deploy.RecordStore
	WS       *Workspace
	Recorder RunRecorder
	Logger   *slog.Logger

	AnalyzeCmd  string
	GenerateCmd string
	SyncCmd     string
	EmailCmd    string
	StepTimeout time.Duration
}

type Orchestrator struct {
	runner   StepRunner
	deployer Deployer
	records  *deploy.RecordStore
	ws       *Workspace
	recorder RunRecorder
	logger   *slog.Logger

	analyzeCmd  string
	generateCmd string
	syncCmd     string
	emailCmd    string
	stepTimeout time.Duration
}

func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := deps.StepTimeout
	if timeout <= 0 {
		timeout = step.DefaultTimeout
	}
	return &Orchestrator{
		runner:      deps.Runner,
		deployer:    deps.Deployer,
		records:     deps.Records,
		ws:          deps.WS,
		recorder:    deps.Recorder,
		logger:      logger,
		analyzeCmd:  deps.AnalyzeCmd,
		generateCmd: deps.GenerateCmd,
		syncCmd:     deps.SyncCmd,
		emailCmd:    deps.EmailCmd,
		stepTimeout: timeout,
	}
}

// FromConfig builds an orchestrator from process configuration. The
// deployer may be nil when DEPLOY_TOKEN is absent; deploying (alone or
// as part of a full run) then fails as a configuration error.
func FromConfig(cfg config.Config, deployer Deployer, recorder RunRecorder, logger *slog.Logger) (*Orchestrator, error) {
	ws, err := NewWorkspace(cfg.WorkspaceDir)
	if err != nil {
		return nil, err
	}
	return New(Deps{
		Runner:      step.NewRunner(logger),
		Deployer:    deployer,
		Records:     deploy.NewRecordStore(cfg.WorkspaceDir),
		WS:          ws,
		Recorder:    recorder,
		Logger:      logger,
		AnalyzeCmd:  cfg.AnalyzeCmd,
		GenerateCmd: cfg.GenerateCmd,
		SyncCmd:     cfg.SyncCmd,
		EmailCmd:    cfg.EmailCmd,
		StepTimeout: cfg.StepTimeout,
	}), nil
}

func (o *Orchestrator) Workspace() *Workspace { return o.ws }

func (o *Orchestrator) Records() *deploy.RecordStore { return o.records }

// Run executes the full pipeline for one client. It stops at the first
// fatal stage failure and reports which stage failed; earlier artifacts
// stay on disk since they are independently useful.
func (o *Orchestrator) Run(ctx context.Context, clientName, transcriptText string) domain.PipelineOutcome {
	// A run without a deployer can never finish; report the
	// configuration error before spawning any subprocess.
	if o.deployer == nil {
		return domain.PipelineOutcome{
			Success:     false,
			FailedStage: domain.StageDeploy,
			Reason:      domain.ErrDeployTokenMissing.Error(),
		}
	}

	if len(transcriptText) < minTranscriptLen {
		return domain.PipelineOutcome{
			Success:     false,
			FailedStage: domain.StageAnalyze,
			Reason:      domain.ErrTranscriptTooShort.Error(),
		}
	}

	run := &domain.PipelineRun{
		ID:         uuid.New(),
		ClientName: clientName,
		ClientSlug: domain.Slugify(clientName),
		Stage:      domain.StageAnalyze,
		SyncOK:     true,
		StartedAt:  time.Now().UTC(),
	}

	transcriptPath, err := o.ws.SaveTranscript(run.ClientSlug, transcriptText)
	if err != nil {
		return domain.PipelineOutcome{
			Success:     false,
			FailedStage: domain.StageAnalyze,
			Reason:      err.Error(),
		}
	}
	run.TranscriptPath = transcriptPath

	o.logger.Info("pipeline run starting",
		"run_id", run.ID,
		"client", clientName,
		"slug", run.ClientSlug,
	)
	metrics.IncRunStatus(domain.RunRunning)
	o.recordRunStart(ctx, run)

	for _, spec := range Stages() {
		run.Stage = spec.Stage
		started := time.Now()
		failure := o.execStage(ctx, run, spec.Stage)
		elapsed := time.Since(started)

		metrics.ObserveStageDuration(spec.Stage, elapsed)

		if failure == nil {
			metrics.IncStageStatus(spec.Stage, domain.RunSuccess)
			o.recordStage(ctx, run.ID, domain.StageRecord{
				Stage:      spec.Stage,
				Status:     domain.RunSuccess,
				DurationMS: elapsed.Milliseconds(),
			})
			o.logger.Info("stage completed",
				"run_id", run.ID,
				"stage", spec.Stage,
				"duration_ms", elapsed.Milliseconds(),
			)
			continue
		}

		metrics.IncStageStatus(spec.Stage, domain.RunFailed)
		o.recordStage(ctx, run.ID, domain.StageRecord{
			Stage:      spec.Stage,
			Status:     domain.RunFailed,
			Reason:     failure.Reason,
			DurationMS: elapsed.Milliseconds(),
		})

		if !spec.Fatal {
			run.SyncOK = false
			o.logger.Warn("best-effort stage failed",
				"run_id", run.ID,
				"stage", spec.Stage,
				"reason", failure.Reason,
			)
			continue
		}

		run.Failure = failure
		metrics.IncRunStatus(domain.RunFailed)
		o.recordRunFinish(ctx, run, domain.RunFailed)
		o.logger.Error("pipeline run failed",
			"run_id", run.ID,
			"stage", spec.Stage,
			"reason", failure.Reason,
		)
		return domain.PipelineOutcome{
			Success:     false,
			Transcript:  run.TranscriptPath,
			DataPath:    run.DataPath,
			HTMLPath:    run.HTMLPath,
			FailedStage: failure.Stage,
			Reason:      failure.Reason,
			Failure:     failure,
		}
	}

	run.Stage = domain.StageDone
	metrics.IncRunStatus(domain.RunSuccess)
	o.recordRunFinish(ctx, run, domain.RunSuccess)
	o.logger.Info("pipeline run succeeded",
		"run_id", run.ID,
		"live_url", run.LiveURL,
		"sync_ok", run.SyncOK,
	)

	return domain.PipelineOutcome{
		Success:    true,
		LiveURL:    run.LiveURL,
		Transcript: run.TranscriptPath,
		DataPath:   run.DataPath,
		HTMLPath:   run.HTMLPath,
		SyncOK:     run.SyncOK,
	}
}

func (o *Orchestrator) execStage(ctx context.Context, run *domain.PipelineRun, stage domain.Stage) *domain.FailureRecord {
	switch stage {
	case domain.StageAnalyze:
		return o.runAnalyze(ctx, run)
	case domain.StageGenerate:
		return o.runGenerate(ctx, run)
	case domain.StageDeploy:
		return o.runDeploy(ctx, run)
	case domain.StageSync:
		return o.runSync(ctx, run)
	default:
		return &domain.FailureRecord{Stage: stage, Reason: "unknown stage"}
	}
}

func (o *Orchestrator) runAnalyze(ctx context.Context, run *domain.PipelineRun) *domain.FailureRecord {
	res := o.runner.Run(ctx, step.Step{
		Name:    "analyze",
		Program: o.analyzeCmd,
		Args:    []string{"--transcript", run.TranscriptPath},
		Timeout: o.stepTimeout,
	})
	if !res.Succeeded {
		return stepFailure(domain.StageAnalyze, res)
	}

	// A zero exit is not enough: the sidecar must actually exist.
	dataPath, ok := extract.Sidecar(run.TranscriptPath, dataSidecarSuffix)
	if !ok {
		return &domain.FailureRecord{
			Stage:     domain.StageAnalyze,
			Reason:    fmt.Sprintf("%s: %s", domain.ErrArtifactMissing, dataPath),
			RawOutput: res.CombinedOutput,
		}
	}

	run.DataPath = dataPath
	return nil
}

func (o *Orchestrator) runGenerate(ctx context.Context, run *domain.PipelineRun) *domain.FailureRecord {
	htmlPath := o.ws.ProposalPath(run.ClientSlug)

	res := o.runner.Run(ctx, step.Step{
		Name:    "generate",
		Program: o.generateCmd,
		Args:    []string{"--client-data", run.DataPath, "--output", htmlPath},
		Timeout: o.stepTimeout,
	})
	if !res.Succeeded {
		return stepFailure(domain.StageGenerate, res)
	}

	if !artifactExists(htmlPath) {
		return &domain.FailureRecord{
			Stage:     domain.StageGenerate,
			Reason:    fmt.Sprintf("%s: %s", domain.ErrArtifactMissing, htmlPath),
			RawOutput: res.CombinedOutput,
		}
	}

	run.HTMLPath = htmlPath
	return nil
}

func (o *Orchestrator) runDeploy(ctx context.Context, run *domain.PipelineRun) *domain.FailureRecord {
	rec, err := o.DeployProposal(ctx, run.HTMLPath, run.ClientSlug)
	if err != nil {
		return &domain.FailureRecord{
			Stage:  domain.StageDeploy,
			Reason: err.Error(),
		}
	}

	run.LiveURL = rec.URL
	o.recordDeployment(ctx, run.ID, rec)
	return nil
}

func (o *Orchestrator) runSync(ctx context.Context, run *domain.PipelineRun) *domain.FailureRecord {
	out, err := o.Sync(ctx)
	if err != nil {
		return &domain.FailureRecord{
			Stage:     domain.StageSync,
			Reason:    err.Error(),
			RawOutput: out,
		}
	}

	// The sync collaborator prints the remote location last; surfacing
	// it is informational only.
	if remote, ok := extract.LastURL(out); ok {
		o.logger.Info("workspace synced", "run_id", run.ID, "remote", remote)
	}
	return nil
}

func (o *Orchestrator) saveRecord(rec domain.DeploymentRecord) {
	if o.records == nil {
		return
	}
	if err := o.records.Save(rec); err != nil {
		o.logger.Warn("save deployment record failed",
			"project", rec.ProjectName,
			"error", err,
		)
	}
}

func stepFailure(stage domain.Stage, res step.Result) *domain.FailureRecord {
	return &domain.FailureRecord{
		Stage:     stage,
		Reason:    stepReason(res),
		RawOutput: res.CombinedOutput,
	}
}

func stepReason(res step.Result) string {
	switch {
	case res.TimedOut:
		return res.CombinedOutput
	case res.ExitCode == -1:
		return fmt.Sprintf("launch failed: %s", res.CombinedOutput)
	default:
		return fmt.Sprintf("exited with code %d", res.ExitCode)
	}
}

func (o *Orchestrator) recordRunStart(ctx context.Context, run *domain.PipelineRun) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordRunStart(ctx, run); err != nil {
		o.logger.Warn("record run start failed", "run_id", run.ID, "error", err)
	}
}

func (o *Orchestrator) recordStage(ctx context.Context, runID uuid.UUID, rec domain.StageRecord) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordStage(ctx, runID, rec); err != nil {
		o.logger.Warn("record stage failed", "run_id", runID, "error", err)
	}
}

func (o *Orchestrator) recordDeployment(ctx context.Context, runID uuid.UUID, rec domain.DeploymentRecord) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordDeployment(ctx, runID, rec); err != nil {
		o.logger.Warn("record deployment failed", "run_id", runID, "error", err)
	}
}

func (o *Orchestrator) recordRunFinish(ctx context.Context, run *domain.PipelineRun, status domain.RunStatus) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordRunFinish(ctx, run, status); err != nil {
		o.logger.Warn("record run finish failed", "run_id", run.ID, "error", err)
	}
}

func artifactExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
