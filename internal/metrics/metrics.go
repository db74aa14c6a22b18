// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/instantprod/proposal-engine/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	runsTotalCounter         *prometheus.CounterVec
	stagesTotalCounter       *prometheus.CounterVec
	stageDurationMetric      *prometheus.HistogramVec
	deployAttemptsCounter    prometheus.Counter
	deployRetriesCounter     prometheus.Counter
	deployDurationMetric     prometheus.Histogram
	toolInvocationsCounter   *prometheus.CounterVec
	stepTimeoutsTotalCounter prometheus.Counter
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		runsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Total number of pipeline runs by terminal status.",
			},
			[]string{"status"},
		)

		stagesTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_stages_total",
				Help: "Total number of executed stages by stage and status.",
			},
			[]string{"stage", "status"},
		)

		stageDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_stage_duration_seconds",
				Help:    "Duration of stage executions in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		)

		deployAttemptsCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "deploy_attempts_total",
				Help: "Total number of deployment API attempts.",
			},
		)

		deployRetriesCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "deploy_retries_total",
				Help: "Total number of retried deployment attempts.",
			},
		)

		deployDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "deploy_duration_seconds",
				Help:    "Duration of whole deploy calls in seconds, retries included.",
				Buckets: prometheus.DefBuckets,
			},
		)

		toolInvocationsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_invocations_total",
				Help: "Total number of tool invocations by tool name.",
			},
			[]string{"tool"},
		)

		stepTimeoutsTotalCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "step_timeouts_total",
				Help: "Total number of step subprocesses killed on timeout.",
			},
		)

		prometheus.MustRegister(
			runsTotalCounter,
			stagesTotalCounter,
			stageDurationMetric,
			deployAttemptsCounter,
			deployRetriesCounter,
			deployDurationMetric,
			toolInvocationsCounter,
			stepTimeoutsTotalCounter,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, status := range []domain.RunStatus{
			domain.RunRunning,
			domain.RunSuccess,
			domain.RunFailed,
		} {
			runsTotalCounter.WithLabelValues(string(status))
		}

		for _, stage := range []domain.Stage{
			domain.StageAnalyze,
			domain.StageGenerate,
			domain.StageDeploy,
			domain.StageSync,
		} {
			stagesTotalCounter.WithLabelValues(string(stage), string(domain.RunSuccess))
			stagesTotalCounter.WithLabelValues(string(stage), string(domain.RunFailed))
		}
	})
}

func IncRunStatus(status domain.RunStatus) {
	Init()
	runsTotalCounter.WithLabelValues(string(status)).Inc()
}

func IncStageStatus(stage domain.Stage, status domain.RunStatus) {
	Init()
	stagesTotalCounter.WithLabelValues(string(stage), string(status)).Inc()
}

func ObserveStageDuration(stage domain.Stage, d time.Duration) {
	Init()
	stageDurationMetric.WithLabelValues(string(stage)).Observe(d.Seconds())
}

func IncDeployAttempts() {
	Init()
	deployAttemptsCounter.Inc()
}

func IncDeployRetries() {
	Init()
	deployRetriesCounter.Inc()
}

func ObserveDeployDuration(d time.Duration) {
	Init()
	deployDurationMetric.Observe(d.Seconds())
}

func IncToolInvocation(tool string) {
	Init()
	toolInvocationsCounter.WithLabelValues(tool).Inc()
}

func IncStepTimeouts() {
	Init()
	stepTimeoutsTotalCounter.Inc()
}
