// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/instantprod/proposal-engine/internal/domain"
	"github.com/instantprod/proposal-engine/internal/metrics"
	"github.com/instantprod/proposal-engine/internal/tools"
	"github.com/instantprod/proposal-engine/internal/transport/middleware"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultRunsLimit = 50

// ToolDispatcher is the tool surface the router exposes.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, name tools.Name, args tools.Args) (string, error)
}

// RunLister serves the optional run-history endpoints. nil disables
// them.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)
	GetRun(ctx context.Context, id uuid.UUID) (domain.RunSummary, []domain.StageRecord, error)
}

type Deps struct {
	Registry ToolDispatcher
	Runs     RunLister
	Logger   *slog.Logger
	APIToken string
	Version  string
	Commit   string
}

type toolResponse struct {
	Tool   string `json:"tool"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("health check hit")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": version,
			"commit":  commit,
		})
	})

	// ---------------- TOOLS (BEARER AUTH WHEN CONFIGURED) ----------------

	r.Group(func(r chi.Router) {
		if strings.TrimSpace(deps.APIToken) != "" {
			r.Use(middleware.APITokenAuth(deps.APIToken, logger))
		} else {
			logger.Warn("API_TOKEN not set; tool and run endpoints are unauthenticated")
		}

		r.Get("/tools", func(w http.ResponseWriter, r *http.Request) {
			names := tools.All()
			out := make([]string, len(names))
			for i, n := range names {
				out[i] = string(n)
			}
			writeJSON(w, http.StatusOK, map[string]any{"tools": out})
		})

		r.Post("/tools/{name}", func(w http.ResponseWriter, r *http.Request) {
			name := tools.Name(chi.URLParam(r, "name"))

			args, err := decodeToolArgs(r)
			if err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			result, err := deps.Registry.Dispatch(r.Context(), name, args)
			if err != nil {
				if errors.Is(err, tools.ErrUnknownTool) {
					http.Error(w, "unknown tool", http.StatusNotFound)
					return
				}
				logger.Warn("tool failed", "tool", name, "error", err)
				writeJSON(w, http.StatusUnprocessableEntity, toolResponse{
					Tool:  string(name),
					Error: err.Error(),
				})
				return
			}

			writeJSON(w, http.StatusOK, toolResponse{
				Tool:   string(name),
				Result: result,
			})
		})

		// ---------------- RUN HISTORY ----------------

		if deps.Runs != nil {
			r.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
				limit, err := parseLimit(r.URL.Query().Get("limit"))
				if err != nil {
					http.Error(w, "invalid limit", http.StatusBadRequest)
					return
				}

				runs, err := deps.Runs.ListRuns(r.Context(), limit)
				if err != nil {
					logger.Error("list runs failed", "error", err)
					http.Error(w, "failed to list runs", http.StatusInternalServerError)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
			})

			r.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
				runID, err := uuid.Parse(chi.URLParam(r, "id"))
				if err != nil {
					http.Error(w, "invalid run ID", http.StatusBadRequest)
					return
				}

				run, stages, err := deps.Runs.GetRun(r.Context(), runID)
				if err != nil {
					if errors.Is(err, pgx.ErrNoRows) {
						logger.Warn("run not found", "run_id", runID)
						http.Error(w, "run not found", http.StatusNotFound)
						return
					}
					logger.Error("get run failed", "run_id", runID, "error", err)
					http.Error(w, "failed to get run", http.StatusInternalServerError)
					return
				}

				writeJSON(w, http.StatusOK, struct {
					Run    domain.RunSummary    `json:"run"`
					Stages []domain.StageRecord `json:"stages"`
				}{
					Run:    run,
					Stages: stages,
				})
			})
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeToolArgs(r *http.Request) (tools.Args, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return tools.Args{}, nil
	}

	var args tools.Args
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&args); err != nil {
		if errors.Is(err, io.EOF) {
			return tools.Args{}, nil
		}
		return tools.Args{}, err
	}

	// Ensure there is only one JSON object.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return tools.Args{}, errors.New("request body must contain exactly one JSON object")
	}

	return args, nil
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultRunsLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("invalid limit")
	}
	return limit, nil
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
