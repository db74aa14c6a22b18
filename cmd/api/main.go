// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/instantprod/proposal-engine/internal/config"
	"github.com/instantprod/proposal-engine/internal/deploy"
	"github.com/instantprod/proposal-engine/internal/logging"
	"github.com/instantprod/proposal-engine/internal/persistence/postgres"
	"github.com/instantprod/proposal-engine/internal/pipeline"
	"github.com/instantprod/proposal-engine/internal/repository"
	"github.com/instantprod/proposal-engine/internal/tools"
	httptransport "github.com/instantprod/proposal-engine/internal/transport/http"
)

var (
	Version = "dev"
	Commit  = "none"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env)

	var recorder pipeline.RunRecorder
	var runs httptransport.RunLister

	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect failed: %v", err)
		}
		defer pool.Close()

		if cfg.AutoMigrate {
			if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
				log.Fatalf("schema bootstrap failed: %v", err)
			}
		}

		repo := repository.NewRunRepository(pool, logger)
		recorder = repo
		runs = repo
	} else {
		logger.Warn("DATABASE_URL not set; run history disabled")
	}

	var deployer pipeline.Deployer
	if cfg.Deploy.Token != "" {
		client, err := deploy.New(cfg.Deploy, logger)
		if err != nil {
			log.Fatalf("deploy client init failed: %v", err)
		}
		deployer = client
	} else {
		logger.Warn("DEPLOY_TOKEN not set; deploy operations will fail")
	}

	orch, err := pipeline.FromConfig(cfg, deployer, recorder, logger)
	if err != nil {
		log.Fatalf("pipeline init failed: %v", err)
	}

	handler := httptransport.NewRouter(httptransport.Deps{
		Registry: tools.NewRegistry(orch),
		Runs:     runs,
		Logger:   logger,
		APIToken: cfg.APIToken,
		Version:  Version,
		Commit:   Commit,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
		)

		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}
