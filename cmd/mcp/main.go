// SPDX-License-Identifier: Apache-2.0

// The mcp binary serves the proposal tools over stdio for MCP clients.
// All logging goes to stderr; stdout carries the protocol stream.
package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/instantprod/proposal-engine/internal/config"
	"github.com/instantprod/proposal-engine/internal/deploy"
	"github.com/instantprod/proposal-engine/internal/logging"
	"github.com/instantprod/proposal-engine/internal/mcpserver"
	"github.com/instantprod/proposal-engine/internal/pipeline"
	"github.com/instantprod/proposal-engine/internal/tools"
)

var Version = "dev"

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env)

	var deployer pipeline.Deployer
	if cfg.Deploy.Token != "" {
		client, err := deploy.New(cfg.Deploy, logger)
		if err != nil {
			log.Fatalf("deploy client init failed: %v", err)
		}
		deployer = client
	} else {
		logger.Warn("DEPLOY_TOKEN not set; deploy tools will fail")
	}

	orch, err := pipeline.FromConfig(cfg, deployer, nil, logger)
	if err != nil {
		log.Fatalf("pipeline init failed: %v", err)
	}

	svr := mcpserver.NewServer(mcpserver.ServerOptions{
		ServerName:    "proposal-engine",
		ServerVersion: Version,
		Registry:      tools.NewRegistry(orch),
		Logger:        logger,
	})

	logger.Info("mcp server listening on stdio", "version", Version)

	err = svr.ServeStdio(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		logger.Error("mcp server failed", "error", err)
		os.Exit(1)
	}
}
