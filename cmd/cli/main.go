// SPDX-License-Identifier: Apache-2.0

// The cli binary runs individual proposal operations from a shell,
// without the API or MCP surfaces.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/instantprod/proposal-engine/internal/config"
	"github.com/instantprod/proposal-engine/internal/deploy"
	"github.com/instantprod/proposal-engine/internal/logging"
	"github.com/instantprod/proposal-engine/internal/pipeline"
	"github.com/instantprod/proposal-engine/internal/tools"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	cfg := config.Load()
	logger := logging.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	var deployer pipeline.Deployer
	if cfg.Deploy.Token != "" {
		client, err := deploy.New(cfg.Deploy, logger)
		if err != nil {
			log.Fatalf("deploy client init failed: %v", err)
		}
		deployer = client
	}

	orch, err := pipeline.FromConfig(cfg, deployer, nil, logger)
	if err != nil {
		log.Fatalf("pipeline init failed: %v", err)
	}
	registry := tools.NewRegistry(orch)

	name, args, err := parseCommand(os.Args[1], os.Args[2:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		printUsage(os.Stderr)
		os.Exit(1)
	}

	result, err := registry.Dispatch(ctx, name, args)
	if err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}

	fmt.Println(result)
}

func parseCommand(command string, argv []string) (tools.Name, tools.Args, error) {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)

	var args tools.Args
	var name tools.Name
	var transcriptFile string

	switch command {
	case "analyze":
		name = tools.AnalyzeTranscript
		fs.StringVar(&args.ClientName, "client", "", "client name")
		fs.StringVar(&transcriptFile, "transcript", "", "transcript file path")
	case "generate":
		name = tools.GenerateProposal
		fs.StringVar(&args.ClientDataPath, "client-data", "", "analyzed client data JSON")
		fs.StringVar(&args.ClientName, "client", "", "client name")
		fs.StringVar(&args.Website, "website", "", "client website")
	case "deploy":
		name = tools.DeployProposal
		fs.StringVar(&args.ProposalPath, "proposal", "", "proposal HTML file (defaults to newest)")
		fs.StringVar(&args.ClientSlug, "slug", "", "client slug for the project name")
	case "quick":
		name = tools.QuickProposal
		fs.StringVar(&args.ClientName, "client", "", "client name")
		fs.StringVar(&transcriptFile, "transcript", "", "transcript file path")
	case "email":
		name = tools.SendProposalEmail
		fs.StringVar(&args.ToEmail, "to", "", "recipient address")
		fs.StringVar(&args.Subject, "subject", "", "email subject")
		fs.StringVar(&args.ClientName, "client", "", "client name")
		fs.StringVar(&args.Link, "link", "", "proposal URL (defaults to last deployment)")
	case "last-url":
		name = tools.GetLastDeploymentURL
	case "proposals":
		name = tools.ListProposals
		fs.IntVar(&args.Limit, "limit", 0, "maximum entries")
	case "transcripts":
		name = tools.ListTranscripts
		fs.IntVar(&args.Limit, "limit", 0, "maximum entries")
	default:
		return "", tools.Args{}, fmt.Errorf("unknown command %q", command)
	}

	if err := fs.Parse(argv); err != nil {
		return "", tools.Args{}, err
	}

	if transcriptFile != "" {
		text, err := os.ReadFile(transcriptFile)
		if err != nil {
			return "", tools.Args{}, fmt.Errorf("read transcript: %w", err)
		}
		args.TranscriptText = string(text)
	}

	return name, args, nil
}

func printUsage(w *os.File) {
	fmt.Fprintln(w, `usage: cli <command> [flags]

commands:
  analyze      -client NAME -transcript FILE
  generate     -client-data FILE | -client NAME [-website URL]
  deploy       [-proposal FILE] [-slug SLUG]
  quick        -client NAME -transcript FILE
  email        -to ADDR [-subject S] [-client NAME] [-link URL]
  last-url
  proposals    [-limit N]
  transcripts  [-limit N]`)
}
