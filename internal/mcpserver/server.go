// SPDX-License-Identifier: Apache-2.0

// Package mcpserver exposes the tool registry over the Model Context
// Protocol's stdio transport. Logs must stay on stderr; stdout carries
// the protocol stream.
package mcpserver

import (
	"context"
	"io"
	"log/slog"

	"github.com/instantprod/proposal-engine/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, name tools.Name, args tools.Args) (string, error)
}

type ServerOptions struct {
	ServerName    string
	ServerVersion string
	Registry      Dispatcher
	Logger        *slog.Logger
}

type Server struct {
	Server   *server.MCPServer
	registry Dispatcher
	logger   *slog.Logger
}

func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		Server: server.NewMCPServer(
			opts.ServerName,
			opts.ServerVersion,
			server.WithToolCapabilities(false),
		),
		registry: opts.Registry,
		logger:   logger,
	}

	for _, def := range toolDefinitions() {
		s.Server.AddTool(def.tool, s.handlerFor(def.name))
	}
	return s
}

// ServeStdio blocks until the client disconnects or ctx is canceled.
func (s *Server) ServeStdio(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	stdio := server.NewStdioServer(s.Server)
	return stdio.Listen(ctx, stdin, stdout)
}

func (s *Server) handlerFor(name tools.Name) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args tools.Args
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := s.registry.Dispatch(ctx, name, args)
		if err != nil {
			s.logger.Warn("tool failed", "tool", name, "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(result), nil
	}
}

type toolDef struct {
	name tools.Name
	tool mcp.Tool
}

func toolDefinitions() []toolDef {
	return []toolDef{
		{tools.AnalyzeTranscript, mcp.NewTool(string(tools.AnalyzeTranscript),
			mcp.WithDescription("Analyze a sales call transcript and extract structured client data."),
			mcp.WithString("client_name", mcp.Required(), mcp.Description("Client or company name")),
			mcp.WithString("transcript_text", mcp.Required(), mcp.Description("Raw transcript text")),
		)},
		{tools.GenerateProposal, mcp.NewTool(string(tools.GenerateProposal),
			mcp.WithDescription("Generate an HTML proposal from analyzed client data or a bare client name."),
			mcp.WithString("client_data_path", mcp.Description("Path to an analyzed client data JSON file")),
			mcp.WithString("client_name", mcp.Description("Client name, used when no data file is given")),
			mcp.WithString("website", mcp.Description("Client website for research")),
		)},
		{tools.DeployProposal, mcp.NewTool(string(tools.DeployProposal),
			mcp.WithDescription("Publish a proposal HTML file and return its live URL."),
			mcp.WithString("proposal_path", mcp.Description("Proposal file; defaults to the newest one")),
			mcp.WithString("client_slug", mcp.Description("Slug used to derive the project name")),
		)},
		{tools.QuickProposal, mcp.NewTool(string(tools.QuickProposal),
			mcp.WithDescription("Run the full pipeline: analyze, generate, deploy and sync in one call."),
			mcp.WithString("client_name", mcp.Required(), mcp.Description("Client or company name")),
			mcp.WithString("transcript_text", mcp.Required(), mcp.Description("Raw transcript text")),
		)},
		{tools.SendProposalEmail, mcp.NewTool(string(tools.SendProposalEmail),
			mcp.WithDescription("Email a proposal link to the client."),
			mcp.WithString("to_email", mcp.Required(), mcp.Description("Recipient address")),
			mcp.WithString("subject", mcp.Description("Email subject")),
			mcp.WithString("client_name", mcp.Description("Client name for the greeting")),
			mcp.WithString("link", mcp.Description("Proposal URL; defaults to the last deployment")),
		)},
		{tools.GetLastDeploymentURL, mcp.NewTool(string(tools.GetLastDeploymentURL),
			mcp.WithDescription("Return the URL of the most recent deployment."),
		)},
		{tools.ListProposals, mcp.NewTool(string(tools.ListProposals),
			mcp.WithDescription("List generated proposals, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum entries to return")),
		)},
		{tools.ListTranscripts, mcp.NewTool(string(tools.ListTranscripts),
			mcp.WithDescription("List saved transcripts, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum entries to return")),
		)},
	}
}
