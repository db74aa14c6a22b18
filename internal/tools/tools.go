// SPDX-License-Identifier: Apache-2.0

// Package tools exposes the proposal operations behind a closed set of
// named tools. Both the HTTP API and the MCP server dispatch through
// this registry so the two surfaces cannot drift.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/instantprod/proposal-engine/internal/domain"
	"github.com/instantprod/proposal-engine/internal/metrics"
	"github.com/instantprod/proposal-engine/internal/pipeline"
)

type Name string

const (
	AnalyzeTranscript    Name = "analyze_transcript"
	GenerateProposal     Name = "generate_proposal"
	DeployProposal       Name = "deploy_proposal"
	QuickProposal        Name = "quick_proposal"
	SendProposalEmail    Name = "send_proposal_email"
	GetLastDeploymentURL Name = "get_last_deployment_url"
	ListProposals        Name = "list_proposals"
	ListTranscripts      Name = "list_transcripts"
)

// All returns every registered tool name. Dispatch is exhaustive over
// this list; adding a name here without a handler is a test failure.
func All() []Name {
	return []Name{
		AnalyzeTranscript,
		GenerateProposal,
		DeployProposal,
		QuickProposal,
		SendProposalEmail,
		GetLastDeploymentURL,
		ListProposals,
		ListTranscripts,
	}
}

var ErrUnknownTool = errors.New("unknown tool")

// Args is the flat argument set shared by all tools. Each handler reads
// the fields it needs and ignores the rest.
type Args struct {
	ClientName     string `json:"client_name,omitempty"`
	TranscriptText string `json:"transcript_text,omitempty"`
	ClientDataPath string `json:"client_data_path,omitempty"`
	Website        string `json:"website,omitempty"`
	ProposalPath   string `json:"proposal_path,omitempty"`
	ClientSlug     string `json:"client_slug,omitempty"`
	ToEmail        string `json:"to_email,omitempty"`
	Subject        string `json:"subject,omitempty"`
	Link           string `json:"link,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

const defaultListLimit = 20

// Registry binds tool names to orchestrator operations.
type Registry struct {
	orch *pipeline.Orchestrator
}

func NewRegistry(orch *pipeline.Orchestrator) *Registry {
	return &Registry{orch: orch}
}

// Dispatch runs the named tool and returns its text payload. A tool
// error comes back as err with an empty payload; callers decide how to
// encode that for their transport.
func (reg *Registry) Dispatch(ctx context.Context, name Name, args Args) (string, error) {
	metrics.IncToolInvocation(string(name))

	switch name {
	case AnalyzeTranscript:
		return reg.analyzeTranscript(ctx, args)
	case GenerateProposal:
		return reg.generateProposal(ctx, args)
	case DeployProposal:
		return reg.deployProposal(ctx, args)
	case QuickProposal:
		return reg.quickProposal(ctx, args)
	case SendProposalEmail:
		return reg.sendProposalEmail(ctx, args)
	case GetLastDeploymentURL:
		return reg.lastDeploymentURL()
	case ListProposals:
		return reg.listProposals(args)
	case ListTranscripts:
		return reg.listTranscripts(args)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

func (reg *Registry) analyzeTranscript(ctx context.Context, args Args) (string, error) {
	if strings.TrimSpace(args.ClientName) == "" {
		return "", errors.New("client_name is required")
	}
	transcriptPath, dataPath, err := reg.orch.Analyze(ctx, args.ClientName, args.TranscriptText)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Transcript analyzed for %s.\nTranscript: %s\nClient data: %s",
		args.ClientName, transcriptPath, dataPath), nil
}

func (reg *Registry) generateProposal(ctx context.Context, args Args) (string, error) {
	htmlPath, err := reg.orch.Generate(ctx, args.ClientDataPath, args.ClientName, args.Website)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Proposal generated: %s", htmlPath), nil
}

func (reg *Registry) deployProposal(ctx context.Context, args Args) (string, error) {
	rec, err := reg.orch.DeployProposal(ctx, args.ProposalPath, args.ClientSlug)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Deployed %s\nLive URL: %s", rec.ProjectName, rec.URL), nil
}

func (reg *Registry) quickProposal(ctx context.Context, args Args) (string, error) {
	if strings.TrimSpace(args.ClientName) == "" {
		return "", errors.New("client_name is required")
	}

	outcome := reg.orch.Run(ctx, args.ClientName, args.TranscriptText)
	if !outcome.Success {
		return "", fmt.Errorf("pipeline failed at %s: %s", outcome.FailedStage, outcome.Reason)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Proposal pipeline complete for %s.\n", args.ClientName)
	fmt.Fprintf(&b, "Live URL: %s\n", outcome.LiveURL)
	fmt.Fprintf(&b, "Proposal: %s\n", outcome.HTMLPath)
	fmt.Fprintf(&b, "Client data: %s", outcome.DataPath)
	if !outcome.SyncOK {
		b.WriteString("\nWarning: workspace sync failed; artifacts are local only.")
	}
	return b.String(), nil
}

func (reg *Registry) sendProposalEmail(ctx context.Context, args Args) (string, error) {
	if strings.TrimSpace(args.ToEmail) == "" {
		return "", errors.New("to_email is required")
	}
	link := args.Link
	if strings.TrimSpace(link) == "" {
		url, err := reg.orch.LastDeploymentURL()
		if err != nil {
			return "", fmt.Errorf("no link provided and no previous deployment: %w", err)
		}
		link = url
	}
	if err := reg.orch.SendEmail(ctx, args.ToEmail, args.Subject, args.ClientName, link); err != nil {
		return "", err
	}
	return fmt.Sprintf("Proposal email sent to %s", args.ToEmail), nil
}

func (reg *Registry) lastDeploymentURL() (string, error) {
	url, err := reg.orch.LastDeploymentURL()
	if err != nil {
		if errors.Is(err, domain.ErrNoDeployment) {
			return "", errors.New("no deployments recorded yet")
		}
		return "", err
	}
	return url, nil
}

func (reg *Registry) listProposals(args Args) (string, error) {
	files, err := reg.orch.Workspace().ListProposals(limitOrDefault(args.Limit))
	if err != nil {
		return "", err
	}
	return formatListing("proposals", files), nil
}

func (reg *Registry) listTranscripts(args Args) (string, error) {
	files, err := reg.orch.Workspace().ListTranscripts(limitOrDefault(args.Limit))
	if err != nil {
		return "", err
	}
	return formatListing("transcripts", files), nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func formatListing(kind string, files []pipeline.FileEntry) string {
	if len(files) == 0 {
		return fmt.Sprintf("No %s found.", kind)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s (newest first):", len(files), kind)
	for _, f := range files {
		fmt.Fprintf(&b, "\n%s\t%d bytes\t%s", f.Name, f.SizeBytes, f.Modified.Format("2006-01-02 15:04"))
	}
	return b.String()
}
