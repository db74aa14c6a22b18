// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/instantprod/proposal-engine/internal/deploy"
	"github.com/instantprod/proposal-engine/internal/domain"
	"github.com/instantprod/proposal-engine/internal/extract"
	"github.com/instantprod/proposal-engine/internal/step"
)

// The standalone operations below back the individual tools. They use
// the same building blocks as Run so a stage behaves identically
// whether invoked alone or inside the pipeline.

// Analyze saves the transcript and runs the ANALYZE collaborator.
// It returns the transcript path and the derived data sidecar path.
func (o *Orchestrator) Analyze(ctx context.Context, clientName, transcriptText string) (string, string, error) {
	if strings.TrimSpace(transcriptText) == "" {
		return "", "", errors.New("transcript_text is required")
	}

	slug := domain.Slugify(clientName)
	transcriptPath, err := o.ws.SaveTranscript(slug, transcriptText)
	if err != nil {
		return "", "", err
	}

	res := o.runner.Run(ctx, step.Step{
		Name:    "analyze",
		Program: o.analyzeCmd,
		Args:    []string{"--transcript", transcriptPath},
		Timeout: o.stepTimeout,
	})
	if !res.Succeeded {
		return transcriptPath, "", fmt.Errorf("analysis failed: %s", failureText(res))
	}

	dataPath, ok := extract.Sidecar(transcriptPath, dataSidecarSuffix)
	if !ok {
		return transcriptPath, "", fmt.Errorf("%w: %s", domain.ErrArtifactMissing, dataPath)
	}
	return transcriptPath, dataPath, nil
}

// Generate produces the HTML proposal either from an analyzed data
// sidecar or directly from a client name (optionally with a website).
func (o *Orchestrator) Generate(ctx context.Context, dataPath, clientName, website string) (string, error) {
	var args []string
	switch {
	case strings.TrimSpace(dataPath) != "":
		args = []string{"--client-data", dataPath}
	case strings.TrimSpace(clientName) != "":
		args = []string{"--client-name", clientName}
		if strings.TrimSpace(website) != "" {
			args = append(args, "--website", website)
		}
	default:
		return "", errors.New("either client_data_path or client_name is required")
	}

	slug := domain.Slugify(clientName)
	if slug == "" {
		slug = "proposal"
	}
	htmlPath := o.ws.ProposalPath(slug)
	args = append(args, "--output", htmlPath)

	res := o.runner.Run(ctx, step.Step{
		Name:    "generate",
		Program: o.generateCmd,
		Args:    args,
		Timeout: o.stepTimeout,
	})
	if !res.Succeeded {
		return "", fmt.Errorf("generation failed: %s", failureText(res))
	}
	if !artifactExists(htmlPath) {
		return "", fmt.Errorf("%w: %s", domain.ErrArtifactMissing, htmlPath)
	}
	return htmlPath, nil
}

// DeployProposal publishes an existing proposal file through the
// Deployment Client and persists the resulting record.
func (o *Orchestrator) DeployProposal(ctx context.Context, proposalPath, clientSlug string) (domain.DeploymentRecord, error) {
	if o.deployer == nil {
		return domain.DeploymentRecord{}, domain.ErrDeployTokenMissing
	}

	if strings.TrimSpace(proposalPath) == "" {
		// Fall back to the most recent proposal, mirroring manual use.
		proposals, err := o.ws.ListProposals(1)
		if err != nil {
			return domain.DeploymentRecord{}, err
		}
		if len(proposals) == 0 {
			return domain.DeploymentRecord{}, errors.New("no proposal_path provided and no proposals found")
		}
		proposalPath = proposals[0].Path
	}

	artifact, err := os.ReadFile(proposalPath)
	if err != nil {
		return domain.DeploymentRecord{}, fmt.Errorf("read proposal: %w", err)
	}

	rec, err := o.deployer.Deploy(ctx, artifact, deploy.ProjectName(clientSlug))
	if err != nil {
		return domain.DeploymentRecord{}, err
	}

	o.saveRecord(rec)
	return rec, nil
}

// Sync pushes the workspace to remote storage. Best effort by policy;
// the caller decides how loudly to report failure.
func (o *Orchestrator) Sync(ctx context.Context) (string, error) {
	res := o.runner.Run(ctx, step.Step{
		Name:    "sync",
		Program: o.syncCmd,
		Args:    []string{"--action", "sync", "--root", o.ws.Root()},
		Timeout: o.stepTimeout,
	})
	if !res.Succeeded {
		return res.CombinedOutput, fmt.Errorf("sync failed: %s", failureText(res))
	}
	return res.CombinedOutput, nil
}

// SendEmail dispatches the proposal link through the mailer
// collaborator.
func (o *Orchestrator) SendEmail(ctx context.Context, toEmail, subject, clientName, link string) error {
	res := o.runner.Run(ctx, step.Step{
		Name:    "send-email",
		Program: o.emailCmd,
		Args: []string{
			"--to", toEmail,
			"--subject", subject,
			"--client-name", clientName,
			"--link", link,
		},
		Timeout: o.stepTimeout,
	})
	if !res.Succeeded {
		return fmt.Errorf("email failed: %s", failureText(res))
	}
	return nil
}

// LastDeploymentURL reads the most recent deployment record.
func (o *Orchestrator) LastDeploymentURL() (string, error) {
	if o.records == nil {
		return "", domain.ErrNoDeployment
	}
	rec, err := o.records.Load()
	if err != nil {
		return "", err
	}
	return rec.URL, nil
}

func failureText(res step.Result) string {
	reason := stepReason(res)
	out := strings.TrimSpace(res.CombinedOutput)
	if out == "" || out == reason || res.TimedOut || res.ExitCode == -1 {
		return reason
	}
	return fmt.Sprintf("%s\n%s", reason, out)
}
