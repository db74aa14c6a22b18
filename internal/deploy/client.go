// SPDX-License-Identifier: Apache-2.0

// Package deploy publishes a proposal artifact through the remote
// deployment API. The client owns the retry policy: bounded attempts,
// exponential backoff with jitter, and retryable-vs-terminal response
// classification.
package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/instantprod/proposal-engine/internal/config"
	"github.com/instantprod/proposal-engine/internal/domain"
	"github.com/instantprod/proposal-engine/internal/metrics"
)

const (
	jitterMax       = 250 * time.Millisecond
	maxBodySnippet  = 512
	projectNameCap  = 50
	projectPrefix   = "proposal-"
	artifactName    = "index.html"
	deployTarget    = "production"
	responseBodyCap = 1 << 20
)

// APIError is a definitive non-2xx answer from the deployment API.
// Retryable says whether the status class is transient (408, 429, 5xx).
type APIError struct {
	StatusCode int
	Body       string
	Retryable  bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deployment API returned %d: %s", e.StatusCode, e.Body)
}

// ExhaustedError reports that every allowed attempt failed retryably.
// The caller must not assume a partial deployment exists.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("deploy failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

type Client struct {
	cfg        config.DeployConfig
	httpClient *http.Client
	logger     *slog.Logger

	// sleep is swapped in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error

	mu  sync.Mutex
	rnd *rand.Rand
}

// New validates configuration and builds a client. A missing token is a
// hard configuration error reported before any network activity.
func New(cfg config.DeployConfig, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, domain.ErrDeployTokenMissing
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.ReadTimeout,
		},
		logger: logger,
		sleep:  sleepCtx,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// ProjectName derives the deployment target identity from a client
// slug: lowercased, spaces to hyphens, capped at 50 characters. The
// same slug always yields the same project, so the remote service sees
// repeated deploys as versions of one project.
func ProjectName(clientSlug string) string {
	name := projectPrefix + strings.ReplaceAll(strings.ToLower(strings.TrimSpace(clientSlug)), " ", "-")
	if len(name) > projectNameCap {
		name = name[:projectNameCap]
	}
	return name
}

type deployRequest struct {
	Name   string       `json:"name"`
	Files  []deployFile `json:"files"`
	Target string       `json:"target"`
}

type deployFile struct {
	File string `json:"file"`
	Data string `json:"data"`
}

type deployResponse struct {
	URL        string   `json:"url"`
	Alias      []string `json:"alias"`
	AliasFinal string   `json:"aliasFinal"`
}

// Deploy submits the artifact inline in a single request and retries
// transient failures with exponential backoff plus jitter. On success
// the public URL is resolved alias-first, since the stable alias beats
// the ephemeral per-deployment URL.
func (c *Client) Deploy(ctx context.Context, artifact []byte, projectName string) (domain.DeploymentRecord, error) {
	started := time.Now()
	defer func() {
		metrics.ObserveDeployDuration(time.Since(started))
	}()

	body, err := json.Marshal(deployRequest{
		Name: projectName,
		Files: []deployFile{
			{File: artifactName, Data: string(artifact)},
		},
		Target: deployTarget,
	})
	if err != nil {
		return domain.DeploymentRecord{}, fmt.Errorf("marshal deploy payload: %w", err)
	}

	endpoint, err := c.endpoint()
	if err != nil {
		return domain.DeploymentRecord{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		metrics.IncDeployAttempts()

		rec, attemptErr := c.attempt(ctx, endpoint, body, projectName)
		if attemptErr == nil {
			c.logger.Info("deploy succeeded",
				"project", projectName,
				"url", rec.URL,
				"attempt", attempt,
			)
			return rec, nil
		}

		lastErr = attemptErr
		if !isRetryable(attemptErr) {
			c.logger.Error("deploy failed terminally",
				"project", projectName,
				"attempt", attempt,
				"error", attemptErr,
			)
			return domain.DeploymentRecord{}, attemptErr
		}

		c.logger.Warn("deploy attempt failed",
			"project", projectName,
			"attempt", attempt,
			"max_attempts", c.cfg.MaxAttempts,
			"error", attemptErr,
		)

		if attempt < c.cfg.MaxAttempts {
			metrics.IncDeployRetries()
			wait := c.backoff(attempt)
			if err := c.sleep(ctx, wait); err != nil {
				return domain.DeploymentRecord{}, fmt.Errorf("deploy canceled before retry: %w", err)
			}
		}
	}

	return domain.DeploymentRecord{}, &ExhaustedError{
		Attempts: c.cfg.MaxAttempts,
		LastErr:  lastErr,
	}
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.APIURL)
	if err != nil {
		return "", fmt.Errorf("invalid deploy API URL: %w", err)
	}
	if strings.TrimSpace(c.cfg.TeamID) != "" {
		q := u.Query()
		q.Set("teamId", c.cfg.TeamID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) attempt(ctx context.Context, endpoint string, body []byte, projectName string) (domain.DeploymentRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.DeploymentRecord{}, fmt.Errorf("build deploy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Connection-level failures and client timeouts are transient.
		return domain.DeploymentRecord{}, &transportError{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyCap))
	if err != nil {
		return domain.DeploymentRecord{}, &transportError{err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return domain.DeploymentRecord{}, &APIError{
			StatusCode: resp.StatusCode,
			Body:       snippet(respBody),
			Retryable:  retryableStatus(resp.StatusCode),
		}
	}

	var parsed deployResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return domain.DeploymentRecord{}, fmt.Errorf("decode deploy response: %w", err)
	}

	liveURL := resolveURL(parsed)
	if liveURL == "" {
		return domain.DeploymentRecord{}, fmt.Errorf("deploy response carried no usable URL")
	}

	return domain.DeploymentRecord{
		ProjectName: projectName,
		URL:         liveURL,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// resolveURL prefers the finalized alias, then the first listed alias,
// then the raw per-deployment URL.
func resolveURL(r deployResponse) string {
	switch {
	case strings.TrimSpace(r.AliasFinal) != "":
		return ensureScheme(r.AliasFinal)
	case len(r.Alias) > 0 && strings.TrimSpace(r.Alias[0]) != "":
		return ensureScheme(r.Alias[0])
	case strings.TrimSpace(r.URL) != "":
		return ensureScheme(r.URL)
	default:
		return ""
	}
}

func ensureScheme(u string) string {
	u = strings.TrimSpace(u)
	if strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://") {
		return u
	}
	return "https://" + u
}

func (c *Client) backoff(attempt int) time.Duration {
	wait := c.cfg.BackoffBase * time.Duration(1<<(attempt-1))

	c.mu.Lock()
	jitter := time.Duration(c.rnd.Int63n(int64(jitterMax)))
	c.mu.Unlock()

	return wait + jitter
}

type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.Retryable
	}
	if _, ok := err.(*transportError); ok {
		return true
	}
	return false
}

func retryableStatus(status int) bool {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 500 && status <= 599:
		return true
	default:
		return false
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodySnippet {
		s = s[:maxBodySnippet] + "..."
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
