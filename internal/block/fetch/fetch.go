// Package fetch implements the HTTP block. Request shape, timeout,
// retry policy, and status acceptance all come from block logic; the
// underlying client provides TLS, logging, and correlation but no
// transport-level retries, so the policy here is the only retry loop.
package fetch

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/httpclient"
	"github.com/tombee/baton/pkg/workflow"
	"github.com/tombee/baton/pkg/workflow/reference"
)

// DefaultMaxResponseBytes caps response bodies at 10MB.
const DefaultMaxResponseBytes = 10 << 20

// Config tunes the fetch handler.
type Config struct {
	// Client executes requests. When nil, a client without transport
	// retries is built; retry policy lives in block logic, not here.
	Client *http.Client

	// UserAgent is sent when the block does not set its own.
	UserAgent string

	// MaxResponseBytes bounds response body size.
	MaxResponseBytes int64

	// ArtifactDir receives binary response bodies.
	ArtifactDir string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		UserAgent:        "baton-fetch/1.0",
		MaxResponseBytes: DefaultMaxResponseBytes,
		ArtifactDir:      filepath.Join(os.TempDir(), "baton-artifacts"),
	}
}

type handler struct {
	client           *http.Client
	maxResponseBytes int64
	artifactDir      string
}

// New builds the fetch handler.
func New(cfg Config) (block.Handler, error) {
	client := cfg.Client
	if client == nil {
		ccfg := httpclient.DefaultConfig()
		ccfg.RetryAttempts = 0
		ccfg.Timeout = workflow.MaxFetchTimeout
		if cfg.UserAgent != "" {
			ccfg.UserAgent = cfg.UserAgent
		}
		var err error
		client, err = httpclient.New(ccfg)
		if err != nil {
			return nil, fmt.Errorf("build fetch client: %w", err)
		}
	}

	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}

	artifactDir := cfg.ArtifactDir
	if artifactDir == "" {
		artifactDir = DefaultConfig().ArtifactDir
	}

	return &handler{
		client:           client,
		maxResponseBytes: maxBytes,
		artifactDir:      artifactDir,
	}, nil
}

func (h *handler) Type() workflow.BlockType { return workflow.BlockFetch }

func (h *handler) Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	logic := reference.ResolveMap(block.NormalizeLogic(blk.Type, blk.Logic), wc)

	req, err := parseRequest(logic)
	if err != nil {
		return nil, err
	}

	resp, err := h.fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	value, artifacts, err := h.bind(resp, blk, wc)
	if err != nil {
		return nil, err
	}

	result := block.Bound(blk, value)
	if len(artifacts) > 0 {
		result.WithArtifacts(artifacts...)
	}
	return result, nil
}

// fetch runs the attempt loop. Network errors and non-accepted statuses
// retry with exponential backoff until attempts are exhausted; only the
// final failure escalates. Cancellation wins over a pending retry delay.
func (h *handler) fetch(ctx context.Context, r *request) (*response, error) {
	if r.auth != nil {
		r.auth.init(ctx, h.client)
	}

	attempts := r.maxRetries + 1
	delay := r.retryDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay = time.Duration(float64(delay) * r.multiplier)
		}

		resp, err := h.attempt(ctx, r)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !retryable(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		if r.accepted.accepts(resp.status) {
			return resp, nil
		}
		lastErr = fmt.Errorf("request to %s returned status %d, not in accepted set (attempt %d of %d)",
			r.url, resp.status, attempt, attempts)
	}

	return nil, lastErr
}

// attempt executes one request with its own timeout derived from
// fetch_timeout_ms.
func (h *handler) attempt(ctx context.Context, r *request) (*response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, r.method, r.url, body)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:   "fetch_url",
			Message: err.Error(),
		}
	}

	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if r.body != nil && r.bodyIsJSON && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	if r.auth != nil {
		if err := r.auth.apply(req); err != nil {
			return nil, err
		}
	}

	httpResp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := readCapped(httpResp.Body, h.maxResponseBytes)
	if err != nil {
		return nil, err
	}

	return &response{
		status:      httpResp.StatusCode,
		headers:     flattenHeaders(httpResp.Header),
		contentType: httpResp.Header.Get("Content-Type"),
		body:        data,
	}, nil
}

// retryable reports whether an attempt error is transient. Our own
// typed errors (bad config, oversized response) are deterministic and
// abort immediately; everything else is treated as a network failure.
func retryable(err error) bool {
	var verr *errors.ValidationError
	if stderrors.As(err, &verr) {
		return false
	}
	var berr *errors.BlockError
	return !stderrors.As(err, &berr)
}

// readCapped reads at most limit bytes, erroring when the body exceeds
// the cap rather than silently truncating.
func readCapped(rd io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(rd, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &errors.BlockError{
			BlockType: string(workflow.BlockFetch),
			Kind:      errors.CodeUnprocessable,
			Message:   fmt.Sprintf("response body exceeds %d byte limit", limit),
		}
	}
	return data, nil
}

func flattenHeaders(h http.Header) map[string]any {
	out := make(map[string]any, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
