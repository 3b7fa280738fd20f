package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ragnarcb/chatclip/internal/pipelineerr"
	"github.com/ragnarcb/chatclip/internal/voicejob"
)

// ErrDispatchURLRequired is returned when constructing an HTTPDispatcher
// without a job-runner endpoint.
var ErrDispatchURLRequired = errors.New("orchestrator: job runner dispatch URL is required")

// HTTPDispatcher hands a VoiceJob to the job runner over HTTP: the runner
// (out of scope per spec §1) is responsible for placing it on the voice
// worker's private queue and launching that worker process.
type HTTPDispatcher struct {
	dispatchURL string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

var _ Dispatcher = (*HTTPDispatcher)(nil)

// DispatcherOption configures an HTTPDispatcher.
type DispatcherOption func(*HTTPDispatcher)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(c *http.Client) DispatcherOption {
	return func(d *HTTPDispatcher) { d.httpClient = c }
}

// WithMaxRetries bounds the dispatch retry budget.
func WithMaxRetries(n int) DispatcherOption {
	return func(d *HTTPDispatcher) { d.maxRetries = n }
}

// NewHTTPDispatcher builds an HTTPDispatcher against dispatchURL, the job
// runner's "accept a new job" endpoint.
func NewHTTPDispatcher(dispatchURL string, opts ...DispatcherOption) (*HTTPDispatcher, error) {
	if dispatchURL == "" {
		return nil, ErrDispatchURLRequired
	}
	d := &HTTPDispatcher{
		dispatchURL: dispatchURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  2,
		baseBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch POSTs the VoiceJob body to the job runner, retrying transport
// failures with exponential backoff.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, job voicejob.VoiceJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return pipelineerr.Protocol("marshal voice job: %v", err)
	}

	backoff := d.baseBackoff
	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.dispatchURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("orchestrator: build dispatch request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		_ = resp.Body.Close()

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("job runner returned status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("orchestrator: dispatch rejected: status %d", resp.StatusCode)
		}
		return nil
	}

	return pipelineerr.Transport(d.dispatchURL, lastErr)
}
