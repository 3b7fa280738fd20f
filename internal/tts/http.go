package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ragnarcb/chatclip/internal/pipelineerr"
)

// ErrBaseURLRequired is returned when constructing an HTTPClient without a
// collaborator endpoint.
var ErrBaseURLRequired = errors.New("tts: base URL is required")

// HTTPClient talks to a remote voice-cloning collaborator over HTTP: submit
// a synthesis request, poll for completion, download the resulting
// waveform, retrying with exponential backoff.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
	pollEvery   time.Duration
}

var _ Client = (*HTTPClient)(nil)

// HTTPClientOption configures an HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) HTTPClientOption {
	return func(c *HTTPClient) { c.apiKey = key }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(h *http.Client) HTTPClientOption {
	return func(c *HTTPClient) { c.httpClient = h }
}

// WithPollInterval overrides how often Synthesize polls for completion.
func WithPollInterval(d time.Duration) HTTPClientOption {
	return func(c *HTTPClient) { c.pollEvery = d }
}

// NewHTTPClient builds an HTTPClient against baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPClientOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}
	c := &HTTPClient{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  3,
		baseBackoff: time.Second,
		pollEvery:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type synthesizeRequest struct {
	Text       string `json:"text"`
	VoiceRef   string `json:"voice_ref"`
	UseCloning bool   `json:"use_voice_cloning"`
}

type submitResponse struct {
	JobID string `json:"id"`
	Error string `json:"error,omitempty"`
}

type statusResponse struct {
	Status    string `json:"status"`
	AudioURL  string `json:"audio_url,omitempty"`
	ErrorText string `json:"error,omitempty"`
}

// Synthesize submits req, polls until the collaborator reports a terminal
// status, and downloads the resulting waveform to req.OutputPath.
func (c *HTTPClient) Synthesize(ctx context.Context, req Request) error {
	cleaned := CleanText(req.Text)
	if cleaned == "" {
		return pipelineerr.Synthesis(errors.New("empty text after cleanup"))
	}

	body, err := json.Marshal(synthesizeRequest{
		Text:       cleaned,
		VoiceRef:   req.VoiceRef,
		UseCloning: req.UseCloning,
	})
	if err != nil {
		return pipelineerr.Synthesis(fmt.Errorf("marshal request: %w", err))
	}

	var submit submitResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/synthesize", body, &submit); err != nil {
		return pipelineerr.Synthesis(err)
	}
	if submit.JobID == "" {
		return pipelineerr.Synthesis(fmt.Errorf("collaborator returned no job id: %s", submit.Error))
	}

	audioURL, err := c.pollUntilDone(ctx, submit.JobID)
	if err != nil {
		return err
	}

	return c.download(ctx, audioURL, req.OutputPath)
}

func (c *HTTPClient) pollUntilDone(ctx context.Context, jobID string) (string, error) {
	url := fmt.Sprintf("%s/synthesize/%s", c.baseURL, jobID)
	for {
		var status statusResponse
		if err := c.doJSON(ctx, http.MethodGet, url, nil, &status); err != nil {
			return "", pipelineerr.Synthesis(err)
		}

		switch status.Status {
		case "completed":
			if status.AudioURL == "" {
				return "", pipelineerr.Synthesis(errors.New("completed with no audio URL"))
			}
			return status.AudioURL, nil
		case "failed":
			return "", pipelineerr.Synthesis(errors.New(status.ErrorText))
		}

		select {
		case <-ctx.Done():
			return "", pipelineerr.Synthesis(ctx.Err())
		case <-time.After(c.pollEvery):
		}
	}
}

func (c *HTTPClient) download(ctx context.Context, url, outPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return pipelineerr.Synthesis(err)
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pipelineerr.Transport(url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return pipelineerr.Synthesis(fmt.Errorf("download returned status %d", resp.StatusCode))
	}

	f, err := os.Create(outPath)
	if err != nil {
		return pipelineerr.Synthesis(fmt.Errorf("create output file: %w", err))
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return pipelineerr.Synthesis(fmt.Errorf("write output file: %w", err))
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *HTTPClient) doJSON(ctx context.Context, method, url string, body []byte, out any) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		c.setAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("collaborator returned status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			defer func() { _ = resp.Body.Close() }()
			return fmt.Errorf("collaborator returned status %d", resp.StatusCode)
		}

		defer func() { _ = resp.Body.Close() }()
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	return pipelineerr.Transport(c.baseURL, lastErr)
}
