package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/ragnarcb/chatclip/internal/pipelineerr"
)

// ErrBaseURLRequired is returned when constructing an HTTPBackend without a
// target object-store URL.
var ErrBaseURLRequired = errors.New("storage: base URL is required")

// HTTPBackend is the primary Backend, a thin client for the local object
// store fronted by a plain HTTP API: multipart upload, keyed download,
// delete, and info lookups, plus a health probe.
type HTTPBackend struct {
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

var _ Backend = (*HTTPBackend)(nil)

// HTTPBackendOption configures an HTTPBackend.
type HTTPBackendOption func(*HTTPBackend)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(c *http.Client) HTTPBackendOption {
	return func(b *HTTPBackend) { b.httpClient = c }
}

// WithMaxRetries bounds the request retry budget.
func WithMaxRetries(n int) HTTPBackendOption {
	return func(b *HTTPBackend) { b.maxRetries = n }
}

// WithBaseBackoff sets the initial retry backoff.
func WithBaseBackoff(d time.Duration) HTTPBackendOption {
	return func(b *HTTPBackend) { b.baseBackoff = d }
}

// NewHTTPBackend builds an HTTPBackend against baseURL (e.g.
// http://192.168.1.218:30880).
func NewHTTPBackend(baseURL string, opts ...HTTPBackendOption) (*HTTPBackend, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	b := &HTTPBackend{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  2,
		baseBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

type infoResponse struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Size   int64  `json:"size"`
}

// Upload POSTs data as multipart/form-data to /upload with the target bucket
// and key as form fields, matching the object store's upload contract.
func (b *HTTPBackend) Upload(ctx context.Context, bucket, key string, data io.Reader) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", key)
	if err != nil {
		return "", fmt.Errorf("storage: build multipart body: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return "", fmt.Errorf("storage: copy upload body: %w", err)
	}
	if err := writer.WriteField("bucket", bucket); err != nil {
		return "", fmt.Errorf("storage: write bucket field: %w", err)
	}
	if err := writer.WriteField("key", key); err != nil {
		return "", fmt.Errorf("storage: write key field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage: close multipart writer: %w", err)
	}

	bodyBytes := body.Bytes()
	contentType := writer.FormDataContentType()

	resp, err := b.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/upload", bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return "", pipelineerr.StorageUpload(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", pipelineerr.StorageUpload(fmt.Errorf("upload returned status %d", resp.StatusCode))
	}

	return fmt.Sprintf("%s/%s", bucket, key), nil
}

// Download issues GET /download/{key}?bucket=... and returns the response
// body unread; the caller owns closing it.
func (b *HTTPBackend) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	u := fmt.Sprintf("%s/download/%s?bucket=%s", b.baseURL, url.PathEscape(key), url.QueryEscape(bucket))

	resp, err := b.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return nil, pipelineerr.Protocol("object %s/%s not found", bucket, key)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("storage: download returned status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// Delete issues DELETE /delete/{key}?bucket=....
func (b *HTTPBackend) Delete(ctx context.Context, bucket, key string) error {
	u := fmt.Sprintf("%s/delete/%s?bucket=%s", b.baseURL, url.PathEscape(key), url.QueryEscape(bucket))

	resp, err := b.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("storage: delete returned status %d", resp.StatusCode)
	}
	return nil
}

// Info issues GET /info/{key}?bucket=... and decodes the JSON metadata body.
func (b *HTTPBackend) Info(ctx context.Context, bucket, key string) (Info, error) {
	u := fmt.Sprintf("%s/info/%s?bucket=%s", b.baseURL, url.PathEscape(key), url.QueryEscape(bucket))

	resp, err := b.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	})
	if err != nil {
		return Info{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return Info{}, pipelineerr.Protocol("object %s/%s not found", bucket, key)
	}
	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("storage: info returned status %d", resp.StatusCode)
	}

	var out infoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Info{}, pipelineerr.Protocol("decode info response: %s", err)
	}

	return Info{Bucket: out.Bucket, Key: out.Key, Size: out.Size}, nil
}

// Health issues GET /health with a short timeout, per the store's liveness
// contract.
func (b *HTTPBackend) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("storage: build health request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return pipelineerr.Transport(b.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return pipelineerr.Transport(b.baseURL, fmt.Errorf("health returned status %d", resp.StatusCode))
	}
	return nil
}

// doWithRetry builds and executes a fresh request via newReq on each attempt
// (a retried request needs its body reader rebuilt), backing off
// exponentially on transport failures and 5xx responses.
func (b *HTTPBackend) doWithRetry(ctx context.Context, newReq func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	backoff := b.baseBackoff

	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("storage: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		req, err := newReq()
		if err != nil {
			return nil, fmt.Errorf("storage: build request: %w", err)
		}

		resp, err := b.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("server returned status %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, pipelineerr.Transport(b.baseURL, lastErr)
}
