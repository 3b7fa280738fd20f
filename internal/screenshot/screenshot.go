// Package screenshot is the orchestrator's client to the screenshot service
// (§4.4): a single HTTP POST that renders a chat transcript and returns one
// ScreenshotArtifact (image plus per-message bounding boxes), plus a health
// probe gating the orchestrator's screenshot step. The screenshot service
// itself (browser automation, DOM extraction) is out of scope.
package screenshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ragnarcb/chatclip/internal/pipelineerr"
	"github.com/ragnarcb/chatclip/internal/voicejob"
)

// MessageCoordinate is one rendered message's bounding box, in insertion
// order (§3).
type MessageCoordinate struct {
	Index  int    `json:"index"`
	Y      int    `json:"y"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
	From   string `json:"from"`
	Text   string `json:"text"`
}

// Artifact is one ScreenshotArtifact: the rasterized chat image path plus
// the ordered coordinate list.
type Artifact struct {
	ImagePath   string
	Coordinates []MessageCoordinate
}

type generateRequest struct {
	Messages     []voicejob.Message `json:"messages"`
	Participants []string           `json:"participants"`
	OutputDir    string             `json:"outputDir"`
	ImageSize    [2]int             `json:"img_size"`
}

type generateResponse struct {
	Success            bool                `json:"success"`
	ImagePaths         []string            `json:"imagePaths"`
	ImageURLs          []string            `json:"imageUrls"`
	MessageCoordinates []MessageCoordinate `json:"messageCoordinates"`
}

// Client is the screenshot service's HTTP boundary.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New builds a Client against baseURL (e.g. http://localhost:3000).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetScreenshotWithCoordinates requests a single chat screenshot for
// messages among participants. The response must carry a non-empty
// imagePaths[0] and a messageCoordinates list of len(messages); otherwise
// the call fails with a ProtocolError (§4.4).
func (c *Client) GetScreenshotWithCoordinates(ctx context.Context, messages []voicejob.Message, participants []string, outputDir string, imageWidth, imageHeight int) (Artifact, error) {
	reqBody, err := json.Marshal(generateRequest{
		Messages:     messages,
		Participants: participants,
		OutputDir:    outputDir,
		ImageSize:    [2]int{imageWidth, imageHeight},
	})
	if err != nil {
		return Artifact{}, pipelineerr.Protocol("marshal screenshot request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate-screenshots", bytes.NewReader(reqBody))
	if err != nil {
		return Artifact{}, fmt.Errorf("screenshot: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Artifact{}, pipelineerr.Transport(c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		return Artifact{}, fmt.Errorf("screenshot: remote error: status=%d body=%s", resp.StatusCode, body.String())
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Artifact{}, pipelineerr.Protocol("decode screenshot response: %v", err)
	}

	if len(out.ImagePaths) == 0 || out.ImagePaths[0] == "" {
		return Artifact{}, pipelineerr.Protocol("screenshot response has no imagePaths[0]")
	}
	if len(out.MessageCoordinates) != len(messages) {
		return Artifact{}, pipelineerr.Protocol("screenshot returned %d coordinates, expected %d", len(out.MessageCoordinates), len(messages))
	}

	return Artifact{ImagePath: out.ImagePaths[0], Coordinates: out.MessageCoordinates}, nil
}

// Ping performs a short-timeout liveness check against the screenshot
// service's health endpoint, used as a gate before the orchestrator enters
// the screenshot step (§4.4, §4.6 step 6).
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}
