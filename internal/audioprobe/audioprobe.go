// Package audioprobe measures the duration of completed voice-row audio
// files so the orchestrator can feed them to the progressive overlay engine
// as audio_durations (§4.6 step 5). Wraps ffprobe via os/exec and reads the
// duration from ffprobe's structured JSON output.
package audioprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// Prober measures the duration of an audio file in seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// FFprobe is the real Prober, backed by the ffprobe CLI.
type FFprobe struct {
	binPath string
}

var _ Prober = (*FFprobe)(nil)

// NewFFprobe wraps binPath; an empty path defaults to "ffprobe" on PATH.
func NewFFprobe(binPath string) *FFprobe {
	if binPath == "" {
		binPath = "ffprobe"
	}
	return &FFprobe{binPath: binPath}
}

type ffprobeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration runs `ffprobe -show_entries format=duration -of json` against
// path and parses the resulting duration in seconds.
func (p *FFprobe) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.binPath,
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("audioprobe: ffprobe failed for %s: %w: %s", path, err, stderr.String())
	}

	var out ffprobeFormat
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return 0, fmt.Errorf("audioprobe: parse ffprobe output for %s: %w", path, err)
	}

	var duration float64
	if _, err := fmt.Sscanf(out.Format.Duration, "%g", &duration); err != nil {
		return 0, fmt.Errorf("audioprobe: no duration reported for %s", path)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("audioprobe: non-positive duration %g for %s", duration, path)
	}
	return duration, nil
}

// DurationsForPaths probes every path in order, stopping at the first
// error so the orchestrator's abort reports which file was bad.
func DurationsForPaths(ctx context.Context, prober Prober, paths []string) ([]float64, error) {
	durations := make([]float64, len(paths))
	for i, p := range paths {
		d, err := prober.Duration(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("audioprobe: path %d (%s): %w", i, p, err)
		}
		durations[i] = d
	}
	return durations, nil
}
