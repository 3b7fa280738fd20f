// Package mux is the orchestrator's boundary to the final ffmpeg-based mux
// step (§1 "explicitly out of scope", §4.6 step 9): given the progressive
// overlay's frame sequence, the ordered per-message audio files, and a
// background video clip, produce one narrated video. The actual muxing
// logic (filter graph, encoding parameters) lives outside the coordination
// core; this package gives the orchestrator a concrete, real boundary type
// to call instead of a stub, wrapping ffmpeg via os/exec (§9
// "cyclic/ownership graphs: none").
package mux

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// ErrNoFrames is returned when Request carries an empty frame sequence.
var ErrNoFrames = errors.New("mux: no frames to mux")

// ErrNoAudioPaths is returned when Request carries no audio files.
var ErrNoAudioPaths = errors.New("mux: no audio paths to mux")

// Request describes one mux invocation's inputs.
type Request struct {
	FrameDir        string   // directory of frame_NNNNNN.png files
	FPS             int      // must match the overlay engine's FPS
	AudioPaths      []string // ordered per-message audio files, concatenated
	BackgroundVideo string   // looped background clip the overlay is composited onto
	OutputPath      string
}

// Muxer invokes the external mux step.
type Muxer interface {
	Mux(ctx context.Context, req Request) error
}

// FFmpegMuxer shells out to ffmpeg: concatenates the audio track, overlays
// the frame sequence (as a video input) onto the looped background, and
// writes OutputPath.
type FFmpegMuxer struct {
	ffmpegPath string
}

var _ Muxer = (*FFmpegMuxer)(nil)

// NewFFmpegMuxer wraps ffmpegPath; an empty path defaults to "ffmpeg" on PATH.
func NewFFmpegMuxer(ffmpegPath string) *FFmpegMuxer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegMuxer{ffmpegPath: ffmpegPath}
}

// Mux concatenates req.AudioPaths into one track, then composites the
// frame-sequence overlay onto a looped copy of req.BackgroundVideo, with
// the concatenated audio as the output's audio stream.
func (m *FFmpegMuxer) Mux(ctx context.Context, req Request) error {
	if len(req.AudioPaths) == 0 {
		return ErrNoAudioPaths
	}
	entries, err := os.ReadDir(req.FrameDir)
	if err != nil || len(entries) == 0 {
		return ErrNoFrames
	}

	concatAudio, err := m.concatAudio(ctx, req.AudioPaths)
	if err != nil {
		return fmt.Errorf("mux: concat audio: %w", err)
	}
	defer func() { _ = os.Remove(concatAudio) }()

	framePattern := filepath.Join(req.FrameDir, "frame_%06d.png")
	args := []string{
		"-y",
		"-stream_loop", "-1",
		"-i", req.BackgroundVideo,
		"-framerate", fmt.Sprintf("%d", req.FPS),
		"-i", framePattern,
		"-i", concatAudio,
		"-filter_complex", "[0:v][1:v]overlay=0:0:shortest=1[outv]",
		"-map", "[outv]",
		"-map", "2:a",
		"-c:v", "libx264",
		"-preset", "fast",
		"-c:a", "aac",
		"-shortest",
		req.OutputPath,
	}

	return m.run(ctx, args)
}

func (m *FFmpegMuxer) concatAudio(ctx context.Context, paths []string) (string, error) {
	listFile, err := os.CreateTemp("", "mux-audio-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create concat list: %w", err)
	}
	defer func() { _ = listFile.Close() }()
	defer func() { _ = os.Remove(listFile.Name()) }()

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("resolve absolute path for %s: %w", p, err)
		}
		if _, err := fmt.Fprintf(listFile, "file '%s'\n", abs); err != nil {
			return "", fmt.Errorf("write concat list: %w", err)
		}
	}
	_ = listFile.Close()

	out, err := os.CreateTemp("", "mux-audio-*.wav")
	if err != nil {
		return "", fmt.Errorf("create concat output: %w", err)
	}
	outPath := out.Name()
	_ = out.Close()

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile.Name(),
		"-c", "copy",
		outPath,
	}
	if err := m.run(ctx, args); err != nil {
		_ = os.Remove(outPath)
		return "", err
	}
	return outPath, nil
}

func (m *FFmpegMuxer) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, string(output))
	}
	return nil
}
