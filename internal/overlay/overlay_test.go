package overlay

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragnarcb/chatclip/internal/pipelineerr"
	"github.com/ragnarcb/chatclip/internal/screenshot"
)

func writeTestScreenshot(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
		}
	}
	path := filepath.Join(dir, "chat.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func fourMessageCoords() []screenshot.MessageCoordinate {
	return []screenshot.MessageCoordinate{
		{Index: 0, Y: 100, Height: 40, Width: 300, From: "A", Text: "Oi!"},
		{Index: 1, Y: 160, Height: 40, Width: 300, From: "B", Text: "E ai"},
		{Index: 2, Y: 220, Height: 40, Width: 300, From: "A", Text: "Tudo bem?"},
		{Index: 3, Y: 280, Height: 40, Width: 300, From: "B", Text: "Sim, e voce?"},
	}
}

// TestGenerate_S1FrameCount mirrors spec scenario S1: 4 messages, single
// group, total frames = round(30*(1.0 + 4.5 + 3*0.5 + 3.0)) = 300.
func TestGenerate_S1FrameCount(t *testing.T) {
	dir := t.TempDir()
	shot := writeTestScreenshot(t, dir, 400, 600)

	params := Params{
		FPS:                  30,
		StartBuffer:          1.0,
		EndBuffer:            3.0,
		PauseBetweenMessages: 0.5,
		MessagesPerGroup:     4,
	}
	durations := []float64{1.0, 1.0, 1.2, 1.3}

	result, err := Generate(shot, fourMessageCoords(), durations, params, filepath.Join(dir, "frames"))
	require.NoError(t, err)
	assert.Len(t, result.FramePaths, 300)
}

// TestGenerate_S2GroupOverflow mirrors scenario S2: 5 messages,
// messages_per_group=4 splits into groups of 4 and 1.
func TestGenerate_S2GroupOverflow(t *testing.T) {
	groups := splitGroups(5, 4)
	require.Len(t, groups, 2)
	assert.Equal(t, []int{0, 1, 2, 3}, groups[0])
	assert.Equal(t, []int{4}, groups[1])
}

func TestGenerate_CoordinateDurationMismatch(t *testing.T) {
	dir := t.TempDir()
	shot := writeTestScreenshot(t, dir, 400, 600)

	_, err := Generate(shot, fourMessageCoords(), []float64{1.0, 1.0, 1.0}, Params{}, filepath.Join(dir, "frames"))
	require.Error(t, err)
	assert.ErrorIs(t, err, pipelineerr.ErrProtocolError)
}

func TestBuildFramePlan_MessagesPerGroupOne(t *testing.T) {
	groups := splitGroups(3, 1)
	require.Len(t, groups, 3)
	for _, g := range groups {
		assert.Len(t, g, 1)
	}

	plan := buildFramePlan(groups, []float64{1.0, 1.0, 1.0}, Params{FPS: 10, MessagesPerGroup: 1, PauseBetweenMessages: 0.5})

	// No group has more than one message, so no intra-group pause frames
	// should appear even with a non-zero pause: 3 messages x 1s x 10fps = 30
	// frames, and every reveal segment's MessagesShown is 1.
	assert.Len(t, plan, 30)
	for _, spec := range plan {
		if spec.Kind == FrameReveal {
			assert.Equal(t, 1, spec.MessagesShown)
		}
	}
}

func TestFrameBudget_TelescopesToRoundedTotal(t *testing.T) {
	b := &frameBudget{fps: 30}
	segments := []float64{1.0, 1.0, 1.0, 1.2, 1.3, 0.5, 0.5, 0.5, 3.0}
	total := 0
	for _, s := range segments {
		total += b.take(s)
	}

	var sum float64
	for _, s := range segments {
		sum += s
	}
	want := int(math.Round(30 * sum))
	assert.Equal(t, want, total)
}

func TestRevealFrame_MatchesCroppedSize(t *testing.T) {
	cropped := image.NewRGBA(image.Rect(0, 0, 400, 500))
	coords := []screenshot.MessageCoordinate{
		{Y: 50, Height: 40},
		{Y: 110, Height: 40},
	}

	frame := revealFrame(cropped, coords, []int{0, 1}, 1)
	assert.Equal(t, cropped.Bounds().Size(), frame.Bounds().Size())
}

func TestAutoCropBounds_EmptyCoordinatesFallback(t *testing.T) {
	top, bottom := autoCropBounds(nil, 1000)
	assert.Equal(t, 200, top)
	assert.Equal(t, 800, bottom)
}
