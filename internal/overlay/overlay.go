// Package overlay is the progressive overlay engine (spec §4.5): given one
// rendered chat screenshot, its per-message bounding boxes, and per-message
// audio durations, it emits a deterministic ordered sequence of transparent
// PNG frames that progressively reveal messages in groups synchronized to
// the spoken audio. No example repo in the pack touches raster images
// directly, so this package is built on the standard library's image,
// image/draw, and image/png packages (see DESIGN.md for that decision).
package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/ragnarcb/chatclip/internal/pipelineerr"
	"github.com/ragnarcb/chatclip/internal/screenshot"
)

// Params are the timing and layout knobs that drive frame-plan construction.
type Params struct {
	FPS                  int
	StartBuffer          float64
	EndBuffer            float64
	PauseBetweenMessages float64
	MessagesPerGroup     int

	// BorderColor/BorderTolerance tune the UI-chrome trim step. Zero value
	// of BorderColor falls back to DefaultBorderColor.
	BorderColor     color.RGBA
	BorderTolerance int
}

// DefaultBorderColor is the chat UI's chrome color the border trim step
// scans for (§4.5 preprocessing step 2).
var DefaultBorderColor = color.RGBA{R: 0xd7, G: 0xd2, B: 0xd2, A: 0xff}

// DefaultParams fills in the spec's stated defaults for any zero fields.
func DefaultParams(p Params) Params {
	if p.FPS <= 0 {
		p.FPS = 30
	}
	if p.MessagesPerGroup <= 0 {
		p.MessagesPerGroup = 4
	}
	if (p.BorderColor == color.RGBA{}) {
		p.BorderColor = DefaultBorderColor
	}
	if p.BorderTolerance <= 0 {
		p.BorderTolerance = 10
	}
	return p
}

// FrameKind is the rendering decision for one output frame.
type FrameKind string

const (
	FrameEmpty  FrameKind = "empty"
	FrameReveal FrameKind = "reveal"
)

// FrameSpec is one element of a FramePlan.
type FrameSpec struct {
	Kind          FrameKind
	GroupIndex    int
	MessagesShown int
}

// Result is the output of Generate: the frame files written, in order.
type Result struct {
	OutputDir   string
	FramePaths  []string
	CroppedSize image.Point
}

// Cleanup removes every frame this Result produced, and the output
// directory if it is left empty, mirroring progressive_overlay.py's
// cleanup_frames()/get_frame_info() bookkeeping (§13 supplemented feature;
// harmless post-mux housekeeping, not a named spec operation).
func (r Result) Cleanup() error {
	for _, p := range r.FramePaths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("overlay: remove frame %s: %w", p, err)
		}
	}
	if entries, err := os.ReadDir(r.OutputDir); err == nil && len(entries) == 0 {
		_ = os.Remove(r.OutputDir)
	}
	return nil
}

// Generate runs the full pipeline: load the screenshot, crop to the chat
// region, build the frame plan from audio durations, render every frame to
// outputDir. len(coordinates) must equal len(audioDurations), or the call
// fails with a ProtocolError before any frame is written (§4.5 failure
// semantics).
func Generate(screenshotPath string, coordinates []screenshot.MessageCoordinate, audioDurations []float64, params Params, outputDir string) (Result, error) {
	if len(coordinates) != len(audioDurations) {
		return Result{}, pipelineerr.Protocol(
			"overlay: %d audio durations but %d coordinates", len(audioDurations), len(coordinates))
	}

	params = DefaultParams(params)

	f, err := os.Open(screenshotPath)
	if err != nil {
		return Result{}, fmt.Errorf("overlay: open screenshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	src, _, err := image.Decode(f)
	if err != nil {
		return Result{}, fmt.Errorf("overlay: decode screenshot: %w", err)
	}

	cropped, shifted, err := preprocess(src, coordinates, params)
	if err != nil {
		return Result{}, err
	}

	groups := splitGroups(len(shifted), params.MessagesPerGroup)
	plan := buildFramePlan(groups, audioDurations, params)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("overlay: create output dir: %w", err)
	}

	paths, err := renderFrames(cropped, shifted, groups, plan, outputDir)
	if err != nil {
		return Result{}, err
	}

	return Result{
		OutputDir:   outputDir,
		FramePaths:  paths,
		CroppedSize: cropped.Bounds().Size(),
	}, nil
}

// preprocess computes the auto-crop rectangle, trims symmetric UI-chrome
// borders, and shifts coordinates into cropped-image space (§4.5
// preprocessing steps 1-3).
func preprocess(src image.Image, coordinates []screenshot.MessageCoordinate, params Params) (*image.RGBA, []screenshot.MessageCoordinate, error) {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	top, bottom := autoCropBounds(coordinates, height)

	midRow := (top + bottom) / 2
	left, right := trimBorders(src, midRow, params.BorderColor, params.BorderTolerance)

	cropRect := image.Rect(left, top, width-right, bottom)
	cropped := image.NewRGBA(image.Rect(0, 0, cropRect.Dx(), cropRect.Dy()))
	draw.Draw(cropped, cropped.Bounds(), src, cropRect.Min, draw.Src)

	shifted := make([]screenshot.MessageCoordinate, len(coordinates))
	for i, c := range coordinates {
		c.Y -= top
		shifted[i] = c
	}

	return cropped, shifted, nil
}

// autoCropBounds computes the vertical [top, bottom) auto-crop window from
// message coordinates, or a middle-60% heuristic slice when there are none
// (§4.5 preprocessing step 1).
func autoCropBounds(coordinates []screenshot.MessageCoordinate, height int) (top, bottom int) {
	if len(coordinates) == 0 {
		return int(float64(height) * 0.2), int(float64(height) * 0.8)
	}

	minY, maxYH := coordinates[0].Y, coordinates[0].Y+coordinates[0].Height
	for _, c := range coordinates[1:] {
		if c.Y < minY {
			minY = c.Y
		}
		if y := c.Y + c.Height; y > maxYH {
			maxYH = y
		}
	}

	top = clamp(minY-15, 0, height)
	bottom = clamp(maxYH+15, 0, height)
	if bottom < top {
		bottom = top
	}
	return top, bottom
}

// trimBorders scans row y from both edges inward, returning the widths of
// symmetric UI-chrome-colored margins on the left and right. A mismatched
// chrome color (the edge pixel is not within tolerance) yields a zero-width,
// no-op trim rather than an error (§9 design note).
func trimBorders(img image.Image, y int, border color.RGBA, tolerance int) (left, right int) {
	bounds := img.Bounds()
	if y < bounds.Min.Y || y >= bounds.Max.Y {
		return 0, 0
	}
	width := bounds.Dx()

	for x := bounds.Min.X; x < bounds.Max.X; x++ {
		if !withinTolerance(img.At(x, y), border, tolerance) {
			left = x - bounds.Min.X
			break
		}
		left = width
	}
	for x := bounds.Max.X - 1; x >= bounds.Min.X; x-- {
		if !withinTolerance(img.At(x, y), border, tolerance) {
			right = bounds.Max.X - 1 - x
			break
		}
		right = width
	}
	if left+right >= width {
		return 0, 0
	}
	return left, right
}

func withinTolerance(c color.Color, target color.RGBA, tolerance int) bool {
	r, g, b, _ := c.RGBA()
	r8, g8, b8 := uint8(r>>8), uint8(g>>8), uint8(b>>8)
	return absDiff(r8, target.R) <= tolerance &&
		absDiff(g8, target.G) <= tolerance &&
		absDiff(b8, target.B) <= tolerance
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// splitGroups divides [0, n) into contiguous groups of up to groupSize
// message indices each; the final group may be smaller ("group overflow",
// spec scenario S2).
func splitGroups(n, groupSize int) [][]int {
	var groups [][]int
	for start := 0; start < n; start += groupSize {
		end := start + groupSize
		if end > n {
			end = n
		}
		indices := make([]int, end-start)
		for i := range indices {
			indices[i] = start + i
		}
		groups = append(groups, indices)
	}
	return groups
}

// buildFramePlan derives one FrameSpec per output frame from the message
// groups and their audio durations. Per-segment frame counts are derived
// from a running cumulative-seconds budget so the total always equals
// round(fps*total_timeline_seconds) exactly, per the spec's testable
// invariant, rather than accumulating independent per-segment rounding
// error.
func buildFramePlan(groups [][]int, durations []float64, params Params) []FrameSpec {
	budget := &frameBudget{fps: params.FPS}

	var plan []FrameSpec
	plan = appendN(plan, budget.take(params.StartBuffer), FrameSpec{Kind: FrameEmpty})

	for gi, group := range groups {
		for k := 1; k <= len(group); k++ {
			msgIdx := group[k-1]
			plan = appendN(plan, budget.take(durations[msgIdx]), FrameSpec{
				Kind: FrameReveal, GroupIndex: gi, MessagesShown: k,
			})
			if k < len(group) {
				plan = appendN(plan, budget.take(params.PauseBetweenMessages), FrameSpec{
					Kind: FrameReveal, GroupIndex: gi, MessagesShown: k,
				})
			}
		}
	}

	plan = appendN(plan, budget.take(params.EndBuffer), FrameSpec{Kind: FrameEmpty})
	return plan
}

func appendN(plan []FrameSpec, n int, spec FrameSpec) []FrameSpec {
	for i := 0; i < n; i++ {
		plan = append(plan, spec)
	}
	return plan
}

// frameBudget converts a stream of second-valued segments into integer
// frame counts that telescope exactly to round(fps*cumulative_seconds).
type frameBudget struct {
	fps        int
	cumSeconds float64
	cumFrames  int
}

func (b *frameBudget) take(seconds float64) int {
	b.cumSeconds += seconds
	target := int(math.Round(float64(b.fps) * b.cumSeconds))
	n := target - b.cumFrames
	b.cumFrames = target
	if n < 0 {
		n = 0
	}
	return n
}

// renderFrames renders plan against the cropped image/coordinates and
// writes frame_NNNNNN.png files to outputDir in order. Identical specs
// (e.g. a reveal frame repeated across a message's duration, or across its
// trailing pause) render once and are written multiple times, since the
// pixels are identical by construction.
func renderFrames(cropped *image.RGBA, coordinates []screenshot.MessageCoordinate, groups [][]int, plan []FrameSpec, outputDir string) ([]string, error) {
	cache := make(map[FrameSpec][]byte)
	paths := make([]string, len(plan))

	for i, spec := range plan {
		data, ok := cache[spec]
		if !ok {
			var frame *image.RGBA
			switch spec.Kind {
			case FrameEmpty:
				frame = emptyFrame(cropped.Bounds().Size())
			case FrameReveal:
				frame = revealFrame(cropped, coordinates, groups[spec.GroupIndex], spec.MessagesShown)
			}
			encoded, err := encodePNG(frame)
			if err != nil {
				return nil, fmt.Errorf("overlay: encode frame %d: %w", i, err)
			}
			data = encoded
			cache[spec] = data
		}

		path := filepath.Join(outputDir, fmt.Sprintf("frame_%06d.png", i))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("overlay: write frame %d: %w", i, err)
		}
		paths[i] = path
	}
	return paths, nil
}

func emptyFrame(size image.Point) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
}

// revealFrame crops the natural-spacing window for the first k messages of
// group, applies a rounded-corner mask, and composites it at (0,0) of a
// transparent frame sized to the cropped screenshot (§4.5 rendering rules).
func revealFrame(cropped *image.RGBA, coordinates []screenshot.MessageCoordinate, group []int, k int) *image.RGBA {
	size := cropped.Bounds().Size()
	frame := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	if k <= 0 || len(group) == 0 {
		return frame
	}

	first := group[0]
	last := group[k-1]

	topY := coordinates[first].Y - 15

	var bottomY int
	if k == len(group) {
		c := coordinates[last]
		bottomY = c.Y + c.Height + 15
	} else {
		// Natural-spacing boundary: cut halfway between the bottom of the
		// last revealed message and the top of the next one, so a frame
		// never ends mid-bubble. Integer division floors the midpoint
		// pixel into the current (lower) group, per the spec's tie-break.
		bottomOfLast := coordinates[last].Y + coordinates[last].Height
		topOfNext := coordinates[last+1].Y
		bottomY = (bottomOfLast + topOfNext) / 2
	}

	topY = clamp(topY, 0, size.Y)
	bottomY = clamp(bottomY, 0, size.Y)
	if bottomY < topY {
		bottomY = topY
	}

	tileRect := image.Rect(0, topY, size.X, bottomY)
	tile := image.NewRGBA(image.Rect(0, 0, tileRect.Dx(), tileRect.Dy()))
	draw.Draw(tile, tile.Bounds(), cropped, tileRect.Min, draw.Src)

	masked := applyRoundedCornerMask(tile, 15)
	draw.Draw(frame, masked.Bounds(), masked, image.Point{}, draw.Over)

	return frame
}

// applyRoundedCornerMask clips tile's corners to the given pixel radius,
// returning a new RGBA image with transparent corners.
func applyRoundedCornerMask(tile *image.RGBA, radius int) *image.RGBA {
	bounds := tile.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if radius*2 > w || radius*2 > h {
		return tile
	}

	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, tile, bounds.Min, draw.Src)

	corners := [4][2]bool{{true, true}, {false, true}, {true, false}, {false, false}} // {isLeft, isTop}
	centers := [4][2]int{
		{radius, radius}, {w - 1 - radius, radius},
		{radius, h - 1 - radius}, {w - 1 - radius, h - 1 - radius},
	}

	for ci, corner := range corners {
		isLeft, isTop := corner[0], corner[1]
		cx, cy := centers[ci][0], centers[ci][1]
		for dy := 0; dy < radius; dy++ {
			for dx := 0; dx < radius; dx++ {
				px, py := dx, dy
				if !isLeft {
					px = w - 1 - dx
				}
				if !isTop {
					py = h - 1 - dy
				}
				dist2 := (px-cx)*(px-cx) + (py-cy)*(py-cy)
				if dist2 > radius*radius {
					out.SetRGBA(px, py, color.RGBA{})
				}
			}
		}
	}
	return out
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
