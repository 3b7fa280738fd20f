package orchestrator

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragnarcb/chatclip/internal/mux"
	"github.com/ragnarcb/chatclip/internal/overlay"
	"github.com/ragnarcb/chatclip/internal/screenshot"
	"github.com/ragnarcb/chatclip/internal/voicedb"
	"github.com/ragnarcb/chatclip/internal/voicejob"
)

type fakeDispatcher struct {
	jobs []voicejob.VoiceJob
}

func (d *fakeDispatcher) Dispatch(_ context.Context, job voicejob.VoiceJob) error {
	d.jobs = append(d.jobs, job)
	return nil
}

type fakeProber struct{ duration float64 }

func (p *fakeProber) Duration(context.Context, string) (float64, error) { return p.duration, nil }

type fakeMuxer struct {
	called bool
	req    mux.Request
}

func (m *fakeMuxer) Mux(_ context.Context, req mux.Request) error {
	m.called = true
	m.req = req
	return nil
}

func newScreenshotServer(t *testing.T, numCoords int) *httptest.Server {
	t.Helper()

	imgPath := filepath.Join(t.TempDir(), "chat.png")
	img := image.NewRGBA(image.Rect(0, 0, 400, 600))
	for y := 0; y < 600; y++ {
		for x := 0; x < 400; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
		}
	}
	f, err := os.Create(imgPath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/health":
			w.WriteHeader(http.StatusOK)
		case "/api/generate-screenshots":
			coords := make([]screenshot.MessageCoordinate, numCoords)
			for i := range coords {
				coords[i] = screenshot.MessageCoordinate{Index: i, Y: i * 60, Height: 40, Width: 300}
			}
			resp := struct {
				Success            bool                           `json:"success"`
				ImagePaths         []string                       `json:"imagePaths"`
				MessageCoordinates []screenshot.MessageCoordinate `json:"messageCoordinates"`
			}{Success: true, ImagePaths: []string{imgPath}, MessageCoordinates: coords}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

// TestRun_EmptyTranscriptAborts exercises §4.6 step 2's explicit abort
// without touching any collaborator.
func TestRun_EmptyTranscriptAborts(t *testing.T) {
	gateway := voicedb.NewMemoryGateway()
	dispatcher := &fakeDispatcher{}
	srv := newScreenshotServer(t, 0)
	defer srv.Close()

	o := New(gateway, dispatcher, screenshot.New(srv.URL), &fakeProber{}, &fakeMuxer{}, nil, Config{})
	_, err := o.Run(context.Background(), &VideoRequest{VideoID: "v1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyTranscript)
	assert.Empty(t, dispatcher.jobs)
}

// TestRun_HappyPath exercises the full pipeline, with the dispatcher
// immediately completing the voice rows itself to simulate the voice
// worker's effect on the database (orchestrator polls the same gateway).
func TestRun_HappyPath(t *testing.T) {
	gateway := voicedb.NewMemoryGateway()
	gateway.SeedMapping(voicejob.VoiceMapping{VoiceID: "default", VoiceFile: "default.wav", IsDefault: true})

	dispatcher := &completingDispatcher{gateway: gateway}
	srv := newScreenshotServer(t, 2)
	defer srv.Close()

	muxer := &fakeMuxer{}
	o := New(gateway, dispatcher, screenshot.New(srv.URL), &fakeProber{duration: 1.0}, muxer, nil, Config{
		MaxWaitSeconds:        5,
		CompletionPollSeconds: 1,
		OutputDir:             t.TempDir(),
		Overlay:               overlay.Params{FPS: 10},
	})

	req := &VideoRequest{
		VideoID:      "v2",
		Messages:     []voicejob.Message{{FromUser: "a", Text: "Oi"}, {FromUser: "b", Text: "Ola"}},
		Participants: []string{"a", "b"},
	}

	_, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, muxer.called)
	assert.Len(t, muxer.req.AudioPaths, 2)
}

// completingDispatcher simulates the voice worker: on Dispatch, it creates
// and immediately completes a row per message.
type completingDispatcher struct {
	gateway *voicedb.MemoryGateway
}

func (d *completingDispatcher) Dispatch(ctx context.Context, job voicejob.VoiceJob) error {
	for _, msg := range job.Messages {
		id, err := d.gateway.CreateVoice(ctx, job.VideoID, msg.FromUser, msg.Text, nil)
		if err != nil {
			return err
		}
		if _, err := d.gateway.ClaimVoice(ctx, id); err != nil {
			return err
		}
		path := "/tmp/" + id + ".wav"
		if err := d.gateway.CompleteVoice(ctx, id, path, true, nil); err != nil {
			return err
		}
	}
	return nil
}
