package voiceworker

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragnarcb/chatclip/internal/storage"
	"github.com/ragnarcb/chatclip/internal/tts"
	"github.com/ragnarcb/chatclip/internal/voicedb"
	"github.com/ragnarcb/chatclip/internal/voicejob"
)

type fakeTTS struct {
	mu       sync.Mutex
	calls    int
	err      error
	requests []tts.Request
}

func (f *fakeTTS) Synthesize(_ context.Context, req tts.Request) error {
	f.mu.Lock()
	f.calls++
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(req.OutputPath, []byte("fake-wav"), 0o644)
}

type fakeStorage struct {
	uploaded map[string][]byte
	err      error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: make(map[string][]byte)}
}

func (s *fakeStorage) Upload(_ context.Context, bucket, key string, data io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.uploaded[bucket+"/"+key] = buf
	return bucket + "/" + key, nil
}

func (s *fakeStorage) Download(context.Context, string, string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}
func (s *fakeStorage) Delete(context.Context, string, string) error { return nil }
func (s *fakeStorage) Info(context.Context, string, string) (storage.Info, error) {
	return storage.Info{}, nil
}
func (s *fakeStorage) Health(context.Context) error { return nil }

var _ storage.Backend = (*fakeStorage)(nil)

func newGatewayWithDefaultMapping() *voicedb.MemoryGateway {
	g := voicedb.NewMemoryGateway()
	g.SeedMapping(voicejob.VoiceMapping{VoiceID: "default", VoiceFile: "default.wav", IsDefault: true})
	return g
}

func TestProcessJob_CompletesAllRows(t *testing.T) {
	gateway := newGatewayWithDefaultMapping()
	ttsClient := &fakeTTS{}
	outDir := t.TempDir()

	w := New(gateway, ttsClient, nil, nil, Config{
		UseLocalStorage: true,
		OutputDir:       outDir,
	})

	job := &voicejob.VoiceJob{
		VideoID: "vid-1",
		Messages: []voicejob.Message{
			{FromUser: "aluno", Text: "Oi!"},
			{FromUser: "professora", Text: "Ola!"},
		},
	}

	err := w.ProcessJob(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 2, ttsClient.calls)

	status, err := gateway.StatusForVideo(context.Background(), "vid-1")
	require.NoError(t, err)
	assert.True(t, status.AllCompleted())
}

func TestProcessJob_RejectsEmptyMessages(t *testing.T) {
	gateway := newGatewayWithDefaultMapping()
	w := New(gateway, &fakeTTS{}, nil, nil, Config{UseLocalStorage: true, OutputDir: t.TempDir()})

	job := &voicejob.VoiceJob{VideoID: "vid-2"}
	err := w.ProcessJob(context.Background(), job)
	require.Error(t, err)
}

func TestProcessJob_ResolvesPerSpeakerMapping(t *testing.T) {
	gateway := newGatewayWithDefaultMapping()
	gateway.SeedMapping(voicejob.VoiceMapping{VoiceID: "voz_aluno", VoiceFile: "aluno.wav"})
	ttsClient := &fakeTTS{}
	outDir := t.TempDir()

	w := New(gateway, ttsClient, nil, nil, Config{UseLocalStorage: true, OutputDir: outDir})

	job := &voicejob.VoiceJob{
		VideoID:      "vid-7",
		Messages:     []voicejob.Message{{FromUser: "aluno", Text: "Oi!"}},
		VoiceMapping: map[string]string{"aluno": "voz_aluno"},
	}

	err := w.ProcessJob(context.Background(), job)
	require.NoError(t, err)
	require.Len(t, ttsClient.requests, 1)
	// The speaker's own mapping ("aluno.wav"), not the default ("default.wav"),
	// must reach synthesis: the whole point of per-speaker voice_mapping.
	assert.Equal(t, "aluno.wav", ttsClient.requests[0].VoiceRef)
}

func TestProcessJob_StoresCleanedText(t *testing.T) {
	gateway := newGatewayWithDefaultMapping()
	w := New(gateway, &fakeTTS{}, nil, nil, Config{UseLocalStorage: true, OutputDir: t.TempDir()})

	job := &voicejob.VoiceJob{
		VideoID:  "vid-8",
		Messages: []voicejob.Message{{FromUser: "aluno", Text: "Oi!! 😂 *risos*"}},
	}

	err := w.ProcessJob(context.Background(), job)
	require.NoError(t, err)

	rows, err := gateway.VoicesForVideo(context.Background(), "vid-8")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, tts.CleanText("Oi!! 😂 *risos*"), rows[0].TextContent)
	assert.NotContains(t, rows[0].TextContent, "😂")
}

func TestProcessJob_NoMappingFailsRow(t *testing.T) {
	gateway := voicedb.NewMemoryGateway() // no default mapping seeded
	w := New(gateway, &fakeTTS{}, nil, nil, Config{UseLocalStorage: true, OutputDir: t.TempDir()})

	job := &voicejob.VoiceJob{
		VideoID:      "vid-3",
		Messages:     []voicejob.Message{{FromUser: "aluno", Text: "Oi!"}},
		VoiceMapping: map[string]string{"aluno": "voz_aluno"},
	}

	err := w.ProcessJob(context.Background(), job)
	require.Error(t, err)
}

func TestProcessRow_SynthesisFailureFailsRow(t *testing.T) {
	gateway := newGatewayWithDefaultMapping()
	ttsClient := &fakeTTS{err: assert.AnError}
	w := New(gateway, ttsClient, nil, nil, Config{UseLocalStorage: true, OutputDir: t.TempDir()})

	id, err := gateway.CreateVoice(context.Background(), "vid-4", "aluno", "oi", nil)
	require.NoError(t, err)
	claimed, err := gateway.ClaimVoice(context.Background(), id)
	require.NoError(t, err)
	require.True(t, claimed)

	row, err := gateway.PendingVoices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, row) // already claimed, no longer pending

	w.processRow(context.Background(), voicejob.VoiceRow{ID: id, VideoID: "vid-4", TextContent: "oi"})

	status, err := gateway.StatusForVideo(context.Background(), "vid-4")
	require.NoError(t, err)
	assert.Equal(t, 1, status.Failed)
}

func TestDrainUntilComplete_UploadsRemotely(t *testing.T) {
	gateway := newGatewayWithDefaultMapping()
	ttsClient := &fakeTTS{}
	fstorage := newFakeStorage()
	outDir := t.TempDir()

	w := New(gateway, ttsClient, fstorage, nil, Config{
		UseLocalStorage:    false,
		VoiceStorageBucket: "voices",
		OutputDir:          outDir,
	})

	id, err := gateway.CreateVoice(context.Background(), "vid-5", "aluno", "oi", nil)
	require.NoError(t, err)

	err = w.DrainUntilComplete(context.Background(), "vid-5")
	require.NoError(t, err)

	assert.Contains(t, fstorage.uploaded, "voices/"+id+".wav")
	status, err := gateway.StatusForVideo(context.Background(), "vid-5")
	require.NoError(t, err)
	assert.True(t, status.AllCompleted())
}

func TestProcessRow_UploadFailureKeepsLocalPath(t *testing.T) {
	gateway := newGatewayWithDefaultMapping()
	ttsClient := &fakeTTS{}
	fstorage := &fakeStorage{uploaded: map[string][]byte{}, err: assert.AnError}
	outDir := t.TempDir()

	w := New(gateway, ttsClient, fstorage, nil, Config{
		UseLocalStorage: false,
		OutputDir:       outDir,
	})

	id, err := gateway.CreateVoice(context.Background(), "vid-6", "aluno", "oi", nil)
	require.NoError(t, err)
	_, err = gateway.ClaimVoice(context.Background(), id)
	require.NoError(t, err)

	w.processRow(context.Background(), voicejob.VoiceRow{ID: id, VideoID: "vid-6", TextContent: "oi"})

	status, err := gateway.StatusForVideo(context.Background(), "vid-6")
	require.NoError(t, err)
	assert.Equal(t, 1, status.Completed)

	expectedPath := filepath.Join(outDir, id+".wav")
	_, statErr := os.Stat(expectedPath)
	require.NoError(t, statErr)
}
