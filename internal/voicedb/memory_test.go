package voicedb

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragnarcb/chatclip/internal/voicejob"
)

func TestMemoryGateway_CreateAndClaimVoice(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	id, err := g.CreateVoice(ctx, "video-1", "A", "hello", nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	claimed, err := g.ClaimVoice(ctx, id)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimedAgain, err := g.ClaimVoice(ctx, id)
	require.NoError(t, err)
	assert.False(t, claimedAgain, "second claim of the same row must fail")
}

func TestMemoryGateway_ClaimVoice_SingleWinnerUnderConcurrency(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()
	id, err := g.CreateVoice(ctx, "video-1", "A", "hello", nil)
	require.NoError(t, err)

	const attempts = 50
	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			ok, _ := g.ClaimVoice(ctx, id)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one concurrent claimer should win")
}

func TestMemoryGateway_CompleteVoice(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()
	id, err := g.CreateVoice(ctx, "video-1", "A", "hello", nil)
	require.NoError(t, err)
	_, err = g.ClaimVoice(ctx, id)
	require.NoError(t, err)

	require.NoError(t, g.CompleteVoice(ctx, id, "/tmp/a.wav", true, nil))

	status, err := g.StatusForVideo(ctx, "video-1")
	require.NoError(t, err)
	assert.Equal(t, voicejob.VideoStatus{Total: 1, Completed: 1}, status)
	assert.True(t, status.AllCompleted())
}

func TestMemoryGateway_CompleteVoice_UnknownRowIsNoOp(t *testing.T) {
	g := NewMemoryGateway()
	err := g.CompleteVoice(context.Background(), "does-not-exist", "/tmp/a.wav", true, nil)
	assert.NoError(t, err)
}

func TestMemoryGateway_FailVoice(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()
	id, err := g.CreateVoice(ctx, "video-1", "A", "hello", nil)
	require.NoError(t, err)
	_, err = g.ClaimVoice(ctx, id)
	require.NoError(t, err)

	require.NoError(t, g.FailVoice(ctx, id, "model oom"))

	status, err := g.StatusForVideo(ctx, "video-1")
	require.NoError(t, err)
	assert.True(t, status.AnyFailed())
	assert.False(t, status.AllCompleted())
}

func TestMemoryGateway_StatusForVideo_AllCompletedRequiresNonZeroTotal(t *testing.T) {
	g := NewMemoryGateway()
	status, err := g.StatusForVideo(context.Background(), "no-such-video")
	require.NoError(t, err)
	assert.False(t, status.AllCompleted())
}

func TestMemoryGateway_PendingVoices_OrderedByCreatedAt(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	id1, _ := g.CreateVoice(ctx, "v1", "A", "first", nil)
	id2, _ := g.CreateVoice(ctx, "v1", "B", "second", nil)

	pending, err := g.PendingVoices(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, id1, pending[0].ID)
	assert.Equal(t, id2, pending[1].ID)
}

func TestMemoryGateway_PendingVoices_ExcludesClaimedRows(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()
	id, _ := g.CreateVoice(ctx, "v1", "A", "hi", nil)
	_, _ = g.ClaimVoice(ctx, id)

	pending, err := g.PendingVoices(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMemoryGateway_Mappings(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	_, err := g.GetMapping(ctx, "voice-a")
	require.NoError(t, err)

	g.SeedMapping(voicejob.VoiceMapping{VoiceID: "voice-a", VoiceName: "Alice", VoiceFile: "alice.wav"})
	g.SeedMapping(voicejob.VoiceMapping{VoiceID: "voice-default", VoiceName: "Default", VoiceFile: "default.wav", IsDefault: true})

	m, err := g.GetMapping(ctx, "voice-a")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Alice", m.VoiceName)

	def, err := g.DefaultMapping(ctx)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "voice-default", def.VoiceID)
}

func TestMemoryGateway_GetMappingByID(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	g.SeedMapping(voicejob.VoiceMapping{VoiceID: "voice-a", VoiceName: "Alice", VoiceFile: "alice.wav"})

	byKey, err := g.GetMapping(ctx, "voice-a")
	require.NoError(t, err)
	require.NotNil(t, byKey)

	byID, err := g.GetMappingByID(ctx, byKey.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "alice.wav", byID.VoiceFile)

	missing, err := g.GetMappingByID(ctx, "nonexistent-id")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
