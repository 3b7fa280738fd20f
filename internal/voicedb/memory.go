package voicedb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ragnarcb/chatclip/internal/voicejob"
)

// MemoryGateway is an in-memory Gateway, suitable for unit tests and for
// exercising the voice worker without a live Postgres instance. It
// implements the same single-claimer and completion-barrier semantics as
// PostgresGateway, guarded by a mutex instead of a conditional UPDATE.
type MemoryGateway struct {
	mu       sync.Mutex
	voices   map[string]*voicejob.VoiceRow
	mappings map[string]*voicejob.VoiceMapping
}

var _ Gateway = (*MemoryGateway)(nil)

// NewMemoryGateway creates an empty in-memory gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		voices:   make(map[string]*voicejob.VoiceRow),
		mappings: make(map[string]*voicejob.VoiceMapping),
	}
}

// SeedMapping installs a voice mapping directly, bypassing normal creation
// flow; used by tests and by bootstrap code that pre-seeds default voices.
func (g *MemoryGateway) SeedMapping(m voicejob.VoiceMapping) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	g.mappings[m.VoiceID] = &m
}

func (g *MemoryGateway) CreateVoice(_ context.Context, videoID, characterName, textContent string, voiceMappingID *string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	row := &voicejob.VoiceRow{
		ID:             uuid.NewString(),
		VideoID:        videoID,
		VoiceMappingID: voiceMappingID,
		CharacterName:  characterName,
		TextContent:    textContent,
		Status:         voicejob.StatusPending,
		IsLocalStorage: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	g.voices[row.ID] = row
	return row.ID, nil
}

func (g *MemoryGateway) ClaimVoice(_ context.Context, voiceID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	row, ok := g.voices[voiceID]
	if !ok || row.Status != voicejob.StatusPending {
		return false, nil
	}
	now := time.Now()
	row.Status = voicejob.StatusProcessing
	row.ProcessingStartedAt = &now
	row.UpdatedAt = now
	return true, nil
}

func (g *MemoryGateway) CompleteVoice(_ context.Context, voiceID, audioPath string, isLocal bool, remotePath *string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	row, ok := g.voices[voiceID]
	if !ok || row.Status == voicejob.StatusCompleted {
		return nil
	}
	now := time.Now()
	row.Status = voicejob.StatusCompleted
	row.OutputAudioPath = &audioPath
	row.IsLocalStorage = isLocal
	row.RemoteStoragePath = remotePath
	row.ProcessingCompletedAt = &now
	row.UpdatedAt = now
	return nil
}

func (g *MemoryGateway) FailVoice(_ context.Context, voiceID, errMessage string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	row, ok := g.voices[voiceID]
	if !ok {
		return nil
	}
	row.Status = voicejob.StatusFailed
	row.ErrorMessage = &errMessage
	row.UpdatedAt = time.Now()
	return nil
}

func (g *MemoryGateway) StatusForVideo(_ context.Context, videoID string) (voicejob.VideoStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var s voicejob.VideoStatus
	for _, row := range g.voices {
		if row.VideoID != videoID {
			continue
		}
		s.Total++
		switch row.Status {
		case voicejob.StatusCompleted:
			s.Completed++
		case voicejob.StatusFailed:
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s, nil
}

func (g *MemoryGateway) PendingVoices(_ context.Context) ([]voicejob.VoiceRow, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []voicejob.VoiceRow
	for _, row := range g.voices {
		if row.Status == voicejob.StatusPending {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (g *MemoryGateway) VoicesForVideo(_ context.Context, videoID string) ([]voicejob.VoiceRow, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []voicejob.VoiceRow
	for _, row := range g.voices {
		if row.VideoID == videoID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (g *MemoryGateway) GetMapping(_ context.Context, voiceID string) (*voicejob.VoiceMapping, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.mappings[voiceID]
	if !ok {
		return nil, nil
	}
	clone := *m
	return &clone, nil
}

func (g *MemoryGateway) GetMappingByID(_ context.Context, id string) (*voicejob.VoiceMapping, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, m := range g.mappings {
		if m.ID == id {
			clone := *m
			return &clone, nil
		}
	}
	return nil, nil
}

func (g *MemoryGateway) DefaultMapping(_ context.Context) (*voicejob.VoiceMapping, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, m := range g.mappings {
		if m.IsDefault {
			clone := *m
			return &clone, nil
		}
	}
	return nil, nil
}
