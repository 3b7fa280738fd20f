// Package voicedb is the only component that issues writes against the
// voices table: the database-mediated fan-out/completion-barrier gateway.
package voicedb

import (
	"context"

	"github.com/ragnarcb/chatclip/internal/voicejob"
)

// Gateway is the set of typed operations the voice worker and orchestrator
// use to coordinate through Postgres instead of in-process state.
type Gateway interface {
	// CreateVoice inserts a fresh pending row and returns its id. At-most-once
	// is not guaranteed at this layer.
	CreateVoice(ctx context.Context, videoID, characterName, textContent string, voiceMappingID *string) (string, error)

	// ClaimVoice performs the conditional update status=processing WHERE
	// status='pending', returning whether the caller now owns the row.
	ClaimVoice(ctx context.Context, voiceID string) (bool, error)

	// CompleteVoice sets a terminal completed status and records the storage
	// location. A second completion of an already-completed row is a no-op.
	CompleteVoice(ctx context.Context, voiceID, audioPath string, isLocal bool, remotePath *string) error

	// FailVoice sets a terminal failed status with an error message.
	FailVoice(ctx context.Context, voiceID, errMessage string) error

	// StatusForVideo returns aggregate counts for all voice rows of a video.
	StatusForVideo(ctx context.Context, videoID string) (voicejob.VideoStatus, error)

	// PendingVoices returns pending rows ordered by created_at ascending. The
	// rows are not joined with their mapping: each carries only
	// VoiceMappingID, which callers resolve with GetMappingByID.
	PendingVoices(ctx context.Context) ([]voicejob.VoiceRow, error)

	// VoicesForVideo returns every voice row for videoID ordered by
	// created_at ascending — the orchestrator's read-only view used to
	// reassemble transcript order after the completion barrier passes.
	VoicesForVideo(ctx context.Context, videoID string) ([]voicejob.VoiceRow, error)

	// GetMapping returns the voice mapping for a stable voice key, or nil if
	// none exists.
	GetMapping(ctx context.Context, voiceID string) (*voicejob.VoiceMapping, error)

	// GetMappingByID returns the voice mapping for its internal primary key
	// (the id stored on VoiceRow.VoiceMappingID), or nil if none exists.
	GetMappingByID(ctx context.Context, id string) (*voicejob.VoiceMapping, error)

	// DefaultMapping returns the mapping flagged is_default, or nil if none
	// has been seeded.
	DefaultMapping(ctx context.Context) (*voicejob.VoiceMapping, error)
}
