package voicejob

import "time"

// VoiceRow is the persistent, one-per-message unit of work the voice worker
// drives to completion.
type VoiceRow struct {
	ID                   string
	VideoID              string
	VoiceMappingID       *string
	CharacterName        string
	TextContent          string
	Status               Status
	OutputAudioPath      *string
	IsLocalStorage       bool
	RemoteStoragePath    *string
	ErrorMessage         *string
	CreatedAt            time.Time
	ProcessingStartedAt  *time.Time
	ProcessingCompletedAt *time.Time
	UpdatedAt            time.Time
}

// VoiceMapping is a pre-seeded speaker-to-voice reference. Exactly one row
// may have IsDefault set.
type VoiceMapping struct {
	ID        string
	VoiceID   string
	VoiceName string
	VoiceFile string
	IsDefault bool
}

// VideoStatus is the aggregate view of a video's voice rows used by the
// completion-barrier predicate.
type VideoStatus struct {
	Total     int
	Completed int
	Failed    int
	Pending   int
}

// AllCompleted implements "total > 0 and completed == total": the gate the
// orchestrator polls before moving past the voice-job fan-out.
func (s VideoStatus) AllCompleted() bool {
	return s.Total > 0 && s.Completed == s.Total
}

// AnyFailed reports whether the orchestrator should abort rather than keep
// waiting.
func (s VideoStatus) AnyFailed() bool {
	return s.Failed > 0
}
