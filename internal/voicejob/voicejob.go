// Package voicejob defines the voice worker's inbound message shape and the
// persistent VoiceRow it fans out into.
package voicejob

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ragnarcb/chatclip/internal/pipelineerr"
)

var structValidator = validator.New()

// Message is one transcript entry: a line of text attributed to a speaker.
type Message struct {
	Text     string `json:"text" validate:"required"`
	FromUser string `json:"from_user" validate:"required"`
}

// VoiceJob is the message body the voice worker consumes off its queue.
type VoiceJob struct {
	VideoID         string            `json:"video_id" validate:"required"`
	Messages        []Message         `json:"messages" validate:"required,min=1,dive"`
	VoiceMapping    map[string]string `json:"voice_mapping,omitempty"`
	UseVoiceCloning bool              `json:"use_voice_cloning"`
	OutputDir       string            `json:"output_dir,omitempty"`
}

// Validate checks the invariants spelled out for VoiceJob: at least one
// message, and every speaker resolvable either through the job's own mapping
// or a default mapping supplied by the caller.
func (j *VoiceJob) Validate(hasDefaultMapping bool) error {
	if j.VideoID == "" {
		return pipelineerr.Protocol("voice job missing video_id")
	}
	if len(j.Messages) == 0 {
		return pipelineerr.Protocol("voice job has no messages")
	}
	for i, m := range j.Messages {
		if m.FromUser == "" {
			return pipelineerr.Protocol("message %d missing from_user", i)
		}
		if _, ok := j.VoiceMapping[m.FromUser]; !ok && !hasDefaultMapping {
			return pipelineerr.Protocol("message %d: no voice mapping for %q and no default mapping available", i, m.FromUser)
		}
	}
	return nil
}

// ParseVoiceJob decodes a UTF-8 JSON message body into a VoiceJob.
func ParseVoiceJob(body []byte) (*VoiceJob, error) {
	var j VoiceJob
	if err := json.Unmarshal(body, &j); err != nil {
		return nil, pipelineerr.Protocol("malformed voice job payload: %v", err)
	}
	if err := structValidator.Struct(&j); err != nil {
		return nil, pipelineerr.Protocol("voice job failed validation: %v", err)
	}
	return &j, nil
}

// Status is the lifecycle state of a VoiceRow.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// CanTransition reports whether moving from one status to another is a legal
// VoiceRow transition. It mirrors the conditional-update claim pattern: the
// only path into processing is from pending, and completed/failed are
// terminal.
func CanTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition names an illegal VoiceRow transition as a protocol
// error, for callers that check CanTransition. No gateway in this repository
// returns it; the database gateway enforces the claim with a conditional
// UPDATE instead.
var ErrInvalidTransition = fmt.Errorf("%w: invalid voice row transition", pipelineerr.ErrProtocolError)
