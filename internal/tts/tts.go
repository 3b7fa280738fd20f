// Package tts is the voice worker's boundary to the neural TTS collaborator
// (§6 of the spec; the model itself is out of scope). A Client turns one
// (text, voice reference) pair into a waveform file at a caller-chosen path;
// its failures propagate as pipelineerr.ErrSynthesisFailure.
package tts

import (
	"context"
	"regexp"
	"strings"
)

// Request describes one synthesis unit: the cleaned text to speak and the
// voice reference (a storage key or local path resolved from a
// voicejob.VoiceMapping) to clone.
type Request struct {
	Text       string
	VoiceRef   string
	OutputPath string
	UseCloning bool
}

// Client synthesizes one VoiceRow's audio. Implementations: LocalClient
// (subprocess, for an in-process/offline TTS engine) and HTTPClient (a
// remote collaborator service, RunPod-shaped request/poll).
type Client interface {
	// Synthesize produces a waveform file at req.OutputPath. Returns
	// pipelineerr.ErrSynthesisFailure on any collaborator-side error.
	Synthesize(ctx context.Context, req Request) error
}

var (
	emojiPattern   = regexp.MustCompile(`[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}]`)
	multiSpaceRe   = regexp.MustCompile(`\s+`)
	narrationStrip = strings.NewReplacer(
		"*", "",
		"_", "",
		"~", "",
		"“", "\"",
		"”", "\"",
	)
)

// CleanText strips emoji and narration-unfriendly punctuation from a
// transcript line before it reaches the synthesizer, matching
// voice_cloning/text_cleaner.py's pre-synthesis pass. The cleaned text is
// also what VoiceRow.TextContent and MessageCoordinate.text (§3) record, so
// the spoken and displayed text agree.
func CleanText(s string) string {
	s = emojiPattern.ReplaceAllString(s, "")
	s = narrationStrip.Replace(s)
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
