package render

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"subtitle-index/internal/subtitle"
)

// Format is a render output kind.
type Format string

const (
	FormatMP4  Format = "mp4"
	FormatWebM Format = "webm"
	FormatGIF  Format = "gif"
	FormatPNG  Format = "png"
)

// Still reports whether the format is a single frame.
func (f Format) Still() bool {
	return f == FormatPNG
}

// HasAudio reports whether the format carries an audio stream. The GIF
// muxer takes a single video stream.
func (f Format) HasAudio() bool {
	return f == FormatMP4 || f == FormatWebM
}

// Request asks for a window of a video track with a selection of dialogue
// burned in. Clip formats need EndSeconds; stills use StartSeconds only.
// Dialogue times are absolute and shifted to the window start on render.
type Request struct {
	VideoTrackID      int64                `json:"videoTrackId" validate:"required,gt=0"`
	AudioTrackID      *int64               `json:"audioTrackId,omitempty" validate:"omitempty,gt=0"`
	OutputFormat      Format               `json:"outputFormat" validate:"required,oneof=mp4 webm gif png"`
	StartSeconds      float64              `json:"startSeconds" validate:"gte=0"`
	EndSeconds        float64              `json:"endSeconds,omitempty" validate:"omitempty,gtfield=StartSeconds"`
	Preamble          subtitle.Preamble    `json:"preamble"`
	NondialogueEvents subtitle.NonDialogue `json:"nondialogueEvents"`
	DialogueEvents    []subtitle.Event     `json:"dialogueEvents"`
}

// Duration is the clip length in seconds, or zero for stills.
func (r *Request) Duration() float64 {
	if r.OutputFormat.Still() {
		return 0
	}
	return r.EndSeconds - r.StartSeconds
}

// CacheKey returns a URL and filename safe digest of the request. Requests
// with equal fields share a key; fields the format ignores do not count.
func CacheKey(r *Request) (string, error) {
	canonical := *r
	if canonical.OutputFormat.Still() {
		canonical.EndSeconds = 0
	}
	if !canonical.OutputFormat.HasAudio() {
		canonical.AudioTrackID = nil
	}

	payload, err := json.Marshal(&canonical)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}
	sum := sha256.Sum256(payload)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// FileName is the artifact name for a key.
func FileName(key string, format Format) string {
	return key + "." + string(format)
}
