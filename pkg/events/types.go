// Package events defines the structured, tagged event schema used for
// callback-driven consumption of the transcription core: transcription,
// status, error, translation-request, translation-result, and subtitle
// variants, plus a validation operation and legacy-payload normalization.
package events

import (
	"errors"
	"fmt"
)

// Type tags which variant an Event carries.
type Type string

const (
	Transcription      Type = "transcription"
	Status             Type = "status"
	Error              Type = "error"
	TranslationRequest Type = "translation-request"
	TranslationResult  Type = "translation-result"
	Subtitle           Type = "subtitle"
)

// ErrValidation is returned by Validate when a required field is missing
// or event_type is unknown. Keys outside the Event struct are not checked.
var ErrValidation = errors.New("events: invalid event")

// Event is the tagged union every emitted event is shaped as. Fields not
// applicable to EventType are left zero-valued; Validate enforces the
// required-field table per variant.
type Event struct {
	EventType Type    `json:"event_type"`
	Timestamp float64 `json:"timestamp"`
	SourceID  string  `json:"source_id"`

	// transcription
	Text              string   `json:"text,omitempty"`
	IsFinal           bool     `json:"is_final,omitempty"`
	Confidence        float64  `json:"confidence,omitempty"`
	Language          string   `json:"language,omitempty"`
	Phase             string   `json:"phase,omitempty"`
	DisplayText       string   `json:"display_text,omitempty"`
	SpeechProbability float64  `json:"speech_probability,omitempty"`
	AudioQuality      string   `json:"audio_quality,omitempty"`
	NoiseLevel        float64  `json:"noise_level,omitempty"`

	// status
	StatusCode string `json:"status_code,omitempty"`
	Message    string `json:"message,omitempty"`

	// error
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorDetails string `json:"error_details,omitempty"`

	// translation-request / translation-result
	OriginalText     string `json:"original_text,omitempty"`
	TranslatedText   string `json:"translated_text,omitempty"`
	SourceLanguage   string `json:"source_language,omitempty"`
	TargetLanguage   string `json:"target_language,omitempty"`

	// subtitle
	Destination  string `json:"destination,omitempty"`
	IsTranslated bool   `json:"is_translated,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Validate enforces each variant's required fields.
func (e Event) Validate() error {
	if e.SourceID == "" {
		return fmt.Errorf("%w: source_id is required", ErrValidation)
	}

	switch e.EventType {
	case Transcription:
		if e.Text == "" && !e.IsFinal {
			// empty interim text is legal (no speech yet); final empty text
			// is also legal per the spec's "empty final" failure mode.
		}
	case Status:
		if e.StatusCode == "" || e.Message == "" {
			return fmt.Errorf("%w: status requires status_code and message", ErrValidation)
		}
	case Error:
		if e.ErrorCode == "" || e.Message == "" {
			return fmt.Errorf("%w: error requires error_code and message", ErrValidation)
		}
	case TranslationRequest:
		if e.Text == "" || e.SourceLanguage == "" || e.TargetLanguage == "" {
			return fmt.Errorf("%w: translation-request requires text, source_language, target_language", ErrValidation)
		}
	case TranslationResult:
		if e.OriginalText == "" || e.TranslatedText == "" || e.SourceLanguage == "" || e.TargetLanguage == "" {
			return fmt.Errorf("%w: translation-result requires original_text, translated_text, source_language, target_language", ErrValidation)
		}
	case Subtitle:
		if e.Text == "" || e.Destination == "" {
			return fmt.Errorf("%w: subtitle requires text and destination", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown event_type %q", ErrValidation, e.EventType)
	}
	return nil
}

// Normalize fills EventType for legacy untagged payloads: an Event with no
// EventType set but a Text field is treated as a transcription event, the
// one variant predating this schema.
func Normalize(e Event) Event {
	if e.EventType == "" && e.Text != "" {
		e.EventType = Transcription
	}
	return e
}
