// Package translator defines the Translator contract the stream
// transcriber routes final results through when configured, plus a
// concrete WebSocket-backed implementation.
package translator

import "context"

// Translator translates text between a source and target language.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
	Supports(sourceLang, targetLang string) bool
}
