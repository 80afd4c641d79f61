// Package config loads process configuration for the diagnostic CLI and any
// other entry point constructing engines/VAD backends/translators, following
// the .env-plus-environment-variables convention used throughout this
// toolkit.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds the environment-derived settings needed to construct an
// engine, a VAD backend and (optionally) a translator. It is intentionally
// flat; nested provider-specific settings are read directly by the
// constructors that need them.
type Config struct {
	ModelsDir string
	CacheDir  string

	Engine       string // "whisper", "transducer", "paraformer", "groq-whisper"
	Device       string // "auto", "cpu", "gpu"
	Language     string
	SampleRate   int

	GroqAPIKey     string
	LokutorAPIKey  string

	VADBackend    string // "neural"; any other value selects the energy backend
	VADThreshold  float64
}

// Load reads a .env file if present (missing is not an error, matching the
// teacher's convention) and then layers environment variables on top of
// sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		// no .env file; fall through to process environment only
	}

	cfg := Config{
		ModelsDir:    getenvOr("TRANSCRIBE_MODELS_DIR", ""),
		CacheDir:     getenvOr("TRANSCRIBE_CACHE_DIR", ""),
		Engine:       getenvOr("TRANSCRIBE_ENGINE", "whisper"),
		Device:       getenvOr("TRANSCRIBE_DEVICE", "auto"),
		Language:     getenvOr("TRANSCRIBE_LANGUAGE", "en"),
		SampleRate:   16000,
		GroqAPIKey:   os.Getenv("GROQ_API_KEY"),
		LokutorAPIKey: os.Getenv("LOKUTOR_API_KEY"),
		VADBackend:   getenvOr("TRANSCRIBE_VAD_BACKEND", "energy"),
		VADThreshold: 0.5,
	}

	return cfg
}

func getenvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
