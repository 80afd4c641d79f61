package engine

import (
	"errors"
	"testing"
)

func TestNormalizeLanguage(t *testing.T) {
	cases := map[string]string{
		"zh-CN":  "zh",
		"pt-BR":  "pt",
		"ZH-cn":  "zh",
		"en":     "en",
		"  FR  ": "fr",
		"yue":    "yue",
	}
	for in, want := range cases {
		if got := NormalizeLanguage(in); got != want {
			t.Errorf("NormalizeLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTooShort(t *testing.T) {
	if !tooShort(make([]float32, 100), 16000) {
		t.Errorf("expected 100 samples at 16kHz to be too short")
	}
	if tooShort(make([]float32, 16000), 16000) {
		t.Errorf("expected 1 second of audio to not be too short")
	}
}

func TestGroqWhisperRequiresAPIKey(t *testing.T) {
	e := NewGroqWhisperEngine("", "")
	if err := e.LoadModel(nil, nil); err == nil {
		t.Errorf("expected LoadModel to fail without an API key")
	}
}

func TestGroqWhisperShortAudioSkipsNetwork(t *testing.T) {
	e := NewGroqWhisperEngine("test-key", "")
	text, confidence, err := e.Transcribe(nil, make([]float32, 10), 16000, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "" || confidence != 1.0 {
		t.Errorf("expected empty text and full confidence for sub-minimum audio, got %q %f", text, confidence)
	}
}

func TestRegistryUnknownEngine(t *testing.T) {
	if _, err := New("does-not-exist", "auto", nil); !errors.Is(err, ErrUnknownEngine) {
		t.Errorf("expected ErrUnknownEngine, got %v", err)
	}
}

func TestRegistryListIncludesBuiltins(t *testing.T) {
	ids := map[string]bool{}
	for _, info := range List() {
		ids[info.ID] = true
	}
	for _, want := range []string{"whisper", "transducer", "paraformer", "groq-whisper"} {
		if !ids[want] {
			t.Errorf("expected registry to include %q", want)
		}
	}
}
