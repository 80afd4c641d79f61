package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/lokutor-ai/transcribe-core/pkg/audio"
)

func init() {
	Register("groq-whisper", ModelInfo{
		ID:                 "groq-whisper",
		Family:             "instruction-tuned",
		SupportedLanguages: groqLanguages,
		RequiredSampleRate: 16000,
	}, func(params map[string]string) (Engine, error) {
		return NewGroqWhisperEngine(params["api_key"], params["model"]), nil
	})
}

var groqLanguages = []string{"en", "es", "fr", "de", "it", "pt", "ja", "zh", "ko", "ru", "ar", "hi", "nl", "pl"}

// GroqWhisperEngine is a hosted, instruction-tuned Whisper variant accessed
// over HTTP, grounded on this toolkit's existing Groq STT provider: a
// multipart POST carrying a WAV payload built with audio.NewWavBuffer.
// Unlike the local ONNX engines it requires no LoadModel step beyond
// validating the API key.
type GroqWhisperEngine struct {
	apiKey     string
	url        string
	model      string
	sampleRate int
}

// NewGroqWhisperEngine constructs the hosted engine. model defaults to
// "whisper-large-v3-turbo".
func NewGroqWhisperEngine(apiKey, model string) *GroqWhisperEngine {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &GroqWhisperEngine{
		apiKey:     apiKey,
		url:        "https://api.groq.com/openai/v1/audio/transcriptions",
		model:      model,
		sampleRate: 16000,
	}
}

func (g *GroqWhisperEngine) LoadModel(ctx context.Context, onProgress ProgressCallback) error {
	if g.apiKey == "" {
		return fmt.Errorf("%w: GROQ_API_KEY not set", ErrModelLoadFailed)
	}
	if onProgress != nil {
		onProgress(100, "ready")
	}
	return nil
}

func (g *GroqWhisperEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int, lang string) (string, float64, error) {
	if tooShort(samples, sampleRate) {
		return "", 1.0, nil
	}

	if sampleRate != g.RequiredSampleRate() {
		samples = audio.Resample(samples, sampleRate, g.RequiredSampleRate())
		sampleRate = g.RequiredSampleRate()
	}

	pcm := audio.FloatToPCM16(samples)
	wavData := audio.NewWavBuffer(pcm, sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", g.model); err != nil {
		return "", 0, err
	}
	if lang != "" {
		if err := writer.WriteField("language", NormalizeLanguage(lang)); err != nil {
			return "", 0, err
		}
	}

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", 0, err
	}
	if _, err := io.Copy(part, bytes.NewReader(wavData)); err != nil {
		return "", 0, err
	}
	if err := writer.Close(); err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.url, body)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", 0, fmt.Errorf("groq-whisper error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", 0, err
	}

	return result.Text, 1.0, nil
}

func (g *GroqWhisperEngine) RequiredSampleRate() int { return g.sampleRate }

func (g *GroqWhisperEngine) SupportedLanguages() []string { return groqLanguages }

func (g *GroqWhisperEngine) Cleanup() error { return nil }

func (g *GroqWhisperEngine) Name() string { return "groq-whisper" }
