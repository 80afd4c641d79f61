package vad

import (
	"sync"

	"github.com/lokutor-ai/transcribe-core/pkg/audio"
)

// StateMachine re-frames arbitrary-length input audio into a Backend's
// fixed frame size, walks the hysteresis transition table described by the
// speech/silence thresholds, and emits finalized and interim Segments. One
// StateMachine instance is owned by exactly one logical audio stream; it is
// not safe to share across streams.
type StateMachine struct {
	backend Backend
	cfg     Config

	mu sync.Mutex

	residual  []float32
	frameDur  float64 // seconds per frame, at backend rate
	streamPos float64 // cumulative seconds of audio consumed, at backend rate

	state State

	preBuf       []float32 // ring of recent pre-speech audio, capped to SpeechPadMs
	preBufMaxLen int

	candidateStartPos float64
	candidateSpeechMs float64
	candidateSilenceMs float64

	utterance      []float32
	utteranceStart float64
	nextInterimAt  float64 // speech-elapsed-ms watermark for the next interim

	lastFinalStart float64
	haveLastFinal  bool
}

// NewStateMachine constructs a StateMachine bound to one Backend.
func NewStateMachine(backend Backend, cfg Config) *StateMachine {
	frameDur := float64(backend.FrameSamples()) / float64(backend.RequiredSampleRate())
	padFrames := int(float64(cfg.SpeechPadMs)/1000.0/frameDur + 0.5)
	if padFrames < 1 {
		padFrames = 1
	}
	return &StateMachine{
		backend:      backend,
		cfg:          cfg,
		frameDur:     frameDur,
		preBufMaxLen: padFrames * backend.FrameSamples(),
		state:        Silence,
	}
}

// ProcessChunk re-frames audio (resampling first if sampleRate differs from
// the backend's required rate), steps the state machine frame by frame, and
// returns every Segment produced during this call in chronological order.
func (sm *StateMachine) ProcessChunk(samples []float32, sampleRate int) ([]Segment, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sampleRate != sm.backend.RequiredSampleRate() {
		samples = audio.Resample(samples, sampleRate, sm.backend.RequiredSampleRate())
	}

	sm.residual = append(sm.residual, samples...)

	var out []Segment
	frameLen := sm.backend.FrameSamples()
	for len(sm.residual) >= frameLen {
		frame := sm.residual[:frameLen]
		sm.residual = sm.residual[frameLen:]

		seg, err := sm.stepFrame(frame)
		if err != nil {
			return out, err
		}
		if seg != nil {
			out = append(out, *seg)
		}
	}
	return out, nil
}

func (sm *StateMachine) stepFrame(frame []float32) (*Segment, error) {
	p, err := sm.backend.Predict(frame)
	if err != nil {
		return nil, err
	}

	frameStart := sm.streamPos
	sm.streamPos += sm.frameDur

	sm.pushPreBuf(frame)

	switch sm.state {
	case Silence:
		if p >= sm.cfg.Threshold {
			sm.state = PotentialSpeech
			sm.candidateStartPos = frameStart
			sm.candidateSpeechMs = sm.frameDur * 1000
		}
		return nil, nil

	case PotentialSpeech:
		if p < sm.cfg.NegThreshold {
			sm.state = Silence
			sm.candidateSpeechMs = 0
			return nil, nil
		}
		sm.candidateSpeechMs += sm.frameDur * 1000
		if sm.candidateSpeechMs < float64(sm.cfg.MinSpeechMs) {
			return nil, nil
		}
		sm.commitOnset()
		sm.appendUtterance(frame)
		return nil, nil

	case Speech:
		sm.appendUtterance(frame)

		if p < sm.cfg.NegThreshold {
			sm.state = PotentialSilence
			sm.candidateSilenceMs = sm.frameDur * 1000
		} else {
			sm.candidateSilenceMs = 0
		}

		if sm.cfg.MaxSpeechMs > 0 {
			elapsed := (sm.streamPos - sm.utteranceStart) * 1000
			if elapsed >= float64(sm.cfg.MaxSpeechMs) {
				return sm.emitFinal(), nil
			}
		}
		return sm.maybeInterim(), nil

	case PotentialSilence:
		sm.appendUtterance(frame)

		if p >= sm.cfg.Threshold {
			sm.state = Speech
			sm.candidateSilenceMs = 0
			return sm.maybeInterim(), nil
		}

		sm.candidateSilenceMs += sm.frameDur * 1000
		if sm.candidateSilenceMs >= float64(sm.cfg.MinSilenceMs) {
			sm.trimTrailingPad()
			return sm.emitFinal(), nil
		}
		return sm.maybeInterim(), nil
	}

	return nil, nil
}

func (sm *StateMachine) pushPreBuf(frame []float32) {
	sm.preBuf = append(sm.preBuf, frame...)
	if len(sm.preBuf) > sm.preBufMaxLen {
		sm.preBuf = sm.preBuf[len(sm.preBuf)-sm.preBufMaxLen:]
	}
}

// commitOnset transitions PotentialSpeech -> Speech, seeding the utterance
// buffer with the buffered pre-speech padding so the emitted segment begins
// SpeechPadMs before the confirmed onset.
func (sm *StateMachine) commitOnset() {
	sm.state = Speech

	padSamples := sm.preBufMaxLen
	if padSamples > len(sm.preBuf) {
		padSamples = len(sm.preBuf)
	}
	pad := sm.preBuf[len(sm.preBuf)-padSamples:]

	sm.utterance = make([]float32, len(pad))
	copy(sm.utterance, pad)

	padSeconds := float64(padSamples) / float64(sm.backend.RequiredSampleRate())
	sm.utteranceStart = sm.candidateStartPos - padSeconds
	if sm.utteranceStart < 0 {
		sm.utteranceStart = 0
	}
	sm.nextInterimAt = float64(sm.cfg.InterimMinDurationMs)
}

func (sm *StateMachine) appendUtterance(frame []float32) {
	sm.utterance = append(sm.utterance, frame...)
}

// trimTrailingPad keeps at most SpeechPadMs worth of trailing silence that
// accumulated while confirming the offset, discarding any excess beyond
// that padding window (MinSilenceMs may exceed SpeechPadMs).
func (sm *StateMachine) trimTrailingPad() {
	padSamples := int(float64(sm.cfg.SpeechPadMs) / 1000.0 * float64(sm.backend.RequiredSampleRate()))
	silenceSamples := int(sm.candidateSilenceMs / 1000.0 * float64(sm.backend.RequiredSampleRate()))
	if silenceSamples <= padSamples {
		return
	}
	excess := silenceSamples - padSamples
	if excess < len(sm.utterance) {
		sm.utterance = sm.utterance[:len(sm.utterance)-excess]
	}
}

func (sm *StateMachine) emitFinal() *Segment {
	seg := Segment{
		Audio:     sm.utterance,
		StartTime: sm.utteranceStart,
		EndTime:   sm.streamPos,
		IsFinal:   true,
	}

	// invariant: final segment start times strictly increase
	if sm.haveLastFinal && seg.StartTime <= sm.lastFinalStart {
		seg.StartTime = sm.lastFinalStart + sm.frameDur
	}
	sm.lastFinalStart = seg.StartTime
	sm.haveLastFinal = true

	sm.resetUtterance()
	return &seg
}

func (sm *StateMachine) maybeInterim() *Segment {
	speechElapsedMs := (sm.streamPos - sm.utteranceStart) * 1000
	if speechElapsedMs < sm.nextInterimAt {
		return nil
	}
	sm.nextInterimAt += float64(sm.cfg.InterimIntervalMs)

	audioCopy := make([]float32, len(sm.utterance))
	copy(audioCopy, sm.utterance)

	return &Segment{
		Audio:     audioCopy,
		StartTime: sm.utteranceStart,
		EndTime:   sm.streamPos,
		IsFinal:   false,
	}
}

func (sm *StateMachine) resetUtterance() {
	sm.state = Silence
	sm.utterance = nil
	sm.candidateSpeechMs = 0
	sm.candidateSilenceMs = 0
	sm.nextInterimAt = 0
	sm.preBuf = nil
}

// Finalize flushes any in-progress utterance as a final Segment. Returns
// nil if the machine is currently in Silence or PotentialSpeech (nothing to
// flush).
func (sm *StateMachine) Finalize() *Segment {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != Speech && sm.state != PotentialSilence {
		return nil
	}
	return sm.emitFinal()
}

// Reset clears all state machine bookkeeping and the backend's internal
// state, discarding any in-progress utterance without emitting it.
func (sm *StateMachine) Reset() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.backend.Reset()
	sm.residual = nil
	sm.streamPos = 0
	sm.resetUtterance()
	sm.lastFinalStart = 0
	sm.haveLastFinal = false
}

// State returns the machine's current hysteresis state, mainly for tests
// and diagnostics.
func (sm *StateMachine) State() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}
