package vad

import "testing"

// scriptedBackend replays a fixed probability sequence, one value per
// Predict call, for deterministic state machine tests.
type scriptedBackend struct {
	rate    int
	frame   int
	probs   []float64
	idx     int
	resets  int
}

func (s *scriptedBackend) RequiredSampleRate() int { return s.rate }
func (s *scriptedBackend) FrameSamples() int       { return s.frame }
func (s *scriptedBackend) Predict(frame []float32) (float64, error) {
	if s.idx >= len(s.probs) {
		return 0, nil
	}
	p := s.probs[s.idx]
	s.idx++
	return p, nil
}
func (s *scriptedBackend) Reset() { s.resets++ }

func framesOf(n int) []float32 {
	return make([]float32, n)
}

func TestStateMachineSilenceStaysIdle(t *testing.T) {
	backend := &scriptedBackend{rate: 16000, frame: 160, probs: []float64{0, 0, 0}}
	sm := NewStateMachine(backend, DefaultConfig())

	segs, err := sm.ProcessChunk(framesOf(480), 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 0 {
		t.Errorf("expected no segments in silence, got %d", len(segs))
	}
	if sm.State() != Silence {
		t.Errorf("expected Silence, got %v", sm.State())
	}
}

func TestStateMachineEmitsFinalAfterOnsetAndOffset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSpeechMs = 20  // 2 frames at 10ms
	cfg.MinSilenceMs = 20 // 2 frames
	cfg.SpeechPadMs = 10  // 1 frame
	cfg.InterimMinDurationMs = 100000
	backend := &scriptedBackend{rate: 16000, frame: 160} // 10ms frames

	// silence, onset x3, offset x3
	backend.probs = []float64{0, 0.9, 0.9, 0.9, 0.1, 0.1, 0.1}
	sm := NewStateMachine(backend, cfg)

	var allSegs []Segment
	for i := 0; i < len(backend.probs); i++ {
		segs, err := sm.ProcessChunk(framesOf(160), 16000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		allSegs = append(allSegs, segs...)
	}

	if len(allSegs) != 1 {
		t.Fatalf("expected exactly one final segment, got %d", len(allSegs))
	}
	if !allSegs[0].IsFinal {
		t.Errorf("expected final segment")
	}
	if allSegs[0].EndTime <= allSegs[0].StartTime {
		t.Errorf("expected end_time > start_time, got %v <= %v", allSegs[0].EndTime, allSegs[0].StartTime)
	}
}

func TestStateMachineFinalizeFlushesInProgressUtterance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSpeechMs = 10
	cfg.InterimMinDurationMs = 100000
	backend := &scriptedBackend{rate: 16000, frame: 160, probs: []float64{0.9, 0.9}}
	sm := NewStateMachine(backend, cfg)

	if _, err := sm.ProcessChunk(framesOf(320), 16000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sm.State() != Speech {
		t.Fatalf("expected Speech before finalize, got %v", sm.State())
	}

	seg := sm.Finalize()
	if seg == nil {
		t.Fatal("expected a final segment from Finalize")
	}
	if !seg.IsFinal {
		t.Errorf("expected IsFinal=true")
	}
	if sm.State() != Silence {
		t.Errorf("expected Silence after finalize, got %v", sm.State())
	}
}

func TestStateMachineFinalizeNoopInSilence(t *testing.T) {
	backend := &scriptedBackend{rate: 16000, frame: 160}
	sm := NewStateMachine(backend, DefaultConfig())

	if seg := sm.Finalize(); seg != nil {
		t.Errorf("expected nil from Finalize in Silence, got %+v", seg)
	}
}

func TestStateMachineResetClearsBackend(t *testing.T) {
	backend := &scriptedBackend{rate: 16000, frame: 160, probs: []float64{0.9, 0.9}}
	sm := NewStateMachine(backend, DefaultConfig())
	sm.ProcessChunk(framesOf(320), 16000)

	sm.Reset()
	if backend.resets != 1 {
		t.Errorf("expected backend.Reset to be called once, got %d", backend.resets)
	}
	if sm.State() != Silence {
		t.Errorf("expected Silence after Reset, got %v", sm.State())
	}
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults ok", Config{}, false},
		{"threshold too high", Config{Threshold: 1.5}, true},
		{"neg threshold above threshold", Config{Threshold: 0.5, NegThreshold: 0.6}, true},
		{"negative min speech", Config{MinSpeechMs: -1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfig(tc.cfg)
			if tc.wantErr && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestPresetForLanguageUnsupported(t *testing.T) {
	if _, err := PresetForLanguage("xx-unsupported"); err != ErrUnsupportedLanguage {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
}
