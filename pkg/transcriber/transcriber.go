package transcriber

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/lokutor-ai/transcribe-core/pkg/audio"
	"github.com/lokutor-ai/transcribe-core/pkg/engine"
	"github.com/lokutor-ai/transcribe-core/pkg/translator"
	"github.com/lokutor-ai/transcribe-core/pkg/vad"
)

// Config configures a StreamTranscriber.
type Config struct {
	SourceID       string
	SourceLanguage string
	TargetLanguage string // empty disables translation regardless of Translator
	MaxWorkers     int    // 0 defaults to 1
	VADConfig      vad.Config
}

// StreamTranscriber turns a live audio stream into finalized and interim
// transcription results: it feeds audio through a vad.StateMachine, hands
// confirmed segments to an engine.Engine across a worker pool, re-sequences
// worker output back into chronological order, and optionally routes final
// text through a translator.Translator.
//
// Engine invocations are always serialized through engineMu even when
// MaxWorkers > 1: the engine.Engine contract makes no goroutine-safety
// guarantee, so concurrency across workers buys overlap on translation and
// emission, not on the recognition call itself.
type StreamTranscriber struct {
	cfg    Config
	engine engine.Engine
	sm     *vad.StateMachine
	tr     translator.Translator

	engineMu sync.Mutex

	genMu      sync.Mutex
	generation uint64

	seqCounter uint64 // atomic
	reorder    *reorderBuffer

	workCh chan workItem
	workWg sync.WaitGroup

	results  chan TranscriptionResult
	interims chan InterimResult

	cbMu      sync.Mutex
	onResult  ResultCallback
	onInterim InterimCallback
	onError   ErrorCallback

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closed    atomic.Bool
}

// New constructs a StreamTranscriber bound to one engine and VAD backend. sm
// must not be shared with any other transcriber.
func New(cfg Config, eng engine.Engine, sm *vad.StateMachine, tr translator.Translator) *StreamTranscriber {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &StreamTranscriber{
		cfg:      cfg,
		engine:   eng,
		sm:       sm,
		tr:       tr,
		reorder:  newReorderBuffer(),
		workCh:   make(chan workItem, cfg.MaxWorkers*4),
		results:  make(chan TranscriptionResult, 32),
		interims: make(chan InterimResult, 8),
		ctx:      ctx,
		cancel:   cancel,
	}
	startWorkers(ctx, cfg.MaxWorkers, t.workCh, &t.workWg, t.processFinal)
	return t
}

// SetCallbacks registers push-mode hooks. Any of the three may be nil.
// Callbacks fire from worker goroutines, the Finalize caller, or (interims)
// the FeedAudio caller; implementations must not call back into this
// transcriber.
func (t *StreamTranscriber) SetCallbacks(onResult ResultCallback, onInterim InterimCallback, onError ErrorCallback) {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	t.onResult = onResult
	t.onInterim = onInterim
	t.onError = onError
}

// FeedAudio pushes one chunk of audio through the VAD state machine. Final
// segments are queued to the worker pool; interim segments are recognized
// synchronously, in the calling goroutine, so their latency reflects exactly
// one engine call rather than queue depth.
func (t *StreamTranscriber) FeedAudio(samples []float32, sampleRate int) error {
	if t.closed.Load() {
		return ErrClosed
	}

	segs, err := t.sm.ProcessChunk(samples, sampleRate)
	if err != nil {
		return fmt.Errorf("transcriber: vad processing failed: %w", err)
	}

	for _, seg := range segs {
		if seg.IsFinal {
			t.submitFinal(seg)
		} else {
			t.processInterim(seg)
		}
	}
	return nil
}

func (t *StreamTranscriber) currentGeneration() uint64 {
	t.genMu.Lock()
	defer t.genMu.Unlock()
	return t.generation
}

func (t *StreamTranscriber) submitFinal(seg vad.Segment) {
	seq := atomic.AddUint64(&t.seqCounter, 1) - 1
	item := workItem{seq: seq, generation: t.currentGeneration(), segment: seg}

	t.workWg.Add(1)
	select {
	case t.workCh <- item:
	case <-t.ctx.Done():
		t.workWg.Done()
	}
}

func (t *StreamTranscriber) processFinal(ctx context.Context, item workItem) {
	result := t.recognize(ctx, item.segment)

	if item.generation != t.currentGeneration() {
		return // Reset invalidated this in-flight recognition
	}

	for _, ready := range t.reorder.submit(item.seq, result) {
		t.emitResult(ready)
	}
}

// recognize runs the engine call under engineMu, then, for final segments,
// translation outside the lock.
func (t *StreamTranscriber) recognize(ctx context.Context, seg vad.Segment) TranscriptionResult {
	t.engineMu.Lock()
	text, confidence, err := t.engine.Transcribe(ctx, seg.Audio, t.sm0SampleRate(), t.cfg.SourceLanguage)
	t.engineMu.Unlock()

	result := TranscriptionResult{
		Text:       text,
		StartTime:  seg.StartTime,
		EndTime:    seg.EndTime,
		IsFinal:    true,
		Confidence: confidence,
		SourceID:   t.cfg.SourceID,
	}
	if err != nil {
		t.reportError(fmt.Errorf("transcriber: recognition failed: %w", err))
		return result
	}

	if t.tr != nil && t.cfg.TargetLanguage != "" && text != "" && t.tr.Supports(t.cfg.SourceLanguage, t.cfg.TargetLanguage) {
		translated, tErr := t.tr.Translate(ctx, text, t.cfg.SourceLanguage, t.cfg.TargetLanguage)
		if tErr != nil {
			t.reportError(fmt.Errorf("transcriber: translation failed: %w", tErr))
		} else {
			result.TranslatedText = translated
			result.TargetLanguage = t.cfg.TargetLanguage
		}
	}
	return result
}

// sm0SampleRate is the sample rate VAD segments are produced at: the
// backend's required rate, since ProcessChunk resamples to it before
// framing.
func (t *StreamTranscriber) sm0SampleRate() int {
	return t.engine.RequiredSampleRate()
}

func (t *StreamTranscriber) processInterim(seg vad.Segment) {
	t.engineMu.Lock()
	text, _, err := t.engine.Transcribe(t.ctx, seg.Audio, t.sm0SampleRate(), t.cfg.SourceLanguage)
	t.engineMu.Unlock()
	if err != nil {
		t.reportError(fmt.Errorf("transcriber: interim recognition failed: %w", err))
		return
	}

	t.emitInterim(InterimResult{
		Text:            text,
		AccumulatedTime: seg.EndTime - seg.StartTime,
		SourceID:        t.cfg.SourceID,
	})
}

func (t *StreamTranscriber) emitResult(r TranscriptionResult) {
	t.cbMu.Lock()
	cb := t.onResult
	t.cbMu.Unlock()
	if cb != nil {
		cb(r)
	}

	defer func() { recover() }() // results may already be closed by Close
	select {
	case t.results <- r:
	default:
		t.reportError(fmt.Errorf("transcriber: result channel full, dropping result for source %s", t.cfg.SourceID))
	}
}

func (t *StreamTranscriber) emitInterim(r InterimResult) {
	t.cbMu.Lock()
	cb := t.onInterim
	t.cbMu.Unlock()
	if cb != nil {
		cb(r)
	}

	defer func() { recover() }()
	select {
	case t.interims <- r:
	default:
	}
}

func (t *StreamTranscriber) reportError(err error) {
	t.cbMu.Lock()
	cb := t.onError
	t.cbMu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// GetResult blocks until the next final TranscriptionResult is available, ctx
// is done, or the transcriber is closed.
func (t *StreamTranscriber) GetResult(ctx context.Context) (TranscriptionResult, error) {
	select {
	case r, ok := <-t.results:
		if !ok {
			return TranscriptionResult{}, ErrClosed
		}
		return r, nil
	case <-ctx.Done():
		return TranscriptionResult{}, ctx.Err()
	}
}

// GetInterim blocks until the next InterimResult is available, ctx is done,
// or the transcriber is closed.
func (t *StreamTranscriber) GetInterim(ctx context.Context) (InterimResult, error) {
	select {
	case r, ok := <-t.interims:
		if !ok {
			return InterimResult{}, ErrClosed
		}
		return r, nil
	case <-ctx.Done():
		return InterimResult{}, ctx.Err()
	}
}

// Finalize drains the VAD state machine's in-progress utterance, if any,
// waits for every already-queued recognition to complete, and returns the
// result for the flushed utterance (nil if the state machine had no
// in-progress utterance). Results of the queued recognitions are emitted as
// usual, not returned.
func (t *StreamTranscriber) Finalize(ctx context.Context) (*TranscriptionResult, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}

	t.workWg.Wait()

	seg := t.sm.Finalize()
	if seg == nil {
		return nil, nil
	}

	seq := atomic.AddUint64(&t.seqCounter, 1) - 1
	gen := t.currentGeneration()
	result := t.recognize(ctx, *seg)
	if gen != t.currentGeneration() {
		return nil, nil
	}

	for _, ready := range t.reorder.submit(seq, result) {
		t.emitResult(ready)
	}
	return &result, nil
}

// Reset discards VAD and ordering state and bumps the generation counter, so
// outputs from recognitions already in flight are silently dropped rather
// than emitted against a stream the caller has abandoned.
func (t *StreamTranscriber) Reset() {
	t.genMu.Lock()
	t.generation++
	t.genMu.Unlock()

	t.sm.Reset()
	t.reorder.reset()
	atomic.StoreUint64(&t.seqCounter, 0)
}

// TranscribeSync feeds source to completion, returning a channel of final
// results that closes when the source is exhausted (or ctx is done) and a
// single-value error channel for any terminal source error. Consume with a
// blocking range loop.
func (t *StreamTranscriber) TranscribeSync(ctx context.Context, source audio.Source) (<-chan TranscriptionResult, <-chan error) {
	return t.runFromSource(ctx, source)
}

// TranscribeAsync is TranscribeSync under another name: the returned channel
// is equally suited to being drained from a background goroutine via select,
// so no separate implementation is needed for the "async" consumption mode.
func (t *StreamTranscriber) TranscribeAsync(ctx context.Context, source audio.Source) (<-chan TranscriptionResult, <-chan error) {
	return t.runFromSource(ctx, source)
}

func (t *StreamTranscriber) runFromSource(ctx context.Context, source audio.Source) (<-chan TranscriptionResult, <-chan error) {
	out := make(chan TranscriptionResult, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if err := source.Open(ctx); err != nil {
			errCh <- fmt.Errorf("transcriber: opening source: %w", err)
			return
		}
		defer source.Close()

		for {
			chunk, err := source.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				errCh <- fmt.Errorf("transcriber: reading source: %w", err)
				return
			}
			if err := t.FeedAudio(chunk.Samples, chunk.SampleRate); err != nil {
				errCh <- err
				return
			}

			t.drainReady(ctx, out)

			if ctx.Err() != nil {
				return
			}
		}

		if _, err := t.Finalize(ctx); err != nil {
			errCh <- err
			return
		}
		t.drainReady(ctx, out)
	}()

	return out, errCh
}

// drainReady forwards any results already buffered in t.results to out
// without blocking indefinitely on ctx.
func (t *StreamTranscriber) drainReady(ctx context.Context, out chan<- TranscriptionResult) {
	for {
		select {
		case r, ok := <-t.results:
			if !ok {
				return
			}
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		default:
			return
		}
	}
}

// Close releases the worker pool, the underlying engine, and the
// translator's connection (if it implements io.Closer). Idempotent; safe to
// call more than once.
func (t *StreamTranscriber) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.cancel()
		close(t.workCh)
		t.workWg.Wait()
		close(t.results)
		close(t.interims)

		if cerr := t.engine.Cleanup(); cerr != nil {
			err = cerr
		}
		if closer, ok := t.tr.(io.Closer); ok {
			closer.Close()
		}
	})
	return err
}
