package filepipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/lokutor-ai/transcribe-core/pkg/audio"
	"github.com/lokutor-ai/transcribe-core/pkg/engine"
	"github.com/lokutor-ai/transcribe-core/pkg/resources"
	"github.com/lokutor-ai/transcribe-core/pkg/subtitle"
	"github.com/lokutor-ai/transcribe-core/pkg/vad"
)

// ErrCancelled signals that ProcessFile stopped because the caller invoked
// Cancel. It is a control-flow signal, not a failure: callers should treat
// it the same as a successful partial transcription.
var ErrCancelled = errors.New("filepipeline: cancelled")

// ProgressCallback reports fractional progress (0..1) through a file. When
// the file's duration is known (via the provider's ffprobe) it is invoked
// once per finalized segment; in every case it is invoked once with 1.0 at
// the end. Without a known duration there are no per-segment calls.
type ProgressCallback func(fraction float64)

// ErrorCallback surfaces a non-fatal per-segment recognition failure. The
// pipeline continues past it rather than aborting the file.
type ErrorCallback func(err error, segmentIndex int)

// ResultCallback receives one file's outcome during a ProcessFiles batch.
// err is non-nil only for a decode/open failure; a segment-level
// recognition failure is instead surfaced through ErrorCallback and
// produces an empty-text segment, not a ResultCallback error.
type ResultCallback func(path string, result FileResult, err error)

// FileResult is the outcome of transcribing one file: the ordered segments,
// summary metadata, where the SRT was written (if anywhere), and whether
// the run was cancelled before reaching the end.
type FileResult struct {
	Segments        []subtitle.Segment
	Cancelled       bool
	DurationSeconds float64
	SegmentCount    int
	OutputPath      string
}

// FilePipeline transcribes whole audio files offline: decode the whole file
// (resampling as needed), run it through a vad.StateMachine to find
// utterances, recognize each with an engine.Engine, and collect the result
// as SRT-ready segments. Unlike StreamTranscriber it makes no interim
// recognition pass and has no worker pool — a file pipeline is throughput-
// bound on the single engine instance, not latency-bound on an interim
// cadence. A segment that fails recognition does not fail the file: it is
// reported through ErrorCallback and kept in the output with empty text.
// ProcessFiles runs the same logic over a batch, one file's failure never
// aborting the rest.
type FilePipeline struct {
	eng        engine.Engine
	provider   resources.Provider
	sourceLang string

	cancelled atomic.Bool
}

// New constructs a FilePipeline bound to one engine. provider resolves the
// ffmpeg/ffprobe binaries used to decode non-WAV input; it may be nil if
// every file the caller passes in is already WAV.
func New(eng engine.Engine, provider resources.Provider, sourceLang string) *FilePipeline {
	return &FilePipeline{eng: eng, provider: provider, sourceLang: sourceLang}
}

// Cancel requests cooperative cancellation: ProcessFile checks for it at
// segment boundaries and returns ErrCancelled rather than aborting mid-call.
func (p *FilePipeline) Cancel() {
	p.cancelled.Store(true)
}

func (p *FilePipeline) shouldCancel() bool {
	return p.cancelled.Load()
}

// ProcessFile transcribes one file end to end, emitting progress via
// onProgress (per finalized segment only when the duration is known; see
// ProgressCallback) and non-fatal
// per-segment recognition failures via onError. outputPath, if non-empty,
// is where the resulting SRT is written; if empty, ProcessFile writes no
// file and FileResult.OutputPath is left blank. Either callback may be
// nil.
func (p *FilePipeline) ProcessFile(ctx context.Context, path string, outputPath string, vadCfg vad.Config, backend vad.Backend, onProgress ProgressCallback, onError ErrorCallback) (FileResult, error) {
	var decoder audio.Decoder
	if p.provider != nil {
		ffmpegPath, err := p.provider.EnsureMediaTool(ctx)
		if err != nil {
			return FileResult{}, fmt.Errorf("filepipeline: resolving ffmpeg: %w", err)
		}
		decoder = NewFFmpegDecoder(ffmpegPath)
	}

	source := audio.NewFileSource(audio.FileSourceConfig{
		Path:       path,
		SampleRate: backend.RequiredSampleRate(),
		Decoder:    decoder,
	})
	if err := source.Open(ctx); err != nil {
		return FileResult{}, fmt.Errorf("filepipeline: opening %s: %w", path, err)
	}
	defer source.Close()

	sm := vad.NewStateMachine(backend, vadCfg)

	var totalDuration float64
	if p.provider != nil {
		if ffprobePath, err := p.provider.ResolveProbe(ctx); err == nil {
			totalDuration, _ = ProbeDuration(ctx, ffprobePath, path)
		}
	}

	var segments []subtitle.Segment
	var processedSeconds float64
	cancelled := false

loop:
	for {
		if p.shouldCancel() {
			cancelled = true
			break
		}

		chunk, err := source.Next(ctx)
		if err != nil {
			if err == io.EOF {
				break loop
			}
			return FileResult{}, fmt.Errorf("filepipeline: reading %s: %w", path, err)
		}

		segs, err := sm.ProcessChunk(chunk.Samples, chunk.SampleRate)
		if err != nil {
			return FileResult{}, fmt.Errorf("filepipeline: vad processing %s: %w", path, err)
		}
		processedSeconds += float64(len(chunk.Samples)) / float64(chunk.SampleRate)

		for _, seg := range segs {
			if !seg.IsFinal {
				continue // file transcription only reports finalized segments
			}
			s := p.transcribeSegment(ctx, seg, len(segments)+1, onError)
			segments = append(segments, s)

			if onProgress != nil && totalDuration > 0 {
				onProgress(clampFraction(processedSeconds / totalDuration))
			}
		}
	}

	if !cancelled {
		if final := sm.Finalize(); final != nil {
			s := p.transcribeSegment(ctx, *final, len(segments)+1, onError)
			segments = append(segments, s)
			if onProgress != nil && totalDuration > 0 {
				onProgress(clampFraction(processedSeconds / totalDuration))
			}
		}
	}

	if onProgress != nil {
		onProgress(1.0)
	}

	result := FileResult{
		Segments:        segments,
		Cancelled:       cancelled,
		DurationSeconds: totalDuration,
		SegmentCount:    len(segments),
	}
	if !cancelled && outputPath != "" {
		if err := writeSRTFile(outputPath, segments); err != nil {
			return FileResult{}, fmt.Errorf("filepipeline: writing %s: %w", outputPath, err)
		}
		result.OutputPath = outputPath
	}
	if cancelled {
		return result, ErrCancelled
	}
	return result, nil
}

// ProcessFiles transcribes each of paths in turn, forwarding every file's
// outcome through onResult. One file's failure (decode/open error) does
// not abort the batch; a prior Cancel() does, and remaining paths are
// skipped.
func (p *FilePipeline) ProcessFiles(ctx context.Context, paths []string, outputPathFor func(path string) string, vadCfg vad.Config, backend vad.Backend, onProgress ProgressCallback, onError ErrorCallback, onResult ResultCallback) {
	for _, path := range paths {
		if p.shouldCancel() {
			if onResult != nil {
				onResult(path, FileResult{Cancelled: true}, ErrCancelled)
			}
			continue
		}

		var outputPath string
		if outputPathFor != nil {
			outputPath = outputPathFor(path)
		}

		result, err := p.ProcessFile(ctx, path, outputPath, vadCfg, backend, onProgress, onError)
		if onResult != nil {
			onResult(path, result, err)
		}
	}
}

func (p *FilePipeline) transcribeSegment(ctx context.Context, seg vad.Segment, index int, onError ErrorCallback) subtitle.Segment {
	text, _, err := p.eng.Transcribe(ctx, seg.Audio, p.eng.RequiredSampleRate(), p.sourceLang)
	if err != nil {
		if onError != nil {
			onError(fmt.Errorf("filepipeline: recognizing segment %d: %w", index, err), index)
		}
		text = ""
	}
	return subtitle.Segment{
		Index:     index,
		StartTime: seg.StartTime,
		EndTime:   seg.EndTime,
		Text:      text,
	}
}

func writeSRTFile(path string, segments []subtitle.Segment) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return subtitle.WriteSRT(f, segments)
}

func clampFraction(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
