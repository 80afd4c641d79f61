// Command transcribe is the diagnostic CLI for the transcription core: list
// capture devices, transcribe a file to SRT, or stream a live microphone
// session to stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lokutor-ai/transcribe-core/pkg/audio"
	"github.com/lokutor-ai/transcribe-core/pkg/config"
	"github.com/lokutor-ai/transcribe-core/pkg/engine"
	"github.com/lokutor-ai/transcribe-core/pkg/filepipeline"
	"github.com/lokutor-ai/transcribe-core/pkg/resources"
	"github.com/lokutor-ai/transcribe-core/pkg/subtitle"
	"github.com/lokutor-ai/transcribe-core/pkg/transcriber"
	"github.com/lokutor-ai/transcribe-core/pkg/vad"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "devices":
		runDevices()
	case "engines":
		runEngines()
	case "file":
		runFile(cfg, os.Args[2:])
	case "listen":
		runListen(cfg, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: transcribe <devices|engines|file|listen> [flags]")
}

func runDevices() {
	devices, err := audio.ListDevices()
	if err != nil {
		log.Fatalf("listing capture devices: %v", err)
	}
	for _, d := range devices {
		marker := ""
		if d.IsDefault {
			marker = " (default)"
		}
		fmt.Printf("[%d] %s%s\n", d.Index, d.Name, marker)
	}
}

func runEngines() {
	for _, info := range engine.List() {
		fmt.Printf("%s\tfamily=%s\trate=%dHz\tlanguages=%v\n", info.ID, info.Family, info.RequiredSampleRate, info.SupportedLanguages)
	}
}

func buildEngine(cfg config.Config) engine.Engine {
	provider, err := resources.NewFilesystemProvider(cfg.ModelsDir, cfg.CacheDir, "")
	if err != nil {
		log.Fatalf("resolving resource roots: %v", err)
	}

	params := map[string]string{
		"model_dir": provider.GetModelsDir(cfg.Engine),
		"language":  cfg.Language,
		"api_key":   cfg.GroqAPIKey,
	}
	eng, err := engine.New(cfg.Engine, cfg.Device, params)
	if err != nil {
		log.Fatalf("constructing engine %q: %v", cfg.Engine, err)
	}
	if err := eng.LoadModel(context.Background(), func(pct int, msg string) {
		fmt.Fprintf(os.Stderr, "[%s] %d%% %s\n", cfg.Engine, pct, msg)
	}); err != nil {
		log.Fatalf("loading model: %v", err)
	}
	return eng
}

func buildVADBackend(cfg config.Config, sampleRate int) vad.Backend {
	switch cfg.VADBackend {
	case "neural":
		backend, err := vad.NewNeuralBackend(vad.NeuralBackendConfig{
			ModelPath:  os.Getenv("TRANSCRIBE_VAD_MODEL_PATH"),
			SampleRate: sampleRate,
		})
		if err != nil {
			log.Fatalf("constructing neural VAD backend: %v", err)
		}
		return backend
	default:
		return vad.NewEnergyBackend(sampleRate, 20, 1)
	}
}

func runFile(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("file", flag.ExitOnError)
	outPath := fs.String("out", "", "output .srt path (default: stdout)")
	fs.Parse(args)
	if fs.NArg() < 1 {
		log.Fatal("usage: transcribe file [--out out.srt] <input-file>")
	}
	inputPath := fs.Arg(0)

	eng := buildEngine(cfg)
	defer eng.Cleanup()

	backend := buildVADBackend(cfg, eng.RequiredSampleRate())
	vadCfg, err := vad.NewConfig(vad.Config{})
	if err != nil {
		log.Fatalf("vad config: %v", err)
	}

	provider, err := resources.NewFilesystemProvider(cfg.ModelsDir, cfg.CacheDir, "")
	if err != nil {
		log.Fatalf("resolving resource roots: %v", err)
	}

	pipeline := filepipeline.New(eng, provider, cfg.Language)
	result, err := pipeline.ProcessFile(context.Background(), inputPath, *outPath, vadCfg, backend,
		func(frac float64) {
			fmt.Fprintf(os.Stderr, "\rprogress: %3.0f%%", frac*100)
		},
		func(segErr error, index int) {
			fmt.Fprintf(os.Stderr, "\nsegment %d: %v\n", index, segErr)
		},
	)
	fmt.Fprintln(os.Stderr)
	if err != nil && !errors.Is(err, filepipeline.ErrCancelled) {
		log.Fatalf("transcribing %s: %v", inputPath, err)
	}
	if errors.Is(err, filepipeline.ErrCancelled) {
		fmt.Fprintln(os.Stderr, "cancelled; writing partial output")
	}

	if result.OutputPath != "" {
		fmt.Fprintf(os.Stderr, "wrote %s (%d segments, %.1fs)\n", result.OutputPath, result.SegmentCount, result.DurationSeconds)
		return
	}

	out := os.Stdout
	if *outPath != "" {
		f, createErr := os.Create(*outPath)
		if createErr != nil {
			log.Fatalf("creating %s: %v", *outPath, createErr)
		}
		defer f.Close()
		out = f
	}
	if err := subtitle.WriteSRT(out, result.Segments); err != nil {
		log.Fatalf("writing srt: %v", err)
	}
}

func runListen(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("listen", flag.ExitOnError)
	deviceIndex := fs.Int("device", -1, "capture device index (-1 = default)")
	fs.Parse(args)

	eng := buildEngine(cfg)
	defer eng.Cleanup()

	backend := buildVADBackend(cfg, eng.RequiredSampleRate())
	vadCfg, err := vad.NewConfig(vad.Config{})
	if err != nil {
		log.Fatalf("vad config: %v", err)
	}
	sm := vad.NewStateMachine(backend, vadCfg)

	micCfg := audio.MicrophoneSourceConfig{SampleRate: eng.RequiredSampleRate()}
	if *deviceIndex >= 0 {
		micCfg.DeviceIndex = deviceIndex
	}
	source := audio.NewMicrophoneSource(micCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := source.Open(ctx); err != nil {
		log.Fatalf("opening microphone: %v", err)
	}
	defer source.Close()

	tr := transcriber.New(transcriber.Config{
		SourceID:       "mic",
		SourceLanguage: cfg.Language,
	}, eng, sm, nil)
	defer tr.Close()

	tr.SetCallbacks(
		func(r transcriber.TranscriptionResult) {
			fmt.Printf("[%.2f-%.2f] %s\n", r.StartTime, r.EndTime, r.Text)
		},
		func(r transcriber.InterimResult) {
			fmt.Printf("\r...%s", r.Text)
		},
		func(err error) {
			fmt.Fprintf(os.Stderr, "transcription error: %v\n", err)
		},
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sig
		cancel()
	}()

	fmt.Println("Listening... press Ctrl+C to stop")
	for {
		chunk, err := source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Printf("reading microphone: %v", err)
			break
		}
		if err := tr.FeedAudio(chunk.Samples, chunk.SampleRate); err != nil {
			log.Printf("feeding audio: %v", err)
			break
		}
	}

	if _, err := tr.Finalize(context.Background()); err != nil {
		log.Printf("finalizing: %v", err)
	}
}
