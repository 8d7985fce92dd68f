package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/ivlev/zoomreel/internal/export"
	"github.com/ivlev/zoomreel/internal/jobs"
	"github.com/ivlev/zoomreel/internal/logging"
	"github.com/ivlev/zoomreel/internal/project"
	"github.com/ivlev/zoomreel/internal/video"
)

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	outputPtr := fs.String("output", "", "Output video (default: output/<project>_<timestamp>.mp4)")
	qualityPtr := fs.String("quality", "", "Quality preset: 720p, 1080p, 1440p, 2160p")
	fpsPtr := fs.Int("fps", 0, "Frames per second, 24..60")
	noAudioPtr := fs.Bool("no-audio", false, "Drop the source audio track")
	workersPtr := fs.Int("workers", 0, "Compression workers (default from config)")
	batchPtr := fs.Int("batch", 0, "Frames per batch (default from config)")
	codecPtr := fs.String("codec", "", "Intermediate frame format: png, jpeg, webp")
	spoolPtr := fs.String("spool", "", "Frame spool: disk or memory")
	statsPtr := fs.Bool("stats", false, "Print a performance report and append it to benchmark.log")
	fs.Parse(args)

	cfg, p, projectPath, err := common.load()
	if err != nil {
		return err
	}

	settings := p.Settings
	if *qualityPtr != "" {
		settings.Quality = *qualityPtr
	}
	if *fpsPtr != 0 {
		settings.FPS = *fpsPtr
	}
	if *noAudioPtr {
		settings.IncludeAudio = false
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	// тот же evaluator, что и в превью состояний и кадров
	evaluator, err := p.Evaluator()
	if err != nil {
		return err
	}

	ec := cfg.Export
	if *workersPtr > 0 {
		ec.Workers = *workersPtr
	}
	if *batchPtr > 0 {
		ec.BatchSize = *batchPtr
	}
	if *codecPtr != "" {
		ec.Codec = *codecPtr
	}
	if *spoolPtr != "" {
		ec.Spool = *spoolPtr
	}
	codec, err := export.CodecByName(ec.Codec, ec.JPEGQuality)
	if err != nil {
		return err
	}

	outputPath := *outputPtr
	if outputPath == "" {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			return err
		}
		outputPath = project.OutputPath(cfg.OutputDir, projectPath)
	}

	src, err := openSource(ctx, cfg, p, float64(settings.FPS))
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	w, h := src.Size()
	fmt.Printf("[*] Source: %s | %.2fs | %dx%d\n", p.Source.Path, src.Duration(), w, h)
	fmt.Printf("[*] Export: %s @ %d FPS | zoom keyframes: %d | text overlays: %d\n",
		settings.Quality, settings.FPS, len(p.Zoom), len(p.Text))

	// в памяти сырые кадры живут до обработки, поэтому memory spool
	// используем только если весь экспорт помещается в один батч
	batch := ec.BatchSize
	if batch <= 0 {
		batch = export.DefaultBatchSize
	}
	useMemory := ec.Spool == "memory"
	if useMemory {
		maxDuration := ec.MaxDuration
		if maxDuration <= 0 {
			maxDuration = export.DefaultMaxDuration
		}
		if n := export.SampleCount(math.Min(src.Duration(), maxDuration), settings.FPS); n > batch {
			fmt.Printf("[!] %d frames do not fit the memory spool (%d), spooling to disk\n", n, batch)
			useMemory = false
		}
	}

	encoder, err := video.NewFFmpegEncoder(video.Options{
		FFmpegPath: cfg.FFmpeg.BinaryPath,
		TempDir:    cfg.TempDir,
		Logger:     logging.WithComponent("encoder"),
	})
	if err != nil {
		return err
	}
	defer encoder.Close()

	manager := jobs.NewManager(logging.WithComponent("jobs"))

	var pipeline *export.Pipeline
	id := manager.Submit(ctx, func(ctx context.Context, report func(export.JobState)) ([]byte, error) {
		opts := export.Options{
			BatchSize:   ec.BatchSize,
			Workers:     ec.Workers,
			SeekTimeout: ec.SeekTimeout,
			MaxDuration: ec.MaxDuration,
			Codec:       codec,
			Evaluator:   evaluator,
			SpoolDir:    cfg.TempDir,
			Compositor:  newCompositor(cfg, p),
			OnState:     report,
			Logger:      logging.WithComponent("export"),
		}
		if useMemory {
			opts.NewSpool = func() (export.Spool, error) { return export.NewMemorySpool(batch), nil }
		}
		pipeline = export.New(encoder, opts)
		return pipeline.Run(ctx, src, p.Zoom, p.Text, settings)
	})

	states, cancel, err := manager.Subscribe(id)
	if err != nil {
		return err
	}
	defer cancel()
	printProgress(states)

	out, err := manager.Wait(ctx, id)
	if err != nil {
		return err
	}

	if err := os.WriteFile(outputPath, out, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}

	if *statsPtr || cfg.ShowStats {
		stats := pipeline.Stats()
		stats.WriteReport(os.Stdout, BuildVersion)
		if err := stats.AppendBenchmark("benchmark.log", BuildVersion, p.Source.Path); err != nil {
			fmt.Printf("[!] Failed to write benchmark.log: %v\n", err)
		}
	}

	abs, _ := filepath.Abs(outputPath)
	fmt.Printf("[+++] Done! Result: %s\n", abs)
	return nil
}

// printProgress печатает строку при смене стадии и каждые десять процентов.
func printProgress(states <-chan export.JobState) {
	var stage export.Stage
	step := -1
	for s := range states {
		if s.Stage == export.StageError {
			return
		}
		if s.Stage != stage || int(s.Progress/10) != step {
			stage, step = s.Stage, int(s.Progress/10)
			fmt.Printf("[>] %-12s %5.1f%% %s\n", s.Stage, s.Progress, s.Message)
		}
	}
}
