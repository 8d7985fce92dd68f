package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ivlev/zoomreel/internal/config"
	"github.com/ivlev/zoomreel/internal/export"
	"github.com/ivlev/zoomreel/internal/project"
	"github.com/ivlev/zoomreel/internal/timeline"
)

func runState(args []string) error {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	timePtr := fs.Float64("t", 0, "Time in seconds")
	fs.Parse(args)

	_, p, _, err := common.load()
	if err != nil {
		return err
	}

	ev, err := p.Evaluator()
	if err != nil {
		return err
	}

	t := *timePtr
	state := ev.Timeline(p.Zoom).At(t)
	fmt.Printf("t=%.3f x=%.2f y=%.2f scale=%.3f kind=%s", t, state.X, state.Y, state.Scale, state.Kind)
	if len(state.KeyframeIDs) > 0 {
		fmt.Printf(" keyframes=%s", strings.Join(state.KeyframeIDs, ","))
	}
	fmt.Println()

	for _, o := range timeline.ActiveOverlays(t, p.Text) {
		fmt.Printf("overlay %s at (%.1f%%, %.1f%%): %q\n", o.ID, o.X, o.Y, o.Text)
	}
	return nil
}

func runFrame(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("frame", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	timePtr := fs.Float64("t", 0, "Time in seconds")
	outPtr := fs.String("out", "frame.png", "Output image (.png, .jpg or .webp)")
	watchPtr := fs.Bool("watch", false, "Re-render whenever the project file is saved")
	fs.Parse(args)

	cfg, p, projectPath, err := common.load()
	if err != nil {
		return err
	}

	codec, err := export.CodecByName(strings.TrimPrefix(filepath.Ext(*outPtr), "."), cfg.Export.JPEGQuality)
	if err != nil {
		return err
	}

	if err := renderFrame(ctx, cfg, p, *timePtr, *outPtr, codec); err != nil {
		return err
	}
	if !*watchPtr {
		return nil
	}

	fmt.Printf("[*] Watching %s, Ctrl+C to stop\n", projectPath)
	return project.Watch(ctx, projectPath, 300*time.Millisecond, func(p *project.Project, err error) {
		if err == nil {
			err = renderFrame(ctx, cfg, p, *timePtr, *outPtr, codec)
		}
		if err != nil {
			fmt.Printf("[!] %v\n", err)
		}
	})
}

// renderFrame прогоняет один сэмпл через тот же evaluator и компоновщик,
// что и пайплайн экспорта.
func renderFrame(ctx context.Context, cfg *config.Config, p *project.Project, t float64, out string, codec export.Codec) error {
	ev, err := p.Evaluator()
	if err != nil {
		return err
	}

	src, err := openSource(ctx, cfg, p, 0)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	if err := src.Seek(ctx, t); err != nil {
		return err
	}
	base, err := src.ReadCurrentFrame()
	if err != nil {
		return err
	}

	state := ev.Timeline(p.Zoom).At(t)
	frame, err := newCompositor(cfg, p).Compose(base, state, timeline.ActiveOverlays(t, p.Text))
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := codec.Encode(f, frame); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Printf("[+++] Frame at %.3fs written to %s\n", t, out)
	return nil
}
