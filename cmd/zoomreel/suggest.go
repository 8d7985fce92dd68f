package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"

	"github.com/ivlev/zoomreel/internal/analyzer"
	"github.com/ivlev/zoomreel/internal/director"
	"github.com/ivlev/zoomreel/internal/logging"
	"github.com/ivlev/zoomreel/internal/project"
)

func runSuggest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("suggest", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	windowPtr := fs.Float64("window", 0, "Seconds analysed per keyframe group (default: the project still duration)")
	detectorPtr := fs.String("detector", "contrast", "Region detector")
	maxZoomPtr := fs.Float64("max-zoom", 3.0, "Largest suggested scale, 1..5")
	dryRunPtr := fs.Bool("dry-run", false, "Print suggestions without writing the project")
	fs.Parse(args)

	cfg, p, projectPath, err := common.load()
	if err != nil {
		return err
	}

	det, err := analyzer.NewDetector(*detectorPtr)
	if err != nil {
		return err
	}

	src, err := openSource(ctx, cfg, p, 0)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	window := *windowPtr
	if window <= 0 {
		window = p.Source.StillDuration
	}
	if window <= 0 {
		window = 3
	}

	d := director.NewDirector()
	d.MaxScale = min(5, max(1, *maxZoomPtr))
	d.Logger = logging.WithComponent("director")

	fmt.Printf("[*] Analysing %s in %.1fs windows...\n", p.Source.Path, window)
	keyframes, err := d.Suggest(ctx, src, det, window)
	if err != nil {
		return err
	}
	if len(keyframes) == 0 {
		fmt.Println("[!] No regions found, project unchanged")
		return nil
	}

	for _, k := range keyframes {
		fmt.Printf("  %-10s %6.2fs - %6.2fs  (%.1f%%, %.1f%%) x%.2f\n", k.ID, k.StartTime, k.EndTime, k.X, k.Y, k.Scale)
	}
	if *dryRunPtr {
		return nil
	}

	p.ReplaceZoom(director.OriginAuto, keyframes)
	if err := project.Write(p.Relative(filepath.Dir(projectPath)), projectPath); err != nil {
		return err
	}
	fmt.Printf("[+++] %d keyframes written to %s\n", len(keyframes), projectPath)
	return nil
}
