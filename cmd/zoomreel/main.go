package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/ivlev/zoomreel/internal/compositor"
	"github.com/ivlev/zoomreel/internal/config"
	"github.com/ivlev/zoomreel/internal/logging"
	"github.com/ivlev/zoomreel/internal/project"
	"github.com/ivlev/zoomreel/internal/source"
	"github.com/ivlev/zoomreel/internal/system"
)

// BuildVersion задается через -ldflags "-X main.BuildVersion=...".
var BuildVersion = "dev"

const usage = `zoomreel bakes pan/zoom keyframes and text overlays into a video.

Usage:
  zoomreel export [flags]   render the project to an mp4
  zoomreel state  [flags]   print the evaluated zoom state at -t
  zoomreel frame  [flags]   render a single preview frame at -t
  zoomreel suggest [flags]  place zoom keyframes on detected regions

Run "zoomreel <command> -h" for the flags of a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "export":
		err = runExport(ctx, os.Args[2:])
	case "state":
		err = runState(os.Args[2:])
	case "frame":
		err = runFrame(ctx, os.Args[2:])
	case "suggest":
		err = runSuggest(ctx, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "[-] Error: %v\n", err)
		os.Exit(1)
	}
}

// commonFlags - общие флаги всех подкоманд.
type commonFlags struct {
	project string
	config  string
	verbose bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.project, "project", "", "Project file (default: newest file in the projects directory)")
	fs.StringVar(&c.config, "config", "", "Config file (default: ./zoomreel.yaml or ~/.zoomreel/config.yaml)")
	fs.BoolVar(&c.verbose, "v", false, "Verbose logging")
}

// load инициализирует логирование и читает конфиг и проект.
func (c *commonFlags) load() (*config.Config, *project.Project, string, error) {
	logging.Init(c.verbose)
	system.InitResourceLimits(logging.WithComponent("system"))

	cfg, err := config.Load(c.config)
	if err != nil {
		return nil, nil, "", err
	}

	path := c.project
	if path == "" {
		path, err = project.FindLatest(cfg.ProjectsDir)
		if err != nil {
			return nil, nil, "", fmt.Errorf("%w. Put a project file into %s/ or pass -project", err, cfg.ProjectsDir)
		}
		fmt.Printf("[*] Using project: %s\n", path)
	}

	p, err := project.Read(path)
	if err != nil {
		return nil, nil, "", err
	}
	return cfg, p, path, nil
}

func openSource(ctx context.Context, cfg *config.Config, p *project.Project, sampleRate float64) (source.VideoSource, error) {
	still := p.Source.StillDuration
	if still <= 0 {
		still = 3
	}
	return source.Open(ctx, p.Source.Path, source.Options{
		FFmpeg: source.FFmpegOptions{
			FFmpegPath:  cfg.FFmpeg.BinaryPath,
			FFprobePath: cfg.FFmpeg.FFprobePath,
			SampleRate:  sampleRate,
			Logger:      logging.WithComponent("source"),
		},
		StillDuration: still,
		DPI:           p.Source.DPI,
	})
}

// newCompositor сначала регистрирует шрифты из конфига, чтобы шрифты проекта их перекрывали.
func newCompositor(cfg *config.Config, p *project.Project) *compositor.Compositor {
	fonts := compositor.NewFontBook()
	for _, set := range []map[string]string{cfg.Fonts, p.Fonts} {
		for family, path := range set {
			if err := fonts.RegisterFile(family, path); err != nil {
				log.Warn().Err(err).Str("family", family).Msg("font not registered")
			}
		}
	}
	return compositor.New(fonts)
}
