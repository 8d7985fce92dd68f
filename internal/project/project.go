package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/zoomreel/internal/config"
	"github.com/ivlev/zoomreel/internal/system"
	"github.com/ivlev/zoomreel/internal/timeline"
)

const CurrentVersion = "1"

// Project is an editable timeline: one source plus its zoom keyframes,
// text overlays and export settings.
type Project struct {
	Version  string                         `yaml:"version"`
	Source   Source                         `yaml:"source"`
	Settings config.Settings                `yaml:"settings"`
	Zoom     []timeline.ZoomKeyframe        `yaml:"zoom"`
	Text     []timeline.TextOverlayKeyframe `yaml:"text"`
	// Fonts maps font families used by Text to TTF/OTF files.
	Fonts map[string]string `yaml:"fonts,omitempty"`
	// Easing names the blend curve of zoom transitions, linear when empty.
	// Preview and export both evaluate through Evaluator.
	Easing string `yaml:"easing,omitempty"`
}

// Source points at the media the timeline is laid over.
type Source struct {
	Path string `yaml:"path"` // relative paths resolve against the project file
	// StillDuration is how long each PDF page or image is shown.
	StillDuration float64 `yaml:"still_duration,omitempty"`
	DPI           int     `yaml:"dpi,omitempty"`
}

func New(sourcePath string) *Project {
	return &Project{
		Version:  CurrentVersion,
		Source:   Source{Path: sourcePath},
		Settings: config.DefaultSettings(),
	}
}

// Validate reports settings and keyframe problems together.
func (p *Project) Validate() error {
	var errs []error
	if p.Source.Path == "" {
		errs = append(errs, fmt.Errorf("project has no source"))
	}
	if err := p.Settings.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := timeline.ParseEasing(p.Easing); err != nil {
		errs = append(errs, err)
	}
	if err := timeline.ValidateAll(p.Zoom, p.Text); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Evaluator returns the evaluator for the project's zoom track.
func (p *Project) Evaluator() (timeline.Evaluator, error) {
	easing, err := timeline.ParseEasing(p.Easing)
	if err != nil {
		return timeline.Evaluator{}, err
	}
	return timeline.Evaluator{Easing: easing}, nil
}

// Write writes a project to a YAML file
func Write(p *Project, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Read reads a project from a YAML file. Relative source and font paths
// are made relative to the file's directory. Missing settings take defaults.
func Read(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	p := New("")
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse project %s: %w", path, err)
	}

	base := filepath.Dir(path)
	p.Source.Path = resolve(base, p.Source.Path)
	for family, fontPath := range p.Fonts {
		p.Fonts[family] = resolve(base, fontPath)
	}
	return p, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// Relative returns a copy whose source and font paths are relative to dir
// where they live below it. Used before writing back a project that Read
// resolved.
func (p *Project) Relative(dir string) *Project {
	cp := *p
	cp.Source.Path = relative(dir, p.Source.Path)
	if p.Fonts != nil {
		cp.Fonts = make(map[string]string, len(p.Fonts))
		for family, fontPath := range p.Fonts {
			cp.Fonts[family] = relative(dir, fontPath)
		}
	}
	return &cp
}

func relative(dir, path string) string {
	if path == "" {
		return path
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return path
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}

// ReplaceZoom drops the keyframes placed by origin and merges in kfs,
// keeping the zoom track ordered by start time.
func (p *Project) ReplaceZoom(origin string, kfs []timeline.ZoomKeyframe) {
	kept := p.Zoom[:0:0]
	for _, k := range p.Zoom {
		if k.Origin != nil && k.Origin.Source == origin {
			continue
		}
		kept = append(kept, k)
	}
	kept = append(kept, kfs...)
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].StartTime < kept[j].StartTime })
	p.Zoom = kept
}

// GeneratePath creates a timestamped project filename in dir
func GeneratePath(dir string) string {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(dir, fmt.Sprintf("project_%s.yaml", timestamp))
}

// FindLatest finds the most recently modified project file in dir
func FindLatest(dir string) (string, error) {
	return system.FindLatest(dir, system.ProjectExtensions...)
}

// OutputPath names the video exported from the project at projectPath.
func OutputPath(outputDir, projectPath string) string {
	name := strings.TrimSuffix(filepath.Base(projectPath), filepath.Ext(projectPath))
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(outputDir, fmt.Sprintf("%s_%s.mp4", name, timestamp))
}
