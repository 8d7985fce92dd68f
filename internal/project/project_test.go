package project

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ivlev/zoomreel/internal/config"
	"github.com/ivlev/zoomreel/internal/timeline"
)

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.yaml")

	p := New("clips/demo.mp4")
	p.Settings = config.Settings{Quality: "720p", FPS: 24, IncludeAudio: true}
	p.Zoom = []timeline.ZoomKeyframe{
		{ID: "a", StartTime: 2, EndTime: 5, X: 80, Y: 20, Scale: 2, Origin: &timeline.KeyframeOrigin{Source: "manual"}},
		{ID: "b", StartTime: 6, EndTime: 6, X: 50, Y: 50, Scale: 3, Transition: timeline.TransitionInstant},
	}
	p.Text = []timeline.TextOverlayKeyframe{
		{ID: "t", StartTime: 1, EndTime: 3, X: 50, Y: 90, Text: "line one\nline two", FontSize: 32, Color: "#fff"},
	}
	p.Fonts = map[string]string{"brand": "fonts/brand.ttf"}

	if err := Write(p, path); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	loaded, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if loaded.Source.Path != filepath.Join(dir, "clips/demo.mp4") {
		t.Errorf("source path not resolved: %s", loaded.Source.Path)
	}
	if loaded.Fonts["brand"] != filepath.Join(dir, "fonts/brand.ttf") {
		t.Errorf("font path not resolved: %s", loaded.Fonts["brand"])
	}
	if loaded.Settings != p.Settings {
		t.Errorf("settings = %+v, want %+v", loaded.Settings, p.Settings)
	}
	if len(loaded.Zoom) != 2 || loaded.Zoom[0].Origin == nil || loaded.Zoom[0].Origin.Source != "manual" {
		t.Errorf("zoom keyframes not preserved: %+v", loaded.Zoom)
	}
	if loaded.Zoom[1].Transition != timeline.TransitionInstant {
		t.Errorf("transition = %q", loaded.Zoom[1].Transition)
	}
	if len(loaded.Text) != 1 || loaded.Text[0].Text != "line one\nline two" {
		t.Errorf("text overlays not preserved: %+v", loaded.Text)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestReadDefaultsSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.yaml")
	data := "version: \"1\"\nsource:\n  path: /abs/video.mp4\nzoom:\n  - {id: a, start: 0, end: 1, x: 10, y: 10, scale: 2}\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if p.Source.Path != "/abs/video.mp4" {
		t.Errorf("absolute path changed: %s", p.Source.Path)
	}
	if p.Settings != config.DefaultSettings() {
		t.Errorf("settings = %+v, want defaults", p.Settings)
	}
	if len(p.Zoom) != 1 || p.Zoom[0].Scale != 2 {
		t.Errorf("zoom = %+v", p.Zoom)
	}
}

func TestValidate(t *testing.T) {
	p := New("")
	p.Settings.FPS = 100
	p.Zoom = []timeline.ZoomKeyframe{{ID: "bad", StartTime: 3, EndTime: 1, X: 50, Y: 50, Scale: 9}}

	err := p.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"no source", "fps", "bad"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestGeneratePath(t *testing.T) {
	path := GeneratePath("projects")
	if !strings.HasPrefix(path, filepath.Join("projects", "project_")) || filepath.Ext(path) != ".yaml" {
		t.Errorf("unexpected path: %s", path)
	}
}

func TestFindLatest(t *testing.T) {
	dir := t.TempDir()
	files := []string{"project_a.yaml", "project_b.yaml", "project_c.yaml"}
	now := time.Now()
	for i, name := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("version: \"1\"\n"), 0644); err != nil {
			t.Fatal(err)
		}
		// b is the newest
		mt := now.Add(time.Duration(i) * time.Minute)
		if name == "project_b.yaml" {
			mt = now.Add(time.Hour)
		}
		os.Chtimes(p, mt, mt)
	}

	latest, err := FindLatest(dir)
	if err != nil {
		t.Fatalf("FindLatest failed: %v", err)
	}
	if filepath.Base(latest) != "project_b.yaml" {
		t.Errorf("latest = %s, want project_b.yaml", latest)
	}

	if _, err := FindLatest(t.TempDir()); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestOutputPath(t *testing.T) {
	out := OutputPath("output", "projects/demo.yaml")
	if !strings.HasPrefix(out, filepath.Join("output", "demo_")) || !strings.HasSuffix(out, ".mp4") {
		t.Errorf("unexpected output path: %s", out)
	}
}

func TestRelative(t *testing.T) {
	dir := t.TempDir()
	p := New(filepath.Join(dir, "clips", "demo.mp4"))
	p.Fonts = map[string]string{
		"brand": filepath.Join(dir, "fonts", "brand.ttf"),
		"sys":   "/usr/share/fonts/x.ttf",
	}

	rel := p.Relative(dir)
	if rel.Source.Path != filepath.Join("clips", "demo.mp4") {
		t.Errorf("source not made relative: %s", rel.Source.Path)
	}
	if rel.Fonts["brand"] != filepath.Join("fonts", "brand.ttf") {
		t.Errorf("font not made relative: %s", rel.Fonts["brand"])
	}
	if rel.Fonts["sys"] != "/usr/share/fonts/x.ttf" {
		t.Errorf("path outside dir changed: %s", rel.Fonts["sys"])
	}
	if p.Source.Path != filepath.Join(dir, "clips", "demo.mp4") {
		t.Error("Relative modified the receiver")
	}
}

func TestReplaceZoom(t *testing.T) {
	p := New("demo.mp4")
	p.Zoom = []timeline.ZoomKeyframe{
		{ID: "manual", StartTime: 4, EndTime: 6, X: 50, Y: 50, Scale: 2},
		{ID: "old-auto", StartTime: 0, EndTime: 2, X: 50, Y: 50, Scale: 2, Origin: &timeline.KeyframeOrigin{Source: "auto"}},
	}

	p.ReplaceZoom("auto", []timeline.ZoomKeyframe{
		{ID: "new-auto", StartTime: 1, EndTime: 3, X: 10, Y: 10, Scale: 2, Origin: &timeline.KeyframeOrigin{Source: "auto"}},
	})

	var ids []string
	for _, k := range p.Zoom {
		ids = append(ids, k.ID)
	}
	if strings.Join(ids, ",") != "new-auto,manual" {
		t.Errorf("unexpected zoom track: %v", ids)
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.yaml")
	if err := Write(New("demo.mp4"), path); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Project, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 50*time.Millisecond, func(p *Project, err error) {
			if err != nil {
				return
			}
			select {
			case changes <- p:
			default:
			}
		})
	}()

	// unrelated files in the same directory are ignored
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	updated := New("demo.mp4")
	updated.Settings.FPS = 48
	deadline := time.After(5 * time.Second)
	for {
		// the watcher may not be registered yet, so keep saving until it reports
		if err := Write(updated, path); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		select {
		case p := <-changes:
			if p.Settings.FPS != 48 {
				t.Errorf("expected the re-read project, got fps %d", p.Settings.FPS)
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Watch returned %v", err)
			}
			return
		case <-time.After(200 * time.Millisecond):
		case <-deadline:
			t.Fatal("no change reported")
		}
	}
}

func TestEvaluator(t *testing.T) {
	p := New("demo.mp4")
	p.Zoom = []timeline.ZoomKeyframe{{ID: "a", StartTime: 0, EndTime: 10, X: 100, Y: 50, Scale: 3}}

	linear, err := p.Evaluator()
	if err != nil {
		t.Fatalf("Evaluator failed: %v", err)
	}
	// 0.3s into a 1.2s entry ramp
	if got := linear.Evaluate(0.3, p.Zoom).Scale; got != 1.5 {
		t.Errorf("linear scale = %v, want 1.5", got)
	}

	p.Easing = "cubic"
	cubic, err := p.Evaluator()
	if err != nil {
		t.Fatalf("Evaluator failed: %v", err)
	}
	// 4 * 0.25^3 = 0.0625 of the way from 1 to 3
	if got := cubic.Evaluate(0.3, p.Zoom).Scale; got != 1.125 {
		t.Errorf("cubic scale = %v, want 1.125", got)
	}

	p.Easing = "bounce"
	if _, err := p.Evaluator(); err == nil {
		t.Error("expected an error for an unknown easing")
	}
	if err := p.Validate(); err == nil || !strings.Contains(err.Error(), "bounce") {
		t.Errorf("Validate should report the easing, got %v", err)
	}
}
