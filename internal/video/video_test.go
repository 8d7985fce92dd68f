package video

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArgsVideoOnly(t *testing.T) {
	got := BuildArgs(ArgsParams{FPS: 30, FrameExt: "png", Height: 1080, CRF: 25})
	want := []string{
		"-y", "-hide_banner",
		"-framerate", "30",
		"-i", "frame_%06d.png",
		"-map", "0:v:0",
		"-vf", "scale=-2:1080",
		"-c:v", "libx264", "-preset", "medium", "-crf", "25", "-pix_fmt", "yuv420p",
		"-shortest", "-movflags", "+faststart",
		"output.mp4",
	}
	assert.Equal(t, want, got)
}

func TestBuildArgsWithAudio(t *testing.T) {
	got := BuildArgs(ArgsParams{FPS: 60, FrameExt: "webp", AudioExt: "aac", Height: 720, CRF: 26})
	want := []string{
		"-y", "-hide_banner",
		"-framerate", "60",
		"-i", "frame_%06d.webp",
		"-i", "audio.aac",
		"-map", "0:v:0", "-map", "1:a:0",
		"-vf", "scale=-2:720",
		"-c:v", "libx264", "-preset", "medium", "-crf", "26", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "192k",
		"-shortest", "-movflags", "+faststart",
		"output.mp4",
	}
	assert.Equal(t, want, got)
}

func TestBuildArgsDeterministic(t *testing.T) {
	p := ArgsParams{FPS: 24, FrameExt: "jpg", Height: 1440, CRF: 24}
	assert.Equal(t, BuildArgs(p), BuildArgs(p))
}

func TestFrameNames(t *testing.T) {
	assert.Equal(t, "frame_000000.png", FrameName(0, "png"))
	assert.Equal(t, "frame_012345.jpg", FrameName(12345, "jpg"))
	assert.Equal(t, "audio.m4a", AudioName("m4a"))
}

func TestStreamOutput(t *testing.T) {
	input := strings.Join([]string{
		"Input #0, image2, from 'frame_%06d.png':",
		"frame=10",
		"fps=5.5",
		"bitrate=N/A",
		"out_time_us=333333",
		"speed=0.4x",
		"progress=continue",
		"[libx264 @ 0x1] using cpu capabilities: x=1",
		"frame=90",
		"out_time_ms=3000000",
		"progress=end",
	}, "\n")

	var events []Progress
	var logs []string
	streamOutput(strings.NewReader(input), func(p Progress) { events = append(events, p) }, func(l string) { logs = append(logs, l) })

	require.Len(t, events, 2)
	assert.Equal(t, 10, events[0].Frame)
	assert.InDelta(t, 5.5, events[0].FPS, 1e-9)
	assert.InDelta(t, 0.333333, events[0].OutTime, 1e-9)
	assert.Equal(t, "0.4x", events[0].Speed)
	assert.False(t, events[0].Done)

	assert.Equal(t, 90, events[1].Frame)
	assert.InDelta(t, 3.0, events[1].OutTime, 1e-9)
	assert.True(t, events[1].Done)

	assert.Equal(t, []string{
		"Input #0, image2, from 'frame_%06d.png':",
		"[libx264 @ 0x1] using cpu capabilities: x=1",
	}, logs)
}

func newTestEncoder(t *testing.T) *FFmpegEncoder {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	enc, err := NewFFmpegEncoder(Options{TempDir: t.TempDir(), Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { enc.Close() })
	return enc
}

func TestEncoderRejectsEscapingNames(t *testing.T) {
	enc := newTestEncoder(t)
	ctx := context.Background()
	assert.Error(t, enc.WriteInput(ctx, "../evil.png", []byte("x")))
	assert.Error(t, enc.WriteInput(ctx, "", []byte("x")))
	_, err := enc.ReadOutput(ctx, "sub/output.mp4")
	assert.Error(t, err)
}

func TestEncoderNotReadyAfterClose(t *testing.T) {
	enc := newTestEncoder(t)
	dir := enc.WorkDir()
	require.NoError(t, enc.Close())

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	ctx := context.Background()
	assert.ErrorIs(t, enc.WriteInput(ctx, "frame_000000.png", nil), ErrEncoderNotReady)
	_, err = enc.Execute(ctx, []string{"-version"})
	assert.ErrorIs(t, err, ErrEncoderNotReady)
}

func TestEncoderMissingBinary(t *testing.T) {
	_, err := NewFFmpegEncoder(Options{FFmpegPath: "/nonexistent/ffmpeg"})
	assert.ErrorIs(t, err, ErrEncoderNotReady)
}

func TestEncoderEncodesImageSequence(t *testing.T) {
	enc := newTestEncoder(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 32, 24))
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p], img.Pix[p+3] = uint8(i*40), 255
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))
		require.NoError(t, enc.WriteInput(ctx, FrameName(i, "png"), buf.Bytes()))
	}

	var events []Progress
	enc.OnProgress(func(p Progress) { events = append(events, p) })

	code, err := enc.Execute(ctx, BuildArgs(ArgsParams{FPS: 24, FrameExt: "png", Height: 24, CRF: 30}))
	require.NoError(t, err)
	require.Equal(t, 0, code, enc.LogTail())

	out, err := enc.ReadOutput(ctx, OutputName)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	require.NotEmpty(t, events)
	assert.True(t, events[len(events)-1].Done)
}

func TestEncoderReportsExitCode(t *testing.T) {
	enc := newTestEncoder(t)
	code, err := enc.Execute(context.Background(), []string{"-i", "missing_%06d.png", OutputName})
	require.NoError(t, err)
	assert.NotEqual(t, 0, code)
	assert.NotEmpty(t, enc.LogTail())
}

