package video

import (
	"fmt"
	"strconv"
)

// Work file names shared between the pipeline and the encoder.
const (
	OutputName  = "output.mp4"
	framePrefix = "frame_"
)

// FrameName is the work file name of frame i (zero-based).
func FrameName(i int, ext string) string {
	return fmt.Sprintf("%s%06d.%s", framePrefix, i, ext)
}

// FramePattern is the ffmpeg image2 pattern matching FrameName.
func FramePattern(ext string) string {
	return framePrefix + "%06d." + ext
}

func AudioName(ext string) string {
	return "audio." + ext
}

// ArgsParams describes one encode.
type ArgsParams struct {
	FPS      int
	FrameExt string
	// AudioExt is empty when there is no audio input.
	AudioExt string
	Height   int
	CRF      int
}

// BuildArgs returns the ffmpeg argument vector for an image-sequence encode.
// The order is fixed; encoders depend on it byte for byte.
func BuildArgs(p ArgsParams) []string {
	args := []string{
		"-y", "-hide_banner",
		"-framerate", strconv.Itoa(p.FPS),
		"-i", FramePattern(p.FrameExt),
	}
	if p.AudioExt != "" {
		args = append(args, "-i", AudioName(p.AudioExt))
	}
	args = append(args, "-map", "0:v:0")
	if p.AudioExt != "" {
		args = append(args, "-map", "1:a:0")
	}
	args = append(args,
		"-vf", fmt.Sprintf("scale=-2:%d", p.Height),
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", strconv.Itoa(p.CRF),
		"-pix_fmt", "yuv420p",
	)
	if p.AudioExt != "" {
		args = append(args, "-c:a", "aac", "-b:a", "192k")
	}
	return append(args, "-shortest", "-movflags", "+faststart", OutputName)
}
