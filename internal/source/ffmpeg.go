package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// FFmpegOptions configures FFmpegSource.
type FFmpegOptions struct {
	FFmpegPath  string
	FFprobePath string
	// SampleRate enables a streaming decoder for seeks that advance by
	// exactly 1/SampleRate. Other seeks restart it. Zero decodes one frame
	// per seek.
	SampleRate float64
	Logger     zerolog.Logger
}

// FFmpegSource decodes frames of a media file with the ffmpeg binary.
type FFmpegSource struct {
	path     string
	opts     FFmpegOptions
	logger   zerolog.Logger
	info     *MediaInfo
	mu       sync.Mutex
	current  *image.RGBA
	head     *decodeHead
	frameLen int
}

// MediaInfo is the subset of ffprobe output the sources need.
type MediaInfo struct {
	Duration float64
	Width    int
	Height   int
	FPS      float64
	HasAudio bool
}

// NewFFmpegSource probes path and returns a source ready to seek.
func NewFFmpegSource(ctx context.Context, path string, opts FFmpegOptions) (*FFmpegSource, error) {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	ffmpegPath, err := exec.LookPath(opts.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	opts.FFmpegPath = ffmpegPath

	info, err := Probe(ctx, opts.FFprobePath, path)
	if err != nil {
		return nil, err
	}
	if info.Duration <= 0 || math.IsNaN(info.Duration) {
		return nil, notReady("%s reports no duration", path)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, notReady("%s has no video stream", path)
	}

	return &FFmpegSource{
		path:     path,
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "source").Str("path", path).Logger(),
		info:     info,
		frameLen: info.Width * info.Height * 4,
	}, nil
}

func (s *FFmpegSource) Duration() float64 { return s.info.Duration }

func (s *FFmpegSource) Size() (int, int) { return s.info.Width, s.info.Height }

// Info returns the probed media description.
func (s *FFmpegSource) Info() MediaInfo { return *s.info }

func (s *FFmpegSource) Seek(ctx context.Context, t float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if math.IsNaN(t) || t < 0 {
		t = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		frame *image.RGBA
		err   error
	)
	if s.opts.SampleRate > 0 {
		frame, err = s.seekStreaming(ctx, t)
	} else {
		frame, err = s.decodeOne(ctx, t)
	}
	if err != nil {
		return err
	}
	s.current = frame
	return nil
}

func (s *FFmpegSource) ReadCurrentFrame() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, notReady("no frame presented yet")
	}
	return s.current, nil
}

func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopHead()
	s.current = nil
	return nil
}

func (s *FFmpegSource) scaleFilter() string {
	return fmt.Sprintf("scale=%d:%d", s.info.Width, s.info.Height)
}

// decodeOne runs ffmpeg once to produce the frame at t.
func (s *FFmpegSource) decodeOne(ctx context.Context, t float64) (*image.RGBA, error) {
	args := []string{
		"-v", "error",
		"-ss", formatSeconds(t),
		"-i", s.path,
		"-frames:v", "1",
		"-vf", s.scaleFilter(),
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-",
	}
	cmd := exec.CommandContext(ctx, s.opts.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg decode at %.3fs: %w: %s", t, err, stderr.String())
	}
	if len(out) < s.frameLen {
		return nil, fmt.Errorf("ffmpeg decode at %.3fs: got %d bytes, want %d", t, len(out), s.frameLen)
	}
	return s.frameFromBytes(out[:s.frameLen]), nil
}

func (s *FFmpegSource) frameFromBytes(pix []byte) *image.RGBA {
	return &image.RGBA{
		Pix:    pix,
		Stride: s.info.Width * 4,
		Rect:   image.Rect(0, 0, s.info.Width, s.info.Height),
	}
}

// decodeHead is a running ffmpeg process emitting rawvideo frames at a
// fixed rate starting at start.
type decodeHead struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	cancel context.CancelFunc
	start  float64
	next   int
}

func (h *decodeHead) nextTime(rate float64) float64 {
	return h.start + float64(h.next)/rate
}

func (s *FFmpegSource) seekStreaming(ctx context.Context, t float64) (*image.RGBA, error) {
	rate := s.opts.SampleRate
	if s.head == nil || math.Abs(s.head.nextTime(rate)-t) > 0.5/rate {
		s.stopHead()
		if err := s.startHead(t); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, s.frameLen)
	done := make(chan error, 1)
	stdout := s.head.stdout
	go func() {
		_, err := io.ReadFull(stdout, buf)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			s.stopHead()
			// past the last decodable frame: fall back to a one-off decode
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return s.decodeOne(ctx, math.Min(t, math.Max(0, s.info.Duration-0.5/rate)))
			}
			return nil, fmt.Errorf("ffmpeg stream read at %.3fs: %w", t, err)
		}
		s.head.next++
		return s.frameFromBytes(buf), nil
	case <-ctx.Done():
		// the reader goroutine unblocks once the process is killed
		s.stopHead()
		return nil, ctx.Err()
	}
}

func (s *FFmpegSource) startHead(t float64) error {
	args := []string{
		"-v", "error",
		"-ss", formatSeconds(t),
		"-i", s.path,
		"-an",
		"-vf", fmt.Sprintf("fps=%s,%s", strconv.FormatFloat(s.opts.SampleRate, 'f', -1, 64), s.scaleFilter()),
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-",
	}
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, s.opts.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	s.logger.Debug().Float64("start", t).Strs("args", args).Msg("decoder started")
	s.head = &decodeHead{cmd: cmd, stdout: stdout, cancel: cancel, start: t}
	return nil
}

func (s *FFmpegSource) stopHead() {
	if s.head == nil {
		return
	}
	s.head.cancel()
	_ = s.head.cmd.Wait()
	s.head = nil
}

// ExtractAudio re-encodes the first audio track to AAC in an ADTS stream.
func (s *FFmpegSource) ExtractAudio(ctx context.Context) ([]byte, string, error) {
	if !s.info.HasAudio {
		return nil, "", nil
	}
	args := []string{
		"-v", "error",
		"-i", s.path,
		"-vn", "-map", "0:a:0",
		"-c:a", "aac", "-b:a", "192k",
		"-f", "adts",
		"-",
	}
	cmd := exec.CommandContext(ctx, s.opts.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", fmt.Errorf("ffmpeg audio extraction failed: %w: %s", err, stderr.String())
	}
	return out, "aac", nil
}

// Probe runs ffprobe on path.
func Probe(ctx context.Context, ffprobePath, path string) (*MediaInfo, error) {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe(output)
}

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}

func parseProbe(data []byte) (*MediaInfo, error) {
	var probe probeResult
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &MediaInfo{}
	if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = d
	}

	videoSeen := false
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if videoSeen {
				continue
			}
			videoSeen = true
			info.Width = stream.Width
			info.Height = stream.Height
			info.FPS = parseFrameRate(stream.AvgFrameRate)
			if info.FPS == 0 {
				info.FPS = parseFrameRate(stream.RFrameRate)
			}
			if info.Duration == 0 {
				if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
					info.Duration = d
				}
			}
		case "audio":
			info.HasAudio = true
		}
	}
	return info, nil
}

// parseFrameRate parses "30000/1001" style rates.
func parseFrameRate(s string) float64 {
	var num, den float64
	if n, _ := fmt.Sscanf(s, "%g/%g", &num, &den); n == 2 && den != 0 {
		return num / den
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return 0
}

func formatSeconds(t float64) string {
	return strconv.FormatFloat(t, 'f', 6, 64)
}
