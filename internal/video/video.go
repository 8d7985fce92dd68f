package video

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrEncoderNotReady возвращается, если энкодер нельзя использовать
// (нет бинарника, нет рабочей директории или энкодер уже закрыт).
var ErrEncoderNotReady = errors.New("encoder not ready")

// Encoder - внешний энкодер с рабочей областью. Входные файлы пишутся по имени,
// команда выполняется над ними, результат читается обратно по имени.
type Encoder interface {
	WriteInput(ctx context.Context, name string, data []byte) error
	Execute(ctx context.Context, args []string) (exitCode int, err error)
	ReadOutput(ctx context.Context, name string) ([]byte, error)
}

// ProgressNotifier реализуют энкодеры, сообщающие прогресс во время Execute.
type ProgressNotifier interface {
	OnProgress(fn func(Progress))
}

// Progress - данные прогресса ffmpeg
type Progress struct {
	Frame   int
	FPS     float64
	OutTime float64 // сколько секунд уже закодировано
	Speed   string
	Done    bool
}

// Options configures an FFmpegEncoder.
type Options struct {
	FFmpegPath string
	// TempDir - родитель рабочей директории, по умолчанию os.TempDir.
	TempDir string
	Logger  zerolog.Logger
}

// FFmpegEncoder запускает ffmpeg в собственной рабочей директории.
// Директория принадлежит энкодеру до вызова Close.
type FFmpegEncoder struct {
	logger     zerolog.Logger
	ffmpegPath string
	workDir    string

	mu       sync.Mutex
	progress func(Progress)
	closed   bool
	logTail  []string
}

const logTailLines = 20

func NewFFmpegEncoder(opts Options) (*FFmpegEncoder, error) {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	ffmpegPath, err := exec.LookPath(opts.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found in PATH: %v", ErrEncoderNotReady, err)
	}

	workDir, err := os.MkdirTemp(opts.TempDir, "zoomreel-encode-*")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create work directory: %v", ErrEncoderNotReady, err)
	}

	return &FFmpegEncoder{
		logger:     opts.Logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath: ffmpegPath,
		workDir:    workDir,
	}, nil
}

// WorkDir - директория, в которой выполняется Execute.
func (e *FFmpegEncoder) WorkDir() string { return e.workDir }

func (e *FFmpegEncoder) OnProgress(fn func(Progress)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress = fn
}

func (e *FFmpegEncoder) WriteInput(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := e.resolve(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write input %s: %w", name, err)
	}
	return nil
}

func (e *FFmpegEncoder) ReadOutput(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := e.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read output %s: %w", name, err)
	}
	return data, nil
}

// Execute запускает ffmpeg с args в рабочей директории. Ненулевой код выхода
// возвращается в exitCode при nil ошибке, err выставляется только если
// процесс не удалось довести до конца.
func (e *FFmpegEncoder) Execute(ctx context.Context, args []string) (int, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return -1, ErrEncoderNotReady
	}
	progress := e.progress
	e.logTail = nil
	e.mu.Unlock()

	if len(args) == 0 {
		return -1, fmt.Errorf("no arguments provided")
	}

	if progress != nil {
		args = append([]string{"-progress", "pipe:2", "-nostats"}, args...)
	}

	e.logger.Debug().Strs("args", args).Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	cmd.Dir = e.workDir

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	streamOutput(stderr, progress, e.appendLog)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			e.logger.Warn().Int("exit_code", exitErr.ExitCode()).Str("stderr", e.LogTail()).Msg("ffmpeg failed")
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("ffmpeg execution failed: %w", err)
	}

	e.logger.Debug().Msg("ffmpeg execution completed")
	return 0, nil
}

// LogTail возвращает последние строки вывода ffmpeg за последний Execute.
func (e *FFmpegEncoder) LogTail() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return strings.Join(e.logTail, "\n")
}

func (e *FFmpegEncoder) appendLog(line string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logTail = append(e.logTail, line)
	if len(e.logTail) > logTailLines {
		e.logTail = e.logTail[len(e.logTail)-logTailLines:]
	}
}

// Close удаляет рабочую директорию. Дальнейшие вызовы вернут ErrEncoderNotReady.
func (e *FFmpegEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return os.RemoveAll(e.workDir)
}

func (e *FFmpegEncoder) resolve(name string) (string, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return "", ErrEncoderNotReady
	}
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return "", fmt.Errorf("invalid work file name %q", name)
	}
	return filepath.Join(e.workDir, name), nil
}

// streamOutput разбирает блоки -progress ffmpeg, остальные строки
// передает в logFn.
func streamOutput(r io.Reader, progressFn func(Progress), logFn func(string)) {
	scanner := bufio.NewScanner(r)
	p := Progress{}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.Contains(key, " ") {
			if line != "" && logFn != nil {
				logFn(line)
			}
			continue
		}

		switch key {
		case "frame":
			fmt.Sscanf(value, "%d", &p.Frame)
		case "fps":
			fmt.Sscanf(value, "%g", &p.FPS)
		case "out_time_us", "out_time_ms":
			// в выводе -progress оба значения в микросекундах
			var us int64
			if _, err := fmt.Sscanf(value, "%d", &us); err == nil {
				p.OutTime = float64(us) / 1e6
			}
		case "speed":
			p.Speed = strings.TrimSpace(value)
		case "progress":
			p.Done = value == "end"
			if progressFn != nil {
				progressFn(p)
			}
			p = Progress{}
		default:
			if logFn != nil && !isProgressKey(key) {
				logFn(line)
			}
		}
	}
}

func isProgressKey(key string) bool {
	switch key {
	case "bitrate", "total_size", "out_time", "dup_frames", "drop_frames", "stream_0_0_q":
		return true
	}
	return strings.HasPrefix(key, "stream_")
}
