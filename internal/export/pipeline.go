package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/zoomreel/internal/compositor"
	"github.com/ivlev/zoomreel/internal/config"
	"github.com/ivlev/zoomreel/internal/source"
	"github.com/ivlev/zoomreel/internal/system"
	"github.com/ivlev/zoomreel/internal/timeline"
	"github.com/ivlev/zoomreel/internal/video"
)

// Значения по умолчанию для Options.
const (
	DefaultBatchSize   = 15
	DefaultSeekTimeout = 5 * time.Second
	DefaultMaxDuration = 600.0
)

// Options настраивает Pipeline. Нулевые значения заменяются значениями по умолчанию.
type Options struct {
	BatchSize int
	Workers   int
	// SeekTimeout ограничивает одну перемотку, превышение прерывает экспорт.
	SeekTimeout time.Duration
	// MaxDuration - максимальная длина экспорта в секундах.
	MaxDuration float64
	Codec       Codec
	// NewSpool создает хранилище кадров для одного запуска. По умолчанию
	// дисковое хранилище в SpoolDir.
	NewSpool func() (Spool, error)
	SpoolDir string
	// Yield вызывается после каждого батча. По умолчанию runtime.Gosched.
	Yield      func()
	Evaluator  timeline.Evaluator
	Compositor *compositor.Compositor
	OnState    func(JobState)
	Logger     zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.SeekTimeout <= 0 {
		o.SeekTimeout = DefaultSeekTimeout
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = DefaultMaxDuration
	}
	if o.Codec == nil {
		o.Codec = NewPNGCodec()
	}
	if o.NewSpool == nil {
		dir := o.SpoolDir
		o.NewSpool = func() (Spool, error) { return NewDiskSpool(dir) }
	}
	if o.Yield == nil {
		o.Yield = runtime.Gosched
	}
	if o.Compositor == nil {
		o.Compositor = compositor.New(nil)
	}
	return o
}

// Pipeline снимает кадры с источника, накладывает зум и текст на каждый
// сэмпл и передает последовательность изображений энкодеру. Пайплайн
// выполняет один экспорт за раз.
type Pipeline struct {
	encoder video.Encoder
	opts    Options
	logger  zerolog.Logger
	pool    *system.ImagePool
	running atomic.Bool

	mu    sync.Mutex
	stats RunStats
}

func New(encoder video.Encoder, opts Options) *Pipeline {
	opts = opts.withDefaults()
	return &Pipeline{
		encoder: encoder,
		opts:    opts,
		logger:  opts.Logger.With().Str("component", "export").Logger(),
		pool:    system.NewImagePool(),
	}
}

// Stats возвращает статистику последнего завершенного или упавшего запуска.
func (p *Pipeline) Stats() RunStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Plan возвращает план сэмплов, который Run построит для источника
// заданной длительности (после ограничения).
func (p *Pipeline) Plan(duration float64, fps int, zoom []timeline.ZoomKeyframe, text []timeline.TextOverlayKeyframe) SamplePlan {
	duration = math.Min(duration, p.opts.MaxDuration)
	return BuildPlan(duration, fps, p.opts.Evaluator.Timeline(zoom), text)
}

// run - состояние одного вызова Run.
type run struct {
	*Pipeline
	rep    *reporter
	src    source.VideoSource
	spool  Spool
	width  int
	height int
	rss    rssTracker
	stats  RunStats
}

// Run экспортирует src с заданными кейфреймами и возвращает байты контейнера.
// Прогресс и смена стадий уходят в Options.OnState.
// Отмена ctx проверяется только между батчами.
func (p *Pipeline) Run(ctx context.Context, src source.VideoSource, zoom []timeline.ZoomKeyframe, text []timeline.TextOverlayKeyframe, settings config.Settings) ([]byte, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer p.running.Store(false)

	r := &run{Pipeline: p, rep: newReporter(p.opts.OnState), src: src}
	start := time.Now()
	out, err := r.execute(ctx, zoom, text, settings)
	r.stats.Total = time.Since(start)
	r.stats.PeakRSS = r.rss.value()
	r.stats.PeakBuffers = p.pool.Peak()

	p.mu.Lock()
	p.stats = r.stats
	p.mu.Unlock()

	return out, err
}

func (r *run) fail(kind Kind, err error) error {
	var inner *Error
	if errors.As(err, &inner) {
		kind, err = inner.Kind, inner.Err
	}
	stage, progress := r.rep.current()
	e := &Error{Kind: kind, Stage: stage, Err: err}
	r.logger.Error().Err(err).Str("kind", string(kind)).Str("stage", string(stage)).Float64("progress", progress).Msg("export failed")
	r.rep.fail(e)
	return e
}

func (r *run) execute(ctx context.Context, zoom []timeline.ZoomKeyframe, text []timeline.TextOverlayKeyframe, settings config.Settings) ([]byte, error) {
	r.rep.report(StageInitializing, 0, "preparing export")

	if err := settings.Validate(); err != nil {
		return nil, r.fail(KindInvalidSettings, err)
	}
	preset, _ := config.Preset(settings.Quality)

	if r.encoder == nil {
		return nil, r.fail(KindEncoderNotReady, video.ErrEncoderNotReady)
	}
	if r.src == nil {
		return nil, r.fail(KindSourceNotReady, source.ErrNotReady)
	}
	if err := timeline.ValidateAll(zoom, text); err != nil {
		// вычисление определено везде, поэтому кейфреймы за пределами видео не ломают экспорт
		r.logger.Warn().Err(err).Msg("keyframes out of range")
	}

	duration := r.src.Duration()
	r.width, r.height = r.src.Size()
	if duration <= 0 || math.IsNaN(duration) || r.width <= 0 || r.height <= 0 {
		return nil, r.fail(KindSourceNotReady, fmt.Errorf("%w: duration %.3fs, size %dx%d", source.ErrNotReady, duration, r.width, r.height))
	}
	if duration > r.opts.MaxDuration {
		r.logger.Warn().
			Str("kind", string(KindResourceExhausted)).
			Float64("duration", duration).
			Float64("max_duration", r.opts.MaxDuration).
			Msg("source longer than export limit, clamping")
	}

	plan := r.Plan(duration, settings.FPS, zoom, text)
	if len(plan.Samples) == 0 {
		return nil, r.fail(KindSourceNotReady, fmt.Errorf("%w: source shorter than one frame at %d fps", source.ErrNotReady, settings.FPS))
	}

	batchSize := system.BatchSizeFor(r.opts.BatchSize, int64(r.width)*int64(r.height)*4)
	batches := Batches(len(plan.Samples), batchSize)
	r.stats = RunStats{Samples: len(plan.Samples), Width: r.width, Height: r.height, BatchSize: batchSize}

	spool, err := r.opts.NewSpool()
	if err != nil {
		return nil, r.fail(KindFrameCaptureFailure, err)
	}
	defer spool.Close()
	r.spool = spool

	r.logger.Info().
		Int("samples", len(plan.Samples)).
		Int("fps", settings.FPS).
		Int("batch", batchSize).
		Str("quality", settings.Quality).
		Msg("export started")

	stageStart := time.Now()
	if err := r.capture(ctx, plan, batches); err != nil {
		return nil, err
	}
	r.stats.Capture = time.Since(stageStart)

	stageStart = time.Now()
	if err := r.process(ctx, plan, batches); err != nil {
		return nil, err
	}
	r.stats.Processing = time.Since(stageStart)

	stageStart = time.Now()
	out, err := r.encode(ctx, plan, batches, settings, preset)
	if err != nil {
		return nil, err
	}
	r.stats.Encoding = time.Since(stageStart)

	r.rep.report(StageComplete, 100, "export complete")
	r.logger.Info().Int("bytes", len(out)).Msg("export complete")
	return out, nil
}

// between вызывается на границе каждого батча. Только здесь проверяется
// отмена и управление отдается планировщику.
func (r *run) between(ctx context.Context) error {
	r.rss.sample()
	r.opts.Yield()
	if err := ctx.Err(); err != nil {
		return r.fail(KindCanceled, err)
	}
	return nil
}

func (r *run) capture(ctx context.Context, plan SamplePlan, batches [][2]int) error {
	r.rep.report(StageCapturing, 0, "capturing frames")
	total := float64(len(plan.Samples))

	for _, b := range batches {
		if err := r.between(ctx); err != nil {
			return err
		}
		if err := r.captureBatch(context.WithoutCancel(ctx), plan.Samples[b[0]:b[1]]); err != nil {
			return r.fail(classify(err, KindFrameCaptureFailure), err)
		}
		r.rep.report(StageCapturing, float64(b[1])/total*captureEnd,
			fmt.Sprintf("captured %d/%d frames", b[1], len(plan.Samples)))
	}
	return nil
}

type capturedFrame struct {
	sample Sample
	raw    *image.RGBA
}

// captureBatch перематывает по сэмплам и композирует предыдущий кадр,
// пока выполняется следующая перемотка.
func (r *run) captureBatch(ctx context.Context, samples []Sample) error {
	rect := image.Rect(0, 0, r.width, r.height)
	frames := make(chan capturedFrame, 1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(frames)
		for _, s := range samples {
			raw, err := r.grab(gctx, s, rect)
			if err != nil {
				return err
			}
			select {
			case frames <- capturedFrame{sample: s, raw: raw}:
			case <-gctx.Done():
				r.pool.Put(raw)
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for f := range frames {
			err := r.composite(f)
			r.pool.Put(f.raw)
			if err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	for f := range frames {
		r.pool.Put(f.raw)
	}
	return err
}

// grab перематывает на s и копирует кадр в буфер из пула,
// чтобы источник мог переиспользовать свой.
func (r *run) grab(ctx context.Context, s Sample, rect image.Rectangle) (*image.RGBA, error) {
	seekCtx, cancel := context.WithTimeout(ctx, r.opts.SeekTimeout)
	err := r.src.Seek(seekCtx, s.Time)
	timedOut := errors.Is(seekCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if timedOut {
			return nil, &Error{Kind: KindSeekTimeout, Stage: StageCapturing,
				Err: fmt.Errorf("seek to %.3fs exceeded %s: %w", s.Time, r.opts.SeekTimeout, err)}
		}
		return nil, fmt.Errorf("seek to %.3fs: %w", s.Time, err)
	}

	frame, err := r.src.ReadCurrentFrame()
	if err != nil {
		return nil, fmt.Errorf("read frame at %.3fs: %w", s.Time, err)
	}
	if frame == nil || frame.Rect.Dx() != rect.Dx() || frame.Rect.Dy() != rect.Dy() {
		got := image.Rectangle{}
		if frame != nil {
			got = frame.Rect
		}
		return nil, fmt.Errorf("%w: frame at %.3fs is %v, want %v", compositor.ErrInvalidFrame, s.Time, got, rect)
	}

	raw := r.pool.Get(rect)
	eachRowPair(raw, frame, func(dst, src []byte) { copy(dst, src) })
	return raw, nil
}

func (r *run) composite(f capturedFrame) error {
	dst := r.pool.Get(f.raw.Rect)
	defer r.pool.Put(dst)

	if err := r.opts.Compositor.ComposeInto(dst, f.raw, f.sample.State, f.sample.Overlays); err != nil {
		return fmt.Errorf("composite frame %d: %w", f.sample.Index, err)
	}
	return r.spool.PutFrame(f.sample.Index, dst)
}

func (r *run) process(ctx context.Context, plan SamplePlan, batches [][2]int) error {
	r.rep.report(StageProcessing, captureEnd, "compressing frames")
	total := float64(len(plan.Samples))
	rect := image.Rect(0, 0, r.width, r.height)

	for _, b := range batches {
		if err := r.between(ctx); err != nil {
			return err
		}

		g, _ := errgroup.WithContext(context.WithoutCancel(ctx))
		g.SetLimit(r.opts.Workers)
		for _, s := range plan.Samples[b[0]:b[1]] {
			index := s.Index
			g.Go(func() error {
				scratch := r.pool.Get(rect)
				defer r.pool.Put(scratch)

				if err := r.spool.ReadFrame(index, scratch); err != nil {
					return err
				}
				var buf bytes.Buffer
				if err := r.opts.Codec.Encode(&buf, scratch); err != nil {
					return fmt.Errorf("encode frame %d as %s: %w", index, r.opts.Codec.Ext(), err)
				}
				if err := r.spool.PutPayload(index, buf.Bytes()); err != nil {
					return err
				}
				r.spool.DropFrame(index)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return r.fail(classify(err, KindFrameCaptureFailure), err)
		}

		r.rep.report(StageProcessing, captureEnd+float64(b[1])/total*(processingEnd-captureEnd),
			fmt.Sprintf("compressed %d/%d frames", b[1], len(plan.Samples)))
	}
	return nil
}

func (r *run) encode(ctx context.Context, plan SamplePlan, batches [][2]int, settings config.Settings, preset config.QualityPreset) ([]byte, error) {
	r.rep.report(StageEncoding, processingEnd, "writing encoder inputs")
	total := float64(len(plan.Samples))
	ext := r.opts.Codec.Ext()
	detached := context.WithoutCancel(ctx)

	for _, b := range batches {
		if err := r.between(ctx); err != nil {
			return nil, err
		}
		for _, s := range plan.Samples[b[0]:b[1]] {
			data, err := r.spool.ReadPayload(s.Index)
			if err != nil {
				return nil, r.fail(KindEncodeFailure, err)
			}
			if err := r.encoder.WriteInput(detached, video.FrameName(s.Index, ext), data); err != nil {
				return nil, r.fail(classify(err, KindEncodeFailure), err)
			}
		}
		r.rep.report(StageEncoding, processingEnd+float64(b[1])/total*(inputsEnd-processingEnd),
			fmt.Sprintf("wrote %d/%d frames", b[1], len(plan.Samples)))
	}

	audioExt := ""
	if settings.IncludeAudio {
		audioExt = r.writeAudio(detached)
	}

	if err := r.between(ctx); err != nil {
		return nil, err
	}

	args := video.BuildArgs(video.ArgsParams{
		FPS:      settings.FPS,
		FrameExt: ext,
		AudioExt: audioExt,
		Height:   preset.Height,
		CRF:      preset.CRF,
	})

	if pn, ok := r.encoder.(video.ProgressNotifier); ok {
		pn.OnProgress(func(pr video.Progress) {
			frac := math.Min(1, float64(pr.Frame)/total)
			if pr.Done {
				frac = 1
			}
			r.rep.report(StageEncoding, inputsEnd+frac*(encoderEnd-inputsEnd),
				fmt.Sprintf("encoding frame %d/%d", pr.Frame, len(plan.Samples)))
		})
		defer pn.OnProgress(nil)
	}

	r.rep.report(StageEncoding, inputsEnd, "encoding video")
	code, err := r.encoder.Execute(detached, args)
	if err != nil {
		return nil, r.fail(classify(err, KindEncodeFailure), err)
	}
	if code != 0 {
		return nil, r.fail(KindEncodeFailure, fmt.Errorf("encoder exited with status %d", code))
	}

	out, err := r.encoder.ReadOutput(detached, video.OutputName)
	if err != nil {
		return nil, r.fail(classify(err, KindEncodeFailure), err)
	}
	if len(out) == 0 {
		return nil, r.fail(KindEncodeFailure, fmt.Errorf("encoder produced an empty %s", video.OutputName))
	}
	return out, nil
}

// writeAudio передает аудиодорожку источника энкодеру и возвращает ее
// расширение или "", если дорожки нет. Ошибки аудио не прерывают экспорт.
func (r *run) writeAudio(ctx context.Context) string {
	as, ok := r.src.(source.AudioSource)
	if !ok {
		return ""
	}
	data, ext, err := as.ExtractAudio(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("audio extraction failed, exporting without audio")
		return ""
	}
	if len(data) == 0 || ext == "" {
		return ""
	}
	if err := r.encoder.WriteInput(ctx, video.AudioName(ext), data); err != nil {
		r.logger.Warn().Err(err).Msg("failed to write audio input, exporting without audio")
		return ""
	}
	return ext
}

// eachRowPair обходит построчно два изображения одинакового размера.
func eachRowPair(dst, src *image.RGBA, fn func(dst, src []byte)) {
	w := dst.Rect.Dx() * 4
	for y := 0; y < dst.Rect.Dy(); y++ {
		do := dst.PixOffset(dst.Rect.Min.X, dst.Rect.Min.Y+y)
		so := src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y)
		fn(dst.Pix[do:do+w], src.Pix[so:so+w])
	}
}
