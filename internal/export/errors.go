package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/ivlev/zoomreel/internal/compositor"
	"github.com/ivlev/zoomreel/internal/config"
	"github.com/ivlev/zoomreel/internal/source"
	"github.com/ivlev/zoomreel/internal/video"
)

// Kind classifies export failures.
type Kind string

const (
	KindSourceNotReady      Kind = "source_not_ready"
	KindSeekTimeout         Kind = "seek_timeout"
	KindFrameCaptureFailure Kind = "frame_capture_failure"
	KindEncoderNotReady     Kind = "encoder_not_ready"
	KindEncodeFailure       Kind = "encode_failure"
	// KindResourceExhausted is returned when a bounded memory spool fills.
	// Oversize durations are clamped and logged instead.
	KindResourceExhausted Kind = "resource_exhausted"
	KindCanceled          Kind = "canceled"
	KindInvalidSettings   Kind = "invalid_settings"
)

// ErrBusy is returned when Run is called on a pipeline that is already running.
var ErrBusy = errors.New("export pipeline already running")

// Error is the failure of one export run.
type Error struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export %s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of an export error, or "" for other errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// classify picks a Kind for a collaborator error. fallback applies when no
// known sentinel matches.
func classify(err error, fallback Kind) Kind {
	var e *Error
	switch {
	case errors.As(err, &e):
		return e.Kind
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, source.ErrNotReady):
		return KindSourceNotReady
	case errors.Is(err, video.ErrEncoderNotReady):
		return KindEncoderNotReady
	case errors.Is(err, compositor.ErrInvalidFrame):
		return KindFrameCaptureFailure
	case errors.Is(err, config.ErrInvalidSettings):
		return KindInvalidSettings
	case errors.Is(err, ErrSpoolFull):
		return KindResourceExhausted
	}
	return fallback
}
