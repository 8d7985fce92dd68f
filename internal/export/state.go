package export

import (
	"math"
	"sync"
)

// Stage is a step of the export state machine.
type Stage string

const (
	StageInitializing Stage = "initializing"
	StageCapturing    Stage = "capturing"
	StageProcessing   Stage = "processing"
	StageEncoding     Stage = "encoding"
	StageComplete     Stage = "complete"
	StageError        Stage = "error"
)

var stageOrder = map[Stage]int{
	StageInitializing: 0,
	StageCapturing:    1,
	StageProcessing:   2,
	StageEncoding:     3,
	StageComplete:     4,
	StageError:        5,
}

// Terminal reports whether no further transitions follow s.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageError
}

// JobState is one observable state of an export run.
type JobState struct {
	Stage    Stage
	Progress float64
	Message  string
	Err      error
}

// Progress budget per stage.
const (
	captureEnd    = 50.0
	processingEnd = 75.0
	inputsEnd     = 90.0
	encoderEnd    = 99.0
)

// reporter forwards states to a callback while keeping progress monotonic
// and stages moving forward only. It is safe for concurrent use since
// encoder progress may arrive from another goroutine.
type reporter struct {
	mu    sync.Mutex
	fn    func(JobState)
	stage Stage
	last  float64
	done  bool
}

func newReporter(fn func(JobState)) *reporter {
	return &reporter{fn: fn, stage: StageInitializing}
}

func (r *reporter) report(stage Stage, progress float64, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done || stageOrder[stage] < stageOrder[r.stage] {
		return
	}
	if math.IsNaN(progress) {
		progress = r.last
	}
	progress = math.Min(100, math.Max(r.last, progress))
	r.stage, r.last = stage, progress
	r.done = stage.Terminal()
	r.emit(JobState{Stage: stage, Progress: progress, Message: msg})
}

func (r *reporter) fail(err *Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.stage, r.done = StageError, true
	r.emit(JobState{Stage: StageError, Progress: r.last, Message: err.Error(), Err: err})
}

func (r *reporter) current() (Stage, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage, r.last
}

func (r *reporter) emit(s JobState) {
	if r.fn != nil {
		r.fn(s)
	}
}
