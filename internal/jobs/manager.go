package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ivlev/zoomreel/internal/export"
)

// RunFunc performs one export, reporting states through report.
type RunFunc func(ctx context.Context, report func(export.JobState)) ([]byte, error)

// subscriberBuffer is the per-subscriber channel size. Progress updates to a
// full channel are dropped for that subscriber; terminal states replace the
// oldest buffered one instead.
const subscriberBuffer = 16

type job struct {
	id        string
	createdAt time.Time
	done      chan struct{}

	mu     sync.Mutex
	state  export.JobState
	output []byte
	err    error
}

// Info is a snapshot of a job.
type Info struct {
	ID        string
	CreatedAt time.Time
	State     export.JobState
}

// Manager runs export jobs one at a time and broadcasts their states.
type Manager struct {
	jobs   sync.Map
	queue  chan struct{}
	logger zerolog.Logger

	mu          sync.Mutex
	subscribers map[string]map[chan export.JobState]struct{}
}

func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		// one slot: exports against a pipeline are never concurrent
		queue:       make(chan struct{}, 1),
		logger:      logger.With().Str("component", "jobs").Logger(),
		subscribers: make(map[string]map[chan export.JobState]struct{}),
	}
}

// Submit queues run and returns its job ID. ctx governs the job: cancelling
// it while queued fails the job, while running it is passed to run.
func (m *Manager) Submit(ctx context.Context, run RunFunc) string {
	j := &job{
		id:        uuid.New().String(),
		createdAt: time.Now(),
		done:      make(chan struct{}),
		state:     export.JobState{Stage: export.StageInitializing, Message: "queued"},
	}
	m.jobs.Store(j.id, j)
	m.logger.Debug().Str("job", j.id).Msg("job queued")

	go m.runWorker(ctx, j, run)
	return j.id
}

func (m *Manager) runWorker(ctx context.Context, j *job, run RunFunc) {
	defer m.closeSubscribers(j.id)
	defer close(j.done)

	select {
	case m.queue <- struct{}{}:
		defer func() { <-m.queue }()
	case <-ctx.Done():
		err := &export.Error{Kind: export.KindCanceled, Stage: export.StageInitializing, Err: ctx.Err()}
		m.finish(j, nil, err)
		return
	}

	m.logger.Info().Str("job", j.id).Msg("job started")
	out, err := run(ctx, func(s export.JobState) { m.update(j, s) })
	m.finish(j, out, err)
}

func (m *Manager) finish(j *job, out []byte, err error) {
	j.mu.Lock()
	j.output, j.err = out, err
	state := j.state
	j.mu.Unlock()

	if err != nil {
		m.logger.Error().Str("job", j.id).Err(err).Msg("job failed")
		if state.Stage != export.StageError {
			m.update(j, export.JobState{Stage: export.StageError, Progress: state.Progress, Message: err.Error(), Err: err})
		}
		return
	}
	m.logger.Info().Str("job", j.id).Int("bytes", len(out)).Msg("job finished")
	if state.Stage != export.StageComplete {
		m.update(j, export.JobState{Stage: export.StageComplete, Progress: 100, Message: "export complete"})
	}
}

func (m *Manager) update(j *job, s export.JobState) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subscribers[j.id] {
		select {
		case ch <- s:
			continue
		default:
		}
		if !s.Stage.Terminal() {
			m.logger.Debug().Str("job", j.id).Msg("skipping update for slow subscriber")
			continue
		}
		// only update sends and it holds m.mu, so one free slot is enough
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// Get returns a snapshot of the job.
func (m *Manager) Get(id string) (Info, bool) {
	j, ok := m.load(id)
	if !ok {
		return Info{}, false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return Info{ID: j.id, CreatedAt: j.createdAt, State: j.state}, true
}

// Subscribe returns a channel receiving the job's states, starting with the
// current one. The channel is closed when the job ends or cancel is called.
func (m *Manager) Subscribe(id string) (<-chan export.JobState, func(), error) {
	j, ok := m.load(id)
	if !ok {
		return nil, nil, fmt.Errorf("unknown job %s", id)
	}

	ch := make(chan export.JobState, subscriberBuffer)

	m.mu.Lock()
	defer m.mu.Unlock()

	j.mu.Lock()
	ch <- j.state
	j.mu.Unlock()

	select {
	case <-j.done:
		close(ch)
		return ch, func() {}, nil
	default:
	}

	if m.subscribers[id] == nil {
		m.subscribers[id] = make(map[chan export.JobState]struct{})
	}
	m.subscribers[id][ch] = struct{}{}

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if subs, ok := m.subscribers[id]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
		}
	}
	return ch, cancel, nil
}

func (m *Manager) closeSubscribers(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subscribers[id] {
		close(ch)
	}
	delete(m.subscribers, id)
}

// Wait blocks until the job ends and returns its output.
func (m *Manager) Wait(ctx context.Context, id string) ([]byte, error) {
	j, ok := m.load(id)
	if !ok {
		return nil, fmt.Errorf("unknown job %s", id)
	}
	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.output, j.err
}

// Remove forgets a finished job. Running jobs are kept.
func (m *Manager) Remove(id string) bool {
	j, ok := m.load(id)
	if !ok {
		return false
	}
	select {
	case <-j.done:
		m.jobs.Delete(id)
		return true
	default:
		return false
	}
}

func (m *Manager) load(id string) (*job, bool) {
	val, ok := m.jobs.Load(id)
	if !ok {
		return nil, false
	}
	return val.(*job), true
}
