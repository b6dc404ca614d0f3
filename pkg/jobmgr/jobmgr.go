// Package jobmgr runs named background jobs with cancellation, lifecycle
// callbacks and in-memory tracking of what is running.
//
// Typical usage:
//
//	jm := jobmgr.NewManager(func(ev jobmgr.Event) {
//	    log.Info().Str("job", ev.Name).Str("state", string(ev.State)).Msg("job")
//	})
//
//	err := jm.StartAsync(ctx, "cleanup", func(ctx context.Context) error {
//	    // do work until ctx is cancelled
//	    return nil
//	})
//
//	// later...
//	_ = jm.Stop("cleanup")
//
// No retry logic, no workers, no persistence. Jobs are removed on completion.
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrRunning is returned when a job with the same name is already running.
var ErrRunning = errors.New("jobmgr: job already running")

// ErrNotRunning is returned by Stop for an unknown job.
var ErrNotRunning = errors.New("jobmgr: job not running")

// State of a job lifecycle event.
type State string

const (
	StateRunning State = "running"
	StateDone    State = "done"
	StateError   State = "error"
)

// Event is delivered to the Reporter on every lifecycle change.
type Event struct {
	Name  string
	State State
	Err   error
}

// Reporter receives lifecycle events. It may be called from job goroutines.
type Reporter func(Event)

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager starts, stops and tracks jobs. Safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*job
	reporter Reporter
}

// NewManager creates a Manager. reporter may be nil.
func NewManager(reporter Reporter) *Manager {
	return &Manager{
		jobs:     make(map[string]*job),
		reporter: reporter,
	}
}

// StartSync runs a job in the current goroutine and blocks until completion.
// It is tracked while running so StartAsync with the same name is refused.
func (m *Manager) StartSync(ctx context.Context, name string, runner func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	j, err := m.register(name, cancel)
	if err != nil {
		return err
	}
	return m.run(ctx, name, j, runner)
}

// StartAsync runs a job in its own goroutine and returns immediately. The job
// context is derived from ctx.
func (m *Manager) StartAsync(ctx context.Context, name string, runner func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	j, err := m.register(name, cancel)
	if err != nil {
		cancel()
		return err
	}
	go m.run(ctx, name, j, runner)
	return nil
}

func (m *Manager) register(name string, cancel context.CancelFunc) (*job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrRunning, name)
	}
	j := &job{cancel: cancel, done: make(chan struct{})}
	m.jobs[name] = j
	return j, nil
}

func (m *Manager) run(ctx context.Context, name string, j *job, runner func(ctx context.Context) error) error {
	defer func() {
		m.mu.Lock()
		if m.jobs[name] == j {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
		close(j.done)
	}()

	m.report(Event{Name: name, State: StateRunning})
	err := runner(ctx)
	if err != nil {
		m.report(Event{Name: name, State: StateError, Err: err})
	} else {
		m.report(Event{Name: name, State: StateDone})
	}
	return err
}

// Stop cancels a running job and waits for it to return.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	j, ok := m.jobs[name]
	if ok {
		delete(m.jobs, name)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	j.cancel()
	<-j.done
	return nil
}

// StopAll cancels every running job and waits for all of them.
func (m *Manager) StopAll() {
	for _, name := range m.List() {
		_ = m.Stop(name)
	}
}

// Running reports whether name is currently running.
func (m *Manager) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[name]
	return ok
}

// List returns the sorted names of active jobs.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Status returns a human-readable summary of active jobs, e.g.
// "Running jobs: cleanup, cleanup-now".
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}

func (m *Manager) report(ev Event) {
	if m.reporter != nil {
		m.reporter(ev)
	}
}
