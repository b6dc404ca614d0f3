package cleanup

import (
	"context"
	"errors"
	"time"

	"github.com/keshon/heartline/pkg/jobmgr"
	"github.com/rs/zerolog"
)

// Job names used with the job manager.
const (
	JobScheduled = "loop-cleanup"
	JobManual    = "loop-cleanup-now"
)

// Scheduler runs RunAll on a ticker until stopped. Manual triggers go through
// the same function and may overlap a scheduled run.
type Scheduler struct {
	svc  *Service
	jobs *jobmgr.Manager
	log  zerolog.Logger
}

// NewScheduler builds a scheduler. A nil manager gets a private one.
func NewScheduler(svc *Service, jobs *jobmgr.Manager, log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "cleanup-scheduler").Logger()
	if jobs == nil {
		jobs = jobmgr.NewManager(func(ev jobmgr.Event) {
			log.Debug().Str("job", ev.Name).Str("state", string(ev.State)).AnErr("err", ev.Err).Msg("job event")
		})
	}
	return &Scheduler{svc: svc, jobs: jobs, log: log}
}

// Start launches the recurring job. It returns an error if already started.
func (s *Scheduler) Start(ctx context.Context) error {
	opts := s.svc.Options()
	if opts.Interval <= 0 {
		return errors.New("cleanup: interval must be positive")
	}
	return s.jobs.StartAsync(ctx, JobScheduled, func(ctx context.Context) error {
		return s.loop(ctx, opts)
	})
}

func (s *Scheduler) loop(ctx context.Context, opts Options) error {
	if opts.CleanupOnInit {
		s.run(ctx, "init")
	}
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.run(ctx, "tick")
		}
	}
}

// run is not interrupted by Stop; the ticker loop exits after it returns.
func (s *Scheduler) run(ctx context.Context, trigger string) {
	sum, err := s.svc.RunAll(context.WithoutCancel(ctx), nil)
	if err != nil {
		s.log.Error().Err(err).Str("trigger", trigger).Msg("cleanup run failed")
		return
	}
	s.log.Info().Str("trigger", trigger).Int("users", sum.Users).Int("expired", sum.Expired).Bool("success", sum.Success).Msg("cleanup run")
}

// Stop cancels the recurring job and waits for an in-flight run to finish.
func (s *Scheduler) Stop() error {
	return s.jobs.Stop(JobScheduled)
}

// Running reports whether the recurring job is active.
func (s *Scheduler) Running() bool {
	return s.jobs.Running(JobScheduled)
}

// TriggerNow runs a full cleanup synchronously with optional overrides.
func (s *Scheduler) TriggerNow(ctx context.Context, opts *Options) (Summary, error) {
	var sum Summary
	err := s.jobs.StartSync(ctx, JobManual, func(ctx context.Context) error {
		var err error
		sum, err = s.svc.RunAll(ctx, opts)
		return err
	})
	return sum, err
}
