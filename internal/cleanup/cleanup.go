// Package cleanup expires stale, duplicate and excess presence loops. Every
// step only moves open loops to expired, so repeated or overlapping runs are safe.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/keshon/heartline/internal/presence"
	"github.com/keshon/heartline/internal/topic"
	"github.com/keshon/heartline/pkg/util"
	"github.com/rs/zerolog"
)

// Step names.
const (
	StepExpireOld        = "expire_old_loops"
	StepExpireDuplicates = "expire_duplicate_loops"
	StepCapActive        = "cap_active_loops"
)

// Options tune a cleanup run. Zero fields fall back to the service defaults.
type Options struct {
	MaxLoopAgeDays             int           `json:"max_loop_age_days"`
	MaxActiveLoops             int           `json:"max_active_loops"`
	MaxSurfacedLoops           int           `json:"max_surfaced_loops"`
	ProtectedSalienceThreshold float64       `json:"protected_salience_threshold"`
	Interval                   time.Duration `json:"interval"`
	CleanupOnInit              bool          `json:"cleanup_on_init"`
	Workers                    int           `json:"workers"`
}

// DefaultOptions returns the built-in defaults.
func DefaultOptions() Options {
	return Options{
		MaxLoopAgeDays:             14,
		MaxActiveLoops:             10,
		MaxSurfacedLoops:           5,
		ProtectedSalienceThreshold: 0.8,
		Interval:                   6 * time.Hour,
		CleanupOnInit:              true,
		Workers:                    4,
	}
}

// merge overlays non-zero fields of o onto base.
func (base Options) merge(o *Options) Options {
	if o == nil {
		return base
	}
	if o.MaxLoopAgeDays > 0 {
		base.MaxLoopAgeDays = o.MaxLoopAgeDays
	}
	if o.MaxActiveLoops > 0 {
		base.MaxActiveLoops = o.MaxActiveLoops
	}
	if o.MaxSurfacedLoops > 0 {
		base.MaxSurfacedLoops = o.MaxSurfacedLoops
	}
	if o.ProtectedSalienceThreshold > 0 {
		base.ProtectedSalienceThreshold = o.ProtectedSalienceThreshold
	}
	if o.Interval > 0 {
		base.Interval = o.Interval
	}
	if o.Workers > 0 {
		base.Workers = o.Workers
	}
	base.CleanupOnInit = o.CleanupOnInit
	return base
}

// StepResult is the outcome of one step for one user.
type StepResult struct {
	Step    string `json:"step"`
	Expired int    `json:"expired"`
	Error   string `json:"error,omitempty"`
}

// Result aggregates one run for one user. Success is false if any step errored.
type Result struct {
	UserID     string       `json:"user_id"`
	Steps      []StepResult `json:"steps"`
	Expired    int          `json:"expired"`
	Success    bool         `json:"success"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Summary aggregates a run over every user.
type Summary struct {
	Users   int      `json:"users"`
	Expired int      `json:"expired"`
	Success bool     `json:"success"`
	Results []Result `json:"results"`
}

// Service runs the cleanup steps.
type Service struct {
	loops   *presence.LoopStore
	matcher *topic.Matcher
	opts    Options
	log     zerolog.Logger
	Now     func() time.Time
}

// NewService builds a service. A nil matcher uses strict topic matching.
func NewService(loops *presence.LoopStore, matcher *topic.Matcher, opts Options, log zerolog.Logger) *Service {
	if matcher == nil {
		matcher = &topic.Matcher{}
	}
	return &Service{
		loops:   loops,
		matcher: matcher,
		opts:    DefaultOptions().merge(&opts),
		log:     log.With().Str("component", "cleanup").Logger(),
		Now:     time.Now,
	}
}

// Options returns the service defaults.
func (s *Service) Options() Options { return s.opts }

// expire moves each loop to expired and saves it. Loops that turned terminal
// meanwhile are skipped.
func (s *Service) expire(ctx context.Context, loops []presence.Loop, reason string) (int, error) {
	now := s.Now()
	n := 0
	var errs []error
	for _, l := range loops {
		if err := l.Transition(presence.StatusExpired, reason, now); err != nil {
			continue
		}
		if err := s.loops.Save(ctx, l); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
		s.log.Debug().Str("user", l.UserID).Str("loop", l.ID).Str("topic", l.Topic).Str("reason", reason).Msg("loop expired")
	}
	return n, errors.Join(errs...)
}

// ExpireOldLoops expires open loops older than MaxLoopAgeDays.
func (s *Service) ExpireOldLoops(ctx context.Context, userID string, opts *Options) (int, error) {
	o := s.opts.merge(opts)
	open, err := s.loops.ListOpen(ctx, userID)
	if err != nil {
		return 0, err
	}
	cutoff := s.Now().Add(-time.Duration(o.MaxLoopAgeDays) * 24 * time.Hour)
	var old []presence.Loop
	for _, l := range open {
		if l.CreatedAt.Before(cutoff) {
			old = append(old, l)
		}
	}
	return s.expire(ctx, old, "age")
}

// ExpireDuplicateLoops groups open loops by topic similarity and expires all
// but the most recently created loop of each group.
func (s *Service) ExpireDuplicateLoops(ctx context.Context, userID string, _ *Options) (int, error) {
	open, err := s.loops.ListOpen(ctx, userID)
	if err != nil {
		return 0, err
	}

	parent := make([]int, len(open))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := range open {
		for j := i + 1; j < len(open); j++ {
			if s.matcher.IsSimilar(open[i].Topic, open[j].Topic) {
				parent[find(j)] = find(i)
			}
		}
	}

	newest := make(map[int]int)
	for i, l := range open {
		r := find(i)
		if k, ok := newest[r]; !ok || l.CreatedAt.After(open[k].CreatedAt) {
			newest[r] = i
		}
	}
	var dupes []presence.Loop
	for i, l := range open {
		if newest[find(i)] != i {
			dupes = append(dupes, l)
		}
	}
	return s.expire(ctx, dupes, "duplicate")
}

// CapActiveLoops trims surfaced loops to MaxSurfacedLoops and then all open
// loops to MaxActiveLoops, lowest salience and oldest first. Loops at or
// above ProtectedSalienceThreshold are never evicted, even if the cap stays exceeded.
func (s *Service) CapActiveLoops(ctx context.Context, userID string, opts *Options) (int, error) {
	o := s.opts.merge(opts)
	open, err := s.loops.ListOpen(ctx, userID)
	if err != nil {
		return 0, err
	}

	var surfaced []presence.Loop
	for _, l := range open {
		if l.Status == presence.StatusSurfaced {
			surfaced = append(surfaced, l)
		}
	}
	victims := s.overCap(surfaced, o.MaxSurfacedLoops, o.ProtectedSalienceThreshold)

	evicted := make(map[string]bool, len(victims))
	for _, v := range victims {
		evicted[v.ID] = true
	}
	remaining := open[:0:0]
	for _, l := range open {
		if !evicted[l.ID] {
			remaining = append(remaining, l)
		}
	}
	victims = append(victims, s.overCap(remaining, o.MaxActiveLoops, o.ProtectedSalienceThreshold)...)

	return s.expire(ctx, victims, "cap")
}

func (s *Service) overCap(loops []presence.Loop, limit int, protected float64) []presence.Loop {
	excess := len(loops) - limit
	if excess <= 0 {
		return nil
	}
	sorted := make([]presence.Loop, len(loops))
	copy(sorted, loops)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Salience != sorted[j].Salience {
			return sorted[i].Salience < sorted[j].Salience
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	var out []presence.Loop
	for _, l := range sorted {
		if len(out) == excess {
			break
		}
		if l.Salience >= protected {
			continue
		}
		out = append(out, l)
	}
	return out
}

// RunScheduledCleanup runs the three steps in order for one user. A failing
// step is recorded and the next step still runs.
func (s *Service) RunScheduledCleanup(ctx context.Context, userID string, opts *Options) Result {
	res := Result{UserID: userID, Success: true, StartedAt: s.Now()}
	steps := []struct {
		name string
		fn   func(context.Context, string, *Options) (int, error)
	}{
		{StepExpireOld, s.ExpireOldLoops},
		{StepExpireDuplicates, s.ExpireDuplicateLoops},
		{StepCapActive, s.CapActiveLoops},
	}
	for _, st := range steps {
		n, err := runStep(ctx, userID, opts, st.fn)
		sr := StepResult{Step: st.name, Expired: n}
		if err != nil {
			sr.Error = err.Error()
			res.Success = false
			s.log.Error().Err(err).Str("user", userID).Str("step", st.name).Msg("cleanup step failed")
		}
		res.Expired += n
		res.Steps = append(res.Steps, sr)
	}
	res.FinishedAt = s.Now()
	s.log.Info().Str("user", userID).Int("expired", res.Expired).Bool("success", res.Success).Msg("cleanup finished")
	return res
}

// runStep turns a panic inside a step into an error so later steps still run.
func runStep(ctx context.Context, userID string, opts *Options, fn func(context.Context, string, *Options) (int, error)) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step panicked: %v", r)
		}
	}()
	return fn(ctx, userID, opts)
}

// RunAll cleans every user that owns loops, with bounded parallelism.
func (s *Service) RunAll(ctx context.Context, opts *Options) (Summary, error) {
	o := s.opts.merge(opts)
	users, err := s.loops.Users(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("cleanup: list users: %w", err)
	}

	var mu sync.Mutex
	sum := Summary{Users: len(users), Success: true}
	err = util.Parallel(ctx, users, o.Workers, func(ctx context.Context, userID string) error {
		r := s.RunScheduledCleanup(ctx, userID, opts)
		mu.Lock()
		sum.Results = append(sum.Results, r)
		sum.Expired += r.Expired
		if !r.Success {
			sum.Success = false
		}
		mu.Unlock()
		return nil
	})
	sort.Slice(sum.Results, func(i, j int) bool { return sum.Results[i].UserID < sum.Results[j].UserID })
	if err != nil {
		sum.Success = false
	}
	return sum, err
}
