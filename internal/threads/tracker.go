// Package threads keeps the persona's small set of ongoing mental threads per
// user. Intensity decays lazily on read; the set is topped up from a narrative
// generator when it runs low and trimmed when it grows past its cap.
package threads

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/keshon/heartline/internal/cache"
	"github.com/keshon/heartline/internal/narrative"
	"github.com/keshon/heartline/internal/state"
	"github.com/keshon/heartline/internal/storage"
	"github.com/rs/zerolog"
)

// Defaults.
const (
	MinThreads = 3
	MaxThreads = 6

	DecayPerHour    = 0.02
	FadeThreshold   = 0.05
	SurfaceFloor    = 0.4
	SurfaceCooldown = 30 * time.Minute
	MentionDamping  = 0.7
	FillerIntensity = 0.5
	UserThreadTheme = "thinking about you"
)

// ErrNotFound is returned for an unknown thread ID.
var ErrNotFound = errors.New("threads: not found")

// Thread is one ongoing preoccupation. Intensity is valid as of LastDecayedAt.
type Thread struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Theme         string    `json:"theme"`
	CurrentState  string    `json:"current_state"`
	Intensity     float64   `json:"intensity"`
	LastMentioned time.Time `json:"last_mentioned,omitempty"`
	UserRelated   bool      `json:"user_related"`
	UserTrigger   string    `json:"user_trigger,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastDecayedAt time.Time `json:"last_decayed_at"`
}

// Tracker owns threads for every user.
type Tracker struct {
	repo  *state.Repo[Thread]
	gen   narrative.Generator
	log   zerolog.Logger
	locks sync.Map // userID -> *sync.Mutex
	next  atomic.Uint64

	Min int
	Max int
	Now func() time.Time
}

// NewTracker builds a tracker. gen may be nil, in which case narrative text
// comes from the built-in templates.
func NewTracker(s storage.Store, c *cache.Cache, gen narrative.Generator, log zerolog.Logger) *Tracker {
	if gen == nil {
		gen = narrative.NewTemplate()
	}
	return &Tracker{
		repo: state.NewRepo(storage.KindThread, s, c, log, func(string) Thread { return Thread{} }),
		gen:  gen,
		log:  log.With().Str("component", "threads").Logger(),
		Min:  MinThreads,
		Max:  MaxThreads,
		Now:  time.Now,
	}
}

func (t *Tracker) lock(userID string) func() {
	v, _ := t.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ListThreads returns the user's threads ordered by intensity, after decay
// and bound enforcement.
func (t *Tracker) ListThreads(ctx context.Context, userID string) ([]Thread, error) {
	if userID == "" {
		return nil, errors.New("threads: empty user id")
	}
	defer t.lock(userID)()
	return t.load(ctx, userID, "")
}

// load decays, fades and bounds the user's threads. keep is never evicted.
// When the store cannot be read, an unsaved default set is returned and
// nothing stored is touched. Callers hold the user lock.
func (t *Tracker) load(ctx context.Context, userID, keep string) ([]Thread, error) {
	recs, err := t.repo.List(ctx, storage.UserPrefix(userID))
	if err != nil {
		t.log.Warn().Err(err).Str("user", userID).Msg("thread list failed, using unsaved defaults")
		return t.defaults(userID), nil
	}
	now := t.Now()
	var errs []error

	live := make([]Thread, 0, len(recs))
	for _, r := range recs {
		th := r.Value
		if decay(&th, now) {
			if th.Intensity < FadeThreshold && th.ID != keep {
				t.log.Debug().Str("user", userID).Str("thread", th.ID).Msg("thread faded")
				if err := t.repo.Delete(ctx, r.Key); err != nil {
					errs = append(errs, err)
				}
				continue
			}
			if err := t.repo.Save(ctx, r.Key, th); err != nil {
				errs = append(errs, err)
			}
		}
		live = append(live, th)
	}

	live, err = t.enforce(ctx, userID, live, keep)
	if err != nil {
		errs = append(errs, err)
	}
	sortByIntensity(live)
	return live, errors.Join(errs...)
}

// decay applies exponential decay since LastDecayedAt. Returns true if th changed.
func decay(th *Thread, now time.Time) bool {
	if th.LastDecayedAt.IsZero() {
		th.LastDecayedAt = th.CreatedAt
	}
	hours := now.Sub(th.LastDecayedAt).Hours()
	if hours <= 0 {
		return false
	}
	th.Intensity = clamp01(th.Intensity * math.Exp(-DecayPerHour*hours))
	th.LastDecayedAt = now
	return true
}

func (t *Tracker) enforce(ctx context.Context, userID string, live []Thread, keep string) ([]Thread, error) {
	var errs []error

	for len(live) > t.Max {
		idx := -1
		for i, th := range live {
			if th.ID == keep {
				continue
			}
			if idx < 0 || th.Intensity < live[idx].Intensity {
				idx = i
			}
		}
		if idx < 0 {
			break
		}
		ev := live[idx]
		t.log.Debug().Str("user", userID).Str("thread", ev.ID).Float64("intensity", ev.Intensity).Msg("thread evicted")
		if err := t.repo.Delete(ctx, storage.Key(userID, ev.ID)); err != nil {
			errs = append(errs, err)
		}
		live = append(live[:idx:idx], live[idx+1:]...)
	}

	for attempts := 0; len(live) < t.Min && attempts < t.Min*2; attempts++ {
		theme := t.nextFillerTheme(live)
		text, err := t.gen.Generate(ctx, theme)
		if err != nil || strings.TrimSpace(text) == "" {
			t.log.Warn().Err(err).Str("theme", theme).Msg("narrative generator failed")
			text = "thinking about " + theme
		}
		th := t.newThread(userID, theme, text, FillerIntensity)
		if err := t.repo.Save(ctx, storage.Key(userID, th.ID), th); err != nil {
			errs = append(errs, err)
		}
		live = append(live, th)
	}
	return live, errors.Join(errs...)
}

// defaults builds Min filler threads in memory only.
func (t *Tracker) defaults(userID string) []Thread {
	out := make([]Thread, 0, t.Min)
	for len(out) < t.Min {
		theme := t.nextFillerTheme(out)
		out = append(out, t.newThread(userID, theme, "thinking about "+theme, FillerIntensity))
	}
	return out
}

func (t *Tracker) nextFillerTheme(live []Thread) string {
	used := make(map[string]bool, len(live))
	for _, th := range live {
		used[th.Theme] = true
	}
	n := len(narrative.FillerThemes)
	for i := 0; i < n; i++ {
		theme := narrative.FillerThemes[int(t.next.Add(1)-1)%n]
		if !used[theme] {
			return theme
		}
	}
	return narrative.FillerThemes[int(t.next.Add(1)-1)%n]
}

func (t *Tracker) newThread(userID, theme, text string, intensity float64) Thread {
	now := t.Now()
	return Thread{
		ID:            uuid.NewString(),
		UserID:        userID,
		Theme:         theme,
		CurrentState:  text,
		Intensity:     clamp01(intensity),
		CreatedAt:     now,
		LastDecayedAt: now,
	}
}

// update runs fn on one decayed thread and saves it.
func (t *Tracker) update(ctx context.Context, userID, id string, fn func(*Thread)) (Thread, error) {
	if userID == "" || id == "" {
		return Thread{}, errors.New("threads: empty user or thread id")
	}
	defer t.lock(userID)()
	key := storage.Key(userID, id)
	th, ok, err := t.repo.Lookup(ctx, key)
	if err != nil {
		return Thread{}, err
	}
	if !ok {
		return Thread{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	decay(&th, t.Now())
	fn(&th)
	return th, t.repo.Save(ctx, key, th)
}

// BoostThread adds amount to intensity, capped at 1.
func (t *Tracker) BoostThread(ctx context.Context, userID, id string, amount float64) (Thread, error) {
	if amount < 0 || math.IsNaN(amount) {
		return Thread{}, fmt.Errorf("threads: boost amount must be non-negative, got %v", amount)
	}
	return t.update(ctx, userID, id, func(th *Thread) {
		th.Intensity = clamp01(th.Intensity + amount)
	})
}

// MarkThreadMentioned stamps the mention time and damps intensity.
func (t *Tracker) MarkThreadMentioned(ctx context.Context, userID, id string) (Thread, error) {
	return t.update(ctx, userID, id, func(th *Thread) {
		th.LastMentioned = t.Now()
		th.Intensity = clamp01(th.Intensity * MentionDamping)
	})
}

// GetThreadToSurface returns the most intense thread above SurfaceFloor that
// is out of its mention cooldown, or nil.
func (t *Tracker) GetThreadToSurface(ctx context.Context, userID string) (*Thread, error) {
	list, err := t.ListThreads(ctx, userID)
	now := t.Now()
	for i := range list {
		th := list[i]
		if th.Intensity <= SurfaceFloor {
			continue
		}
		if !th.LastMentioned.IsZero() && now.Sub(th.LastMentioned) < SurfaceCooldown {
			continue
		}
		return &th, err
	}
	return nil, err
}

// CreateUserThread starts a user-related thread. The new thread is never the
// one evicted to make room.
func (t *Tracker) CreateUserThread(ctx context.Context, userID, trigger, currentState string, intensity float64) (Thread, error) {
	if userID == "" {
		return Thread{}, errors.New("threads: empty user id")
	}
	if strings.TrimSpace(trigger) == "" {
		return Thread{}, errors.New("threads: user thread needs a trigger")
	}
	defer t.lock(userID)()

	th := t.newThread(userID, UserThreadTheme, currentState, intensity)
	th.UserRelated = true
	th.UserTrigger = trigger
	if th.CurrentState == "" {
		th.CurrentState = "keeps thinking about " + trigger
	}
	if err := t.repo.Save(ctx, storage.Key(userID, th.ID), th); err != nil {
		return th, err
	}
	t.log.Debug().Str("user", userID).Str("thread", th.ID).Str("trigger", trigger).Msg("user thread created")
	_, err := t.load(ctx, userID, th.ID)
	return th, err
}

// RemoveThread deletes a thread. The set is topped up on the next read.
func (t *Tracker) RemoveThread(ctx context.Context, userID, id string) error {
	if userID == "" || id == "" {
		return errors.New("threads: empty user or thread id")
	}
	defer t.lock(userID)()
	key := storage.Key(userID, id)
	if _, ok, err := t.repo.Lookup(ctx, key); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t.repo.Delete(ctx, key)
}

func sortByIntensity(list []Thread) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Intensity != list[j].Intensity {
			return list[i].Intensity > list[j].Intensity
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
