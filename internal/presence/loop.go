// Package presence tracks open conversational loops: things the user said
// that the persona should come back to later.
package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/keshon/heartline/internal/cache"
	"github.com/keshon/heartline/internal/state"
	"github.com/keshon/heartline/internal/storage"
	"github.com/rs/zerolog"
)

// Status of a loop. Resolved, dismissed and expired are terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusSurfaced  Status = "surfaced"
	StatusResolved  Status = "resolved"
	StatusDismissed Status = "dismissed"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusDismissed || s == StatusExpired
}

// Open reports whether the loop still counts as active or surfaced.
func (s Status) Open() bool {
	return s == StatusActive || s == StatusSurfaced
}

// Loop categories.
const (
	CategoryPendingEvent       = "pending_event"
	CategoryEmotionalFollowup  = "emotional_followup"
	CategoryCommitmentCheck    = "commitment_check"
	CategoryCuriosityThread    = "curiosity_thread"
	CategoryPatternObservation = "pattern_observation"
)

var categories = map[string]bool{
	CategoryPendingEvent:       true,
	CategoryEmotionalFollowup:  true,
	CategoryCommitmentCheck:    true,
	CategoryCuriosityThread:    true,
	CategoryPatternObservation: true,
}

// ValidCategory reports whether c is a known loop category.
func ValidCategory(c string) bool { return categories[c] }

// DefaultMaxSurfaces is how often a loop may be brought up before it expires.
const DefaultMaxSurfaces = 3

var (
	// ErrTerminal is returned when a terminal loop is asked to transition.
	ErrTerminal = errors.New("presence: loop is in a terminal state")
	// ErrNotFound is returned for an unknown loop ID.
	ErrNotFound = errors.New("presence: loop not found")
)

// Loop is one tracked open topic.
type Loop struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Topic          string    `json:"topic"`
	Category       string    `json:"category"`
	Source         string    `json:"source"`
	Status         Status    `json:"status"`
	Salience       float64   `json:"salience"`
	SurfaceCount   int       `json:"surface_count"`
	MaxSurfaces    int       `json:"max_surfaces"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	LastSurfacedAt time.Time `json:"last_surfaced_at,omitempty"`
	ClosedAt       time.Time `json:"closed_at,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

// Transition moves l to status to. Terminal loops never move again.
func (l *Loop) Transition(to Status, reason string, now time.Time) error {
	if l.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, l.ID, l.Status)
	}
	switch to {
	case StatusActive:
		return fmt.Errorf("presence: cannot move loop %s back to active", l.ID)
	case StatusSurfaced, StatusResolved, StatusDismissed, StatusExpired:
	default:
		return fmt.Errorf("presence: unknown status %q", to)
	}
	l.Status = to
	l.UpdatedAt = now
	if to.Terminal() {
		l.ClosedAt = now
		l.Reason = reason
	}
	return nil
}

// LoopStore persists loops per user. It is shared by the director and the
// cleanup service so both act on the same records.
type LoopStore struct {
	repo *state.Repo[Loop]
	s    storage.Store
}

func NewLoopStore(s storage.Store, c *cache.Cache, log zerolog.Logger) *LoopStore {
	return &LoopStore{
		repo: state.NewRepo(storage.KindLoop, s, c, log, func(string) Loop { return Loop{} }),
		s:    s,
	}
}

// List returns all loops of userID, oldest first.
func (ls *LoopStore) List(ctx context.Context, userID string) ([]Loop, error) {
	recs, err := ls.repo.List(ctx, storage.UserPrefix(userID))
	if err != nil {
		return nil, err
	}
	out := make([]Loop, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Value)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListOpen returns the active and surfaced loops of userID, oldest first.
func (ls *LoopStore) ListOpen(ctx context.Context, userID string) ([]Loop, error) {
	all, err := ls.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	open := all[:0:0]
	for _, l := range all {
		if l.Status.Open() {
			open = append(open, l)
		}
	}
	return open, nil
}

// Get returns one loop.
func (ls *LoopStore) Get(ctx context.Context, userID, id string) (Loop, error) {
	l, ok, err := ls.repo.Lookup(ctx, storage.Key(userID, id))
	if err != nil {
		return Loop{}, err
	}
	if !ok {
		return Loop{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return l, nil
}

// Save writes l.
func (ls *LoopStore) Save(ctx context.Context, l Loop) error {
	if l.UserID == "" || l.ID == "" {
		return errors.New("presence: loop without user or id")
	}
	return ls.repo.Save(ctx, storage.Key(l.UserID, l.ID), l)
}

// Users returns every user that owns at least one loop.
func (ls *LoopStore) Users(ctx context.Context) ([]string, error) {
	return storage.ListUsers(ctx, ls.s, storage.KindLoop)
}
