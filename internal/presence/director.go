package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/keshon/heartline/internal/classifier"
	"github.com/keshon/heartline/internal/topic"
	"github.com/rs/zerolog"
)

// Director tunables.
const (
	MinMessageLength = 15
	ResurfaceAfter   = 12 * time.Hour
	SourceClassifier = "classifier"
)

// ErrInvalidResolution is returned by ResolveLoopsByTopic for an unsupported resolution type.
var ErrInvalidResolution = errors.New("presence: invalid resolution type")

// Director detects, resolves and surfaces loops.
type Director struct {
	loops   *LoopStore
	matcher *topic.Matcher
	rules   []Rule
	log     zerolog.Logger

	MaxSurfaces int
	Now         func() time.Time
}

// NewDirector builds a director. A nil matcher uses strict topic matching.
func NewDirector(loops *LoopStore, matcher *topic.Matcher, log zerolog.Logger) *Director {
	if matcher == nil {
		matcher = &topic.Matcher{}
	}
	return &Director{
		loops:       loops,
		matcher:     matcher,
		rules:       DefaultRules,
		log:         log.With().Str("component", "presence").Logger(),
		MaxSurfaces: DefaultMaxSurfaces,
		Now:         time.Now,
	}
}

// Loops returns the underlying store.
func (d *Director) Loops() *LoopStore { return d.loops }

// DetectOpenLoops runs the rule table over text and merges in an optional
// classifier suggestion. Topics already covered by an open loop raise that
// loop's salience instead of creating a duplicate. Returns the new loops.
func (d *Director) DetectOpenLoops(ctx context.Context, userID, text string, suggestion *classifier.LoopSuggestion) ([]Loop, error) {
	if userID == "" {
		return nil, errors.New("presence: empty user id")
	}

	var found []Detection
	if len([]rune(strings.TrimSpace(text))) >= MinMessageLength {
		found = d.dedupe(Match(d.rules, text))
	}
	if suggestion != nil && strings.TrimSpace(suggestion.Topic) != "" && !d.covered(found, suggestion.Topic) {
		cat := suggestion.Category
		if !ValidCategory(cat) {
			cat = CategoryCuriosityThread
		}
		found = append(found, Detection{
			Rule:     SourceClassifier,
			Category: cat,
			Topic:    cleanTopic(strings.ToLower(suggestion.Topic)),
			Salience: suggestion.Salience,
		})
	}
	if len(found) == 0 {
		return nil, nil
	}

	open, err := d.loops.ListOpen(ctx, userID)
	if err != nil {
		d.log.Warn().Err(err).Str("user", userID).Msg("loop list failed, duplicates possible")
		open = nil
	}

	now := d.Now()
	var created []Loop
	var errs []error
	for _, det := range found {
		if det.Topic == "" {
			continue
		}
		if i := d.indexSimilar(open, det.Topic); i >= 0 {
			if det.Salience > open[i].Salience {
				open[i].Salience = det.Salience
				open[i].UpdatedAt = now
				if err := d.loops.Save(ctx, open[i]); err != nil {
					errs = append(errs, err)
				}
			}
			continue
		}
		l := Loop{
			ID:          uuid.NewString(),
			UserID:      userID,
			Topic:       det.Topic,
			Category:    det.Category,
			Source:      det.Rule,
			Status:      StatusActive,
			Salience:    clamp01(det.Salience),
			MaxSurfaces: d.MaxSurfaces,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := d.loops.Save(ctx, l); err != nil {
			errs = append(errs, err)
		}
		open = append(open, l)
		created = append(created, l)
		d.log.Info().Str("user", userID).Str("loop", l.ID).Str("category", l.Category).Str("topic", l.Topic).Msg("open loop detected")
	}
	return created, errors.Join(errs...)
}

// dedupe keeps the first, highest-salience detection per similar topic.
func (d *Director) dedupe(in []Detection) []Detection {
	sort.SliceStable(in, func(i, j int) bool { return in[i].Salience > in[j].Salience })
	var out []Detection
	for _, det := range in {
		if !d.covered(out, det.Topic) {
			out = append(out, det)
		}
	}
	return out
}

func (d *Director) covered(dets []Detection, t string) bool {
	for _, det := range dets {
		if d.matcher.IsSimilar(det.Topic, t) {
			return true
		}
	}
	return false
}

func (d *Director) indexSimilar(loops []Loop, t string) int {
	for i, l := range loops {
		if d.matcher.IsSimilar(l.Topic, t) {
			return i
		}
	}
	return -1
}

// ResolveLoopsByTopic closes every open loop similar to t. resolutionType
// must be "resolved" or "dismissed". Terminal loops are left untouched.
func (d *Director) ResolveLoopsByTopic(ctx context.Context, userID, t, resolutionType string) (int, error) {
	to := Status(resolutionType)
	if to != StatusResolved && to != StatusDismissed {
		return 0, fmt.Errorf("%w: %q, must be %q or %q", ErrInvalidResolution, resolutionType, StatusResolved, StatusDismissed)
	}
	if strings.TrimSpace(t) == "" {
		return 0, fmt.Errorf("%w: topic is empty", ErrInvalidResolution)
	}
	open, err := d.loops.ListOpen(ctx, userID)
	if err != nil {
		return 0, err
	}

	now := d.Now()
	n := 0
	var errs []error
	for _, l := range open {
		if !d.matcher.IsSimilar(l.Topic, t) {
			continue
		}
		if err := l.Transition(to, "topic: "+t, now); err != nil {
			continue
		}
		if err := d.loops.Save(ctx, l); err != nil {
			errs = append(errs, err)
		}
		n++
		d.log.Info().Str("user", userID).Str("loop", l.ID).Str("status", string(to)).Msg("loop closed by topic")
	}
	return n, errors.Join(errs...)
}

// MarkSurfaced records that the persona brought the loop up. Reaching
// MaxSurfaces expires it.
func (d *Director) MarkSurfaced(ctx context.Context, userID, loopID string) (Loop, error) {
	l, err := d.loops.Get(ctx, userID, loopID)
	if err != nil {
		return Loop{}, err
	}
	now := d.Now()
	if l.Status.Terminal() {
		return l, fmt.Errorf("%w: %s is %s", ErrTerminal, l.ID, l.Status)
	}
	l.SurfaceCount++
	l.LastSurfacedAt = now
	limit := l.MaxSurfaces
	if limit <= 0 {
		limit = d.MaxSurfaces
	}
	next := StatusSurfaced
	if l.SurfaceCount >= limit {
		next = StatusExpired
	}
	if err := l.Transition(next, "surfaced enough", now); err != nil {
		return l, err
	}
	return l, d.loops.Save(ctx, l)
}

// DismissLoop closes one loop as dismissed.
func (d *Director) DismissLoop(ctx context.Context, userID, loopID string) (Loop, error) {
	l, err := d.loops.Get(ctx, userID, loopID)
	if err != nil {
		return Loop{}, err
	}
	if err := l.Transition(StatusDismissed, "dismissed", d.Now()); err != nil {
		return l, err
	}
	return l, d.loops.Save(ctx, l)
}

// GetLoopsToSurface returns up to limit open loops worth bringing up, most
// salient first. Loops surfaced within ResurfaceAfter are skipped.
func (d *Director) GetLoopsToSurface(ctx context.Context, userID string, limit int) ([]Loop, error) {
	open, err := d.loops.ListOpen(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := d.Now()
	var out []Loop
	for _, l := range open {
		if !l.LastSurfacedAt.IsZero() && now.Sub(l.LastSurfacedAt) < ResurfaceAfter {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Salience != out[j].Salience {
			return out[i].Salience > out[j].Salience
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
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
