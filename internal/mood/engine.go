package mood

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/keshon/heartline/internal/cache"
	"github.com/keshon/heartline/internal/classifier"
	"github.com/keshon/heartline/internal/state"
	"github.com/keshon/heartline/internal/storage"
	"github.com/rs/zerolog"
)

// KindKnobs is the cache kind for computed knobs.
const KindKnobs = "mood_knobs"

var errEmptyUser = errors.New("mood: empty user id")

// Engine owns MoodState and Momentum for every user.
type Engine struct {
	states     *state.Repo[State]
	momentum   *state.Repo[Momentum]
	cache      *cache.Cache
	classifier classifier.Classifier
	log        zerolog.Logger
	Now        func() time.Time
}

// NewEngine builds a mood engine. cl may be nil, in which case no message is
// ever treated as a genuine moment.
func NewEngine(s storage.Store, c *cache.Cache, cl classifier.Classifier, log zerolog.Logger) *Engine {
	if c == nil {
		c = cache.New()
	}
	e := &Engine{
		cache:      c,
		classifier: cl,
		log:        log.With().Str("component", "mood").Logger(),
		Now:        time.Now,
	}
	e.states = state.NewRepo(storage.KindMood, s, c, log, func(userID string) State {
		return State{UserID: userID}
	})
	e.momentum = state.NewRepo(storage.KindMomentum, s, c, log, func(userID string) Momentum {
		return Momentum{UserID: userID, MomentumDirection: Steady}
	})
	return e
}

// DailySeed is YYYYMMDD of t in UTC.
func DailySeed(t time.Time) int {
	t = t.UTC()
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// DailyEnergy is deterministic for a (seed, user) pair.
func DailyEnergy(seed int, userID string) float64 {
	h := fnv.New64a()
	h.Write([]byte(userID))
	r := rand.New(rand.NewPCG(uint64(seed)^h.Sum64(), uint64(seed)))
	return 0.35 + 0.6*r.Float64()
}

// GetMoodState returns today's state, regenerating energy and battery when
// the stored seed belongs to another day. The state is always usable; a
// non-nil error only reports that persisting the regeneration failed.
func (e *Engine) GetMoodState(ctx context.Context, userID string) (State, error) {
	if userID == "" {
		return State{}, errEmptyUser
	}
	s := e.states.GetOrInit(ctx, userID)
	today := DailySeed(e.Now())
	if s.DailySeed == today {
		return s, nil
	}
	s.DailySeed = today
	s.DailyEnergy = DailyEnergy(today, userID)
	s.SocialBattery = 1.0
	s.InteractionsToday = 0
	e.log.Debug().Str("user", userID).Int("seed", today).Float64("energy", s.DailyEnergy).Msg("mood regenerated")
	return s, e.states.Save(ctx, userID, s)
}

// GetMomentum returns the user's momentum, expiring a stale genuine moment.
func (e *Engine) GetMomentum(ctx context.Context, userID string) (Momentum, error) {
	if userID == "" {
		return Momentum{}, errEmptyUser
	}
	m := e.momentum.GetOrInit(ctx, userID)
	if m.GenuineMomentDetected && e.Now().Sub(m.LastGenuineMomentAt) > GenuineMomentTTL {
		m.GenuineMomentDetected = false
		m.GenuineCategory = ""
		e.invalidateKnobs(userID)
		return m, e.momentum.Save(ctx, userID, m)
	}
	return m, nil
}

// RecordInteraction classifies messageText and applies tone to momentum.
// Classifier errors count as "no genuine moment".
func (e *Engine) RecordInteraction(ctx context.Context, userID string, tone float64, messageText string) (Momentum, error) {
	var in classifier.Intent
	if e.classifier != nil && messageText != "" {
		var err error
		in, err = e.classifier.Classify(ctx, messageText, nil)
		if err != nil {
			e.log.Warn().Err(err).Str("user", userID).Msg("classifier failed, treating as neutral")
			in = classifier.Neutral()
		}
	}
	return e.ApplyInteraction(ctx, userID, tone, in)
}

// ApplyInteraction updates state and momentum from an already classified message.
// Both records are written even if one write fails; the first error is returned.
func (e *Engine) ApplyInteraction(ctx context.Context, userID string, tone float64, in classifier.Intent) (Momentum, error) {
	if userID == "" {
		return Momentum{}, errEmptyUser
	}
	tone = max(-1, min(1, tone))
	now := e.Now()
	defer e.invalidateKnobs(userID)

	s, stateErr := e.GetMoodState(ctx, userID)
	s.LastInteractionAt = now
	s.LastInteractionTone = tone
	s.InteractionsToday++
	s.SocialBattery = max(MinSocialBattery, s.SocialBattery-BatteryDrainPerInteraction)
	if err := e.states.Save(ctx, userID, s); err != nil {
		stateErr = err
	}

	m, momErr := e.GetMomentum(ctx, userID)
	m = advance(m, tone, in, now)
	if err := e.momentum.Save(ctx, userID, m); err != nil {
		momErr = err
	}

	e.log.Debug().
		Str("user", userID).
		Float64("tone", tone).
		Int("streak", m.PositiveInteractionStreak).
		Str("direction", string(m.MomentumDirection)).
		Bool("genuine", in.GenuineMoment).
		Msg("interaction recorded")

	if stateErr != nil {
		return m, stateErr
	}
	return m, momErr
}

// advance applies one interaction to m. A genuine moment bypasses the
// gradual path and lifts both mood and streak to their floors.
func advance(m Momentum, tone float64, in classifier.Intent, now time.Time) Momentum {
	prev := m.CurrentMoodLevel

	if in.GenuineMoment {
		m.GenuineMomentDetected = true
		m.GenuineCategory = in.GenuineCategory
		m.LastGenuineMomentAt = now
		m.CurrentMoodLevel = max(m.CurrentMoodLevel, GenuineMoodFloor)
		m.PositiveInteractionStreak = max(m.PositiveInteractionStreak, GenuineStreakFloor)
	} else {
		switch {
		case tone > PositiveToneThreshold:
			m.PositiveInteractionStreak++
		case tone < NegativeToneThreshold:
			m.PositiveInteractionStreak = max(0, m.PositiveInteractionStreak-NegativeStreakPenalty)
		}
		m.CurrentMoodLevel = m.CurrentMoodLevel*MoodSmoothing + tone*(1-MoodSmoothing)
	}
	m.CurrentMoodLevel = max(-1, min(1, m.CurrentMoodLevel))

	switch d := m.CurrentMoodLevel - prev; {
	case d > DirectionEpsilon:
		m.MomentumDirection = Rising
	case d < -DirectionEpsilon:
		m.MomentumDirection = Falling
	default:
		m.MomentumDirection = Steady
	}

	tones := make([]float64, 0, MaxRecentTones)
	if n := len(m.RecentInteractionTones); n >= MaxRecentTones {
		tones = append(tones, m.RecentInteractionTones[n-MaxRecentTones+1:]...)
	} else {
		tones = append(tones, m.RecentInteractionTones...)
	}
	m.RecentInteractionTones = append(tones, tone)
	m.UpdatedAt = now
	return m
}

// cachedKnobs remembers when a genuine moment behind the knobs runs out.
type cachedKnobs struct {
	knobs      Knobs
	validUntil time.Time
}

// GetMoodKnobs returns knobs for today, cached until the next write or until
// the genuine moment they reflect expires.
func (e *Engine) GetMoodKnobs(ctx context.Context, userID string) (Knobs, error) {
	if userID == "" {
		return Knobs{}, errEmptyUser
	}
	now := e.Now()
	key := knobsKey(userID, DailySeed(now))
	if v, ok := e.cache.Get(KindKnobs, key); ok {
		c := v.(cachedKnobs)
		if c.validUntil.IsZero() || !now.After(c.validUntil) {
			return c.knobs, nil
		}
	}
	s, err := e.GetMoodState(ctx, userID)
	m, mErr := e.GetMomentum(ctx, userID)
	if err == nil {
		err = mErr
	}
	k := ComputeKnobs(s, m)
	c := cachedKnobs{knobs: k}
	if m.GenuineMomentDetected {
		c.validUntil = m.LastGenuineMomentAt.Add(GenuineMomentTTL)
	}
	e.cache.Set(KindKnobs, key, c)
	return k, err
}

func (e *Engine) invalidateKnobs(userID string) {
	e.cache.InvalidatePrefix(KindKnobs, storage.UserPrefix(userID))
}

func knobsKey(userID string, seed int) string {
	return storage.Key(userID, strconv.Itoa(seed))
}
