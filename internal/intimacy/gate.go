package intimacy

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/keshon/heartline/internal/cache"
	"github.com/keshon/heartline/internal/relationship"
	"github.com/keshon/heartline/internal/state"
	"github.com/keshon/heartline/internal/storage"
	"github.com/rs/zerolog"
)

// Gate tunables.
const (
	QualitySmoothing    = 0.7
	ToneSmoothing       = 0.8
	VulnerabilityWindow = 60 * time.Minute

	NoRelationshipCeiling = 0.15
	RuptureMultiplier     = 0.3
	VulnerabilityBoost    = 1.3
	LowEffortStreakLimit  = 3
	LowEffortPenalty      = 0.5
	PlayBidMultiplier     = 1.5
)

// Bid types accepted by ShouldFlirtMomentOccur.
const (
	BidNone    = ""
	BidPlay    = "play"
	BidSerious = "serious"
)

// ErrInvalidBid is returned for an unknown bid type.
var ErrInvalidBid = errors.New("intimacy: invalid bid type")

var tierBase = map[relationship.Tier]float64{
	relationship.TierAdversarial:     0,
	relationship.TierRival:           0.02,
	relationship.TierNeutralNegative: 0.04,
	relationship.TierAcquaintance:    0.08,
	relationship.TierFriend:          0.15,
	relationship.TierCloseFriend:     0.3,
	relationship.TierDeeplyLoving:    0.45,
}

// State is the per-user intimacy record.
type State struct {
	UserID                      string    `json:"user_id"`
	RecentToneModifier          float64   `json:"recent_tone_modifier"`
	VulnerabilityExchangeActive bool      `json:"vulnerability_exchange_active"`
	VulnerabilityAt             time.Time `json:"vulnerability_at,omitempty"`
	LowEffortStreak             int       `json:"low_effort_streak"`
	RecentQuality               float64   `json:"recent_quality"`
	UpdatedAt                   time.Time `json:"updated_at"`
}

// DefaultState is the state of a user never seen before.
func DefaultState(userID string) State {
	return State{UserID: userID, RecentQuality: BaselineQuality}
}

// VulnerabilityActive reports whether the exchange is still inside its window at now.
func (s State) VulnerabilityActive(now time.Time) bool {
	return s.VulnerabilityExchangeActive && now.Sub(s.VulnerabilityAt) <= VulnerabilityWindow
}

// RandomSource yields uniform numbers in [0,1).
type RandomSource interface {
	Float64() float64
}

// RandomFunc adapts a function to RandomSource.
type RandomFunc func() float64

func (f RandomFunc) Float64() float64 { return f() }

// Gate owns IntimacyState for every user.
type Gate struct {
	repo *state.Repo[State]
	log  zerolog.Logger
	Now  func() time.Time
	Rand RandomSource
}

func NewGate(s storage.Store, c *cache.Cache, log zerolog.Logger) *Gate {
	return &Gate{
		repo: state.NewRepo(storage.KindIntimacy, s, c, log, DefaultState),
		log:  log.With().Str("component", "intimacy").Logger(),
		Now:  time.Now,
		Rand: RandomFunc(rand.Float64),
	}
}

// GetState returns the user's intimacy state, or the default on read failure.
func (g *Gate) GetState(ctx context.Context, userID string) State {
	return g.repo.GetOrInit(ctx, userID)
}

// RecordMessageQuality folds one message into the rolling averages. tone is
// the classifier sentiment in [-1,1].
func (g *Gate) RecordMessageQuality(ctx context.Context, userID, text string, tone float64) (State, Quality, error) {
	if userID == "" {
		return State{}, Quality{}, errors.New("intimacy: empty user id")
	}
	q := AnalyzeMessageQuality(text)
	now := g.Now()
	s := g.repo.GetOrInit(ctx, userID)

	s.RecentQuality = clamp(s.RecentQuality*QualitySmoothing+q.Score*(1-QualitySmoothing), 0, 1)
	s.RecentToneModifier = clamp(s.RecentToneModifier*ToneSmoothing+clamp(tone, -1, 1)*(1-ToneSmoothing), -1, 1)
	if q.IsLowEffort {
		s.LowEffortStreak++
	} else {
		s.LowEffortStreak = 0
	}
	if q.IsVulnerable {
		s.VulnerabilityExchangeActive = true
		s.VulnerabilityAt = now
	} else if !s.VulnerabilityActive(now) {
		s.VulnerabilityExchangeActive = false
	}
	s.UpdatedAt = now

	err := g.repo.Save(ctx, userID, s)
	g.log.Debug().
		Str("user", userID).
		Float64("quality", q.Score).
		Bool("low_effort", q.IsLowEffort).
		Bool("vulnerable", q.IsVulnerable).
		Int("low_streak", s.LowEffortStreak).
		Msg("message quality recorded")
	return s, q, err
}

// Probability combines tier, rupture, vulnerability, mood and effort into a
// flirt probability in [0,1]. A nil relationship is capped at NoRelationshipCeiling.
func Probability(s State, rel *relationship.Metrics, flirtThreshold float64, now time.Time) float64 {
	base := tierBase[relationship.TierAcquaintance]
	if rel != nil {
		base = tierBase[rel.Tier]
		if rel.IsRuptured {
			base *= RuptureMultiplier
		}
	}
	if s.VulnerabilityActive(now) {
		base *= VulnerabilityBoost
	}
	p := base *
		(0.5 + clamp(flirtThreshold, 0, 1)) *
		(0.5 + s.RecentQuality) *
		(1 + 0.5*s.RecentToneModifier)
	if s.LowEffortStreak >= LowEffortStreakLimit {
		p *= LowEffortPenalty
	}
	p = clamp(p, 0, 1)
	if rel == nil {
		p = min(p, NoRelationshipCeiling)
	}
	return p
}

// CalculateIntimacyProbability reads the user's state and applies Probability.
func (g *Gate) CalculateIntimacyProbability(ctx context.Context, userID string, rel *relationship.Metrics, flirtThreshold float64) float64 {
	return Probability(g.GetState(ctx, userID), rel, flirtThreshold, g.Now())
}

// ShouldFlirtMomentOccur draws against the probability. A "play" bid makes
// the moment more likely.
func (g *Gate) ShouldFlirtMomentOccur(ctx context.Context, userID string, rel *relationship.Metrics, flirtThreshold float64, bidType string) (bool, error) {
	mult := 1.0
	switch bidType {
	case BidNone, BidSerious:
	case BidPlay:
		mult = PlayBidMultiplier
	default:
		return false, fmt.Errorf("%w: %q (want %q, %q or empty)", ErrInvalidBid, bidType, BidPlay, BidSerious)
	}
	p := clamp(g.CalculateIntimacyProbability(ctx, userID, rel, flirtThreshold)*mult, 0, 1)
	draw := g.Rand.Float64()
	ok := draw < p
	g.log.Debug().Str("user", userID).Float64("p", p).Float64("draw", draw).Bool("flirt", ok).Msg("flirt draw")
	return ok, nil
}

// Reset restores the default state.
func (g *Gate) Reset(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("intimacy: empty user id")
	}
	return g.repo.Save(ctx, userID, DefaultState(userID))
}
