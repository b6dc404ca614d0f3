package relationship

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/keshon/heartline/internal/cache"
	"github.com/keshon/heartline/internal/state"
	"github.com/keshon/heartline/internal/storage"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no relationship exists and creation was not requested.
var ErrNotFound = errors.New("relationship: not found")

// RuptureTrustPenalty is subtracted from trust when a rupture is recorded.
const RuptureTrustPenalty = 5.0

// Ledger mutates relationship metrics.
type Ledger struct {
	repo *state.Repo[Metrics]
	log  zerolog.Logger
	Now  func() time.Time
}

func NewLedger(s storage.Store, c *cache.Cache, log zerolog.Logger) *Ledger {
	l := &Ledger{
		log: log.With().Str("component", "relationship").Logger(),
		Now: time.Now,
	}
	l.repo = state.NewRepo(storage.KindRelationship, s, c, log, func(userID string) Metrics {
		return l.newMetrics(userID)
	})
	return l
}

func (l *Ledger) newMetrics(userID string) Metrics {
	now := l.Now()
	m := Metrics{UserID: userID, CreatedAt: now, UpdatedAt: now}
	derive(&m)
	return m
}

// Get returns the relationship for userID. Missing records and unreadable
// stores both yield ErrNotFound so callers fall back to the "no relationship" path.
func (l *Ledger) Get(ctx context.Context, userID string) (*Metrics, error) {
	m, ok, err := l.repo.Lookup(ctx, userID)
	if err != nil {
		l.log.Warn().Err(err).Str("user", userID).Msg("relationship read failed")
		return nil, ErrNotFound
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

// ApplyScoreDelta adds d to the stored scores, clamps, re-derives tier and
// stage, and writes back. With create=false a missing relationship is ErrNotFound.
// On a failed write the updated record is still returned together with the error.
func (l *Ledger) ApplyScoreDelta(ctx context.Context, userID string, d ScoreDelta, create bool) (*Metrics, error) {
	return l.mutate(ctx, userID, create, func(m *Metrics) {
		m.Warmth += d.Warmth
		m.Trust += d.Trust
		m.Playfulness += d.Playfulness
		m.Stability += d.Stability
	})
}

// RecordInteraction counts an interaction and nudges warmth/stability by tone in [-1,1].
func (l *Ledger) RecordInteraction(ctx context.Context, userID string, tone float64) (*Metrics, error) {
	tone = clamp(tone, -1, 1)
	return l.mutate(ctx, userID, true, func(m *Metrics) {
		m.TotalInteractions++
		switch {
		case tone > 0.3:
			m.PositiveInteractions++
			m.Warmth += tone
			m.Stability += 0.25
		case tone < -0.2:
			m.NegativeInteractions++
			m.Warmth += tone
			m.Stability -= 0.5
		}
	})
}

// RecordRupture flags a rupture and drops trust.
func (l *Ledger) RecordRupture(ctx context.Context, userID string) (*Metrics, error) {
	return l.mutate(ctx, userID, true, func(m *Metrics) {
		m.IsRuptured = true
		m.RuptureCount++
		m.LastRuptureAt = l.Now()
		m.Trust -= RuptureTrustPenalty
	})
}

// RepairRupture clears the rupture flag. The rupture count is kept.
func (l *Ledger) RepairRupture(ctx context.Context, userID string) (*Metrics, error) {
	return l.mutate(ctx, userID, false, func(m *Metrics) {
		m.IsRuptured = false
	})
}

func (l *Ledger) mutate(ctx context.Context, userID string, create bool, fn func(*Metrics)) (*Metrics, error) {
	if userID == "" {
		return nil, fmt.Errorf("relationship: empty user id")
	}
	m, ok, err := l.repo.Lookup(ctx, userID)
	if err != nil {
		l.log.Warn().Err(err).Str("user", userID).Msg("relationship read failed, starting from default")
		ok = false
	}
	if !ok {
		if !create {
			return nil, ErrNotFound
		}
		m = l.newMetrics(userID)
	}

	fn(&m)
	m.Warmth = clamp(m.Warmth, MinScore, MaxScore)
	m.Trust = clamp(m.Trust, MinScore, MaxScore)
	m.Playfulness = clamp(m.Playfulness, MinScore, MaxScore)
	m.Stability = clamp(m.Stability, MinScore, MaxScore)
	derive(&m)
	m.UpdatedAt = l.Now()

	if err := l.repo.Save(ctx, userID, m); err != nil {
		return &m, err
	}
	l.log.Debug().Str("user", userID).Str("tier", string(m.Tier)).Float64("score", m.RelationshipScore).Msg("relationship updated")
	return &m, nil
}

// derive recomputes every derived field from the raw scores.
func derive(m *Metrics) {
	m.RelationshipScore = Score(m.Warmth, m.Trust, m.Playfulness, m.Stability)
	m.Tier = TierFor(m.RelationshipScore)
	m.FamiliarityStage = StageFor(m.TotalInteractions)
}

// Score aggregates the four scores onto the [-10,10] scale.
func Score(warmth, trust, playfulness, stability float64) float64 {
	s := (warmth + trust + playfulness + stability) / 20
	return math.Round(s*100) / 100
}

// TierFor is monotonic in score.
func TierFor(score float64) Tier {
	switch {
	case score <= -6:
		return TierAdversarial
	case score <= -3:
		return TierRival
	case score <= -1:
		return TierNeutralNegative
	case score <= 2:
		return TierAcquaintance
	case score <= 5:
		return TierFriend
	case score <= 8:
		return TierCloseFriend
	default:
		return TierDeeplyLoving
	}
}

// StageFor maps an interaction count to a familiarity stage.
func StageFor(interactions int) FamiliarityStage {
	switch {
	case interactions < 10:
		return StageEarly
	case interactions < 50:
		return StageDeveloping
	default:
		return StageEstablished
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
