package intimacy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/keshon/heartline/internal/cache"
	"github.com/keshon/heartline/internal/relationship"
	"github.com/keshon/heartline/internal/storage"
	"github.com/rs/zerolog"
)

func newTestGate() (*Gate, *time.Time) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	g := NewGate(storage.NewMemoryStore(), cache.New(), zerolog.Nop())
	g.Now = func() time.Time { return now }
	return g, &now
}

func TestAnalyzeMessageQuality(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		low, high  bool
		vulnerable bool
		score      float64
	}{
		{"short", "ok", true, false, false, 0.3},
		{"phrase", "nothing much.", true, false, false, 0.3},
		{"plain", "went to the market with my sister", false, false, false, 0.5},
		{"reflective", "i've been thinking about what you said yesterday", false, true, false, 0.7},
		{"long", strings.Repeat("word ", 40), false, true, false, 0.7},
		{"vulnerable", "honestly I'm scared about the results tomorrow", false, true, true, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := AnalyzeMessageQuality(tt.text)
			if q.IsLowEffort != tt.low || q.IsHighEffort != tt.high || q.IsVulnerable != tt.vulnerable {
				t.Errorf("unexpected flags %+v", q)
			}
			if diff := q.Score - tt.score; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("expected score %v, got %v", tt.score, q.Score)
			}
		})
	}
}

func TestRecordMessageQualityRollingAverage(t *testing.T) {
	g, _ := newTestGate()
	ctx := context.Background()
	s, _, err := g.RecordMessageQuality(ctx, "u1", "ok", 0)
	if err != nil {
		t.Fatalf("RecordMessageQuality: %v", err)
	}
	if want := 0.5*0.7 + 0.3*0.3; s.RecentQuality-want > 1e-9 || want-s.RecentQuality > 1e-9 {
		t.Errorf("expected recent quality %v, got %v", want, s.RecentQuality)
	}
	g.RecordMessageQuality(ctx, "u1", "k", 0)
	s, _, _ = g.RecordMessageQuality(ctx, "u1", "lol", 0)
	if s.LowEffortStreak != 3 {
		t.Errorf("expected low effort streak 3, got %d", s.LowEffortStreak)
	}
	s, _, _ = g.RecordMessageQuality(ctx, "u1", "went to the market with my sister", 0)
	if s.LowEffortStreak != 0 {
		t.Errorf("expected streak reset, got %d", s.LowEffortStreak)
	}
}

func TestVulnerabilityWindow(t *testing.T) {
	g, now := newTestGate()
	ctx := context.Background()
	s, _, _ := g.RecordMessageQuality(ctx, "u1", "I feel so lonely lately and it's a hard time", 0)
	if !s.VulnerabilityActive(*now) {
		t.Fatal("expected vulnerability active")
	}
	if s.VulnerabilityActive(now.Add(VulnerabilityWindow + time.Second)) {
		t.Error("expected vulnerability inactive after window")
	}
}

func TestProbabilityWithoutRelationship(t *testing.T) {
	g, _ := newTestGate()
	p := g.CalculateIntimacyProbability(context.Background(), "nobody", nil, 1)
	if p > NoRelationshipCeiling {
		t.Errorf("expected p <= %v, got %v", NoRelationshipCeiling, p)
	}
}

func TestProbabilityOrdering(t *testing.T) {
	now := time.Now()
	s := DefaultState("u1")
	friend := &relationship.Metrics{Tier: relationship.TierFriend}
	loving := &relationship.Metrics{Tier: relationship.TierDeeplyLoving}
	ruptured := &relationship.Metrics{Tier: relationship.TierDeeplyLoving, IsRuptured: true}

	pf := Probability(s, friend, 0.5, now)
	pl := Probability(s, loving, 0.5, now)
	pr := Probability(s, ruptured, 0.5, now)
	if !(pl > pf) {
		t.Errorf("expected deeper tier to be more likely: %v vs %v", pl, pf)
	}
	if !(pr < pl) {
		t.Errorf("expected rupture to lower probability: %v vs %v", pr, pl)
	}
	if p := Probability(s, &relationship.Metrics{Tier: relationship.TierAdversarial}, 1, now); p != 0 {
		t.Errorf("expected 0 for adversarial, got %v", p)
	}

	s.VulnerabilityExchangeActive = true
	s.VulnerabilityAt = now
	if pv := Probability(s, loving, 0.5, now); !(pv > pl) {
		t.Errorf("expected active vulnerability to raise probability: %v vs %v", pv, pl)
	}

	s = DefaultState("u1")
	s.LowEffortStreak = LowEffortStreakLimit
	if pe := Probability(s, loving, 0.5, now); !(pe < pl) {
		t.Errorf("expected low effort streak to lower probability: %v vs %v", pe, pl)
	}
}

func TestShouldFlirtMomentOccurUsesRandomSource(t *testing.T) {
	g, _ := newTestGate()
	ctx := context.Background()
	rel := &relationship.Metrics{Tier: relationship.TierCloseFriend}
	p := g.CalculateIntimacyProbability(ctx, "u1", rel, 0.5)

	g.Rand = RandomFunc(func() float64 { return p - 0.01 })
	if ok, _ := g.ShouldFlirtMomentOccur(ctx, "u1", rel, 0.5, BidNone); !ok {
		t.Error("expected flirt when draw is below probability")
	}
	g.Rand = RandomFunc(func() float64 { return p + 0.01 })
	if ok, _ := g.ShouldFlirtMomentOccur(ctx, "u1", rel, 0.5, BidSerious); ok {
		t.Error("expected no flirt when draw is above probability")
	}
	if ok, _ := g.ShouldFlirtMomentOccur(ctx, "u1", rel, 0.5, BidPlay); !ok {
		t.Error("expected play bid to lift probability above the draw")
	}
	if _, err := g.ShouldFlirtMomentOccur(ctx, "u1", rel, 0.5, "wink"); !errors.Is(err, ErrInvalidBid) {
		t.Errorf("expected ErrInvalidBid, got %v", err)
	}
}

func TestReset(t *testing.T) {
	g, _ := newTestGate()
	ctx := context.Background()
	g.RecordMessageQuality(ctx, "u1", "k", -1)
	if err := g.Reset(ctx, "u1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if s := g.GetState(ctx, "u1"); s.LowEffortStreak != 0 || s.RecentQuality != BaselineQuality || s.RecentToneModifier != 0 {
		t.Errorf("expected default state, got %+v", s)
	}
}
