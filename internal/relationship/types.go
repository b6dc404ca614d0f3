// Package relationship holds the per-user relationship ledger: clamped score
// mutation, tier derivation and the semantic buckets that replace raw scores
// at the prompt boundary.
package relationship

import "time"

// Tier is derived from RelationshipScore and never set directly.
type Tier string

const (
	TierAdversarial     Tier = "adversarial"
	TierRival           Tier = "rival"
	TierNeutralNegative Tier = "neutral_negative"
	TierAcquaintance    Tier = "acquaintance"
	TierFriend          Tier = "friend"
	TierCloseFriend     Tier = "close_friend"
	TierDeeplyLoving    Tier = "deeply_loving"
)

// FamiliarityStage is derived from the interaction count.
type FamiliarityStage string

const (
	StageEarly       FamiliarityStage = "early"
	StageDeveloping  FamiliarityStage = "developing"
	StageEstablished FamiliarityStage = "established"
)

// Score range for warmth, trust, playfulness and stability.
const (
	MinScore = -50.0
	MaxScore = 50.0
)

// Metrics is the persona's relationship with one user.
type Metrics struct {
	UserID      string  `json:"user_id"`
	Warmth      float64 `json:"warmth"`
	Trust       float64 `json:"trust"`
	Playfulness float64 `json:"playfulness"`
	Stability   float64 `json:"stability"`

	// derived
	RelationshipScore float64          `json:"relationship_score"`
	Tier              Tier             `json:"tier"`
	FamiliarityStage  FamiliarityStage `json:"familiarity_stage"`

	TotalInteractions    int `json:"total_interactions"`
	PositiveInteractions int `json:"positive_interactions"`
	NegativeInteractions int `json:"negative_interactions"`

	IsRuptured    bool      `json:"is_ruptured"`
	RuptureCount  int       `json:"rupture_count"`
	LastRuptureAt time.Time `json:"last_rupture_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScoreDelta is added to Metrics scores before clamping.
type ScoreDelta struct {
	Warmth      float64 `json:"warmth_change"`
	Trust       float64 `json:"trust_change"`
	Playfulness float64 `json:"playfulness_change"`
	Stability   float64 `json:"stability_change"`
}

// Person score range.
const (
	MinPersonScore = 0.0
	MaxPersonScore = 100.0
)

// MaxPersonEvents bounds the per-person event log.
const MaxPersonEvents = 20

// PersonRelationship is how a user relates to someone they talk about.
type PersonRelationship struct {
	UserID           string        `json:"user_id"`
	PersonName       string        `json:"person_name"`
	Warmth           float64       `json:"warmth"`
	Trust            float64       `json:"trust"`
	Familiarity      float64       `json:"familiarity"`
	Closeness        string        `json:"closeness"` // derived
	MentionCount     int           `json:"mention_count"`
	Events           []PersonEvent `json:"events"`
	FirstMentionedAt time.Time     `json:"first_mentioned_at"`
	LastMentionedAt  time.Time     `json:"last_mentioned_at"`
}

// PersonEvent is one entry in a person's event log.
type PersonEvent struct {
	At    time.Time   `json:"at"`
	Note  string      `json:"note"`
	Delta PersonDelta `json:"delta"`
}

// PersonDelta is added to PersonRelationship scores before clamping.
type PersonDelta struct {
	WarmthChange      float64 `json:"warmth_change"`
	TrustChange       float64 `json:"trust_change"`
	FamiliarityChange float64 `json:"familiarity_change"`
}
