package relationship

import "strings"

// Semantic buckets. Raw numbers never cross the prompt boundary.
const (
	BucketCold     = "cold/distant"
	BucketGuarded  = "guarded/cool"
	BucketNeutral  = "neutral"
	BucketWarm     = "warm/open"
	BucketAffinity = "close/affectionate"
)

// Bucket maps a score on the [-10,10] scale to its label.
func Bucket(score float64) string {
	switch {
	case score <= -6:
		return BucketCold
	case score <= -2:
		return BucketGuarded
	case score <= 1:
		return BucketNeutral
	case score <= 5:
		return BucketWarm
	default:
		return BucketAffinity
	}
}

// Summary is the bucketed view of Metrics handed to prompt assembly.
type Summary struct {
	Overall     string           `json:"overall"`
	Warmth      string           `json:"warmth"`
	Trust       string           `json:"trust"`
	Playfulness string           `json:"playfulness"`
	Stability   string           `json:"stability"`
	Tier        Tier             `json:"tier"`
	Stage       FamiliarityStage `json:"stage"`
	Ruptured    bool             `json:"ruptured"`
}

// Describe buckets every score. A nil relationship reads as a neutral first meeting.
func Describe(m *Metrics) Summary {
	if m == nil {
		return Summary{
			Overall: BucketNeutral, Warmth: BucketNeutral, Trust: BucketNeutral,
			Playfulness: BucketNeutral, Stability: BucketNeutral,
			Tier: TierAcquaintance, Stage: StageEarly,
		}
	}
	// per-score range is 5x the bucket scale
	return Summary{
		Overall:     Bucket(m.RelationshipScore),
		Warmth:      Bucket(m.Warmth / 5),
		Trust:       Bucket(m.Trust / 5),
		Playfulness: Bucket(m.Playfulness / 5),
		Stability:   Bucket(m.Stability / 5),
		Tier:        m.Tier,
		Stage:       m.FamiliarityStage,
		Ruptured:    m.IsRuptured,
	}
}

// BuildRelationshipContext returns a short block for the current speaker (no numbers).
func BuildRelationshipContext(s Summary) string {
	var b strings.Builder
	b.WriteString("--- Relationship Context ---\n")
	b.WriteString("Overall feeling toward this user: " + s.Overall + ".\n")
	b.WriteString("Warmth: " + s.Warmth + ". Trust: " + s.Trust + ". Playfulness: " + s.Playfulness + ".\n")
	b.WriteString("Familiarity: " + string(s.Stage) + ".\n")
	if s.Ruptured {
		b.WriteString("There was a recent rupture; be careful and sincere.\n")
	}
	b.WriteString("Adjust tone accordingly.\n")
	return b.String()
}
