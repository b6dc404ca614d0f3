// Package mood tracks the persona's daily energy and social battery per user,
// plus the emotional momentum built up over consecutive interactions.
package mood

import "time"

// Direction of the mood level between the last two interactions.
type Direction string

const (
	Rising  Direction = "rising"
	Falling Direction = "falling"
	Steady  Direction = "steady"
)

// Warmth availability gates how open the persona is allowed to be.
const (
	WarmthGuarded = "guarded"
	WarmthNeutral = "neutral"
	WarmthOpen    = "open"
)

// Tunables. Streak thresholds gate warmth; the genuine-moment floors are the
// fast-forward applied when a classifier flags a genuine moment.
const (
	PositiveToneThreshold = 0.3
	NegativeToneThreshold = -0.2
	NegativeStreakPenalty = 2
	MoodSmoothing         = 0.8

	NeutralStreak = 3
	OpenStreak    = 6

	GenuineMoodFloor   = 0.5
	GenuineStreakFloor = 4
	GenuineMomentTTL   = 24 * time.Hour

	MaxRecentTones   = 10
	DirectionEpsilon = 0.05

	BatteryDrainPerInteraction = 0.03
	MinSocialBattery           = 0.1
)

// State is regenerated once per calendar day.
type State struct {
	UserID              string    `json:"user_id"`
	DailyEnergy         float64   `json:"daily_energy"`
	SocialBattery       float64   `json:"social_battery"`
	DailySeed           int       `json:"daily_seed"`
	InteractionsToday   int       `json:"interactions_today"`
	LastInteractionAt   time.Time `json:"last_interaction_at,omitempty"`
	LastInteractionTone float64   `json:"last_interaction_tone"`
}

// Momentum is the running emotional trajectory with one user.
type Momentum struct {
	UserID                    string    `json:"user_id"`
	CurrentMoodLevel          float64   `json:"current_mood_level"`
	MomentumDirection         Direction `json:"momentum_direction"`
	PositiveInteractionStreak int       `json:"positive_interaction_streak"`
	RecentInteractionTones    []float64 `json:"recent_interaction_tones"`
	GenuineMomentDetected     bool      `json:"genuine_moment_detected"`
	GenuineCategory           string    `json:"genuine_category,omitempty"`
	LastGenuineMomentAt       time.Time `json:"last_genuine_moment_at,omitempty"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// Knobs are the behaviour settings derived from State and Momentum.
// FlirtThreshold is the only numeric knob and never leaves the engine.
type Knobs struct {
	PatienceDecay      string  `json:"patience_decay"`
	WarmthAvailability string  `json:"warmth_availability"`
	SocialBattery      string  `json:"social_battery"`
	FlirtThreshold     float64 `json:"flirt_threshold"`
	CuriosityDepth     string  `json:"curiosity_depth"`
	InitiationRate     string  `json:"initiation_rate"`
	Verbosity          string  `json:"verbosity"`
}
