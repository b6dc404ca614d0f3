// Package classifier turns a user message into structured intent: tone,
// genuine-moment detection, open-loop suggestions and resolved topics.
//
// Classifiers are treated as unreliable. Callers wrap them in Safe so a
// failure degrades to Neutral instead of blocking the conversation.
package classifier

import (
	"context"

	"github.com/rs/zerolog"
)

// Genuine moment categories.
const (
	CategoryVulnerability = "vulnerability"
	CategoryGratitude     = "gratitude"
	CategoryAffection     = "affection"
	CategoryMilestone     = "milestone"
)

// LoopSuggestion is an open loop proposed by a classifier.
type LoopSuggestion struct {
	Topic    string  `json:"topic"`
	Category string  `json:"category"`
	Salience float64 `json:"salience"`
}

// Intent is the structured reading of one message.
type Intent struct {
	GenuineMoment     bool    `json:"genuine_moment"`
	GenuineCategory   string  `json:"genuine_category,omitempty"`
	GenuineConfidence float64 `json:"genuine_confidence"`

	// ToneSentiment is in [-1,1], ToneIntensity in [0,1].
	ToneSentiment float64 `json:"tone_sentiment"`
	ToneIntensity float64 `json:"tone_intensity"`

	OpenLoop      *LoopSuggestion `json:"open_loop,omitempty"`
	ResolvedTopic string          `json:"resolved_topic,omitempty"`
}

// Neutral is the intent used whenever classification is unavailable.
func Neutral() Intent { return Intent{} }

// Classifier reads intent from a message and optional recent context.
type Classifier interface {
	Classify(ctx context.Context, text string, recent []string) (Intent, error)
}

// Func adapts a function to Classifier.
type Func func(ctx context.Context, text string, recent []string) (Intent, error)

func (f Func) Classify(ctx context.Context, text string, recent []string) (Intent, error) {
	return f(ctx, text, recent)
}

// SafeClassifier never fails: errors from the primary classifier fall back
// to the secondary one, and from there to Neutral.
type SafeClassifier struct {
	primary  Classifier
	fallback Classifier
	log      zerolog.Logger
}

// Safe wraps primary. fallback may be nil.
func Safe(primary, fallback Classifier, log zerolog.Logger) *SafeClassifier {
	return &SafeClassifier{
		primary:  primary,
		fallback: fallback,
		log:      log.With().Str("component", "classifier").Logger(),
	}
}

func (s *SafeClassifier) Classify(ctx context.Context, text string, recent []string) (Intent, error) {
	if s.primary != nil {
		in, err := s.primary.Classify(ctx, text, recent)
		if err == nil {
			return sanitize(in), nil
		}
		s.log.Warn().Err(err).Msg("classifier failed")
	}
	if s.fallback != nil {
		in, err := s.fallback.Classify(ctx, text, recent)
		if err == nil {
			return sanitize(in), nil
		}
		s.log.Warn().Err(err).Msg("fallback classifier failed, treating as neutral")
	}
	return Neutral(), nil
}

// sanitize clamps numeric fields so downstream math stays in range.
func sanitize(in Intent) Intent {
	in.ToneSentiment = clamp(in.ToneSentiment, -1, 1)
	in.ToneIntensity = clamp(in.ToneIntensity, 0, 1)
	in.GenuineConfidence = clamp(in.GenuineConfidence, 0, 1)
	if !in.GenuineMoment {
		in.GenuineCategory = ""
	}
	if in.OpenLoop != nil {
		if in.OpenLoop.Topic == "" {
			in.OpenLoop = nil
		} else {
			in.OpenLoop.Salience = clamp(in.OpenLoop.Salience, 0, 1)
		}
	}
	return in
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
