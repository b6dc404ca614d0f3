package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/keshon/heartline/internal/ai"
	"github.com/keshon/heartline/pkg/retrylimit"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const llmSystemPrompt = `You read one chat message and answer with a single JSON object, no prose.
Fields:
  "genuine_moment": true only if the message is unusually sincere (vulnerability, gratitude, affection, milestone)
  "genuine_category": one of "vulnerability","gratitude","affection","milestone" or ""
  "genuine_confidence": 0..1
  "tone_sentiment": -1..1
  "tone_intensity": 0..1
  "open_loop": {"topic": short noun phrase, "category": one of "pending_event","emotional_followup","commitment_check","curiosity_thread","pattern_observation", "salience": 0..1} or null
  "resolved_topic": a topic the user reports as finished, or ""`

// maxRecent bounds how much history is sent with each request.
const maxRecent = 4

// LLM asks a chat-completion provider for a JSON intent.
type LLM struct {
	provider ai.Provider
	limiter  *retrylimit.AdaptiveLimiter
	retry    retrylimit.RetryConfig
}

// NewLLM builds an LLM classifier. rps bounds the request rate; values <= 0
// use 1 request per second.
func NewLLM(p ai.Provider, rps float64, log zerolog.Logger) *LLM {
	if rps <= 0 {
		rps = 1
	}
	cfg := retrylimit.DefaultRetryConfig()
	cfg.MaxAttempts = 2
	cfg.Logger = log.With().Str("component", "classifier-llm").Logger()
	return &LLM{
		provider: p,
		limiter:  retrylimit.NewAdaptiveLimiter(rate.Limit(rps), rate.Limit(rps/4), rate.Limit(rps*2), rate.Limit(rps/4), 0.5),
		retry:    cfg,
	}
}

func (l *LLM) Classify(ctx context.Context, text string, recent []string) (Intent, error) {
	if l.provider == nil {
		return Intent{}, errors.New("classifier: no provider")
	}
	msgs := []ai.Message{{Role: "system", Content: llmSystemPrompt}}
	if len(recent) > maxRecent {
		recent = recent[len(recent)-maxRecent:]
	}
	if len(recent) > 0 {
		msgs = append(msgs, ai.Message{Role: "user", Content: "Earlier messages:\n" + strings.Join(recent, "\n")})
	}
	msgs = append(msgs, ai.Message{Role: "user", Content: "Message:\n" + text})

	var in Intent
	err := retrylimit.WithRetryConfig(ctx, func() error {
		reply, err := l.provider.Generate(ctx, msgs)
		if err != nil {
			return err
		}
		parsed, err := parseIntent(reply)
		if err != nil {
			// A malformed answer is unlikely to improve on retry.
			return retrylimit.Fatal(err)
		}
		in = parsed
		return nil
	}, l.limiter, l.retry)
	if err != nil {
		return Intent{}, fmt.Errorf("classifier: %w", err)
	}
	return in, nil
}

func parseIntent(reply string) (Intent, error) {
	raw := ai.ExtractJSON(reply)
	if raw == "" {
		return Intent{}, errors.New("no json object in reply")
	}
	var in Intent
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return Intent{}, fmt.Errorf("decode intent: %w", err)
	}
	return in, nil
}
