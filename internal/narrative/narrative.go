// Package narrative produces the short inner-monologue text that fills the
// persona's ongoing threads.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync/atomic"

	"github.com/keshon/heartline/internal/ai"
	"github.com/keshon/heartline/pkg/retrylimit"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Generator returns narrative text for a theme.
type Generator interface {
	Generate(ctx context.Context, theme string) (string, error)
}

// FillerThemes are rotated when the tracker tops up below its minimum.
var FillerThemes = []string{
	"a song stuck on repeat",
	"a book half finished",
	"rearranging the room",
	"learning a new recipe",
	"the weather lately",
	"an old friend",
	"a half-planned trip",
	"sleep schedule",
}

var templates = []string{
	"keeps drifting back to %s",
	"has been quietly preoccupied with %s",
	"can't quite let go of %s",
	"wants to talk about %s at some point",
	"is a little distracted by %s today",
}

// Template builds text from fixed sentence templates. It never fails.
type Template struct {
	n atomic.Uint64
}

func NewTemplate() *Template { return &Template{} }

func (t *Template) Generate(_ context.Context, theme string) (string, error) {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return "", errors.New("narrative: empty theme")
	}
	h := fnv.New32a()
	h.Write([]byte(theme))
	i := (uint64(h.Sum32()) + t.n.Add(1)) % uint64(len(templates))
	return fmt.Sprintf(templates[i], theme), nil
}

// LLM asks a chat-completion provider for a one-sentence narrative and
// falls back to Template when the provider fails.
type LLM struct {
	provider ai.Provider
	fallback Generator
	limiter  *retrylimit.AdaptiveLimiter
	retry    retrylimit.RetryConfig
	log      zerolog.Logger
}

func NewLLM(p ai.Provider, rps float64, log zerolog.Logger) *LLM {
	if rps <= 0 {
		rps = 0.5
	}
	log = log.With().Str("component", "narrative").Logger()
	cfg := retrylimit.DefaultRetryConfig()
	cfg.Logger = log
	return &LLM{
		provider: p,
		fallback: NewTemplate(),
		limiter:  retrylimit.NewAdaptiveLimiter(rate.Limit(rps), rate.Limit(rps/4), rate.Limit(rps*2), rate.Limit(rps/4), 0.5),
		retry:    cfg,
		log:      log,
	}
}

const llmPrompt = "Write one short first-person sentence (under 25 words) about what you have been thinking about regarding: %s. No quotes, no emojis."

func (l *LLM) Generate(ctx context.Context, theme string) (string, error) {
	if strings.TrimSpace(theme) == "" {
		return "", errors.New("narrative: empty theme")
	}
	var out string
	err := retrylimit.WithRetryConfig(ctx, func() error {
		reply, err := l.provider.Generate(ctx, []ai.Message{{Role: "user", Content: fmt.Sprintf(llmPrompt, theme)}})
		if err != nil {
			return err
		}
		reply = strings.TrimSpace(reply)
		if reply == "" {
			return retrylimit.Fatal(errors.New("empty reply"))
		}
		out = reply
		return nil
	}, l.limiter, l.retry)
	if err != nil {
		l.log.Warn().Err(err).Str("theme", theme).Msg("narrative generation failed, using template")
		return l.fallback.Generate(ctx, theme)
	}
	return out, nil
}
