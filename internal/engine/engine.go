// Package engine wires the relationship, mood, intimacy, thread and presence
// components behind two calls: HandleMessage for every inbound message and
// BuildPersonaContext before every reply.
package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/keshon/heartline/internal/cache"
	"github.com/keshon/heartline/internal/classifier"
	"github.com/keshon/heartline/internal/cleanup"
	"github.com/keshon/heartline/internal/intimacy"
	"github.com/keshon/heartline/internal/mood"
	"github.com/keshon/heartline/internal/narrative"
	"github.com/keshon/heartline/internal/presence"
	"github.com/keshon/heartline/internal/relationship"
	"github.com/keshon/heartline/internal/storage"
	"github.com/keshon/heartline/internal/threads"
	"github.com/keshon/heartline/internal/topic"
	"github.com/rs/zerolog"
)

const (
	// RecentMessages is how much history the classifier sees.
	RecentMessages = 4
	// DefaultSurfaceLoops is how many loops a persona context offers.
	DefaultSurfaceLoops = 2
)

var errEmptyUser = errors.New("engine: empty user id")

type Options struct {
	Cleanup      cleanup.Options
	ThreadsMin   int
	ThreadsMax   int
	ProfilePath  string
	SurfaceLoops int
}

// Engine holds one instance of every component over a shared store and cache.
type Engine struct {
	Store         storage.Store
	Cache         *cache.Cache
	Classifier    classifier.Classifier
	Relationships *relationship.Ledger
	People        *relationship.PersonLedger
	Mood          *mood.Engine
	Intimacy      *intimacy.Gate
	Threads       *threads.Tracker
	Presence      *presence.Director
	Cleanup       *cleanup.Service

	opinions     *presence.OpinionSource
	surfaceLoops int
	log          zerolog.Logger

	mu     sync.Mutex
	recent map[string][]string
}

// New builds an engine. A nil classifier uses the heuristic classifier and a
// nil generator uses narrative templates.
func New(s storage.Store, cl classifier.Classifier, gen narrative.Generator, o Options, log zerolog.Logger) *Engine {
	c := cache.New()
	if cl == nil {
		cl = classifier.NewHeuristic()
	}
	cl = classifier.Safe(cl, classifier.NewHeuristic(), log)

	// Presence and cleanup must agree on what counts as the same topic.
	matcher := topic.NewMatcher(topic.CommonSynonyms)
	loops := presence.NewLoopStore(s, c, log)

	tr := threads.NewTracker(s, c, gen, log)
	if o.ThreadsMax > 0 {
		tr.Min, tr.Max = o.ThreadsMin, o.ThreadsMax
	}
	if o.SurfaceLoops <= 0 {
		o.SurfaceLoops = DefaultSurfaceLoops
	}

	return &Engine{
		Store:         s,
		Cache:         c,
		Classifier:    cl,
		Relationships: relationship.NewLedger(s, c, log),
		People:        relationship.NewPersonLedger(s, c, log),
		Mood:          mood.NewEngine(s, c, cl, log),
		Intimacy:      intimacy.NewGate(s, c, log),
		Threads:       tr,
		Presence:      presence.NewDirector(loops, matcher, log),
		Cleanup:       cleanup.NewService(loops, matcher, o.Cleanup, log),
		opinions:      presence.NewOpinionSource(o.ProfilePath),
		surfaceLoops:  o.SurfaceLoops,
		log:           log.With().Str("component", "engine").Logger(),
		recent:        make(map[string][]string),
	}
}

// SetClock points every component at now.
func (e *Engine) SetClock(now func() time.Time) {
	e.Relationships.Now = now
	e.People.Now = now
	e.Mood.Now = now
	e.Intimacy.Now = now
	e.Threads.Now = now
	e.Presence.Now = now
	e.Cleanup.Now = now
}

// Turn summarizes what one message changed.
type Turn struct {
	UserID        string                `json:"user_id"`
	Intent        classifier.Intent     `json:"intent"`
	Momentum      mood.Momentum         `json:"momentum"`
	Quality       intimacy.Quality      `json:"quality"`
	Relationship  relationship.Summary  `json:"relationship"`
	NewLoops      []presence.Loop       `json:"new_loops,omitempty"`
	ResolvedLoops int                   `json:"resolved_loops"`
	UserThread    *threads.Thread       `json:"user_thread,omitempty"`
	People        []string              `json:"people,omitempty"`
}

// HandleMessage classifies text once and feeds the result to every component.
// Each component is updated even if another fails; failures are joined into
// the returned error and the Turn still reflects what succeeded.
func (e *Engine) HandleMessage(ctx context.Context, userID, text string) (Turn, error) {
	if userID == "" {
		return Turn{}, errEmptyUser
	}
	text = strings.TrimSpace(text)
	turn := Turn{UserID: userID}
	var errs []error

	in, _ := e.Classifier.Classify(ctx, text, e.pushRecent(userID, text))
	turn.Intent = in
	tone := in.ToneSentiment

	m, err := e.Mood.ApplyInteraction(ctx, userID, tone, in)
	turn.Momentum = m
	errs = append(errs, err)

	_, q, err := e.Intimacy.RecordMessageQuality(ctx, userID, text, tone)
	turn.Quality = q
	errs = append(errs, err)

	rel, err := e.Relationships.RecordInteraction(ctx, userID, tone)
	turn.Relationship = relationship.Describe(rel)
	errs = append(errs, err)

	for _, name := range relationship.MentionedPeople(text) {
		_, err := e.People.ApplyPersonDelta(ctx, userID, name, relationship.MentionDelta(tone), truncate(text, 80), true)
		turn.People = append(turn.People, name)
		errs = append(errs, err)
	}

	if in.ResolvedTopic != "" {
		n, err := e.Presence.ResolveLoopsByTopic(ctx, userID, in.ResolvedTopic, string(presence.StatusResolved))
		turn.ResolvedLoops = n
		errs = append(errs, err)
	}

	loops, err := e.Presence.DetectOpenLoops(ctx, userID, text, in.OpenLoop)
	turn.NewLoops = loops
	errs = append(errs, err)

	if in.GenuineMoment && in.GenuineCategory != "" {
		th, err := e.Threads.CreateUserThread(ctx, userID, in.GenuineCategory, "", in.GenuineConfidence)
		if th.ID != "" {
			turn.UserThread = &th
		}
		errs = append(errs, err)
	}

	err = errors.Join(errs...)
	ev := e.log.Debug()
	if err != nil {
		ev = e.log.Warn().Err(err)
	}
	ev.Str("user", userID).Float64("tone", tone).Bool("genuine", in.GenuineMoment).
		Int("new_loops", len(turn.NewLoops)).Int("resolved", turn.ResolvedLoops).Msg("message handled")
	return turn, err
}

// pushRecent returns the history before text and appends text to it.
func (e *Engine) pushRecent(userID, text string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.recent[userID]
	out := make([]string, len(prev))
	copy(out, prev)
	next := append(prev, text)
	if len(next) > RecentMessages {
		next = next[len(next)-RecentMessages:]
	}
	e.recent[userID] = next
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// FlirtMoment rolls the intimacy gate against today's knobs and the current relationship.
func (e *Engine) FlirtMoment(ctx context.Context, userID, bidType string) (bool, error) {
	if userID == "" {
		return false, errEmptyUser
	}
	rel, err := e.Relationships.Get(ctx, userID)
	if err != nil {
		rel = nil
	}
	k, _ := e.Mood.GetMoodKnobs(ctx, userID)
	return e.Intimacy.ShouldFlirtMomentOccur(ctx, userID, rel, k.FlirtThreshold, bidType)
}
