package relationship

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/keshon/heartline/internal/cache"
	"github.com/keshon/heartline/internal/state"
	"github.com/keshon/heartline/internal/storage"
	"github.com/keshon/heartline/internal/topic"
	"github.com/rs/zerolog"
)

// PersonLedger tracks the people a user talks about.
type PersonLedger struct {
	repo *state.Repo[PersonRelationship]
	log  zerolog.Logger
	Now  func() time.Time
}

func NewPersonLedger(s storage.Store, c *cache.Cache, log zerolog.Logger) *PersonLedger {
	p := &PersonLedger{
		log: log.With().Str("component", "person").Logger(),
		Now: time.Now,
	}
	p.repo = state.NewRepo(storage.KindPerson, s, c, log, func(string) PersonRelationship {
		return PersonRelationship{Warmth: 50, Trust: 50}
	})
	return p
}

func personKey(userID, name string) string {
	return storage.Key(userID, strings.ReplaceAll(topic.Normalize(name), " ", "_"))
}

// ApplyPersonDelta updates (or creates, when create is set) the record for
// personName, clamps to [0,100], bumps the mention count and logs the event.
func (p *PersonLedger) ApplyPersonDelta(ctx context.Context, userID, personName string, d PersonDelta, event string, create bool) (*PersonRelationship, error) {
	if userID == "" || strings.TrimSpace(personName) == "" {
		return nil, fmt.Errorf("person: user id and person name are required")
	}
	key := personKey(userID, personName)

	r, ok, err := p.repo.Lookup(ctx, key)
	if err != nil {
		p.log.Warn().Err(err).Str("user", userID).Msg("person read failed, starting from default")
		ok = false
	}
	now := p.Now()
	if !ok {
		if !create {
			return nil, ErrNotFound
		}
		r = PersonRelationship{
			UserID:           userID,
			PersonName:       strings.TrimSpace(personName),
			Warmth:           50,
			Trust:            50,
			FirstMentionedAt: now,
		}
	}

	r.Warmth = clamp(r.Warmth+d.WarmthChange, MinPersonScore, MaxPersonScore)
	r.Trust = clamp(r.Trust+d.TrustChange, MinPersonScore, MaxPersonScore)
	r.Familiarity = clamp(r.Familiarity+d.FamiliarityChange, MinPersonScore, MaxPersonScore)
	r.Closeness = ClosenessFor(r.Familiarity)
	r.MentionCount++
	r.LastMentionedAt = now

	events := make([]PersonEvent, 0, len(r.Events)+1)
	events = append(events, r.Events...)
	events = append(events, PersonEvent{At: now, Note: event, Delta: d})
	if len(events) > MaxPersonEvents {
		events = events[len(events)-MaxPersonEvents:]
	}
	r.Events = events

	if err := p.repo.Save(ctx, key, r); err != nil {
		return &r, err
	}
	return &r, nil
}

// GetPerson returns the record for personName or ErrNotFound.
func (p *PersonLedger) GetPerson(ctx context.Context, userID, personName string) (*PersonRelationship, error) {
	r, ok, err := p.repo.Lookup(ctx, personKey(userID, personName))
	if err != nil || !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// ListPeople returns every person the user has mentioned, most mentioned first.
func (p *PersonLedger) ListPeople(ctx context.Context, userID string) ([]PersonRelationship, error) {
	items, err := p.repo.List(ctx, storage.UserPrefix(userID))
	if err != nil {
		return nil, err
	}
	out := make([]PersonRelationship, 0, len(items))
	for _, it := range items {
		out = append(out, it.Value)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MentionCount > out[j].MentionCount })
	return out, nil
}

// ClosenessFor maps familiarity in [0,100] to a label.
func ClosenessFor(familiarity float64) string {
	switch {
	case familiarity >= 75:
		return "close"
	case familiarity >= 40:
		return "familiar"
	case familiarity >= 10:
		return "acquaintance"
	default:
		return "stranger"
	}
}
