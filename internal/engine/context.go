package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/keshon/heartline/internal/mood"
	"github.com/keshon/heartline/internal/presence"
	"github.com/keshon/heartline/internal/relationship"
	"github.com/keshon/heartline/internal/threads"
)

// PersonaContext is everything prompt assembly may know about one user.
// It carries labels and text only; no raw scores.
type PersonaContext struct {
	UserID       string               `json:"user_id"`
	Relationship relationship.Summary `json:"relationship"`
	Directives   string               `json:"directives"`
	Thread       *threads.Thread      `json:"thread,omitempty"`
	Loops        []presence.Loop      `json:"loops,omitempty"`
	Opinions     []presence.Opinion   `json:"opinions,omitempty"`
}

// BuildPersonaContext gathers the read side of every component. Failed reads
// fall back to defaults; their errors are joined and returned alongside a
// usable context.
func (e *Engine) BuildPersonaContext(ctx context.Context, userID string) (PersonaContext, error) {
	if userID == "" {
		return PersonaContext{}, errEmptyUser
	}
	pc := PersonaContext{UserID: userID}
	var errs []error

	rel, err := e.Relationships.Get(ctx, userID)
	if err != nil && !errors.Is(err, relationship.ErrNotFound) {
		errs = append(errs, err)
	}
	pc.Relationship = relationship.Describe(rel)

	k, err := e.Mood.GetMoodKnobs(ctx, userID)
	if err != nil {
		errs = append(errs, err)
		k = mood.ComputeKnobs(mood.State{}, mood.Momentum{})
	}
	pc.Directives = k.Directives()

	th, err := e.Threads.GetThreadToSurface(ctx, userID)
	pc.Thread = th
	errs = append(errs, err)

	loops, err := e.Presence.GetLoopsToSurface(ctx, userID, e.surfaceLoops)
	pc.Loops = loops
	errs = append(errs, err)

	ops, err := e.opinions.Opinions()
	pc.Opinions = presence.Mentionable(ops)
	errs = append(errs, err)

	err = errors.Join(errs...)
	if err != nil {
		e.log.Warn().Err(err).Str("user", userID).Msg("persona context built with defaults")
	}
	return pc, err
}

// Text renders the context as prompt blocks.
func (pc PersonaContext) Text() string {
	var b strings.Builder
	b.WriteString(relationship.BuildRelationshipContext(pc.Relationship))

	if pc.Directives != "" {
		b.WriteString("--- Mood ---\n")
		b.WriteString(pc.Directives)
		b.WriteString("\n")
	}
	if pc.Thread != nil {
		b.WriteString("--- On your mind ---\n")
		b.WriteString(pc.Thread.CurrentState)
		b.WriteString("\n")
	}
	if len(pc.Loops) > 0 {
		b.WriteString("--- Worth following up ---\n")
		for _, l := range pc.Loops {
			b.WriteString("- " + l.Topic + "\n")
		}
	}
	if len(pc.Opinions) > 0 {
		b.WriteString("--- Your tastes ---\n")
		for _, o := range pc.Opinions {
			line := "- " + o.Category + ": " + o.Topic
			if o.Note != "" {
				line += " (" + o.Note + ")"
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

// SurfaceLoops marks every loop in pc as brought up.
func (e *Engine) SurfaceLoops(ctx context.Context, pc PersonaContext) error {
	var errs []error
	for _, l := range pc.Loops {
		if _, err := e.Presence.MarkSurfaced(ctx, pc.UserID, l.ID); err != nil {
			errs = append(errs, err)
		}
	}
	if pc.Thread != nil {
		if _, err := e.Threads.MarkThreadMentioned(ctx, pc.UserID, pc.Thread.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
