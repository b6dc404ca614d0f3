package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/keshon/heartline/internal/intimacy"
	"github.com/keshon/heartline/internal/presence"
	"github.com/keshon/heartline/internal/storage"
	"github.com/keshon/heartline/internal/storage/storagetest"
	"github.com/rs/zerolog"
)

var clock = time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, s storage.Store, o Options) *Engine {
	t.Helper()
	e := New(s, nil, nil, o, zerolog.Nop())
	e.SetClock(func() time.Time { return clock })
	return e
}

func TestHandleMessageOpensAndResolvesLoop(t *testing.T) {
	e := newTestEngine(t, storage.NewMemoryStore(), Options{})
	ctx := context.Background()

	turn, err := e.HandleMessage(ctx, "u1", "My job interview is tomorrow and I can't sleep")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(turn.NewLoops) != 1 || turn.NewLoops[0].Topic != "job interview" {
		t.Fatalf("expected one job interview loop, got %+v", turn.NewLoops)
	}

	pc, err := e.BuildPersonaContext(ctx, "u1")
	if err != nil {
		t.Fatalf("BuildPersonaContext: %v", err)
	}
	if len(pc.Loops) != 1 || !strings.Contains(pc.Text(), "job interview") {
		t.Errorf("expected loop in persona context, got %q", pc.Text())
	}

	turn, err = e.HandleMessage(ctx, "u1", "The job interview went great, thanks for asking")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if turn.ResolvedLoops != 1 {
		t.Errorf("expected 1 resolved loop, got %d", turn.ResolvedLoops)
	}
	if turn.Intent.ToneSentiment <= 0 {
		t.Errorf("expected positive tone, got %v", turn.Intent.ToneSentiment)
	}
	open, _ := e.Presence.Loops().ListOpen(ctx, "u1")
	if len(open) != 0 {
		t.Errorf("expected no open loops, got %d", len(open))
	}
}

func TestHandleMessageGenuineMomentCreatesUserThread(t *testing.T) {
	e := newTestEngine(t, storage.NewMemoryStore(), Options{})
	ctx := context.Background()

	turn, err := e.HandleMessage(ctx, "u1", "I've never told anyone this, but I feel alone most evenings")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !turn.Intent.GenuineMoment || !turn.Momentum.GenuineMomentDetected {
		t.Fatalf("expected genuine moment, got %+v", turn.Intent)
	}
	if turn.UserThread == nil || !turn.UserThread.UserRelated {
		t.Fatalf("expected a user thread, got %+v", turn.UserThread)
	}
	if !turn.Quality.IsVulnerable {
		t.Error("expected message judged vulnerable")
	}

	list, err := e.Threads.ListThreads(ctx, "u1")
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(list) < 3 {
		t.Errorf("expected the tracker topped up to its minimum, got %d", len(list))
	}
}

func TestPersonaContextHasNoNumbers(t *testing.T) {
	dir := t.TempDir()
	profile := filepath.Join(dir, "profile.md")
	doc := "# Things I like\n- rainy mornings: good for reading\n\n# Things I dislike\n- loud chewing\n- my sister's boyfriend\n"
	if err := os.WriteFile(profile, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(t, storage.NewMemoryStore(), Options{ProfilePath: profile})
	ctx := context.Background()
	e.HandleMessage(ctx, "u1", "thank you so much, that really helped")

	pc, err := e.BuildPersonaContext(ctx, "u1")
	if err != nil {
		t.Fatalf("BuildPersonaContext: %v", err)
	}
	if len(pc.Opinions) != 2 {
		t.Errorf("expected 2 mentionable opinions, got %+v", pc.Opinions)
	}
	text := pc.Text()
	if strings.Contains(text, "boyfriend") {
		t.Error("expected opinion about a person withheld")
	}
	if strings.ContainsAny(text, "0123456789") {
		t.Errorf("expected no raw numbers in context, got %q", text)
	}
}

func TestPersonaContextForUnknownUser(t *testing.T) {
	e := newTestEngine(t, storage.NewMemoryStore(), Options{})
	pc, err := e.BuildPersonaContext(context.Background(), "stranger")
	if err != nil {
		t.Fatalf("BuildPersonaContext: %v", err)
	}
	if pc.Relationship.Stage != "early" || pc.Directives == "" {
		t.Errorf("expected first-meeting defaults, got %+v", pc)
	}
	if _, err := e.BuildPersonaContext(context.Background(), ""); err == nil {
		t.Error("expected error for empty user id")
	}
}

func TestHandleMessageWriteFailureStillReturnsTurn(t *testing.T) {
	f := storagetest.NewFaulty(nil)
	e := newTestEngine(t, f, Options{})
	f.FailPut.Store(true)

	turn, err := e.HandleMessage(context.Background(), "u1", "my exam is tomorrow and it's a big one")
	if !errors.Is(err, storagetest.ErrInjected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if turn.Momentum.UserID != "u1" || turn.Relationship.Tier == "" {
		t.Errorf("expected turn populated despite failure, got %+v", turn)
	}
}

func TestFlirtMoment(t *testing.T) {
	e := newTestEngine(t, storage.NewMemoryStore(), Options{})
	ctx := context.Background()
	e.HandleMessage(ctx, "u1", "haha that was a fun conversation, glad we talked")

	if _, err := e.FlirtMoment(ctx, "u1", "wink"); !errors.Is(err, intimacy.ErrInvalidBid) {
		t.Errorf("expected ErrInvalidBid, got %v", err)
	}
	e.Intimacy.Rand = intimacy.RandomFunc(func() float64 { return 0 })
	if ok, _ := e.FlirtMoment(ctx, "u1", "play"); !ok {
		t.Error("expected a zero draw to pass a non-zero probability")
	}
	e.Intimacy.Rand = intimacy.RandomFunc(func() float64 { return 0.999 })
	if ok, _ := e.FlirtMoment(ctx, "u1", ""); ok {
		t.Error("expected a high draw to fail")
	}
}

func TestSurfaceLoopsMarksLoops(t *testing.T) {
	e := newTestEngine(t, storage.NewMemoryStore(), Options{})
	ctx := context.Background()
	e.HandleMessage(ctx, "u1", "I'm waiting to hear back from the landlord about the flat.")

	pc, _ := e.BuildPersonaContext(ctx, "u1")
	if len(pc.Loops) != 1 {
		t.Fatalf("expected one loop, got %d", len(pc.Loops))
	}
	if err := e.SurfaceLoops(ctx, pc); err != nil {
		t.Fatalf("SurfaceLoops: %v", err)
	}
	l, err := e.Presence.Loops().Get(ctx, "u1", pc.Loops[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if l.Status != presence.StatusSurfaced || l.SurfaceCount != 1 {
		t.Errorf("expected surfaced once, got %s/%d", l.Status, l.SurfaceCount)
	}
	again, _ := e.BuildPersonaContext(ctx, "u1")
	if len(again.Loops) != 0 {
		t.Error("expected recently surfaced loop held back")
	}
}

func TestHandleMessageRecordsPeople(t *testing.T) {
	e := newTestEngine(t, storage.NewMemoryStore(), Options{})
	ctx := context.Background()

	turn, err := e.HandleMessage(ctx, "u1", "Had a lovely dinner with my sister and my friend Anna, thanks to them I feel great")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(turn.People) != 2 || turn.People[0] != "sister" || turn.People[1] != "Anna" {
		t.Fatalf("expected sister and Anna, got %v", turn.People)
	}
	e.HandleMessage(ctx, "u1", "My sister called again this morning about the trip")

	people, err := e.People.ListPeople(ctx, "u1")
	if err != nil {
		t.Fatalf("ListPeople: %v", err)
	}
	if len(people) != 2 || people[0].PersonName != "sister" || people[0].MentionCount != 2 {
		t.Errorf("expected sister mentioned twice first, got %+v", people)
	}
}
