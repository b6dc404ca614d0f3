package threads

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/keshon/heartline/internal/cache"
	"github.com/keshon/heartline/internal/storage"
	"github.com/keshon/heartline/internal/storage/storagetest"
	"github.com/rs/zerolog"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker() (*Tracker, *clock) {
	c := &clock{t: time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)}
	tr := NewTracker(storage.NewMemoryStore(), cache.New(), nil, zerolog.Nop())
	tr.Now = c.now
	return tr, c
}

func TestListTopsUpToMinimum(t *testing.T) {
	tr, _ := newTestTracker()
	list, err := tr.ListThreads(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(list) != MinThreads {
		t.Fatalf("expected %d threads, got %d", MinThreads, len(list))
	}
	seen := map[string]bool{}
	for _, th := range list {
		if th.CurrentState == "" || th.ID == "" {
			t.Errorf("expected generated thread, got %+v", th)
		}
		if seen[th.Theme] {
			t.Errorf("duplicate filler theme %q", th.Theme)
		}
		seen[th.Theme] = true
	}
}

func TestCapEvictsLowestIntensity(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()
	var created []Thread
	for i := 0; i < MaxThreads+2; i++ {
		th, err := tr.CreateUserThread(ctx, "u1", "trigger", "", 0.55+float64(i)*0.05)
		if err != nil {
			t.Fatalf("CreateUserThread: %v", err)
		}
		created = append(created, th)
	}
	list, _ := tr.ListThreads(ctx, "u1")
	if len(list) != MaxThreads {
		t.Fatalf("expected %d threads, got %d", MaxThreads, len(list))
	}
	last := created[len(created)-1]
	if list[0].ID != last.ID {
		t.Errorf("expected newest, most intense thread first, got %+v", list[0])
	}
	for _, th := range list {
		if th.Intensity < 0.55 {
			t.Errorf("expected fillers and weakest threads evicted, found %+v", th)
		}
	}
}

func TestLazyDecayDoesNotDoubleCount(t *testing.T) {
	tr, c := newTestTracker()
	ctx := context.Background()
	th, _ := tr.CreateUserThread(ctx, "u1", "exam", "", 1)

	c.advance(10 * time.Hour)
	tr.ListThreads(ctx, "u1")
	tr.ListThreads(ctx, "u1")
	list, _ := tr.ListThreads(ctx, "u1")

	want := math.Exp(-DecayPerHour * 10)
	for _, got := range list {
		if got.ID == th.ID && math.Abs(got.Intensity-want) > 1e-9 {
			t.Errorf("expected intensity %v, got %v", want, got.Intensity)
		}
	}
}

func TestFadedThreadsRemoved(t *testing.T) {
	tr, c := newTestTracker()
	ctx := context.Background()
	th, _ := tr.CreateUserThread(ctx, "u1", "exam", "", 0.1)
	c.advance(48 * time.Hour)
	list, _ := tr.ListThreads(ctx, "u1")
	for _, got := range list {
		if got.ID == th.ID {
			t.Errorf("expected faded thread removed, got %+v", got)
		}
	}
}

func TestBoostAndMention(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()
	th, _ := tr.CreateUserThread(ctx, "u1", "exam", "", 0.8)

	th, _ = tr.BoostThread(ctx, "u1", th.ID, 0.5)
	if th.Intensity != 1 {
		t.Errorf("expected boost capped at 1, got %v", th.Intensity)
	}
	th, _ = tr.MarkThreadMentioned(ctx, "u1", th.ID)
	if math.Abs(th.Intensity-MentionDamping) > 1e-9 {
		t.Errorf("expected damped intensity %v, got %v", MentionDamping, th.Intensity)
	}
	if _, err := tr.BoostThread(ctx, "u1", th.ID, -1); err == nil {
		t.Error("expected error for negative boost")
	}
	if _, err := tr.BoostThread(ctx, "u1", "missing", 0.1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSurfaceCooldown(t *testing.T) {
	tr, c := newTestTracker()
	ctx := context.Background()
	th, _ := tr.CreateUserThread(ctx, "u1", "job interview", "", 1)
	tr.MarkThreadMentioned(ctx, "u1", th.ID)

	c.advance(10 * time.Minute)
	got, err := tr.GetThreadToSurface(ctx, "u1")
	if err != nil {
		t.Fatalf("GetThreadToSurface: %v", err)
	}
	if got != nil && got.ID == th.ID {
		t.Error("expected thread withheld during cooldown")
	}

	c.advance(25 * time.Minute)
	got, _ = tr.GetThreadToSurface(ctx, "u1")
	if got == nil || got.ID != th.ID {
		t.Errorf("expected thread surfaced after cooldown, got %+v", got)
	}
}

func TestNothingToSurface(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Min = 0
	ctx := context.Background()
	tr.CreateUserThread(ctx, "u1", "exam", "", 0.3)
	got, _ := tr.GetThreadToSurface(ctx, "u1")
	if got != nil {
		t.Errorf("expected nothing above the floor, got %+v", got)
	}
}

func TestRemoveThread(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()
	th, _ := tr.CreateUserThread(ctx, "u1", "exam", "", 0.9)
	if err := tr.RemoveThread(ctx, "u1", th.ID); err != nil {
		t.Fatalf("RemoveThread: %v", err)
	}
	if err := tr.RemoveThread(ctx, "u1", th.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second remove, got %v", err)
	}
	list, _ := tr.ListThreads(ctx, "u1")
	if len(list) != MinThreads {
		t.Errorf("expected set topped back up to %d, got %d", MinThreads, len(list))
	}
}

func TestFailedReadLeavesStoredThreadsAlone(t *testing.T) {
	f := storagetest.NewFaulty(storage.NewMemoryStore())
	tr := NewTracker(f, cache.New(), nil, zerolog.Nop())
	now := time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)
	tr.Now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < MaxThreads; i++ {
		if _, err := tr.CreateUserThread(ctx, "u1", "trigger", "", 0.6); err != nil {
			t.Fatalf("CreateUserThread: %v", err)
		}
	}

	f.FailList.Store(true)
	for i := 0; i < 2; i++ {
		list, err := tr.ListThreads(ctx, "u1")
		if err != nil {
			t.Fatalf("expected defaults without error, got %v", err)
		}
		if len(list) != MinThreads {
			t.Errorf("expected %d default threads, got %d", MinThreads, len(list))
		}
	}
	f.FailList.Store(false)

	list, err := tr.ListThreads(ctx, "u1")
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	kept := 0
	for _, th := range list {
		if th.UserRelated {
			kept++
		}
	}
	if len(list) != MaxThreads || kept != MaxThreads {
		t.Errorf("expected all %d user threads kept, got %d of %d", MaxThreads, kept, len(list))
	}
}

func TestUsersWithSlashAreSeparate(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()
	if _, err := tr.CreateUserThread(ctx, "alice/bob", "exam", "", 0.9); err != nil {
		t.Fatalf("CreateUserThread: %v", err)
	}
	list, err := tr.ListThreads(ctx, "alice")
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	for _, th := range list {
		if th.UserID != "alice" || th.UserRelated {
			t.Errorf("alice sees a thread owned by %q: %+v", th.UserID, th)
		}
	}
}
