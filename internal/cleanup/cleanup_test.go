package cleanup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/keshon/heartline/internal/cache"
	"github.com/keshon/heartline/internal/presence"
	"github.com/keshon/heartline/internal/storage"
	"github.com/keshon/heartline/internal/storage/storagetest"
	"github.com/keshon/heartline/internal/topic"
	"github.com/rs/zerolog"
)

var base = time.Date(2026, 4, 20, 12, 0, 0, 0, time.UTC)

func newTestService(s storage.Store) (*Service, *presence.LoopStore) {
	ls := presence.NewLoopStore(s, cache.New(), zerolog.Nop())
	svc := NewService(ls, topic.NewMatcher(topic.CommonSynonyms), DefaultOptions(), zerolog.Nop())
	svc.Now = func() time.Time { return base }
	return svc, ls
}

func seed(t *testing.T, ls *presence.LoopStore, userID, id, topicText string, status presence.Status, salience float64, age time.Duration) {
	t.Helper()
	l := presence.Loop{
		ID:        id,
		UserID:    userID,
		Topic:     topicText,
		Category:  presence.CategoryCuriosityThread,
		Status:    status,
		Salience:  salience,
		CreatedAt: base.Add(-age),
	}
	if err := ls.Save(context.Background(), l); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func status(t *testing.T, ls *presence.LoopStore, userID, id string) presence.Status {
	t.Helper()
	l, err := ls.Get(context.Background(), userID, id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return l.Status
}

func TestExpireOldLoops(t *testing.T) {
	svc, ls := newTestService(storage.NewMemoryStore())
	seed(t, ls, "u1", "old", "camping trip", presence.StatusActive, 0.5, 15*24*time.Hour)
	seed(t, ls, "u1", "fresh", "exam", presence.StatusSurfaced, 0.5, 2*24*time.Hour)
	seed(t, ls, "u1", "done", "move", presence.StatusResolved, 0.5, 30*24*time.Hour)

	n, err := svc.ExpireOldLoops(context.Background(), "u1", nil)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 expired, got %d, %v", n, err)
	}
	if status(t, ls, "u1", "old") != presence.StatusExpired {
		t.Error("expected old loop expired")
	}
	if status(t, ls, "u1", "done") != presence.StatusResolved {
		t.Error("expected terminal loop untouched")
	}

	n, _ = svc.ExpireOldLoops(context.Background(), "u1", &Options{MaxLoopAgeDays: 1})
	if n != 1 || status(t, ls, "u1", "fresh") != presence.StatusExpired {
		t.Errorf("expected per-call override to expire fresh loop, got %d", n)
	}
}

func TestExpireDuplicateLoopsKeepsNewest(t *testing.T) {
	svc, ls := newTestService(storage.NewMemoryStore())
	seed(t, ls, "u1", "older", "lost photos", presence.StatusActive, 0.5, 2*time.Hour)
	seed(t, ls, "u1", "newer", "lost pictures", presence.StatusActive, 0.5, time.Hour)
	seed(t, ls, "u1", "other", "job interview", presence.StatusActive, 0.5, time.Hour)

	n, err := svc.ExpireDuplicateLoops(context.Background(), "u1", nil)
	if err != nil || n != 1 {
		t.Fatalf("expected exactly 1 expired, got %d, %v", n, err)
	}
	if status(t, ls, "u1", "older") != presence.StatusExpired {
		t.Error("expected older duplicate expired")
	}
	if status(t, ls, "u1", "newer") != presence.StatusActive || status(t, ls, "u1", "other") != presence.StatusActive {
		t.Error("expected newer duplicate and unrelated loop kept")
	}
}

func TestStrictMatcherKeepsPhotoAndPicture(t *testing.T) {
	ls := presence.NewLoopStore(storage.NewMemoryStore(), cache.New(), zerolog.Nop())
	svc := NewService(ls, nil, DefaultOptions(), zerolog.Nop())
	svc.Now = func() time.Time { return base }
	seed(t, ls, "u1", "a", "lost photos", presence.StatusActive, 0.5, 2*time.Hour)
	seed(t, ls, "u1", "b", "lost picture", presence.StatusActive, 0.5, time.Hour)
	if n, _ := svc.ExpireDuplicateLoops(context.Background(), "u1", nil); n != 0 {
		t.Errorf("expected strict matcher to keep both, expired %d", n)
	}
}

func TestCapActiveLoopsProtectsSalient(t *testing.T) {
	svc, ls := newTestService(storage.NewMemoryStore())
	for i := 0; i < 4; i++ {
		seed(t, ls, "u1", fmt.Sprintf("hot%d", i), fmt.Sprintf("important topic %d", i), presence.StatusActive, 0.9, time.Duration(i+1)*time.Hour)
	}
	seed(t, ls, "u1", "cold", "minor topic", presence.StatusActive, 0.2, time.Hour)

	n, err := svc.CapActiveLoops(context.Background(), "u1", &Options{MaxActiveLoops: 2})
	if err != nil {
		t.Fatalf("CapActiveLoops: %v", err)
	}
	if n != 1 || status(t, ls, "u1", "cold") != presence.StatusExpired {
		t.Errorf("expected only the unprotected loop evicted, got %d", n)
	}
	for i := 0; i < 4; i++ {
		if st := status(t, ls, "u1", fmt.Sprintf("hot%d", i)); st != presence.StatusActive {
			t.Errorf("protected loop hot%d evicted: %s", i, st)
		}
	}
}

func TestCapActiveLoopsOrder(t *testing.T) {
	svc, ls := newTestService(storage.NewMemoryStore())
	seed(t, ls, "u1", "low-old", "topic alpha", presence.StatusActive, 0.3, 3*time.Hour)
	seed(t, ls, "u1", "low-new", "topic bravo", presence.StatusActive, 0.3, time.Hour)
	seed(t, ls, "u1", "mid", "topic charlie", presence.StatusActive, 0.5, 5*time.Hour)
	seed(t, ls, "u1", "s1", "topic delta", presence.StatusSurfaced, 0.6, 2*time.Hour)
	seed(t, ls, "u1", "s2", "topic echo", presence.StatusSurfaced, 0.7, 2*time.Hour)

	n, _ := svc.CapActiveLoops(context.Background(), "u1", &Options{MaxActiveLoops: 3, MaxSurfacedLoops: 1})
	if n != 2 {
		t.Fatalf("expected 2 evictions, got %d", n)
	}
	if status(t, ls, "u1", "s1") != presence.StatusExpired {
		t.Error("expected weaker surfaced loop trimmed first")
	}
	if status(t, ls, "u1", "low-old") != presence.StatusExpired {
		t.Error("expected oldest low-salience loop evicted")
	}
	if status(t, ls, "u1", "low-new") != presence.StatusActive {
		t.Error("expected newer low-salience loop kept")
	}
}

func TestRunScheduledCleanupIdempotent(t *testing.T) {
	svc, ls := newTestService(storage.NewMemoryStore())
	seed(t, ls, "u1", "old", "camping trip", presence.StatusActive, 0.5, 20*24*time.Hour)
	seed(t, ls, "u1", "d1", "lost photos", presence.StatusActive, 0.5, 3*time.Hour)
	seed(t, ls, "u1", "d2", "lost pictures", presence.StatusActive, 0.5, 2*time.Hour)
	for i := 0; i < 12; i++ {
		seed(t, ls, "u1", fmt.Sprintf("x%d", i), fmt.Sprintf("distinct subject %c", 'a'+i), presence.StatusActive, 0.4, time.Duration(i)*time.Minute)
	}

	first := svc.RunScheduledCleanup(context.Background(), "u1", nil)
	if !first.Success || len(first.Steps) != 3 {
		t.Fatalf("unexpected first result %+v", first)
	}
	if first.Expired == 0 {
		t.Fatal("expected first run to expire loops")
	}
	open, _ := ls.ListOpen(context.Background(), "u1")
	if len(open) != DefaultOptions().MaxActiveLoops {
		t.Errorf("expected %d open loops, got %d", DefaultOptions().MaxActiveLoops, len(open))
	}

	second := svc.RunScheduledCleanup(context.Background(), "u1", nil)
	if second.Expired != 0 {
		t.Errorf("expected no expirations on second run, got %d", second.Expired)
	}
}

func TestStepFailureIsolated(t *testing.T) {
	f := storagetest.NewFaulty(storage.NewMemoryStore())
	svc, ls := newTestService(f)
	seed(t, ls, "u1", "a", "lost photos", presence.StatusActive, 0.5, time.Hour)

	f.FailList.Store(true)
	res := svc.RunScheduledCleanup(context.Background(), "u1", nil)
	if res.Success {
		t.Error("expected failure to be reported")
	}
	if len(res.Steps) != 3 {
		t.Fatalf("expected every step attempted, got %d", len(res.Steps))
	}
	for _, st := range res.Steps {
		if st.Error == "" {
			t.Errorf("expected step %s to report its error", st.Step)
		}
	}
}

func TestRunAllAndScheduler(t *testing.T) {
	svc, ls := newTestService(storage.NewMemoryStore())
	for _, u := range []string{"u1", "u2", "u3"} {
		seed(t, ls, u, "old", "camping trip", presence.StatusActive, 0.5, 30*24*time.Hour)
	}

	sched := NewScheduler(svc, nil, zerolog.Nop())
	sum, err := sched.TriggerNow(context.Background(), nil)
	if err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	if sum.Users != 3 || sum.Expired != 3 || !sum.Success {
		t.Errorf("unexpected summary %+v", sum)
	}
	if sum.Results[0].UserID != "u1" {
		t.Errorf("expected results sorted by user, got %s first", sum.Results[0].UserID)
	}

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sched.Start(context.Background()); err == nil {
		t.Error("expected second Start to fail")
	}
	if err := sched.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sched.Running() {
		t.Error("expected scheduler stopped")
	}
}

func TestDuplicatesNotGroupedAcrossUsers(t *testing.T) {
	svc, ls := newTestService(storage.NewMemoryStore())
	seed(t, ls, "alice", "a", "job interview", presence.StatusActive, 0.5, 2*time.Hour)
	seed(t, ls, "alice/bob", "b", "job interview", presence.StatusActive, 0.5, time.Hour)

	n, err := svc.ExpireDuplicateLoops(context.Background(), "alice", nil)
	if err != nil || n != 0 {
		t.Fatalf("expected nothing expired, got %d, %v", n, err)
	}
	if status(t, ls, "alice", "a") != presence.StatusActive {
		t.Error("expected alice's loop kept")
	}
	users, _ := ls.Users(context.Background())
	if len(users) != 2 {
		t.Errorf("expected alice and alice/bob as separate users, got %v", users)
	}
}
