package cache

import "testing"

func TestSetGetInvalidate(t *testing.T) {
	c := New()
	c.Set("mood", "u1", 1)
	c.Set("mood", "u2", 2)
	c.Set("loop", "u1/a", 3)

	if v, ok := c.Get("mood", "u1"); !ok || v.(int) != 1 {
		t.Errorf("expected 1, got %v (%v)", v, ok)
	}
	if _, ok := c.Get("mood", "u3"); ok {
		t.Error("expected miss for u3")
	}

	c.Invalidate("mood", "u1")
	if _, ok := c.Get("mood", "u1"); ok {
		t.Error("expected u1 invalidated")
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 2 {
		t.Errorf("expected 1 hit 2 misses, got %d %d", hits, misses)
	}
}

func TestKindsAreScoped(t *testing.T) {
	c := New()
	c.Set("mood", "u1", "m")
	c.Set("intimacy", "u1", "i")

	if v, _ := c.Get("intimacy", "u1"); v != "i" {
		t.Errorf("expected kinds to be independent, got %v", v)
	}

	c.Clear("mood")
	if _, ok := c.Get("mood", "u1"); ok {
		t.Error("expected mood cleared")
	}
	if _, ok := c.Get("intimacy", "u1"); !ok {
		t.Error("expected intimacy kept")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d", c.Len())
	}
}

func TestInvalidatePrefix(t *testing.T) {
	c := New()
	c.Set("loop", "u1/a", 1)
	c.Set("loop", "u1/b", 1)
	c.Set("loop", "u2/a", 1)

	c.InvalidatePrefix("loop", "u1/")
	if c.Len() != 1 {
		t.Errorf("expected 1 entry left, got %d", c.Len())
	}
}

func TestEntriesByPrefix(t *testing.T) {
	c := New()
	c.Set("loop", "u1/a", 1)
	c.Set("loop", "u1/b", 2)
	c.Set("loop", "u10/a", 3)
	c.Set("thread", "u1/a", 4)

	got := c.Entries("loop", "u1/")
	if len(got) != 2 || got["u1/a"] != 1 || got["u1/b"] != 2 {
		t.Errorf("expected u1 loop entries only, got %v", got)
	}
	if hits, misses := c.Stats(); hits != 0 || misses != 0 {
		t.Errorf("expected Entries not to count lookups, got %d %d", hits, misses)
	}
}
