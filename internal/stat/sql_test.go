package stat

import (
	"errors"
	"testing"
	"time"
)

func TestHistogramBuckets(t *testing.T) {
	var h Histogram
	h.record(0)
	h.record(5 * time.Millisecond)
	h.record(50 * time.Millisecond)
	h.record(2000 * time.Second)

	want := Histogram{1, 1, 1, 0, 0, 0, 0, 1}
	if h != want {
		t.Errorf("histogram = %v, want %v", h, want)
	}
}

func TestSQLStoreBeginEnd(t *testing.T) {
	s := NewSQLStore(10)

	a := s.Begin("SELECT ?")
	b := s.Begin("SELECT ?")
	a.End(3, nil, time.Hour)
	if _, slow := b.End(-1, errors.New("boom"), time.Nanosecond); !slow {
		t.Error("expected second execution to be slow")
	}

	snap := s.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("len(snapshot) = %d, want 1", len(snap))
	}
	got := snap[0]
	if got.ExecuteCount != 2 {
		t.Errorf("ExecuteCount = %d, want 2", got.ExecuteCount)
	}
	if got.ErrorCount != 1 || got.LastError != "boom" {
		t.Errorf("ErrorCount = %d LastError = %q", got.ErrorCount, got.LastError)
	}
	if got.SlowCount != 1 {
		t.Errorf("SlowCount = %d, want 1", got.SlowCount)
	}
	if got.ConcurrentMax != 2 {
		t.Errorf("ConcurrentMax = %d, want 2", got.ConcurrentMax)
	}
	if got.RunningCount != 0 {
		t.Errorf("RunningCount = %d, want 0", got.RunningCount)
	}
	if got.EffectedRowCount != 3 {
		t.Errorf("EffectedRowCount = %d, want 3", got.EffectedRowCount)
	}
	if got.LastTime.IsZero() {
		t.Error("LastTime not set")
	}
}

func TestSQLStoreEvictsLeastRecentlyUsed(t *testing.T) {
	s := NewSQLStore(2)
	s.Begin("a").End(0, nil, 0)
	s.Begin("b").End(0, nil, 0)
	s.Begin("a").End(0, nil, 0)
	s.Begin("c").End(0, nil, 0)

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	seen := map[string]bool{}
	for _, st := range s.Snapshot() {
		seen[st.SQL] = true
	}
	if seen["b"] || !seen["a"] || !seen["c"] {
		t.Errorf("unexpected entries after eviction: %v", seen)
	}
}

func TestSQLStoreReset(t *testing.T) {
	s := NewSQLStore(0)
	s.Begin("x").End(0, nil, 0)
	s.Reset()
	if s.Len() != 0 {
		t.Errorf("Len() after Reset = %d", s.Len())
	}
}

func TestGlobalIsShared(t *testing.T) {
	if Global() != Global() {
		t.Error("Global() returned different stores")
	}
}

func TestWebStore(t *testing.T) {
	w := NewWebStore(0)
	w.Begin("/a").End(200)
	w.Begin("/a").End(503)
	w.Begin("/b").End(404)

	snap := w.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len(snapshot) = %d, want 2", len(snap))
	}
	// most recently used first
	if snap[0].URI != "/b" {
		t.Errorf("first URI = %q, want /b", snap[0].URI)
	}
	a := snap[1]
	if a.RequestCount != 2 || a.ErrorCount != 1 {
		t.Errorf("/a stats = %+v", a)
	}

	w.Reset()
	if len(w.Snapshot()) != 0 {
		t.Error("snapshot not empty after Reset")
	}
}
