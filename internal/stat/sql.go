// Package stat holds the in-memory statistics the data source and the web
// stat filter record, and the stat view console reads.
package stat

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSQLMaxSize bounds the number of distinct SQL texts tracked per store.
const DefaultSQLMaxSize = 1000

// histogramBounds are the upper bounds, in milliseconds, of the timing
// buckets. A final bucket catches everything slower.
var histogramBounds = [...]int64{1, 10, 100, 1000, 10000, 100000, 1000000}

// Histogram counts observations per timing bucket.
type Histogram [len(histogramBounds) + 1]int64

func (h *Histogram) record(d time.Duration) {
	ms := d.Milliseconds()
	for i, bound := range histogramBounds {
		if ms < bound {
			h[i]++
			return
		}
	}
	h[len(histogramBounds)]++
}

// SQLStat is a snapshot of the statistics for one SQL text.
type SQLStat struct {
	SQL              string    `json:"SQL"`
	ExecuteCount     int64     `json:"ExecuteCount"`
	ErrorCount       int64     `json:"ErrorCount"`
	SlowCount        int64     `json:"SlowCount"`
	TotalTimeMillis  int64     `json:"TotalTime"`
	MaxTimespan      int64     `json:"MaxTimespan"`
	RunningCount     int64     `json:"RunningCount"`
	ConcurrentMax    int64     `json:"ConcurrentMax"`
	EffectedRowCount int64     `json:"EffectedRowCount"`
	Histogram        Histogram `json:"Histogram"`
	LastTime         time.Time `json:"LastTime"`
	LastError        string    `json:"LastError,omitempty"`
}

type sqlEntry struct {
	mu sync.Mutex
	s  SQLStat
}

// SQLStore tracks SQL statistics in an LRU bounded map.
type SQLStore struct {
	mu      sync.Mutex // serializes get-or-create
	entries *lru.Cache[string, *sqlEntry]
}

// NewSQLStore creates a store holding at most maxSize SQL texts. A
// non-positive size means DefaultSQLMaxSize.
func NewSQLStore(maxSize int) *SQLStore {
	if maxSize <= 0 {
		maxSize = DefaultSQLMaxSize
	}
	entries, _ := lru.New[string, *sqlEntry](maxSize)
	return &SQLStore{entries: entries}
}

var (
	globalOnce sync.Once
	globalSQL  *SQLStore
)

// Global returns the process wide store shared by every data source that
// enables global statistics.
func Global() *SQLStore {
	globalOnce.Do(func() { globalSQL = NewSQLStore(DefaultSQLMaxSize) })
	return globalSQL
}

// Execution is an in-flight statement started with Begin.
type Execution struct {
	entry *sqlEntry
	start time.Time
}

// Begin records the start of sql and returns a handle to finish it with.
func (s *SQLStore) Begin(sql string) *Execution {
	s.mu.Lock()
	e, ok := s.entries.Get(sql)
	if !ok {
		e = &sqlEntry{s: SQLStat{SQL: sql}}
		s.entries.Add(sql, e)
	}
	s.mu.Unlock()

	e.mu.Lock()
	e.s.RunningCount++
	if e.s.RunningCount > e.s.ConcurrentMax {
		e.s.ConcurrentMax = e.s.RunningCount
	}
	e.mu.Unlock()
	return &Execution{entry: e, start: time.Now()}
}

// End finishes the execution. rows is the affected row count (or -1 when
// unknown). An execution taking at least slowThreshold counts as slow; a
// zero threshold disables the slow count.
func (x *Execution) End(rows int64, err error, slowThreshold time.Duration) (elapsed time.Duration, slow bool) {
	elapsed = time.Since(x.start)
	slow = slowThreshold > 0 && elapsed >= slowThreshold
	e := x.entry
	e.mu.Lock()
	defer e.mu.Unlock()

	e.s.RunningCount--
	e.s.ExecuteCount++
	e.s.TotalTimeMillis += elapsed.Milliseconds()
	if ms := elapsed.Milliseconds(); ms > e.s.MaxTimespan {
		e.s.MaxTimespan = ms
	}
	if rows > 0 {
		e.s.EffectedRowCount += rows
	}
	if err != nil {
		e.s.ErrorCount++
		e.s.LastError = err.Error()
	}
	if slow {
		e.s.SlowCount++
	}
	e.s.Histogram.record(elapsed)
	e.s.LastTime = time.Now()
	return elapsed, slow
}

// Snapshot returns a copy of every tracked entry, most recently used first.
func (s *SQLStore) Snapshot() []SQLStat {
	s.mu.Lock()
	entries := s.entries.Values()
	s.mu.Unlock()

	out := make([]SQLStat, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		e.mu.Lock()
		out = append(out, e.s)
		e.mu.Unlock()
	}
	return out
}

// Len returns the number of tracked SQL texts.
func (s *SQLStore) Len() int { return s.entries.Len() }

// Reset drops every entry.
func (s *SQLStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Purge()
}
