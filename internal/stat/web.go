package stat

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultWebMaxSize bounds the number of distinct request URIs tracked.
const DefaultWebMaxSize = 5000

// URIStat is a snapshot of the statistics for one request URI.
type URIStat struct {
	URI             string    `json:"URI"`
	RequestCount    int64     `json:"RequestCount"`
	ErrorCount      int64     `json:"ErrorCount"` // 5xx responses
	TotalTimeMillis int64     `json:"RequestTimeMillis"`
	MaxTimespan     int64     `json:"RequestTimeMillisMax"`
	RunningCount    int64     `json:"RunningCount"`
	ConcurrentMax   int64     `json:"ConcurrentMax"`
	Histogram       Histogram `json:"Histogram"`
	LastAccessTime  time.Time `json:"LastAccessTime"`
}

type uriEntry struct {
	mu sync.Mutex
	s  URIStat
}

// WebStore tracks request statistics per URI in an LRU bounded map.
type WebStore struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *uriEntry]
}

// NewWebStore creates a store holding at most maxSize URIs. A non-positive
// size means DefaultWebMaxSize.
func NewWebStore(maxSize int) *WebStore {
	if maxSize <= 0 {
		maxSize = DefaultWebMaxSize
	}
	entries, _ := lru.New[string, *uriEntry](maxSize)
	return &WebStore{entries: entries}
}

// Request is an in-flight request started with Begin.
type Request struct {
	entry *uriEntry
	start time.Time
}

// Begin records the start of a request to uri.
func (w *WebStore) Begin(uri string) *Request {
	w.mu.Lock()
	e, ok := w.entries.Get(uri)
	if !ok {
		e = &uriEntry{s: URIStat{URI: uri}}
		w.entries.Add(uri, e)
	}
	w.mu.Unlock()

	e.mu.Lock()
	e.s.RunningCount++
	if e.s.RunningCount > e.s.ConcurrentMax {
		e.s.ConcurrentMax = e.s.RunningCount
	}
	e.s.LastAccessTime = time.Now()
	e.mu.Unlock()
	return &Request{entry: e, start: time.Now()}
}

// End finishes the request with the response status code.
func (r *Request) End(status int) {
	elapsed := time.Since(r.start)
	e := r.entry
	e.mu.Lock()
	defer e.mu.Unlock()

	e.s.RunningCount--
	e.s.RequestCount++
	ms := elapsed.Milliseconds()
	e.s.TotalTimeMillis += ms
	if ms > e.s.MaxTimespan {
		e.s.MaxTimespan = ms
	}
	if status >= 500 {
		e.s.ErrorCount++
	}
	e.s.Histogram.record(elapsed)
}

// Snapshot returns a copy of every tracked URI, most recently used first.
func (w *WebStore) Snapshot() []URIStat {
	w.mu.Lock()
	entries := w.entries.Values()
	w.mu.Unlock()

	out := make([]URIStat, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		e.mu.Lock()
		out = append(out, e.s)
		e.mu.Unlock()
	}
	return out
}

// Reset drops every entry.
func (w *WebStore) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries.Purge()
}
