package control

import (
	"sync"

	"github.com/postalsys/echoprobe/internal/health"
)

// DefaultHistorySize is the number of results kept when none is given.
const DefaultHistorySize = 20

// History keeps the most recent probe results in a fixed-size ring.
type History struct {
	mu    sync.Mutex
	items []health.ProbeResult
	next  int
	full  bool
}

// NewHistory creates a history holding up to size results.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{items: make([]health.ProbeResult, size)}
}

// Add records a result, evicting the oldest when full.
func (h *History) Add(res health.ProbeResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items[h.next] = res
	h.next++
	if h.next == len(h.items) {
		h.next = 0
		h.full = true
	}
}

// Recent returns the stored results, oldest first.
func (h *History) Recent() []health.ProbeResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.full {
		return append([]health.ProbeResult(nil), h.items[:h.next]...)
	}
	out := make([]health.ProbeResult, 0, len(h.items))
	out = append(out, h.items[h.next:]...)
	return append(out, h.items[:h.next]...)
}
