package api

import "sync"

// recentEvents is a fixed-size ring of edge event ids already fed to the
// debouncer. A zero size disables it.
type recentEvents struct {
	mu   sync.Mutex
	buf  []int64
	used []bool
	next int
}

func newRecentEvents(size int) *recentEvents {
	if size <= 0 {
		return &recentEvents{}
	}
	return &recentEvents{buf: make([]int64, size), used: make([]bool, size)}
}

// seenRecently records id and reports whether it was already in the ring.
func (r *recentEvents) seenRecently(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buf) == 0 {
		return false
	}
	for i, v := range r.buf {
		if r.used[i] && v == id {
			return true
		}
	}

	r.buf[r.next] = id
	r.used[r.next] = true
	r.next = (r.next + 1) % len(r.buf)
	return false
}
