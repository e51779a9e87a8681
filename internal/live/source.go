// Package live implements observable query results.
//
// A Source is bumped after every committed write. Queries subscribed to it
// re-run their fetch function and emit the fresh snapshot. Every stream has
// latest-value semantics: a slow consumer skips intermediate snapshots but
// never receives an older snapshot after a newer one.
package live

import "sync"

// Source fans out change notifications to the currently open watches.
type Source struct {
	mu       sync.Mutex
	version  uint64
	watchers map[chan struct{}]struct{}
}

func NewSource() *Source {
	return &Source{watchers: make(map[chan struct{}]struct{})}
}

// Notify signals every watcher that the underlying data changed.
// Ticks are coalesced: a watcher that has not consumed the previous tick
// receives a single pending tick.
func (s *Source) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	for ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Version returns the number of notifications sent so far.
func (s *Source) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Watchers returns how many watches are currently attached.
func (s *Source) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

func (s *Source) watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, ch)
			s.mu.Unlock()
		})
	}
}
