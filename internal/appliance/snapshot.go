package appliance

import "sync"

// Snapshot holds the last state document received from the board.
//
// The board publishes complete state reports (every pin it knows about),
// so each received document replaces the whole mapping: last write wins,
// with no history and no timestamps. The board may also report unsolicited
// updates that do not correspond to any command this service issued.
//
// All access is synchronized; the snapshot is read by request handlers
// while the relay's consumer goroutine writes it.
type Snapshot struct {
	mu   sync.RWMutex
	pins map[string]string
}

// NewSnapshot returns an empty snapshot. An empty snapshot is
// indistinguishable from one that received an empty state report.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		pins: make(map[string]string),
	}
}

// Replace swaps in a new state mapping. The input is copied, so callers
// may reuse the map afterwards.
func (s *Snapshot) Replace(pins map[string]string) {
	next := make(map[string]string, len(pins))
	for k, v := range pins {
		next[k] = v
	}

	s.mu.Lock()
	s.pins = next
	s.mu.Unlock()
}

// Pins returns a copy of the current state mapping.
func (s *Snapshot) Pins() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.pins))
	for k, v := range s.pins {
		out[k] = v
	}
	return out
}

// Pin returns the last reported state for a single pin, or "" if the
// pin has never been reported.
func (s *Snapshot) Pin(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pins[name]
}
