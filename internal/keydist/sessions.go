package keydist

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/streamcore/internal/streamid"
)

// MemorySessions is a SessionStore held in memory.
type MemorySessions struct {
	mu  sync.Mutex
	ids map[streamid.ID][]string
}

// NewMemorySessions creates an empty store.
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{ids: make(map[streamid.ID][]string)}
}

// Add records sessions for id. Known ids are not duplicated.
func (s *MemorySessions) Add(id streamid.ID, sessionIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := append(s.ids[id], sessionIDs...)
	slices.Sort(merged)
	s.ids[id] = slices.Compact(merged)
}

// SessionIDs implements SessionStore.
func (s *MemorySessions) SessionIDs(_ context.Context, id streamid.ID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ids[id]), nil
}
