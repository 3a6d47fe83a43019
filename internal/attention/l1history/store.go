package l1history

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Store holds one Ring per agent. Rings are created on first push with the
// capacity fixed at construction, so an agent's capacity never changes.
//
// The map itself is guarded by mu; each Ring is owned by whichever caller is
// processing that agent, so concurrent pushes for distinct agents are safe.
type Store struct {
	mu       sync.RWMutex
	rings    map[AgentID]*Ring
	capacity int
}

// NewStore creates a store whose rings hold capacity samples each.
func NewStore(capacity int) *Store {
	return &Store{
		rings:    make(map[AgentID]*Ring),
		capacity: capacity,
	}
}

// CapacityFor returns the ring capacity for a history window sampled at the
// given interval, e.g. 2s at 33ms gives 62 samples.
func CapacityFor(window, interval time.Duration) int {
	if interval <= 0 {
		return 2
	}
	n := int(math.Ceil(float64(window)/float64(interval))) + 1
	if n < 2 {
		n = 2
	}
	return n
}

// Capacity returns the per-agent ring capacity.
func (s *Store) Capacity() int {
	return s.capacity
}

// Ensure creates the ring for agent if it does not exist yet. Callers that
// push from several goroutines call Ensure for every agent first.
func (s *Store) Ensure(agent AgentID) *Ring {
	s.mu.RLock()
	r, ok := s.rings[agent]
	s.mu.RUnlock()
	if ok {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok = s.rings[agent]; ok {
		return r
	}
	r = NewRing(s.capacity)
	s.rings[agent] = r
	return r
}

// Push appends a sample to the agent's ring, evicting the oldest if full.
// Returns false if the sample was rejected for not advancing time.
func (s *Store) Push(agent AgentID, sample PoseSample) bool {
	return s.Ensure(agent).Add(sample)
}

func (s *Store) ring(agent AgentID) *Ring {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rings[agent]
}

// Window returns the agent's samples within the trailing duration (seconds),
// oldest first. Unknown agents yield an empty slice.
func (s *Store) Window(agent AgentID, duration float64) []PoseSample {
	r := s.ring(agent)
	if r == nil {
		return nil
	}
	return r.Window(duration)
}

// Latest returns the most recent sample for the agent.
func (s *Store) Latest(agent AgentID) (PoseSample, bool) {
	r := s.ring(agent)
	if r == nil || r.Size() == 0 {
		return PoseSample{}, false
	}
	return r.Previous(1), true
}

// Len returns the number of samples held for the agent.
func (s *Store) Len(agent AgentID) int {
	r := s.ring(agent)
	if r == nil {
		return 0
	}
	return r.Size()
}

// Agents returns the agents with a ring, sorted for deterministic iteration.
func (s *Store) Agents() []AgentID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AgentID, 0, len(s.rings))
	for id := range s.rings {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clear drops history for one agent.
func (s *Store) Clear(agent AgentID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rings, agent)
}

// ClearAll drops history for every agent.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rings = make(map[AgentID]*Ring)
}
