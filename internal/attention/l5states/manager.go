package l5states

import (
	"math"
	"sort"
	"sync"

	"github.com/banshee-data/attention.report/internal/attention/l1history"
	"github.com/banshee-data/attention.report/internal/attention/l2volumes"
	"github.com/banshee-data/attention.report/internal/attention/l4detect"
)

type pairSlot struct {
	agent    int
	observer int

	activeMask l4detect.StateMask
	start      [l4detect.NumStates]float64

	completed [l4detect.NumStates][]int32 // indices into Manager.completed
	points    [l4detect.NumStates][]int32 // indices into Manager.points

	firstNoticed, firstEntered float64
	hasNoticed, hasEntered     bool
}

type observerAgg struct {
	states  [l4detect.NumStates]StateStats
	agents  map[int]struct{}
	noticed int
	entered int
	n2eSum  float64
	n2eN    int
}

type agentSpan struct {
	first, last float64
}

type pairRef struct {
	agent, observer int
}

// Manager owns all active states and completed events. It is safe for
// concurrent readers with a single writer.
type Manager struct {
	mu sync.RWMutex

	agentIdx map[l1history.AgentID]int
	agents   []l1history.AgentID
	spans    []agentSpan

	observerIdx map[l2volumes.ObserverID]int
	observers   []l2volumes.ObserverID
	aggs        []*observerAgg

	pairIdx map[pairRef]int
	pairs   []*pairSlot

	completed []CompletedEvent
	points    []PointEvent

	version uint64
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	m := &Manager{}
	m.reset()
	return m
}

func (m *Manager) reset() {
	m.agentIdx = make(map[l1history.AgentID]int)
	m.agents = nil
	m.spans = nil
	m.observerIdx = make(map[l2volumes.ObserverID]int)
	m.observers = nil
	m.aggs = nil
	m.pairIdx = make(map[pairRef]int)
	m.pairs = nil
	m.completed = nil
	m.points = nil
}

// Reset drops every active state without completing it and clears all
// events. Calling it repeatedly yields the same empty state.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	m.version++
}

// Version increases on every mutation. Readers use it to detect staleness.
func (m *Manager) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

func (m *Manager) agentSlot(id l1history.AgentID) int {
	if i, ok := m.agentIdx[id]; ok {
		return i
	}
	i := len(m.agents)
	m.agentIdx[id] = i
	m.agents = append(m.agents, id)
	m.spans = append(m.spans, agentSpan{first: math.NaN()})
	return i
}

func (m *Manager) observerSlot(id l2volumes.ObserverID) int {
	if i, ok := m.observerIdx[id]; ok {
		return i
	}
	i := len(m.observers)
	m.observerIdx[id] = i
	m.observers = append(m.observers, id)
	m.aggs = append(m.aggs, &observerAgg{agents: make(map[int]struct{})})
	return i
}

func (m *Manager) lookupPair(agent l1history.AgentID, observer l2volumes.ObserverID) *pairSlot {
	a, ok := m.agentIdx[agent]
	if !ok {
		return nil
	}
	o, ok := m.observerIdx[observer]
	if !ok {
		return nil
	}
	p, ok := m.pairIdx[pairRef{a, o}]
	if !ok {
		return nil
	}
	return m.pairs[p]
}

func (m *Manager) lookupAgg(observer l2volumes.ObserverID) *observerAgg {
	o, ok := m.observerIdx[observer]
	if !ok {
		return nil
	}
	return m.aggs[o]
}

// Observe records that agent was sampled at t.
func (m *Manager) Observe(agent l1history.AgentID, t float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.agentSlot(agent)
	s := &m.spans[a]
	if math.IsNaN(s.first) {
		s.first, s.last = t, t
		return
	}
	if t > s.last {
		s.last = t
	}
}

// Apply feeds one tick's detector mask for (agent, observer) at time t and
// returns the events it produced. A zero mask for a pair never seen before
// is a no-op.
func (m *Manager) Apply(agent l1history.AgentID, observer l2volumes.ObserverID, mask l4detect.StateMask, t float64) ([]CompletedEvent, []PointEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.lookupPair(agent, observer)
	if p == nil {
		if mask == 0 {
			return nil, nil
		}
		a, o := m.agentSlot(agent), m.observerSlot(observer)
		m.pairIdx[pairRef{a, o}] = len(m.pairs)
		p = &pairSlot{agent: a, observer: o}
		m.pairs = append(m.pairs, p)
	}
	if mask == 0 && p.activeMask == 0 {
		return nil, nil
	}

	agg := m.aggs[p.observer]
	var done []CompletedEvent
	var pts []PointEvent
	opened := false

	for i := 0; i < l4detect.NumStates; i++ {
		s := l4detect.StateType(i)
		on := mask.Has(s)
		key := DetectionKey{Agent: agent, Observer: observer, State: s}
		st := &agg.states[s]

		if s.Shape() == l4detect.ShapePoint {
			if !on {
				continue
			}
			ev := PointEvent{Key: key, Time: t}
			p.points[s] = append(p.points[s], int32(len(m.points)))
			m.points = append(m.points, ev)
			st.Count++
			agg.agents[p.agent] = struct{}{}
			m.notePoint(p, agg, s, t)
			pts = append(pts, ev)
			continue
		}

		active := p.activeMask.Has(s)
		switch {
		case on && !active:
			p.activeMask = p.activeMask.With(s)
			p.start[s] = t
			opened = true
			st.Active++
			if st.Active > st.PeakConcurrent {
				st.PeakConcurrent = st.Active
			}
		case !on && active:
			p.activeMask &^= 1 << s
			ev := CompletedEvent{
				Key:      key,
				Start:    p.start[s],
				End:      t,
				Duration: math.Max(0, t-p.start[s]),
			}
			p.completed[s] = append(p.completed[s], int32(len(m.completed)))
			m.completed = append(m.completed, ev)
			st.Active--
			st.Count++
			st.TotalDuration += ev.Duration
			if ev.Duration > st.MaxDuration {
				st.MaxDuration = ev.Duration
			}
			agg.agents[p.agent] = struct{}{}
			done = append(done, ev)
		}
	}

	if opened || len(done) > 0 || len(pts) > 0 {
		m.version++
	}
	return done, pts
}

// notePoint maintains first-noticed/first-entered times and the running
// notice-to-enter sum.
func (m *Manager) notePoint(p *pairSlot, agg *observerAgg, s l4detect.StateType, t float64) {
	switch s {
	case l4detect.Noticed:
		if p.hasNoticed {
			return
		}
		p.hasNoticed, p.firstNoticed = true, t
		agg.noticed++
	case l4detect.Entered:
		if p.hasEntered {
			return
		}
		p.hasEntered, p.firstEntered = true, t
		agg.entered++
	default:
		return
	}
	if p.hasNoticed && p.hasEntered {
		agg.n2eSum += p.firstEntered - p.firstNoticed
		agg.n2eN++
	}
}

// RawEvents returns the point events for a key in insertion order.
func (m *Manager) RawEvents(agent l1history.AgentID, observer l2volumes.ObserverID, s l4detect.StateType) []PointEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := m.lookupPair(agent, observer)
	if p == nil || !s.Valid() {
		return nil
	}
	out := make([]PointEvent, len(p.points[s]))
	for i, idx := range p.points[s] {
		out[i] = m.points[idx]
	}
	return out
}

// ProcessedEvents returns the completed duration events for a key in
// insertion order.
func (m *Manager) ProcessedEvents(agent l1history.AgentID, observer l2volumes.ObserverID, s l4detect.StateType) []CompletedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := m.lookupPair(agent, observer)
	if p == nil || !s.Valid() {
		return nil
	}
	out := make([]CompletedEvent, len(p.completed[s]))
	for i, idx := range p.completed[s] {
		out[i] = m.completed[idx]
	}
	return out
}

func (m *Manager) stats(observer l2volumes.ObserverID, s l4detect.StateType) StateStats {
	if !s.Valid() {
		return StateStats{}
	}
	agg := m.lookupAgg(observer)
	if agg == nil {
		return StateStats{}
	}
	return agg.states[s]
}

// StateCount returns how many events of state s the observer has: completed
// events for duration states, point events for point states.
func (m *Manager) StateCount(observer l2volumes.ObserverID, s l4detect.StateType) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats(observer, s).Count
}

// AverageDuration returns the mean completed duration of s on the observer.
func (m *Manager) AverageDuration(observer l2volumes.ObserverID, s l4detect.StateType) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats(observer, s).AverageDuration()
}

// CurrentActiveCount returns how many agents currently hold s on the observer.
func (m *Manager) CurrentActiveCount(observer l2volumes.ObserverID, s l4detect.StateType) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats(observer, s).Active
}

// PointEventCount returns the number of point events of s on the observer;
// zero for duration states.
func (m *Manager) PointEventCount(observer l2volumes.ObserverID, s l4detect.StateType) int {
	if s.Shape() != l4detect.ShapePoint {
		return 0
	}
	return m.StateCount(observer, s)
}

// HasNoticed reports whether agent has ever noticed the observer.
func (m *Manager) HasNoticed(agent l1history.AgentID, observer l2volumes.ObserverID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := m.lookupPair(agent, observer)
	return p != nil && p.hasNoticed
}

// HasEntered reports whether agent has ever entered the observer.
func (m *Manager) HasEntered(agent l1history.AgentID, observer l2volumes.ObserverID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := m.lookupPair(agent, observer)
	return p != nil && p.hasEntered
}

// NoticeToEnterTime returns first entered minus first noticed. It is
// negative when the agent entered before noticing. ok is false if either is
// missing.
func (m *Manager) NoticeToEnterTime(agent l1history.AgentID, observer l2volumes.ObserverID) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := m.lookupPair(agent, observer)
	if p == nil || !p.hasNoticed || !p.hasEntered {
		return 0, false
	}
	return p.firstEntered - p.firstNoticed, true
}

// GlobalStateCount is StateCount on the global pseudo-observer.
func (m *Manager) GlobalStateCount(s l4detect.StateType) int {
	return m.StateCount(GlobalObserver, s)
}

// GlobalMaxDuration returns the longest completed s across all observers.
func (m *Manager) GlobalMaxDuration(s l4detect.StateType) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats(GlobalObserver, s).MaxDuration
}

// AverageSimulationTime returns the mean span between each agent's first and
// last observed sample.
func (m *Manager) AverageSimulationTime() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.spans) == 0 {
		return 0
	}
	var sum float64
	var n int
	for _, s := range m.spans {
		if math.IsNaN(s.first) {
			continue
		}
		sum += s.last - s.first
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// AgentsForObserver lists the distinct agents with at least one event on the
// observer, sorted.
func (m *Manager) AgentsForObserver(observer l2volumes.ObserverID) []l1history.AgentID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agg := m.lookupAgg(observer)
	if agg == nil {
		return nil
	}
	out := make([]l1history.AgentID, 0, len(agg.agents))
	for a := range agg.agents {
		out = append(out, m.agents[a])
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Stats returns a copy of the observer's aggregates.
func (m *Manager) Stats(observer l2volumes.ObserverID) ObserverStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agg := m.lookupAgg(observer)
	if agg == nil {
		return ObserverStats{}
	}
	return ObserverStats{
		States:             agg.states,
		Agents:             len(agg.agents),
		NoticedAgents:      agg.noticed,
		EnteredAgents:      agg.entered,
		NoticeToEnterSum:   agg.n2eSum,
		NoticeToEnterCount: agg.n2eN,
	}
}

// AgentCount returns the number of agents ever observed.
func (m *Manager) AgentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}

// Observers lists every observer with at least one pair, sorted.
func (m *Manager) Observers() []l2volumes.ObserverID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]l2volumes.ObserverID(nil), m.observers...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Active lists the open duration states ordered by key.
func (m *Manager) Active() []ActiveState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ActiveState
	for _, p := range m.pairs {
		for _, s := range p.activeMask.States() {
			out = append(out, ActiveState{
				Key:   DetectionKey{Agent: m.agents[p.agent], Observer: m.observers[p.observer], State: s},
				Start: p.start[s],
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessKey(out[i].Key, out[j].Key) })
	return out
}

func lessKey(a, b DetectionKey) bool {
	if a.Agent != b.Agent {
		return a.Agent < b.Agent
	}
	if a.Observer != b.Observer {
		return a.Observer < b.Observer
	}
	return a.State < b.State
}

// Completed returns the completed events matching f in emission order.
func (m *Manager) Completed(f Filter) []CompletedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []CompletedEvent
	for _, ev := range m.completed {
		if f.Match(ev.Key) {
			out = append(out, ev)
		}
	}
	return out
}

// Points returns the point events matching f in emission order.
func (m *Manager) Points(f Filter) []PointEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PointEvent
	for _, ev := range m.points {
		if f.Match(ev.Key) {
			out = append(out, ev)
		}
	}
	return out
}

// Durations returns the completed durations of s on the observer, grouped
// by pair.
func (m *Manager) Durations(observer l2volumes.ObserverID, s l4detect.StateType) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.observerIdx[observer]
	if !ok || !s.Valid() {
		return nil
	}
	var out []float64
	for _, p := range m.pairs {
		if p.observer != o {
			continue
		}
		for _, idx := range p.completed[s] {
			out = append(out, m.completed[idx].Duration)
		}
	}
	return out
}
