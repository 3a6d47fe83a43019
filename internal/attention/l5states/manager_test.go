package l5states

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/attention.report/internal/attention/l4detect"
)

var (
	occupy  = l4detect.MaskOf(l4detect.Occupy)
	entered = l4detect.MaskOf(l4detect.Occupy, l4detect.Entered)
)

func TestApply_OccupyScenario(t *testing.T) {
	t.Parallel()
	m := NewManager()

	// Outside until 2.0, inside through 5.4, outside from 5.5.
	for i := 0; i <= 60; i++ {
		ts := float64(i) / 10
		var mask l4detect.StateMask
		switch {
		case i == 20:
			mask = entered
		case i > 20 && i < 55:
			mask = occupy
		}
		m.Observe("a1", ts)
		m.Apply("a1", "box", mask, ts)
	}

	raw := m.RawEvents("a1", "box", l4detect.Entered)
	require.Len(t, raw, 1)
	assert.Equal(t, 2.0, raw[0].Time)

	done := m.ProcessedEvents("a1", "box", l4detect.Occupy)
	require.Len(t, done, 1)
	assert.Equal(t, 2.0, done[0].Start)
	assert.Equal(t, 5.5, done[0].End)
	assert.InDelta(t, 3.5, done[0].Duration, 1e-9)

	assert.Equal(t, 1, m.StateCount("box", l4detect.Occupy))
	assert.Equal(t, 1, m.PointEventCount("box", l4detect.Entered))
	assert.Equal(t, 0, m.PointEventCount("box", l4detect.Occupy), "duration states have no point count")
	assert.True(t, m.HasEntered("a1", "box"))
	assert.False(t, m.HasNoticed("a1", "box"))
	assert.Equal(t, 0, m.CurrentActiveCount("box", l4detect.Occupy))
	assert.InDelta(t, 6.0, m.AverageSimulationTime(), 1e-9)
}

func TestApply_FocusClosesOnScan(t *testing.T) {
	t.Parallel()
	m := NewManager()
	focus := l4detect.MaskOf(l4detect.Focus, l4detect.Occupy)
	scan := l4detect.MaskOf(l4detect.Scan, l4detect.Occupy)

	m.Apply("a", "room", l4detect.MaskOf(l4detect.Occupy), 0.0)
	m.Apply("a", "room", focus, 0.2)
	m.Apply("a", "room", focus, 0.4)
	done, _ := m.Apply("a", "room", scan, 0.5)

	require.Len(t, done, 1)
	assert.Equal(t, l4detect.Focus, done[0].Key.State)
	assert.Equal(t, 0.2, done[0].Start)
	assert.Equal(t, 0.5, done[0].End)
	assert.InDelta(t, 0.3, done[0].Duration, 1e-9)

	active := m.Active()
	require.Len(t, active, 2)
	assert.Equal(t, l4detect.Scan, active[0].Key.State)
	assert.Equal(t, 0.5, active[0].Start)
	assert.Equal(t, l4detect.Occupy, active[1].Key.State)
}

func TestApply_AtMostOneActivePerKey(t *testing.T) {
	t.Parallel()
	m := NewManager()
	mask := l4detect.MaskOf(l4detect.Pause)
	for i := 0; i < 10; i++ {
		m.Apply("a", "o", mask, float64(i))
	}
	assert.Len(t, m.Active(), 1)
	assert.Equal(t, 1, m.CurrentActiveCount("o", l4detect.Pause))
	assert.Empty(t, m.Completed(Filter{}))
}

func TestApply_PointEventsEveryEdge(t *testing.T) {
	t.Parallel()
	m := NewManager()
	noticed := l4detect.MaskOf(l4detect.Noticed)

	m.Apply("a", "o", noticed, 1)
	m.Apply("a", "o", 0, 2)
	m.Apply("a", "o", noticed, 3)

	raw := m.RawEvents("a", "o", l4detect.Noticed)
	require.Len(t, raw, 2)
	assert.Equal(t, 1.0, raw[0].Time)
	assert.Equal(t, 3.0, raw[1].Time)
	assert.Empty(t, m.Active(), "point states never become active")
}

func TestNoticeToEnterTime(t *testing.T) {
	t.Parallel()
	m := NewManager()

	_, ok := m.NoticeToEnterTime("a", "o")
	assert.False(t, ok)

	m.Apply("a", "o", l4detect.MaskOf(l4detect.Noticed), 1.5)
	_, ok = m.NoticeToEnterTime("a", "o")
	assert.False(t, ok, "entered still missing")

	m.Apply("a", "o", l4detect.MaskOf(l4detect.Entered, l4detect.Occupy), 4.0)
	m.Apply("a", "o", l4detect.MaskOf(l4detect.Noticed), 5.0)
	d, ok := m.NoticeToEnterTime("a", "o")
	require.True(t, ok)
	assert.InDelta(t, 2.5, d, 1e-9, "first occurrences only")

	m.Apply("b", "o", l4detect.MaskOf(l4detect.Entered, l4detect.Occupy), 1.0)
	m.Apply("b", "o", l4detect.MaskOf(l4detect.Noticed, l4detect.Occupy), 2.0)
	d, ok = m.NoticeToEnterTime("b", "o")
	require.True(t, ok)
	assert.InDelta(t, -1.0, d, 1e-9)

	st := m.Stats("o")
	assert.Equal(t, 2, st.NoticeToEnterCount)
	assert.InDelta(t, 1.5, st.NoticeToEnterSum, 1e-9)
	assert.Equal(t, 2, st.NoticedAgents)
	assert.Equal(t, 2, st.EnteredAgents)
}

func TestAggregates(t *testing.T) {
	t.Parallel()
	m := NewManager()
	pause := l4detect.MaskOf(l4detect.Pause)

	m.Apply("a", "o", pause, 0)
	m.Apply("b", "o", pause, 1)
	assert.Equal(t, 2, m.CurrentActiveCount("o", l4detect.Pause))

	m.Apply("a", "o", 0, 2) // 2s
	m.Apply("b", "o", 0, 5) // 4s
	m.Apply("a", GlobalObserver, pause, 0)
	m.Apply("a", GlobalObserver, 0, 7)

	st := m.Stats("o").States[l4detect.Pause]
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, 2, st.PeakConcurrent)
	assert.Equal(t, 0, st.Active)
	assert.InDelta(t, 3.0, m.AverageDuration("o", l4detect.Pause), 1e-9)
	assert.Equal(t, 4.0, st.MaxDuration)
	assert.ElementsMatch(t, []float64{2, 4}, m.Durations("o", l4detect.Pause))

	assert.Equal(t, 1, m.GlobalStateCount(l4detect.Pause))
	assert.Equal(t, 7.0, m.GlobalMaxDuration(l4detect.Pause))
	assert.Equal(t, []string{"*global*", "o"}, toIDs(m.Observers()))
	assert.Equal(t, 2, m.Stats("o").Agents)
}

func toIDs[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func TestUnknownIDsReturnZero(t *testing.T) {
	t.Parallel()
	m := NewManager()

	assert.Empty(t, m.RawEvents("ghost", "nowhere", l4detect.Noticed))
	assert.Empty(t, m.ProcessedEvents("ghost", "nowhere", l4detect.Pause))
	assert.Equal(t, 0, m.StateCount("nowhere", l4detect.Pause))
	assert.Equal(t, 0.0, m.AverageDuration("nowhere", l4detect.Pause))
	assert.Equal(t, 0, m.CurrentActiveCount("nowhere", l4detect.Pause))
	assert.False(t, m.HasNoticed("ghost", "nowhere"))
	assert.Empty(t, m.AgentsForObserver("nowhere"))
	assert.Equal(t, ObserverStats{}, m.Stats("nowhere"))
	assert.Equal(t, 0.0, m.AverageSimulationTime())
	assert.Equal(t, 0, m.StateCount("nowhere", l4detect.StateType(200)))
}

func TestReset_Idempotent(t *testing.T) {
	t.Parallel()
	m := NewManager()
	m.Apply("a", "o", l4detect.MaskOf(l4detect.Pause, l4detect.Entered), 0)
	m.Apply("a", "o", 0, 1)
	m.Apply("a", "o", l4detect.MaskOf(l4detect.Scan), 2)

	m.Reset()
	first := snapshot(m)
	m.Reset()
	second := snapshot(m)

	assert.Equal(t, first, second)
	assert.Empty(t, first.active)
	assert.Empty(t, first.completed)
	assert.Empty(t, first.points)

	// Open scan was discarded, not completed.
	done, _ := m.Apply("a", "o", 0, 3)
	assert.Empty(t, done)
}

type managerSnapshot struct {
	active    []ActiveState
	completed []CompletedEvent
	points    []PointEvent
	agents    []string
}

func snapshot(m *Manager) managerSnapshot {
	return managerSnapshot{
		active:    m.Active(),
		completed: m.Completed(Filter{}),
		points:    m.Points(Filter{}),
		agents:    toIDs(m.AgentsForObserver("o")),
	}
}

func TestMonotonicDurations(t *testing.T) {
	t.Parallel()
	m := NewManager()
	masks := []l4detect.StateMask{
		l4detect.MaskOf(l4detect.Walk, l4detect.Focus),
		l4detect.MaskOf(l4detect.Walk),
		l4detect.MaskOf(l4detect.Rush, l4detect.Scan),
		0,
		l4detect.MaskOf(l4detect.Pause),
		0,
	}
	for i, mask := range masks {
		m.Apply("a", "o", mask, float64(i)*0.033)
	}
	for _, ev := range m.Completed(Filter{}) {
		assert.GreaterOrEqual(t, ev.End, ev.Start)
		assert.GreaterOrEqual(t, ev.Duration, 0.0)
	}
}

func TestFilter(t *testing.T) {
	t.Parallel()
	m := NewManager()
	m.Apply("a", "o1", l4detect.MaskOf(l4detect.Pause, l4detect.Noticed), 0)
	m.Apply("b", "o2", l4detect.MaskOf(l4detect.Walk, l4detect.Noticed), 0)
	m.Apply("a", "o1", 0, 1)
	m.Apply("b", "o2", 0, 1)

	assert.Len(t, m.Completed(Filter{}), 2)
	assert.Len(t, m.Completed(Filter{Agent: "a"}), 1)
	assert.Len(t, m.Completed(Filter{Observer: "o2", States: l4detect.MaskOf(l4detect.Pause)}), 0)
	assert.Len(t, m.Points(Filter{States: l4detect.MaskOf(l4detect.Noticed)}), 2)
}

func TestVersion(t *testing.T) {
	t.Parallel()
	m := NewManager()
	v0 := m.Version()
	m.Apply("a", "o", l4detect.MaskOf(l4detect.Pause), 0)
	assert.Greater(t, m.Version(), v0, "opening a state changes the active counts")
	v1 := m.Version()
	m.Apply("a", "o", l4detect.MaskOf(l4detect.Pause), 0.5)
	assert.Equal(t, v1, m.Version(), "a held state changes nothing")
	m.Apply("a", "o", 0, 1)
	assert.Greater(t, m.Version(), v1)
	v1 = m.Version()
	m.Reset()
	assert.Greater(t, m.Version(), v1)
}

func TestConcurrentReaders(t *testing.T) {
	t.Parallel()
	m := NewManager()
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					m.Stats("o")
					m.Active()
					m.Completed(Filter{Agent: "a"})
				}
			}
		}()
	}
	for i := 0; i < 500; i++ {
		mask := l4detect.StateMask(0)
		if i%3 != 0 {
			mask = l4detect.MaskOf(l4detect.Occupy)
		}
		m.Apply("a", "o", mask, float64(i))
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, 166, m.StateCount("o", l4detect.Occupy))
}
