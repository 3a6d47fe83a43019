package posesource

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/attention.report/internal/attention/l1history"
)

func straightLine() map[l1history.AgentID][]l1history.PoseSample {
	return map[l1history.AgentID][]l1history.PoseSample{
		"a": {
			{Time: 2, Position: r3.Vec{X: 2}, Orientation: r3.Vec{X: 1}},
			{Time: 0, Position: r3.Vec{X: 0}, Orientation: r3.Vec{Z: -1}},
		},
		"b": {
			{Time: 1, Position: r3.Vec{Y: 1}, Orientation: r3.Vec{Z: -1}},
			{Time: 5, Position: r3.Vec{Y: 5}, Orientation: r3.Vec{Z: -1}},
		},
		"empty": nil,
	}
}

func TestRecording_PoseAt(t *testing.T) {
	t.Parallel()
	rec, err := NewRecording("test", straightLine())
	require.NoError(t, err)

	assert.Equal(t, 0.0, rec.Start())
	assert.Equal(t, 5.0, rec.End())
	assert.Equal(t, []l1history.AgentID{"a", "b"}, rec.Agents())
	assert.Equal(t, 2, rec.Header().Agents)

	s, err := rec.PoseAt("a", 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s.Position.X, 1e-12)
	assert.InDelta(t, 1.0, r3.Norm(s.Orientation), 1e-12, "gaze stays unit length")
	assert.InDelta(t, s.Orientation.X, -s.Orientation.Z, 1e-12, "halfway between -Z and +X")

	exact, err := rec.PoseAt("a", 2)
	require.NoError(t, err)
	assert.Equal(t, r3.Vec{X: 1}, exact.Orientation)

	_, err = rec.PoseAt("a", 2.5)
	assert.True(t, errors.Is(err, ErrOutOfRange))
	_, err = rec.PoseAt("ghost", 1)
	assert.True(t, errors.Is(err, ErrUnknownAgent))

	assert.Equal(t, []l1history.AgentID{"a"}, rec.AgentsAt(0.5))
	assert.Equal(t, []l1history.AgentID{"a", "b"}, rec.AgentsAt(1.5))
	assert.Equal(t, []l1history.AgentID{"b"}, rec.AgentsAt(3))
}

func TestRecording_OppositeGazeFallsBack(t *testing.T) {
	t.Parallel()
	rec, err := NewRecording("", map[l1history.AgentID][]l1history.PoseSample{
		"a": {
			{Time: 0, Orientation: r3.Vec{Z: -1}},
			{Time: 1, Orientation: r3.Vec{Z: 1}},
		},
	})
	require.NoError(t, err)
	s, err := rec.PoseAt("a", 0.5)
	require.NoError(t, err)
	assert.Equal(t, r3.Vec{Z: 1}, s.Orientation, "degenerate lerp takes the nearer sample at f=0.5")
}

func TestRecording_DuplicateTimes(t *testing.T) {
	t.Parallel()
	_, err := NewRecording("", map[l1history.AgentID][]l1history.PoseSample{
		"a": {{Time: 1}, {Time: 1}},
	})
	assert.Error(t, err)
}

func TestRecording_RoundTrip(t *testing.T) {
	t.Parallel()
	rec, err := NewRecording("unit", straightLine())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, rec.Save(path))

	loaded, err := LoadRecording(path)
	require.NoError(t, err)
	assert.Equal(t, rec.Header(), loaded.Header())
	for _, id := range rec.Agents() {
		assert.Equal(t, rec.tracks[id], loaded.tracks[id])
	}

	var buf bytes.Buffer
	_, err = rec.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"version":"1.0"`)
}

func TestLoadRecording_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := LoadRecording(filepath.Join(dir, "session.csv"))
	assert.Error(t, err, "extension")

	_, err = LoadRecording(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = LoadRecording(bad)
	assert.Error(t, err)
}

func TestPlayback(t *testing.T) {
	t.Parallel()
	rec, err := NewRecording("", straightLine())
	require.NoError(t, err)
	p := NewPlayback(rec)

	assert.Equal(t, 0.0, p.SimulationTime())
	assert.Equal(t, 1.0, p.PlaybackSpeed())
	assert.False(t, p.IsReset())

	p.SetSpeed(2)
	assert.Equal(t, 1.0, p.Step(500*time.Millisecond))
	assert.Equal(t, []l1history.AgentID{"a", "b"}, p.Agents())

	s, ok := p.CurrentPose("a")
	require.True(t, ok)
	assert.InDelta(t, 1.0, s.Position.X, 1e-12)
	_, ok = p.CurrentPose("ghost")
	assert.False(t, ok)

	p.Step(time.Hour)
	assert.Equal(t, 5.0, p.SimulationTime(), "clamped at the end")
	assert.True(t, p.Done())

	p.Seek(-3)
	assert.Equal(t, 0.0, p.SimulationTime())
	assert.True(t, p.IsReset())
	assert.False(t, p.IsReset(), "reset is reported once")

	p.SetSpeed(-1)
	assert.Equal(t, 0.0, p.PlaybackSpeed())
	p.Seek(3)
	assert.False(t, p.IsReset())

	_, err = p.PoseAtTime("b", 3)
	assert.NoError(t, err)
}
