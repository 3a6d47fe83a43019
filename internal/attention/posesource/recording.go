package posesource

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/attention.report/internal/attention/l1history"
)

// FileExtension is the extension for recording files.
const FileExtension = ".json"

// FormatVersion is written into every recording header.
const FormatVersion = "1.0"

// maxRecordingSize bounds LoadRecording.
const maxRecordingSize = 512 << 20

var (
	// ErrUnknownAgent is returned for an agent without a track.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrOutOfRange is returned for a time outside an agent's track.
	ErrOutOfRange = errors.New("time outside recorded track")
)

// Header describes a recording.
type Header struct {
	Version   string  `json:"version"`
	CreatedNs int64   `json:"created_ns"`
	Source    string  `json:"source,omitempty"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Agents    int     `json:"agents"`
}

// wireSample is the on-disk form of a pose sample.
type wireSample struct {
	T float64    `json:"t"`
	P [3]float64 `json:"p"`
	G [3]float64 `json:"g"`
}

type wireRecording struct {
	Header Header                             `json:"header"`
	Tracks map[l1history.AgentID][]wireSample `json:"tracks"`
}

// Recording holds time-ordered pose tracks per agent and answers
// random-access pose queries by interpolation. It is immutable after
// construction and safe for concurrent use.
type Recording struct {
	header Header
	tracks map[l1history.AgentID][]l1history.PoseSample
	agents []l1history.AgentID
}

// NewRecording builds a recording from per-agent samples. Each track is
// sorted by time; duplicate timestamps are rejected.
func NewRecording(source string, tracks map[l1history.AgentID][]l1history.PoseSample) (*Recording, error) {
	r := &Recording{
		tracks: make(map[l1history.AgentID][]l1history.PoseSample, len(tracks)),
		header: Header{
			Version:   FormatVersion,
			CreatedNs: time.Now().UnixNano(),
			Source:    source,
			Start:     math.Inf(1),
			End:       math.Inf(-1),
		},
	}
	for id, samples := range tracks {
		if len(samples) == 0 {
			continue
		}
		tr := append([]l1history.PoseSample(nil), samples...)
		sort.Slice(tr, func(i, j int) bool { return tr[i].Time < tr[j].Time })
		for i := 1; i < len(tr); i++ {
			if tr[i].Time == tr[i-1].Time {
				return nil, fmt.Errorf("agent %s: duplicate sample at t=%.3f", id, tr[i].Time)
			}
		}
		r.tracks[id] = tr
		r.agents = append(r.agents, id)
		r.header.Start = math.Min(r.header.Start, tr[0].Time)
		r.header.End = math.Max(r.header.End, tr[len(tr)-1].Time)
	}
	sort.Slice(r.agents, func(i, j int) bool { return r.agents[i] < r.agents[j] })
	r.header.Agents = len(r.agents)
	if len(r.agents) == 0 {
		r.header.Start, r.header.End = 0, 0
	}
	return r, nil
}

// LoadRecording reads a recording file.
func LoadRecording(path string) (*Recording, error) {
	if filepath.Ext(path) != FileExtension {
		return nil, fmt.Errorf("recording must be a %s file: %s", FileExtension, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat recording: %w", err)
	}
	if info.Size() > maxRecordingSize {
		return nil, fmt.Errorf("recording too large: %d bytes", info.Size())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()
	return ReadRecording(f)
}

// ReadRecording decodes a recording from r.
func ReadRecording(r io.Reader) (*Recording, error) {
	var w wireRecording
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, fmt.Errorf("failed to parse recording: %w", err)
	}
	tracks := make(map[l1history.AgentID][]l1history.PoseSample, len(w.Tracks))
	for id, ws := range w.Tracks {
		out := make([]l1history.PoseSample, len(ws))
		for i, s := range ws {
			out[i] = l1history.PoseSample{
				Time:        s.T,
				Position:    r3.Vec{X: s.P[0], Y: s.P[1], Z: s.P[2]},
				Orientation: r3.Vec{X: s.G[0], Y: s.G[1], Z: s.G[2]},
			}
		}
		tracks[id] = out
	}
	rec, err := NewRecording(w.Header.Source, tracks)
	if err != nil {
		return nil, err
	}
	if w.Header.CreatedNs != 0 {
		rec.header.CreatedNs = w.Header.CreatedNs
	}
	return rec, nil
}

// WriteTo encodes the recording as JSON.
func (r *Recording) WriteTo(w io.Writer) (int64, error) {
	wire := wireRecording{
		Header: r.header,
		Tracks: make(map[l1history.AgentID][]wireSample, len(r.tracks)),
	}
	for id, tr := range r.tracks {
		ws := make([]wireSample, len(tr))
		for i, s := range tr {
			ws[i] = wireSample{
				T: s.Time,
				P: [3]float64{s.Position.X, s.Position.Y, s.Position.Z},
				G: [3]float64{s.Orientation.X, s.Orientation.Y, s.Orientation.Z},
			}
		}
		wire.Tracks[id] = ws
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Save writes the recording to path.
func (r *Recording) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}
	if _, err := r.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write recording: %w", err)
	}
	return f.Close()
}

// Header returns the recording metadata.
func (r *Recording) Header() Header {
	return r.header
}

// Start returns the earliest sample time.
func (r *Recording) Start() float64 { return r.header.Start }

// End returns the latest sample time.
func (r *Recording) End() float64 { return r.header.End }

// Agents lists every agent with a track, sorted.
func (r *Recording) Agents() []l1history.AgentID {
	return append([]l1history.AgentID(nil), r.agents...)
}

// AgentsAt lists the agents whose track covers t.
func (r *Recording) AgentsAt(t float64) []l1history.AgentID {
	var out []l1history.AgentID
	for _, id := range r.agents {
		tr := r.tracks[id]
		if t >= tr[0].Time && t <= tr[len(tr)-1].Time {
			out = append(out, id)
		}
	}
	return out
}

// PoseAt returns the agent's pose at t, linearly interpolating position and
// normalised-lerping gaze between the bracketing samples.
func (r *Recording) PoseAt(agent l1history.AgentID, t float64) (l1history.PoseSample, error) {
	tr, ok := r.tracks[agent]
	if !ok {
		return l1history.PoseSample{}, fmt.Errorf("%w: %s", ErrUnknownAgent, agent)
	}
	if t < tr[0].Time || t > tr[len(tr)-1].Time {
		return l1history.PoseSample{}, fmt.Errorf("%w: %s at t=%.3f (track %.3f..%.3f)",
			ErrOutOfRange, agent, t, tr[0].Time, tr[len(tr)-1].Time)
	}

	i := sort.Search(len(tr), func(i int) bool { return tr[i].Time >= t })
	if tr[i].Time == t {
		return tr[i], nil
	}
	a, b := tr[i-1], tr[i]
	f := (t - a.Time) / (b.Time - a.Time)

	gaze := lerp(a.Orientation, b.Orientation, f)
	if n := r3.Norm(gaze); n > 0 {
		gaze = r3.Scale(1/n, gaze)
	} else if f < 0.5 {
		gaze = a.Orientation
	} else {
		gaze = b.Orientation
	}
	return l1history.PoseSample{
		Time:        t,
		Position:    lerp(a.Position, b.Position, f),
		Orientation: gaze,
	}, nil
}

func lerp(a, b r3.Vec, f float64) r3.Vec {
	return r3.Add(a, r3.Scale(f, r3.Sub(b, a)))
}
