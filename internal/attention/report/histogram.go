package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/attention.report/internal/attention/l2volumes"
	"github.com/banshee-data/attention.report/internal/attention/l4detect"
	"github.com/banshee-data/attention.report/internal/attention/l5states"
	"github.com/banshee-data/attention.report/internal/attention/l6metrics"
	"github.com/banshee-data/attention.report/internal/security"
)

// ErrNoDurations is returned when a histogram would have no data.
var ErrNoDurations = errors.New("no durations to plot")

// DefaultBins is the histogram bin count used when bins <= 0.
const DefaultBins = 20

// WriteDurationHistogram saves a histogram of durations (seconds) to path.
// The image format follows the file extension (.png, .svg, .pdf).
func WriteDurationHistogram(path, title string, durations []float64, bins int) error {
	if len(durations) == 0 {
		return ErrNoDurations
	}
	if bins <= 0 {
		bins = DefaultBins
	}
	if len(durations) < bins {
		bins = len(durations)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Duration (s)"
	p.Y.Label.Text = "Events"

	h, err := plotter.NewHist(plotter.Values(durations), bins)
	if err != nil {
		return fmt.Errorf("build histogram: %w", err)
	}
	h.FillColor = plotutil.Color(0)
	p.Add(h)

	s := l6metrics.Summarise(durations)
	p.Legend.Add(fmt.Sprintf("n=%d p50=%.2fs p95=%.2fs", s.Count, s.P50, s.P95), h)
	p.Legend.Top = true

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// SummariseDurations returns a summary for every duration state of
// observer that has at least one completed event.
func SummariseDurations(m *l5states.Manager, observer l2volumes.ObserverID) map[l4detect.StateType]l6metrics.Summary {
	out := make(map[l4detect.StateType]l6metrics.Summary)
	for _, st := range l4detect.DurationMask.States() {
		d := m.Durations(observer, st)
		if len(d) == 0 {
			continue
		}
		out[st] = l6metrics.Summarise(d)
	}
	return out
}

// WriteObserverHistograms writes one PNG per observer and duration state
// with completed events into dir, named <observer>_<state>.png. Observer
// ids are sanitised and every path is checked to stay inside dir. It
// returns the written paths.
func WriteObserverHistograms(dir string, m *l5states.Manager, observers []l2volumes.ObserverID) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	var written []string
	for _, id := range observers {
		for _, st := range l4detect.DurationMask.States() {
			d := m.Durations(id, st)
			if len(d) == 0 {
				continue
			}
			name := fmt.Sprintf("%s_%s.png", security.SanitizeFilename(string(id)), st)
			path := filepath.Join(dir, name)
			if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
				return written, err
			}
			title := fmt.Sprintf("%s: %s durations", id, st)
			if err := WriteDurationHistogram(path, title, d, 0); err != nil {
				return written, err
			}
			written = append(written, path)
		}
	}
	return written, nil
}
