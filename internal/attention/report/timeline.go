package report

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/attention.report/internal/attention/l1history"
	"github.com/banshee-data/attention.report/internal/attention/l4detect"
	"github.com/banshee-data/attention.report/internal/attention/l5states"
)

// DefaultAssetsHost is where rendered pages load the echarts runtime from.
const DefaultAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// TimelineOptions control WriteTimelineHTML. Zero values are replaced by
// defaults.
type TimelineOptions struct {
	Title      string
	Subtitle   string
	AssetsHost string
	// MaxPoints caps scatter points per state; larger series are strided.
	MaxPoints int
}

func (o TimelineOptions) withDefaults() TimelineOptions {
	if o.Title == "" {
		o.Title = "Behaviour timeline"
	}
	if o.AssetsHost == "" {
		o.AssetsHost = DefaultAssetsHost
	}
	if o.MaxPoints <= 0 {
		o.MaxPoints = 5000
	}
	return o
}

// WriteTimelineHTML renders a page with two charts: a scatter of every
// event (x = start time, y = agent, one series per state) and a bar chart
// of event counts per state.
func WriteTimelineHTML(w io.Writer, completed []l5states.CompletedEvent, points []l5states.PointEvent, o TimelineOptions) error {
	o = o.withDefaults()

	agents := agentAxis(completed, points)
	row := make(map[l1history.AgentID]int, len(agents))
	labels := make([]string, len(agents))
	for i, a := range agents {
		row[a] = i
		labels[i] = string(a)
	}

	var series [l4detect.NumStates][]opts.ScatterData
	var counts [l4detect.NumStates]int
	for _, e := range completed {
		st := e.Key.State
		counts[st]++
		series[st] = append(series[st], opts.ScatterData{
			Value: []interface{}{e.Start, row[e.Key.Agent], e.Duration, string(e.Key.Observer)},
		})
	}
	for _, p := range points {
		st := p.Key.State
		counts[st]++
		series[st] = append(series[st], opts.ScatterData{
			Value: []interface{}{p.Time, row[p.Key.Agent], 0.0, string(p.Key.Observer)},
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: o.Title, Width: "100%", Height: "600px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: o.Title, Subtitle: o.Subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: labels, Name: "agent"}),
	)
	for _, st := range l4detect.AllStates() {
		data := series[st]
		if len(data) == 0 {
			continue
		}
		data = stride(data, o.MaxPoints)
		symbol := opts.ScatterChart{SymbolSize: 6}
		if st.Shape() == l4detect.ShapePoint {
			symbol = opts.ScatterChart{SymbolSize: 10}
		}
		scatter.AddSeries(st.String(), data, charts.WithScatterChartOpts(symbol))
	}

	x := make([]string, 0, l4detect.NumStates)
	y := make([]opts.BarData, 0, l4detect.NumStates)
	for _, st := range l4detect.AllStates() {
		x = append(x, st.String())
		y = append(y, opts.BarData{Value: counts[st]})
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "400px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Events per state", Subtitle: fmt.Sprintf("%d completed, %d point", len(completed), len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("events", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(o.AssetsHost)
	page.AddCharts(scatter, bar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render timeline: %w", err)
	}
	return nil
}

// agentAxis returns every agent that appears in the events, sorted.
func agentAxis(completed []l5states.CompletedEvent, points []l5states.PointEvent) []l1history.AgentID {
	seen := make(map[l1history.AgentID]struct{})
	for _, e := range completed {
		seen[e.Key.Agent] = struct{}{}
	}
	for _, p := range points {
		seen[p.Key.Agent] = struct{}{}
	}
	out := make([]l1history.AgentID, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func stride(data []opts.ScatterData, max int) []opts.ScatterData {
	if len(data) <= max {
		return data
	}
	step := int(math.Ceil(float64(len(data)) / float64(max)))
	out := make([]opts.ScatterData, 0, len(data)/step+1)
	for i := 0; i < len(data); i += step {
		out = append(out, data[i])
	}
	return out
}
