// Command attention plays a recorded pose session through the behaviour
// detection engine and reports per-observer metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/attention.report/internal/attention/l2volumes"
	"github.com/banshee-data/attention.report/internal/attention/l3tolerance"
	"github.com/banshee-data/attention.report/internal/attention/l5states"
	"github.com/banshee-data/attention.report/internal/attention/l6metrics"
	"github.com/banshee-data/attention.report/internal/attention/monitor"
	"github.com/banshee-data/attention.report/internal/attention/pipeline"
	"github.com/banshee-data/attention.report/internal/attention/posesource"
	"github.com/banshee-data/attention.report/internal/attention/report"
	sqlite "github.com/banshee-data/attention.report/internal/attention/storage/sqlite"
	"github.com/banshee-data/attention.report/internal/config"
	"github.com/banshee-data/attention.report/internal/monitoring"
	"github.com/banshee-data/attention.report/internal/version"
)

var (
	recordingPath = flag.String("recording", "", "Recorded pose session (.json)")
	observersPath = flag.String("observers", "", "Observer volumes (.json)")
	configPath    = flag.String("config", "", "Tuning config (.json); defaults are used when empty")
	dbPath        = flag.String("db", "", "SQLite database for detected events (optional)")
	reportHTML    = flag.String("report-html", "", "Write an HTML event timeline to this path")
	reportPNG     = flag.String("report-png", "", "Write per-observer duration histograms (PNG) into this directory")
	fps           = flag.Float64("fps", 30, "Wall-clock steps per second of playback")
	speed         = flag.Float64("speed", 1, "Playback speed (simulation seconds per wall second)")
	listen        = flag.String("listen", "", "Serve the monitor API on this address and play in real time")
	debug         = flag.Bool("debug", false, "Enable per-tick debug logging")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// options is the parsed command line.
type options struct {
	Recording  string
	Observers  string
	Config     string
	DB         string
	ReportHTML string
	ReportPNG  string
	FPS        float64
	Speed      float64
	Listen     string
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetDebug(*debug)

	opts := options{
		Recording:  *recordingPath,
		Observers:  *observersPath,
		Config:     *configPath,
		DB:         *dbPath,
		ReportHTML: *reportHTML,
		ReportPNG:  *reportPNG,
		FPS:        *fps,
		Speed:      *speed,
		Listen:     *listen,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		log.Fatalf("attention: %v", err)
	}
}

func (o options) validate() error {
	if o.Recording == "" {
		return errors.New("-recording is required")
	}
	if o.Observers == "" {
		return errors.New("-observers is required")
	}
	if o.FPS <= 0 {
		return fmt.Errorf("-fps must be positive, got %g", o.FPS)
	}
	if o.Speed <= 0 {
		return fmt.Errorf("-speed must be positive, got %g", o.Speed)
	}
	return nil
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

// run plays the recording to its end, then prints metrics and writes the
// requested outputs. With a listen address playback is paced in wall time
// and the monitor keeps serving until ctx is cancelled.
func run(ctx context.Context, o options, out io.Writer) error {
	if err := o.validate(); err != nil {
		return err
	}
	tuning, err := loadTuning(o.Config)
	if err != nil {
		return err
	}
	rec, err := posesource.LoadRecording(o.Recording)
	if err != nil {
		return err
	}
	vols, err := loadObservers(o.Observers)
	if err != nil {
		return err
	}

	pb := posesource.NewPlayback(rec)
	pb.SetSpeed(o.Speed)
	eng := pipeline.NewEngine(pipeline.ConfigFromTuning(tuning), l3tolerance.ConfigFromTuning(tuning), pb, pb)
	if err := eng.SetVolumes(ctx, vols); err != nil {
		return fmt.Errorf("install observers: %w", err)
	}
	monitoring.Logf("[attention] %s: %d agents, %.1fs, %d observers",
		filepath.Base(o.Recording), len(rec.Agents()), rec.End()-rec.Start(), len(vols))

	var (
		store    *sqlite.EventStore
		recorder *sqlite.Recorder
	)
	if o.DB != "" {
		store, err = sqlite.Open(o.DB, nil)
		if err != nil {
			return err
		}
		defer store.Close()
		sess, err := store.CreateSession(o.Recording)
		if err != nil {
			return err
		}
		recorder = sqlite.NewRecorder(store, sess.SessionID)
		eng.SetSink(recorder)
		monitoring.Logf("[attention] recording events to %s (session %s)", o.DB, sess.SessionID)
	}

	g, gctx := errgroup.WithContext(ctx)
	var ws *monitor.WebServer
	if o.Listen != "" {
		ws = monitor.NewWebServer(monitor.WebServerConfig{
			Address: o.Listen,
			Backend: eng,
			Store:   store,
		})
		g.Go(func() error { return ws.Start(gctx) })
	}

	step := time.Duration(float64(time.Second) / o.FPS)
	g.Go(func() error {
		if err := play(gctx, eng, pb, step, o.Listen != ""); err != nil {
			return err
		}
		if recorder != nil {
			if err := recorder.Flush(); err != nil {
				return fmt.Errorf("flush events: %w", err)
			}
		}
		if err := writeOutputs(eng.Manager(), eng.TickCount(), vols, o, out); err != nil {
			return err
		}
		if ws == nil {
			return nil
		}
		monitoring.Logf("[attention] playback finished; monitor still serving on %s", o.Listen)
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// play advances playback in steps of wall until the recording ends. When
// paced, each step waits for the wall-clock interval.
func play(ctx context.Context, eng *pipeline.Engine, pb *posesource.Playback, wall time.Duration, paced bool) error {
	var tick <-chan time.Time
	if paced {
		t := time.NewTicker(wall)
		defer t.Stop()
		tick = t.C
	}
	if _, err := eng.Advance(ctx); err != nil {
		return err
	}
	for !pb.Done() {
		if paced {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		pb.Step(wall)
		if _, err := eng.Advance(ctx); err != nil {
			return err
		}
	}
	return nil
}

type runSummary struct {
	DetectorModel string                                                `json:"detector_model"`
	Ticks         int                                                   `json:"ticks"`
	Agents        int                                                   `json:"agents"`
	Observers     map[l2volumes.ObserverID]l6metrics.Snapshot           `json:"observers"`
	Durations     map[l2volumes.ObserverID]map[string]l6metrics.Summary `json:"durations"`
}

func writeOutputs(m *l5states.Manager, ticks int, vols []l2volumes.Volume, o options, out io.Writer) error {
	now := time.Now()
	ids := make([]l2volumes.ObserverID, 0, len(vols)+1)
	for _, v := range vols {
		ids = append(ids, v.ID)
	}
	ids = append(ids, l5states.GlobalObserver)

	sum := runSummary{
		DetectorModel: version.DetectorModel(),
		Ticks:         ticks,
		Agents:        m.AgentCount(),
		Observers:     make(map[l2volumes.ObserverID]l6metrics.Snapshot, len(ids)),
		Durations:     make(map[l2volumes.ObserverID]map[string]l6metrics.Summary, len(ids)),
	}
	for _, id := range ids {
		sum.Observers[id] = l6metrics.Compute(m, id, now)
		d := make(map[string]l6metrics.Summary)
		for st, s := range report.SummariseDurations(m, id) {
			d[st.String()] = s
		}
		sum.Durations[id] = d
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}

	if o.ReportHTML != "" {
		f, err := os.Create(o.ReportHTML)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		err = report.WriteTimelineHTML(f, m.Completed(l5states.Filter{}), m.Points(l5states.Filter{}), report.TimelineOptions{
			Subtitle: filepath.Base(o.Recording),
		})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		monitoring.Logf("[attention] wrote %s", o.ReportHTML)
	}

	if o.ReportPNG != "" {
		written, err := report.WriteObserverHistograms(o.ReportPNG, m, ids)
		if err != nil {
			return err
		}
		monitoring.Logf("[attention] wrote %d histograms to %s", len(written), o.ReportPNG)
	}
	return nil
}
