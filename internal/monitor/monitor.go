// Package monitor serves driver status and the latest scan on the tsweb
// debug pages.
package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/google/uuid"
	"tailscale.com/tsweb"

	"github.com/banshee-data/neo.lidar/internal/neo"
	"github.com/banshee-data/neo.lidar/internal/scanstats"
	"github.com/banshee-data/neo.lidar/internal/version"
)

// StatsFunc reports live device counters. *neo.Device's Stats method fits.
type StatsFunc func() neo.Stats

// Monitor keeps the most recent scan for the debug pages.
type Monitor struct {
	stats   StatsFunc
	started time.Time

	mu       sync.RWMutex
	latest   neo.Scan
	summary  scanstats.Summary
	observed uint64
}

func New(stats StatsFunc) *Monitor {
	return &Monitor{stats: stats, started: time.Now()}
}

// Observe records scan as the latest one.
func (m *Monitor) Observe(scan neo.Scan) {
	sum := scanstats.Summarize(scan)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = scan
	m.summary = sum
	m.observed++
}

// Latest returns the most recent scan and whether one has been observed.
func (m *Monitor) Latest() (neo.Scan, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.observed > 0
}

// Status is the JSON document served at /debug/neo.
type Status struct {
	Version       string             `json:"version"`
	Uptime        string             `json:"uptime"`
	State         string             `json:"state"`
	Session       string             `json:"session,omitempty"`
	Scans         uint64             `json:"scans"`
	Samples       uint64             `json:"samples"`
	CommErrors    uint64             `json:"comm_errors"`
	Packets       uint64             `json:"packets"`
	Resyncs       uint64             `json:"resyncs"`
	Discarded     uint64             `json:"discarded_bytes"`
	FramingErrors uint64             `json:"framing_errors"`
	Observed      uint64             `json:"observed_scans"`
	LatestSeq     uint64             `json:"latest_sequence,omitempty"`
	Latest        *scanstats.Summary `json:"latest,omitempty"`
}

func (m *Monitor) Status() Status {
	st := Status{
		Version: version.String(),
		Uptime:  time.Since(m.started).Truncate(time.Second).String(),
	}
	if m.stats != nil {
		ds := m.stats()
		st.State = ds.State.String()
		if ds.Session != uuid.Nil {
			st.Session = ds.Session.String()
		}
		st.Scans = ds.Scans
		st.Samples = ds.Samples
		st.CommErrors = ds.CommErrors
		st.Packets = ds.Codec.Packets
		st.Resyncs = ds.Codec.Resyncs
		st.Discarded = ds.Codec.DiscardedBytes
		st.FramingErrors = ds.Codec.FramingErrors
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	st.Observed = m.observed
	if m.observed > 0 {
		sum := m.summary
		st.Latest = &sum
		st.LatestSeq = m.latest.Sequence
	}
	return st
}

func (m *Monitor) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("neo", "neo driver status (JSON)", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(m.Status()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	debug.HandleFunc("neo-scan", "latest scan, top-down chart", m.handleScanChart)
	debug.HandleSilentFunc("neo-scan.png", m.handleScanPNG)
}

func (m *Monitor) handleScanChart(w http.ResponseWriter, r *http.Request) {
	scan, ok := m.Latest()
	if !ok {
		http.Error(w, "no scan yet", http.StatusServiceUnavailable)
		return
	}

	pts := scanstats.Points(scan)
	data := make([]opts.ScatterData, 0, len(pts))
	maxAbs := 0.0
	for _, p := range pts {
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(p.X), math.Abs(p.Y)))
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y}})
	}

	// Square plot with symmetric axes so the room is not distorted.
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "neo scan (Polar->XY)", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "neo scan", Subtitle: fmt.Sprintf("session=%s seq=%d points=%d", scan.Session, scan.Sequence, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("scan", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (m *Monitor) handleScanPNG(w http.ResponseWriter, r *http.Request) {
	scan, ok := m.Latest()
	if !ok {
		http.Error(w, "no scan yet", http.StatusServiceUnavailable)
		return
	}
	var buf bytes.Buffer
	if err := scanstats.WritePlotPNG(scan, &buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render plot: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
