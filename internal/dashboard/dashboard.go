package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/poolbench/internal/metrics"
	"github.com/torosent/poolbench/internal/output"
)

// Source supplies live counters and the full summary.
type Source interface {
	Snapshot() metrics.Snapshot
	Summarize() metrics.Summary
}

// Occupancy reports how many pool workers are checked out.
type Occupancy interface {
	Size() int
	CheckedOut() int
}

// summaryEvery is how many ticks pass between full summaries.
const summaryEvery = 4

// Dashboard renders a live terminal UI for a benchmark run.
type Dashboard struct {
	source       Source
	pool         Occupancy
	info         output.RunInfo
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex
	ticks        int

	// Widgets
	grid           *ui.Grid
	summaryPara    *widgets.Paragraph
	progressGauge  *widgets.Gauge
	poolGauge      *widgets.Gauge
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	workerList     *widgets.List
	errorList      *widgets.List
	startTime      time.Time
}

// New creates a new Dashboard. shutdownFunc runs when the user presses q.
func New(source Source, pool Occupancy, info output.RunInfo, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	d := newDashboard(source, pool, info, shutdownFunc)
	d.setupGrid()
	return d, nil
}

func newDashboard(source Source, pool Occupancy, info output.RunInfo, shutdownFunc func()) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		source:       source,
		pool:         pool,
		info:         info,
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		startTime:    time.Now(),
	}
	d.initWidgets()
	return d
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Run"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.progressGauge = widgets.NewGauge()
	d.progressGauge.Title = "Requests"
	d.progressGauge.BarColor = ui.ColorBlue
	d.progressGauge.BorderStyle.Fg = ui.ColorCyan
	d.progressGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.poolGauge = widgets.NewGauge()
	d.poolGauge.Title = "Pool Occupancy"
	d.poolGauge.BarColor = ui.ColorMagenta
	d.poolGauge.BorderStyle.Fg = ui.ColorCyan
	d.poolGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	sparkline := widgets.NewSparkline()
	sparkline.Title = "Latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Recent Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = "Mean: 0ms\nP99:  0ms"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.workerList = widgets.NewList()
	d.workerList.Title = "Workers"
	d.workerList.Rows = []string{"Awaiting data"}
	d.workerList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.workerList.BorderStyle.Fg = ui.ColorCyan

	d.errorList = widgets.NewList()
	d.errorList.Title = "Failures"
	d.errorList.Rows = []string{"No failures"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.14,
			ui.NewCol(0.5, d.progressGauge),
			ui.NewCol(0.5, d.poolGauge),
		),
		ui.NewRow(0.34,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.36,
			ui.NewCol(0.5, d.workerList),
			ui.NewCol(0.5, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// run is the main dashboard update loop.
func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.update()
	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop() cancels the context once the run unwinds.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// update refreshes widget data from the source and the pool.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	snap := d.source.Snapshot()

	d.summaryPara.Text = fmt.Sprintf("%s\nElapsed: %s | Completed: %d | Failed: %d",
		formatRunParams(d.info),
		elapsed.Round(100*time.Millisecond),
		snap.Completed,
		snap.Failed,
	)

	d.progressGauge.Percent = percent(snap.Done(), snap.Expected)
	d.progressGauge.Label = fmt.Sprintf("%d / %d", snap.Done(), snap.Expected)

	if d.pool != nil {
		busy, size := d.pool.CheckedOut(), d.pool.Size()
		d.poolGauge.Percent = percent(busy, size)
		d.poolGauge.Label = fmt.Sprintf("%d / %d busy", busy, size)
	}

	d.latencySparkle.Sparklines[0].Data = latencyData(snap.Recent)
	d.latencyPara.Text = fmt.Sprintf("Mean: %.2fms\nP99:  %.2fms",
		float64(snap.MeanLatency)/float64(time.Millisecond),
		float64(snap.P99Latency)/float64(time.Millisecond),
	)

	if d.ticks%summaryEvery == 0 {
		sum := d.source.Summarize()
		d.workerList.Rows = formatWorkerRows(sum.Workers, 10)
		d.errorList.Rows = formatErrorRows(sum.Errors, 10)
	}
	d.ticks++
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

// percent returns part/whole as a clamped gauge percentage.
func percent(part, whole int) int {
	if whole <= 0 || part <= 0 {
		return 0
	}
	p := part * 100 / whole
	if p > 100 {
		return 100
	}
	return p
}

// latencyData converts recent latencies to milliseconds. The sparkline
// widget needs at least one point.
func latencyData(recent []time.Duration) []float64 {
	if len(recent) == 0 {
		return []float64{0}
	}
	data := make([]float64, len(recent))
	for i, d := range recent {
		data[i] = float64(d) / float64(time.Millisecond)
	}
	return data
}

func formatWorkerRows(rows []metrics.WorkerBucket, limit int) []string {
	if len(rows) == 0 {
		return []string{"[Awaiting data](fg:green)"}
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		formatted = append(formatted, fmt.Sprintf("[%s](fg:cyan) queue %d | %d done", row.Worker, row.Queue, row.Count))
	}
	return formatted
}

func formatErrorRows(errs map[string]int, limit int) []string {
	if len(errs) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	labels := make([]string, 0, len(errs))
	for label := range errs {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if errs[labels[i]] == errs[labels[j]] {
			return labels[i] < labels[j]
		}
		return errs[labels[i]] > errs[labels[j]]
	})
	if limit > 0 && len(labels) > limit {
		labels = labels[:limit]
	}
	formatted := make([]string, 0, len(labels))
	for _, label := range labels {
		formatted = append(formatted, fmt.Sprintf("[%s](fg:red) %d", label, errs[label]))
	}
	return formatted
}

// formatRunParams formats the run configuration for the header panel.
func formatRunParams(info output.RunInfo) string {
	var parts []string

	if info.Mode != "" {
		parts = append(parts, fmt.Sprintf("Mode: %s", info.Mode))
	}
	if info.PoolSize > 0 {
		parts = append(parts, fmt.Sprintf("Workers: %d", info.PoolSize))
	}
	parts = append(parts, fmt.Sprintf("Requests: %d", info.Requests))
	if info.Arrival != "" {
		parts = append(parts, fmt.Sprintf("Arrival: %s @ %.1f/s", info.Arrival, info.Rate))
	}
	parts = append(parts, fmt.Sprintf("Queues: %s", info.QueueMode()))
	if info.WarmUp {
		parts = append(parts, "Warm-up")
	}
	if info.RunID != "" {
		parts = append(parts, fmt.Sprintf("Run: %s", info.RunID))
	}

	return strings.Join(parts, " | ")
}
