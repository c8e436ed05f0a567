package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/poolbench/internal/metrics"
)

// SnapshotSource provides live run counters.
type SnapshotSource interface {
	Snapshot() metrics.Snapshot
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	source   SnapshotSource
	inFlight func() int
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	start    time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. inFlight may be nil.
func NewProgressReporter(source SnapshotSource, inFlight func() int, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		source:   source,
		inFlight: inFlight,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
		start:    time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and prints a final line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer, p.line())
		return
	}
	p.ticker.Stop()
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.line())
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	snap := p.source.Snapshot()
	line := fmt.Sprintf("\rRequests: %d/%d | Completed: %d | Failed: %d",
		snap.Done(), snap.Expected, snap.Completed, snap.Failed)
	if p.inFlight != nil {
		line += fmt.Sprintf(" | In-flight: %d", p.inFlight())
	}
	if snap.Completed > 0 {
		line += fmt.Sprintf(" | Mean: %s | P99: %s",
			snap.MeanLatency.Round(time.Microsecond), snap.P99Latency.Round(time.Microsecond))
	}
	line += fmt.Sprintf(" | Elapsed: %s", time.Since(p.start).Round(100*time.Millisecond))
	return line
}
