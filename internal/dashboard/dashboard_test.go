package dashboard

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/torosent/poolbench/internal/metrics"
	"github.com/torosent/poolbench/internal/output"
	"github.com/torosent/poolbench/internal/worker"
)

type fakePool struct{ size, busy int }

func (p fakePool) Size() int       { return p.size }
func (p fakePool) CheckedOut() int { return p.busy }

func TestPercent(t *testing.T) {
	tests := []struct {
		part, whole, want int
	}{
		{0, 10, 0},
		{5, 10, 50},
		{10, 10, 100},
		{12, 10, 100},
		{3, 0, 0},
		{-1, 10, 0},
	}
	for _, tt := range tests {
		if got := percent(tt.part, tt.whole); got != tt.want {
			t.Errorf("percent(%d, %d) = %d, want %d", tt.part, tt.whole, got, tt.want)
		}
	}
}

func TestLatencyData(t *testing.T) {
	if got := latencyData(nil); len(got) != 1 || got[0] != 0 {
		t.Errorf("latencyData(nil) = %v, want [0]", got)
	}
	got := latencyData([]time.Duration{1500 * time.Microsecond, 2 * time.Millisecond})
	if len(got) != 2 || got[0] != 1.5 || got[1] != 2 {
		t.Errorf("latencyData = %v", got)
	}
}

func TestFormatErrorRows(t *testing.T) {
	rows := formatErrorRows(nil, 10)
	if len(rows) != 1 || !strings.Contains(rows[0], "No failures") {
		t.Fatalf("empty rows = %v", rows)
	}

	rows = formatErrorRows(map[string]int{
		"Execution Failed": 1,
		"Timeout":          4,
		"Busy":             1,
	}, 2)
	if len(rows) != 2 {
		t.Fatalf("expected limit of 2 rows, got %d", len(rows))
	}
	if !strings.Contains(rows[0], "Timeout") || !strings.Contains(rows[0], "4") {
		t.Errorf("most frequent error should be first: %v", rows)
	}
	if !strings.Contains(rows[1], "Busy") {
		t.Errorf("ties sort by label: %v", rows)
	}
}

func TestFormatWorkerRows(t *testing.T) {
	rows := formatWorkerRows(nil, 5)
	if len(rows) != 1 || !strings.Contains(rows[0], "Awaiting") {
		t.Fatalf("empty rows = %v", rows)
	}
	rows = formatWorkerRows([]metrics.WorkerBucket{
		{Worker: "worker-1", Queue: 1, Count: 9},
		{Worker: "worker-0", Queue: 0, Count: 3},
	}, 1)
	if len(rows) != 1 || !strings.Contains(rows[0], "worker-1") || !strings.Contains(rows[0], "queue 1") {
		t.Errorf("rows = %v", rows)
	}
}

func TestFormatRunParams(t *testing.T) {
	tests := []struct {
		name     string
		info     output.RunInfo
		contains []string
		excludes []string
	}{
		{
			name: "threaded multi queue",
			info: output.RunInfo{
				Mode:     "threaded",
				PoolSize: 8,
				Requests: 100,
				Arrival:  "random",
				Rate:     20,
			},
			contains: []string{"Mode: threaded", "Workers: 8", "Requests: 100", "Arrival: random @ 20.0/s", "Queues: multi"},
			excludes: []string{"Warm-up", "Run:"},
		},
		{
			name: "polling single queue with warm-up",
			info: output.RunInfo{
				RunID:       "01ABC",
				Mode:        "polling",
				PoolSize:    2,
				Requests:    10,
				SingleQueue: true,
				WarmUp:      true,
			},
			contains: []string{"Mode: polling", "Queues: single", "Warm-up", "Run: 01ABC"},
			excludes: []string{"Arrival"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatRunParams(tt.info)
			for _, s := range tt.contains {
				if !strings.Contains(got, s) {
					t.Errorf("formatRunParams() = %q, missing %q", got, s)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(got, s) {
					t.Errorf("formatRunParams() = %q, should not contain %q", got, s)
				}
			}
		})
	}
}

func TestUpdateFromCollector(t *testing.T) {
	collector := metrics.NewCollector(metrics.Options{Requests: 4})
	start := time.Now()
	collector.Record(0, start, start.Add(2*time.Millisecond), &worker.Report{WorkerID: 0, QueueID: 0}, nil)
	collector.Record(1, start, start.Add(4*time.Millisecond), &worker.Report{WorkerID: 1, QueueID: 1}, nil)
	collector.Record(2, start, start.Add(time.Millisecond), nil, errors.New("device lost"))

	d := newDashboard(collector, fakePool{size: 4, busy: 1}, output.RunInfo{Mode: "threaded", PoolSize: 4, Requests: 4}, nil)
	d.update()

	if d.progressGauge.Percent != 75 {
		t.Errorf("progress = %d%%, want 75%%", d.progressGauge.Percent)
	}
	if d.progressGauge.Label != "3 / 4" {
		t.Errorf("progress label = %q", d.progressGauge.Label)
	}
	if d.poolGauge.Percent != 25 || !strings.Contains(d.poolGauge.Label, "1 / 4") {
		t.Errorf("pool gauge = %d%% %q", d.poolGauge.Percent, d.poolGauge.Label)
	}
	if len(d.latencySparkle.Sparklines[0].Data) != 2 {
		t.Errorf("sparkline data = %v", d.latencySparkle.Sparklines[0].Data)
	}
	if !strings.Contains(d.summaryPara.Text, "Completed: 2 | Failed: 1") {
		t.Errorf("summary = %q", d.summaryPara.Text)
	}
	if len(d.workerList.Rows) != 2 {
		t.Errorf("worker rows = %v", d.workerList.Rows)
	}
	if len(d.errorList.Rows) != 1 || !strings.Contains(d.errorList.Rows[0], "Device lost") {
		t.Errorf("error rows = %v", d.errorList.Rows)
	}
}
