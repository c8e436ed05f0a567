package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torosent/poolbench/internal/metrics"
)

// syncBuffer guards a bytes.Buffer written by the reporter goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressReporterBasic(t *testing.T) {
	collector := metrics.NewCollector(metrics.Options{Requests: 5})
	reporter := NewProgressReporter(collector, nil, 100*time.Millisecond, &syncBuffer{})
	if reporter == nil {
		t.Fatal("Expected non-nil reporter")
	}
	reporter.Stop()
}

func TestProgressReporterFormatting(t *testing.T) {
	collector := metrics.NewCollector(metrics.Options{Requests: 3})
	now := time.Now()
	collector.Record(0, now, now.Add(5*time.Millisecond), nil, nil)
	collector.Record(1, now, now.Add(5*time.Millisecond), nil, errBoom{})

	var buf syncBuffer
	reporter := NewProgressReporter(collector, func() int { return 2 }, 20*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start() // second start is a no-op

	time.Sleep(70 * time.Millisecond)
	reporter.Stop()
	reporter.Stop()

	out := buf.String()
	for _, want := range []string{"Requests: 2/3", "Completed: 1", "Failed: 1", "In-flight: 2", "Mean: 5ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("progress output missing %q: %q", want, out)
		}
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("Stop should finish the line")
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
