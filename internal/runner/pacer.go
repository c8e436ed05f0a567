package runner

import (
	"context"
	"time"

	"github.com/torosent/poolbench/internal/arrival"
)

// pacer releases request i at its planned cumulative offset from a single
// reference start. Each wait is measured against the wall clock, so
// oversleeping one request shortens the next wait instead of shifting every
// later arrival.
type pacer struct {
	offsets []time.Duration
	start   time.Time
	now     func() time.Time
}

func newPacer(plan arrival.Plan) *pacer {
	return &pacer{offsets: plan.Offsets(), now: time.Now}
}

func (p *pacer) begin(start time.Time) {
	p.start = start
}

// delay returns how long request i must still wait, clamped to zero.
func (p *pacer) delay(i int) time.Duration {
	if i < 0 || i >= len(p.offsets) {
		return 0
	}
	d := p.offsets[i] - p.now().Sub(p.start)
	if d < 0 {
		return 0
	}
	return d
}

func (p *pacer) wait(ctx context.Context, i int) error {
	d := p.delay(i)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
