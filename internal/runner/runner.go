package runner

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNoPool is returned by New when Options.Pool is nil.
var ErrNoPool = errors.New("runner: pool is required")

// Result captures the outcome of one run. Requests is indexed by request id.
type Result struct {
	Total     int
	Completed int
	Failed    int
	Start     time.Time
	Duration  time.Duration
	Requests  []Request
}

// Runner executes one planned batch against a worker pool.
type Runner struct {
	opt      Options
	strategy DispatchStrategy
}

func New(opt Options) (*Runner, error) {
	opt.normalize()
	if opt.Pool == nil {
		return nil, ErrNoPool
	}
	strategy, err := NewStrategy(opt.Mode, opt.PollInterval)
	if err != nil {
		return nil, err
	}
	return &Runner{opt: opt, strategy: strategy}, nil
}

// Mode returns the dispatch mode in use.
func (r *Runner) Mode() Mode { return r.opt.Mode }

// Run dispatches every planned request and waits for all of them. The
// returned error is non-nil only when ctx ended the run early; the Result
// is populated either way and requests that never ran are marked failed.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	b := newBatch(r.opt)
	log := r.opt.Logger.WithField("mode", r.opt.Mode)

	if r.opt.WarmUp && b.len() > 0 {
		warmStart := time.Now()
		if err := r.strategy.WarmUp(ctx, b); err != nil {
			log.WithError(err).Warn("warm-up request failed")
		} else {
			log.WithField("elapsed", time.Since(warmStart)).Debug("warm-up complete")
		}
	}

	log.WithField("requests", b.len()).Debug("dispatch starting")
	start := time.Now()
	b.pacer.begin(start)
	err := r.strategy.Dispatch(ctx, b)
	res := b.result(start, time.Since(start))

	log.WithFields(logrus.Fields{
		"completed": res.Completed,
		"failed":    res.Failed,
		"elapsed":   res.Duration,
	}).Debug("dispatch finished")
	return res, err
}
