// Package harness wires the device, worker pool, arrival plan, runner and
// reporting together for a single benchmark run.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torosent/poolbench/internal/arrival"
	"github.com/torosent/poolbench/internal/config"
	"github.com/torosent/poolbench/internal/dashboard"
	"github.com/torosent/poolbench/internal/metrics"
	"github.com/torosent/poolbench/internal/output"
	"github.com/torosent/poolbench/internal/pool"
	"github.com/torosent/poolbench/internal/runner"
	"github.com/torosent/poolbench/internal/threshold"
	"github.com/torosent/poolbench/internal/tracing"
	"github.com/torosent/poolbench/internal/worker"
)

// ErrThresholdsFailed is returned by Run when any threshold did not pass.
var ErrThresholdsFailed = errors.New("one or more thresholds failed")

const shutdownTimeout = 5 * time.Second

// Pools above this size get a warning since every worker holds its own
// buffers.
const largePoolSize = 256

// Options carry process-level dependencies. Zero values are replaced with
// stdout, stderr and a logger built from the configured level.
type Options struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  logrus.FieldLogger
	Factory pool.Factory   // overrides the simulated workers
	Sampler func() float64 // overrides the arrival sampler
}

// Report is everything a finished run produced.
type Report struct {
	Info       output.RunInfo
	Result     runner.Result
	Summary    metrics.Summary
	Thresholds []threshold.Result
}

// Passed reports whether every threshold passed.
func (r Report) Passed() bool { return threshold.AllPassed(r.Thresholds) }

// Harness owns every resource of one run.
type Harness struct {
	cfg        config.Config
	stdout     io.Writer
	log        logrus.FieldLogger
	info       output.RunInfo
	device     *worker.Device
	pool       *pool.WorkerPool
	plan       arrival.Plan
	collector  *metrics.Collector
	tracer     *tracing.Provider
	runner     *runner.Runner
	thresholds []threshold.Threshold
	closeOnce  sync.Once
	closeErr   error
}

// New validates cfg and builds every component. A failure releases whatever
// was already built.
func New(ctx context.Context, cfg config.Config, opts Options) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return nil, err
	}
	mode, err := runner.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	arrivalMode, err := arrival.ParseMode(cfg.Arrival)
	if err != nil {
		return nil, err
	}

	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	log := opts.Logger
	if log == nil {
		if log, err = NewLogger(cfg.LogLevel, opts.Stderr); err != nil {
			return nil, err
		}
	}

	h := &Harness{
		cfg:        cfg,
		stdout:     opts.Stdout,
		log:        log,
		thresholds: thresholds,
		info: output.RunInfo{
			RunID:       output.NewRunID(),
			Mode:        string(mode),
			PoolSize:    cfg.PoolSize,
			Requests:    cfg.Requests,
			Rate:        cfg.Rate,
			Arrival:     string(arrivalMode),
			WarmUp:      cfg.WarmUp,
			SingleQueue: cfg.SingleQueue,
			Seed:        cfg.Seed,
			WorkTime:    cfg.WorkTime,
			Profile:     cfg.Profile,
		},
	}
	h.log = log.WithField("run_id", h.info.RunID)
	if cfg.PoolSize > largePoolSize {
		h.log.WithField("pool_size", cfg.PoolSize).Warn("large pool configured, each worker holds its own buffers")
	}

	scheduler := arrival.NewScheduler(arrival.Options{
		Dir:     cfg.DistDir,
		Persist: arrivalMode == arrival.ModeFixed,
		Seed:    cfg.Seed,
		Sampler: opts.Sampler,
		Logger:  h.log,
	})
	if h.plan, err = scheduler.Build(cfg.Requests, cfg.Rate, arrivalMode); err != nil {
		return nil, fmt.Errorf("build arrival plan: %w", err)
	}

	factory := opts.Factory
	if factory == nil {
		h.device = worker.NewDevice(worker.DeviceOptions{
			QueueCount: cfg.QueueCount,
			MultiQueue: !cfg.SingleQueue,
			Logger:     h.log,
		})
		factory = h.simulatedFactory()
	}
	if h.pool, err = pool.New(ctx, cfg.PoolSize, factory, pool.Options{
		StallThreshold: cfg.StallThreshold,
		Logger:         h.log,
	}); err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	if h.tracer, err = tracing.Init(ctx, cfg.Tracing); err != nil {
		h.closePool()
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	h.collector = metrics.NewCollector(metrics.Options{
		Requests: cfg.Requests,
		Profile:  cfg.Profile,
	})

	if h.runner, err = runner.New(runner.Options{
		Plan:         h.plan,
		Pool:         h.pool,
		Mode:         mode,
		WarmUp:       cfg.WarmUp,
		PollInterval: cfg.PollInterval,
		Recorder:     h.collector,
		Tracer:       h.tracer.Tracer(),
		Logger:       h.log,
	}); err != nil {
		_ = h.Close()
		return nil, err
	}

	h.log.WithFields(logrus.Fields{
		"mode":      mode,
		"pool_size": cfg.PoolSize,
		"requests":  cfg.Requests,
		"arrival":   arrivalMode,
		"planned":   h.plan.Total(),
	}).Debug("harness ready")
	return h, nil
}

func (h *Harness) simulatedFactory() pool.Factory {
	seed := h.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	opts := worker.SimulatedOptions{
		Device:      h.device,
		WorkTime:    h.cfg.WorkTime,
		Jitter:      h.cfg.WorkJitter,
		FailureRate: h.cfg.FailureRate,
		Stages:      h.cfg.Stages,
		Seed:        seed,
		Logger:      h.log,
	}
	return func(id worker.ID) (worker.Worker, error) {
		return worker.NewSimulated(id, opts), nil
	}
}

// Info returns the run identity and echoed configuration.
func (h *Harness) Info() output.RunInfo { return h.info }

// Plan returns the arrival plan the run will follow.
func (h *Harness) Plan() arrival.Plan { return h.plan }

// Run executes the batch, then summarizes, reports, appends the results row
// and evaluates thresholds. The Report is populated even when an error is
// returned.
func (h *Harness) Run(ctx context.Context) (Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopLive, err := h.startLive(cancel)
	if err != nil {
		return Report{Info: h.info}, err
	}

	h.info.Timestamp = time.Now().UTC()
	result, runErr := h.runner.Run(ctx)
	stopLive()

	rep := Report{
		Info:    h.info,
		Result:  result,
		Summary: h.collector.Summarize(),
	}
	rep.Thresholds = threshold.NewEvaluator(h.thresholds).Evaluate(rep.Summary)

	h.log.WithFields(logrus.Fields{
		"completed": result.Completed,
		"failed":    result.Failed,
		"duration":  result.Duration,
	}).Info("run finished")

	if err := h.emit(rep); err != nil {
		return rep, err
	}
	if runErr != nil {
		return rep, runErr
	}
	if !rep.Passed() {
		return rep, ErrThresholdsFailed
	}
	return rep, nil
}

// startLive starts the dashboard or the progress reporter, whichever is
// configured, and returns the function that stops it.
func (h *Harness) startLive(cancel context.CancelFunc) (func(), error) {
	switch {
	case h.cfg.Dashboard:
		dash, err := dashboard.New(h.collector, h.pool, h.info, cancel)
		if err != nil {
			return nil, err
		}
		dash.Start()
		return dash.Stop, nil
	case h.cfg.Progress > 0 && !h.cfg.JSONOutput:
		progress := output.NewProgressReporter(h.collector, h.pool.CheckedOut, h.cfg.Progress, h.stdout)
		progress.Start()
		return progress.Stop, nil
	default:
		return func() {}, nil
	}
}

// emit writes the report, the HTML file and the results row.
func (h *Harness) emit(rep Report) error {
	if h.cfg.JSONOutput {
		if err := output.PrintJSONReport(h.stdout, rep.Info, rep.Summary, rep.Thresholds); err != nil {
			return err
		}
	} else {
		output.PrintReport(h.stdout, rep.Info, rep.Summary)
		output.PrintThresholdResults(h.stdout, rep.Thresholds)
	}

	if h.cfg.HTMLOutput != "" {
		if err := h.writeHTML(rep); err != nil {
			return fmt.Errorf("write html report: %w", err)
		}
		h.log.WithField("path", h.cfg.HTMLOutput).Info("html report written")
	}

	if h.cfg.ResultsFile != "" {
		if err := output.AppendResultsRow(h.cfg.ResultsFile, rep.Info, rep.Summary); err != nil {
			return fmt.Errorf("append results row: %w", err)
		}
		h.log.WithField("path", h.cfg.ResultsFile).Debug("results row appended")
	}
	return nil
}

func (h *Harness) writeHTML(rep Report) error {
	f, err := os.Create(h.cfg.HTMLOutput)
	if err != nil {
		return err
	}
	if err := output.GenerateHTMLReport(f, rep.Info, rep.Summary, h.collector.Series(), rep.Thresholds); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Close shuts down the pool, which drops every device reference, and flushes
// the tracer. Safe to call more than once.
func (h *Harness) Close() error {
	h.closeOnce.Do(func() {
		var errs []string
		if err := h.closePool(); err != nil {
			errs = append(errs, err.Error())
		}
		if h.tracer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := h.tracer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Sprintf("tracer: %v", err))
			}
		}
		if len(errs) > 0 {
			h.closeErr = fmt.Errorf("harness close errors: %s", strings.Join(errs, "; "))
		}
	})
	return h.closeErr
}

func (h *Harness) closePool() error {
	if h.pool == nil {
		return nil
	}
	return h.pool.Close()
}

// NewLogger builds a text logger at the named level writing to w.
func NewLogger(level string, w io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log, nil
}
