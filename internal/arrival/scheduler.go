package arrival

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Mode selects how a plan is produced.
type Mode string

const (
	// ModeRandom draws exponential inter-arrival times (Poisson arrivals).
	ModeRandom Mode = "random"
	// ModeUniform spaces requests evenly at the target rate.
	ModeUniform Mode = "uniform"
	// ModeFixed replays a plan file, falling back to random generation.
	ModeFixed Mode = "fixed"
)

var (
	// ErrInvalidRate is returned when a generated plan has no positive rate.
	ErrInvalidRate = errors.New("arrival: rate must be > 0")
	// ErrInvalidCount is returned for negative request counts.
	ErrInvalidCount = errors.New("arrival: request count must be >= 0")
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRandom, ModeUniform, ModeFixed:
		return Mode(s), nil
	case "":
		return ModeRandom, nil
	default:
		return "", fmt.Errorf("arrival: unsupported mode %q", s)
	}
}

// Options configure a Scheduler.
type Options struct {
	Dir     string        // directory holding dist_<n>.txt files
	Persist bool          // save generated plans when a fixed plan is unavailable
	Seed    int64         // seed for generated plans; 0 seeds from the clock
	Sampler func() float64 // optional unit-rate exponential sampler, overrides Seed
	Logger  logrus.FieldLogger
}

// Scheduler builds arrival plans.
type Scheduler struct {
	opts Options
	log  logrus.FieldLogger
}

// NewScheduler creates a scheduler.
func NewScheduler(opts Options) *Scheduler {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{opts: opts, log: log}
}

// Build produces a plan of n delays for the given rate (requests per second).
func (s *Scheduler) Build(n int, rate float64, mode Mode) (Plan, error) {
	if n < 0 {
		return Plan{}, ErrInvalidCount
	}
	switch mode {
	case ModeRandom, "":
		return s.random(n, rate)
	case ModeUniform:
		return uniform(n, rate)
	case ModeFixed:
		return s.fixed(n, rate)
	default:
		return Plan{}, fmt.Errorf("arrival: unsupported mode %q", mode)
	}
}

func (s *Scheduler) fixed(n int, rate float64) (Plan, error) {
	path := PlanPath(s.opts.Dir, n)
	log := s.log.WithField("path", path)

	plan, err := LoadPlan(path, n)
	if err == nil {
		log.WithField("requests", n).Info("replaying fixed arrival plan")
		return plan, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("fixed arrival plan not found, generating a random plan")
	} else {
		log.WithError(err).Warn("fixed arrival plan rejected, generating a random plan")
	}

	plan, err = s.random(n, rate)
	if err != nil {
		return Plan{}, err
	}
	if s.opts.Persist {
		if err := SavePlan(path, plan); err != nil {
			log.WithError(err).Warn("could not save generated arrival plan")
		} else {
			log.Info("saved generated arrival plan")
		}
	}
	return plan, nil
}

func (s *Scheduler) random(n int, rate float64) (Plan, error) {
	if rate <= 0 {
		return Plan{}, ErrInvalidRate
	}
	sample := s.opts.Sampler
	if sample == nil {
		seed := s.opts.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		sample = rand.New(rand.NewSource(seed)).ExpFloat64
	}
	delays := make([]time.Duration, n)
	for i := range delays {
		delays[i] = toUnit(sample() / rate)
	}
	return Plan{delays: delays}, nil
}

func uniform(n int, rate float64) (Plan, error) {
	if rate <= 0 {
		return Plan{}, ErrInvalidRate
	}
	step := toUnit(1 / rate)
	delays := make([]time.Duration, n)
	for i := range delays {
		delays[i] = step
	}
	return Plan{delays: delays}, nil
}
