// Package arrival builds arrival plans: the ordered inter-arrival delays that
// pace an open-loop benchmark run.
//
// All delays are kept at microsecond resolution ([Unit]). Plan files store
// one integer per request in that unit, whitespace separated.
package arrival

import (
	"fmt"
	"math"
	"time"
)

// Unit is the resolution of planned delays and of plan files.
const Unit = time.Microsecond

// Plan is an immutable sequence of inter-arrival delays, one per request.
type Plan struct {
	delays []time.Duration
}

// NewPlan copies delays into a plan.
func NewPlan(delays []time.Duration) Plan {
	cp := make([]time.Duration, len(delays))
	copy(cp, delays)
	return Plan{delays: cp}
}

// FromMicros builds a plan from integer delays expressed in Unit.
func FromMicros(values []int64) Plan {
	delays := make([]time.Duration, len(values))
	for i, v := range values {
		delays[i] = time.Duration(v) * Unit
	}
	return Plan{delays: delays}
}

// Len returns the number of planned requests.
func (p Plan) Len() int { return len(p.delays) }

// Delay returns the planned delay preceding request i.
func (p Plan) Delay(i int) time.Duration { return p.delays[i] }

// Delays returns a copy of all delays.
func (p Plan) Delays() []time.Duration {
	cp := make([]time.Duration, len(p.delays))
	copy(cp, p.delays)
	return cp
}

// Micros returns the delays in Unit, as persisted in plan files.
func (p Plan) Micros() []int64 {
	out := make([]int64, len(p.delays))
	for i, d := range p.delays {
		out[i] = int64(d / Unit)
	}
	return out
}

// Offsets returns the cumulative planned start offset of every request,
// measured from the start of the run.
func (p Plan) Offsets() []time.Duration {
	out := make([]time.Duration, len(p.delays))
	var acc time.Duration
	for i, d := range p.delays {
		acc += d
		out[i] = acc
	}
	return out
}

// Total is the planned offset of the last request.
func (p Plan) Total() time.Duration {
	var acc time.Duration
	for _, d := range p.delays {
		acc += d
	}
	return acc
}

// Equal reports whether two plans hold identical delays.
func (p Plan) Equal(other Plan) bool {
	if len(p.delays) != len(other.delays) {
		return false
	}
	for i := range p.delays {
		if p.delays[i] != other.delays[i] {
			return false
		}
	}
	return true
}

func (p Plan) String() string {
	return fmt.Sprintf("plan(n=%d, total=%s)", len(p.delays), p.Total())
}

// toUnit converts a delay in seconds to a whole number of Units.
func toUnit(seconds float64) time.Duration {
	v := math.Round(seconds * float64(time.Second/Unit))
	if v > math.MaxInt64/float64(Unit) {
		v = math.MaxInt64 / float64(Unit)
	}
	if v < 0 {
		v = 0
	}
	return time.Duration(v) * Unit
}
