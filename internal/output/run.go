package output

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// RunInfo identifies a run and echoes the configuration it ran with.
type RunInfo struct {
	RunID       string        `json:"run_id" yaml:"run_id"`
	Timestamp   time.Time     `json:"timestamp" yaml:"timestamp"`
	Mode        string        `json:"mode" yaml:"mode"`
	PoolSize    int           `json:"pool_size" yaml:"pool_size"`
	Requests    int           `json:"requests" yaml:"requests"`
	Rate        float64       `json:"target_rate" yaml:"target_rate"`
	Arrival     string        `json:"arrival" yaml:"arrival"`
	WarmUp      bool          `json:"warm_up" yaml:"warm_up"`
	SingleQueue bool          `json:"single_queue" yaml:"single_queue"`
	Seed        int64         `json:"seed" yaml:"seed"`
	WorkTime    time.Duration `json:"work_time" yaml:"work_time"`
	Profile     bool          `json:"profile" yaml:"profile"`
}

// NewRunID returns a new lexically sortable run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

// QueueMode is the echoed queue configuration.
func (r RunInfo) QueueMode() string {
	if r.SingleQueue {
		return "single"
	}
	return "multi"
}
