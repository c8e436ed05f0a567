package worker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrNoReferences is returned when releasing a device nobody holds.
var ErrNoReferences = errors.New("worker: device has no outstanding references")

// DeviceOptions configure a Device.
type DeviceOptions struct {
	QueueCount int                // number of device queues (lanes); values < 1 mean 1
	MultiQueue bool               // spread workers across queues instead of pinning all to queue 0
	Setup      func() error       // one-time initialization run on first reference
	Teardown   func() error       // run when the last reference is released
	Logger     logrus.FieldLogger // optional
}

// Device is the process-wide context shared by all workers of a run.
// It is reference counted: the first AcquireReference runs Setup, the last
// ReleaseReference runs Teardown. Queue assignment is round-robin.
type Device struct {
	opts  DeviceOptions
	log   logrus.FieldLogger
	lanes []sync.Mutex

	mu    sync.Mutex
	refs  int
	ready bool
	next  int
}

// NewDevice creates an uninitialized device.
func NewDevice(opts DeviceOptions) *Device {
	if opts.QueueCount < 1 {
		opts.QueueCount = 1
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Device{
		opts:  opts,
		log:   log,
		lanes: make([]sync.Mutex, opts.QueueCount),
	}
}

// AcquireReference registers a new user, initializing the device if needed.
func (d *Device) AcquireReference() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ready {
		d.log.WithField("queues", d.opts.QueueCount).Debug("initializing device")
		if d.opts.Setup != nil {
			if err := d.opts.Setup(); err != nil {
				return fmt.Errorf("device setup: %w", err)
			}
		}
		d.ready = true
		d.next = 0
	}
	d.refs++
	return nil
}

// ReleaseReference drops a user; the last one tears the device down.
func (d *Device) ReleaseReference() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.refs == 0 {
		return ErrNoReferences
	}
	d.refs--
	if d.refs > 0 {
		return nil
	}
	d.ready = false
	d.log.Debug("tearing down device")
	if d.opts.Teardown != nil {
		if err := d.opts.Teardown(); err != nil {
			return fmt.Errorf("device teardown: %w", err)
		}
	}
	return nil
}

// References returns the number of outstanding references.
func (d *Device) References() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refs
}

// Ready reports whether the device is currently initialized.
func (d *Device) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

// QueueCount returns the number of device queues.
func (d *Device) QueueCount() int {
	return d.opts.QueueCount
}

// AssignQueue picks the queue for a newly initialized worker.
func (d *Device) AssignQueue() int {
	if !d.opts.MultiQueue {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.next % d.opts.QueueCount
	d.next++
	return q
}

// RunOnQueue executes fn with exclusive use of the given queue. Work
// submitted to the same queue is serialized.
func (d *Device) RunOnQueue(queue int, fn func()) {
	if queue < 0 || queue >= len(d.lanes) {
		queue = 0
	}
	lane := &d.lanes[queue]
	lane.Lock()
	defer lane.Unlock()
	fn()
}
