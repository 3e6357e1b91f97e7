package compute

import (
	"fmt"
	"sync"
)

// queueDepth bounds the number of pending submissions per device before
// Submit blocks. Sweeps keep at most one task in flight per device, so the
// bound is never reached in normal operation.
const queueDepth = 64

// Task is one unit of device work. Tasks run on the owning device's worker
// goroutine, strictly in submission order.
type Task func() error

type submission struct {
	run Task
	ev  *Event
}

// Device is a single compute device with its own FIFO command queue. All
// submissions to one device are executed sequentially by a dedicated
// worker goroutine; ordering between devices is not defined.
type Device struct {
	id   int
	name string

	mu     sync.Mutex
	closed bool
	tasks  chan submission
	done   chan struct{}
}

func newDevice(id int) *Device {
	d := &Device{
		id:    id,
		name:  fmt.Sprintf("cpu-%02d", id),
		tasks: make(chan submission, queueDepth),
		done:  make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Device) loop() {
	defer close(d.done)
	for sub := range d.tasks {
		var err error
		if sub.run != nil {
			err = sub.run()
		}
		sub.ev.complete(err)
	}
}

// ID returns the device's index within its manager.
func (d *Device) ID() int { return d.id }

// Name returns a short human-readable device name.
func (d *Device) Name() string { return d.name }

// Submit enqueues a task and returns its completion event immediately. The
// task runs after every previously submitted task on this device has
// finished. Submitting to a closed device yields an event already failed
// with ErrClosed.
func (d *Device) Submit(run Task) *Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return completedEvent(ErrClosed)
	}
	ev := newEvent()
	d.tasks <- submission{run: run, ev: ev}
	return ev
}

// close drains the queue and stops the worker. Pending submissions still
// execute; the call returns once the worker has exited.
func (d *Device) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()
	<-d.done
}
