package compute

// Event tracks the completion of a single device submission. It is created
// in the pending state by Submit and completed exactly once by the device
// worker; waiting on an already completed event returns immediately.
type Event struct {
	done chan struct{}
	err  error
}

func newEvent() *Event {
	return &Event{done: make(chan struct{})}
}

// completedEvent returns an event that is already finished with err.
func completedEvent(err error) *Event {
	e := newEvent()
	e.complete(err)
	return e
}

func (e *Event) complete(err error) {
	e.err = err
	close(e.done)
}

// Wait blocks until the submission has finished and returns its error.
func (e *Event) Wait() error {
	<-e.done
	return e.err
}

// Done returns a channel that is closed once the submission has finished.
// After Done is closed, Err returns the final error without blocking.
func (e *Event) Done() <-chan struct{} {
	return e.done
}

// Err returns the submission error. It must only be called after the Done
// channel is closed; Wait combines both steps.
func (e *Event) Err() error {
	return e.err
}
