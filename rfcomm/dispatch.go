// Package rfcomm implements the RFCOMM multiplexer engine: per-transport
// sessions, per-DLCI channels with credit-based flow control, and the
// channel manager that routes open requests between them.
package rfcomm

import "sync"

// Dispatcher is a serial task queue. The engine runs every state change
// on a single dispatcher and posts user callbacks to the dispatcher the
// user supplied, never invoking them synchronously from inside another
// component's call.
type Dispatcher interface {
	// Post schedules task to run after all previously posted tasks. It
	// never runs task inline.
	Post(task func())
}

// SerialDispatcher runs posted tasks in order on a single goroutine.
type SerialDispatcher struct {
	mu     sync.Mutex
	wake   chan struct{}
	queue  []func()
	closed bool
}

// NewSerialDispatcher starts the dispatcher's goroutine.
func NewSerialDispatcher() *SerialDispatcher {
	d := &SerialDispatcher{wake: make(chan struct{}, 1)}
	go d.loop()
	return d
}

// Post schedules task. Posting never blocks; tasks posted after Close are
// dropped.
func (d *SerialDispatcher) Post(task func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, task)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Close stops the dispatcher after the currently queued tasks drain.
func (d *SerialDispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *SerialDispatcher) loop() {
	for range d.wake {
		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				closed := d.closed
				d.mu.Unlock()
				if closed {
					return
				}
				break
			}
			task := d.queue[0]
			d.queue = d.queue[1:]
			d.mu.Unlock()
			task()
		}
	}
}
