package processor

import "errors"

// ErrNotRunning is returned by Enqueue when the Processor's state is
// anything other than running (starting, draining, stopping, stopped
// all reject new work).
var ErrNotRunning = errors.New("processor: not running")

// ErrMaxCapacity is returned by Enqueue when the number of
// already-admitted (inflight) tasks has reached max_connections. The
// queue itself may still have room; this is a capacity check on
// admitted work, not queued work.
var ErrMaxCapacity = errors.New("processor: max connections reached")
