// Package jobbroker implements the engine's out-of-scope JobBroker
// abstraction: a fire-and-forget push of a producer-supplied
// job hash onto an external queue, returning an opaque job id. The
// engine never pops from or inspects this queue itself — callbacks run
// in whatever worker pulls the job off the broker later.
package jobbroker

import "context"

// JobBroker pushes a job hash onto an external queue and returns the
// id the queue assigned it.
type JobBroker interface {
	Push(ctx context.Context, jobHash map[string]any) (jobID string, err error)
}
