package jobbroker

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryBroker is an in-process JobBroker for tests: pushed jobs are
// appended to Pushed in order, with no actual queue consumer.
type MemoryBroker struct {
	mu     sync.Mutex
	Pushed []PushedJob
}

// PushedJob records one Push call's arguments and assigned id.
type PushedJob struct {
	JobID   string
	JobHash map[string]any
}

// NewMemoryBroker builds an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{}
}

func (b *MemoryBroker) Push(_ context.Context, jobHash map[string]any) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	jobID := uuid.NewString()
	b.Pushed = append(b.Pushed, PushedJob{JobID: jobID, JobHash: jobHash})
	return jobID, nil
}

// Len reports how many jobs have been pushed so far.
func (b *MemoryBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Pushed)
}

// Last returns the most recently pushed job, or the zero value if none.
func (b *MemoryBroker) Last() PushedJob {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Pushed) == 0 {
		return PushedJob{}
	}
	return b.Pushed[len(b.Pushed)-1]
}
