package async

import (
	"sync"

	"github.com/google/uuid"
)

// TaskRegistry keeps submitted tasks reachable by UUID so that an API layer
// can poll their status after submission.
type TaskRegistry struct {
	queue *BackgroundQueue

	mu    sync.RWMutex
	tasks map[uuid.UUID]*Task
}

func NewTaskRegistry(queue *BackgroundQueue) *TaskRegistry {
	return &TaskRegistry{
		queue: queue,
		tasks: make(map[uuid.UUID]*Task),
	}
}

// Submit enqueues fn on the background queue and returns the task handle.
func (r *TaskRegistry) Submit(name string, fn func() error) *Task {
	t := NewTask(name, fn)
	r.mu.Lock()
	r.tasks[t.ID()] = t
	r.mu.Unlock()
	r.queue.Submit(t)
	return t
}

func (r *TaskRegistry) Get(id uuid.UUID) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

func (r *TaskRegistry) All() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	return out
}
