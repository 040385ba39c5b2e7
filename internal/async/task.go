package async

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus int

const (
	StatusNew TaskStatus = iota
	StatusQueued
	StatusRunning
	StatusSucceeded
	StatusFailed
)

func (s TaskStatus) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusQueued:
		return "QUEUED"
	case StatusRunning:
		return "RUNNING"
	case StatusSucceeded:
		return "SUCCEEDED"
	default:
		return "FAILED"
	}
}

// Task wraps a callable payload with identity, lifecycle status and timing/
// failure audit data. Status transitions are published under a lock so that
// any polling goroutine observes them without blocking on the payload.
type Task struct {
	id   uuid.UUID
	name string
	fn   func() error

	mu      sync.Mutex
	status  TaskStatus
	queued  time.Time
	started time.Time
	stopped time.Time
	err     error
}

// NewTask builds a NEW task. The UUID is assigned here and never changes.
func NewTask(name string, fn func() error) *Task {
	return &Task{id: uuid.New(), name: name, fn: fn}
}

func (t *Task) ID() uuid.UUID { return t.id }

func (t *Task) Name() string { return t.name }

func (t *Task) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Err returns the failure captured from the payload, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) InstantQueued() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queued
}

func (t *Task) InstantStarted() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

func (t *Task) InstantStopped() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Terminal reports whether the task reached SUCCEEDED or FAILED.
func (t *Task) Terminal() bool {
	s := t.Status()
	return s == StatusSucceeded || s == StatusFailed
}

func (t *Task) markQueued() {
	t.mu.Lock()
	t.status = StatusQueued
	t.queued = time.Now()
	t.mu.Unlock()
}

// run executes the payload, recovering panics into a FAILED status. The
// error is captured verbatim; it never propagates to the hosting thread.
func (t *Task) run() {
	t.mu.Lock()
	t.status = StatusRunning
	t.started = time.Now()
	t.mu.Unlock()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		return t.fn()
	}()

	t.mu.Lock()
	t.stopped = time.Now()
	if err != nil {
		t.status = StatusFailed
		t.err = err
	} else {
		t.status = StatusSucceeded
	}
	t.mu.Unlock()
}
