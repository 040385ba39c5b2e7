package async

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// BackgroundQueue runs submitted tasks one at a time, in submission order,
// on a single consumer goroutine. It is meant for heavy-but-latency-
// insensitive jobs that must not run concurrently with each other.
type BackgroundQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []*Task
	running *Task
	stopped bool
	gen     int
	done    chan struct{}
}

func NewBackgroundQueue() *BackgroundQueue {
	q := &BackgroundQueue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.consume(q.gen, q.done)
	return q
}

// Submit enqueues a task. The task is marked QUEUED here; it starts RUNNING
// only when the consumer reaches it. A queue that was shut down restarts
// its consumer on the next Submit.
func (q *BackgroundQueue) Submit(t *Task) {
	t.markQueued()
	q.mu.Lock()
	if q.stopped {
		q.stopped = false
		q.gen++
		q.done = make(chan struct{})
		go q.consume(q.gen, q.done)
	}
	q.items = append(q.items, t)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// SubmitFunc wraps fn in a new task and enqueues it.
func (q *BackgroundQueue) SubmitFunc(name string, fn func() error) *Task {
	t := NewTask(name, fn)
	q.Submit(t)
	return t
}

// Snapshot returns a point-in-time copy of the queued and running tasks,
// running first. Completed tasks are excluded.
func (q *BackgroundQueue) Snapshot() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Task, 0, len(q.items)+1)
	if q.running != nil {
		out = append(out, q.running)
	}
	out = append(out, q.items...)
	return out
}

// Shutdown stops the consumer after the current item finishes. Idempotent.
// Tasks still queued remain QUEUED until a later Submit restarts the queue.
func (q *BackgroundQueue) Shutdown() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	done := q.done
	q.mu.Unlock()
	q.cond.Broadcast()
	<-done
}

// consume is scoped to one generation of the queue so that a restart never
// leaves two consumers competing for items.
func (q *BackgroundQueue) consume(gen int, done chan struct{}) {
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.stopped && q.gen == gen {
			q.cond.Wait()
		}
		if q.stopped || q.gen != gen {
			q.mu.Unlock()
			close(done)
			return
		}
		t := q.items[0]
		q.items = q.items[1:]
		q.running = t
		q.mu.Unlock()

		// Task.run recovers panics; a failing task never stops the queue.
		t.run()
		if err := t.Err(); err != nil {
			logrus.WithFields(logrus.Fields{
				"task": t.ID().String(),
				"name": t.Name(),
			}).Errorf("background task failed: %v", err)
		}

		q.mu.Lock()
		q.running = nil
		q.mu.Unlock()
	}
}
