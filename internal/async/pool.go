package async

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Priority is a scheduling label for worker pools. Goroutines are the unit
// of work; the label distinguishes pools in logs and lets callers route
// latency-sensitive work away from heavy work.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	default:
		return "high"
	}
}

// Pool runs ad hoc units of work immediately and in parallel. It grows
// lazily and is unbounded unless a concurrency limit is set. Pools are
// explicitly constructed and dependency-injected; Shutdown is idempotent
// and a shut-down pool accepts work again on the next Submit.
type Pool struct {
	priority Priority
	limit    chan struct{} // nil means unbounded

	mu sync.Mutex
	// wg is replaced on every revival so that a Submit racing an in-flight
	// Shutdown never calls Add on a WaitGroup being waited on at zero.
	wg   *sync.WaitGroup
	shut bool
}

// NewPool builds an unbounded pool with the given priority label.
func NewPool(priority Priority) *Pool {
	return &Pool{priority: priority, wg: new(sync.WaitGroup)}
}

// NewHighConcurrencyPool builds a pool sized for many simultaneously
// suspended short I/O waits, capping the number of in-flight units.
func NewHighConcurrencyPool(capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{
		priority: PriorityHigh,
		limit:    make(chan struct{}, capacity),
		wg:       new(sync.WaitGroup),
	}
}

func (p *Pool) Priority() Priority { return p.priority }

// Submit schedules fn to run immediately. A panic inside fn is recovered
// and logged; it never takes the pool down with it.
func (p *Pool) Submit(fn func()) {
	p.mu.Lock()
	if p.shut {
		p.shut = false
		p.wg = new(sync.WaitGroup)
	}
	wg := p.wg
	wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer wg.Done()
		if p.limit != nil {
			p.limit <- struct{}{}
			defer func() { <-p.limit }()
		}
		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"pool":  p.priority.String(),
					"panic": r,
				}).Error("worker recovered from panic")
			}
		}()
		fn()
	}()
}

// Shutdown waits for in-flight work to drain. Idempotent; the pool is
// usable again after the next Submit.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shut {
		p.mu.Unlock()
		return
	}
	p.shut = true
	wg := p.wg
	p.mu.Unlock()
	wg.Wait()
}
