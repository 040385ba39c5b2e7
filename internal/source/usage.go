package source

import "sync"

// Usage remembers, per source implementation, the most recently successful
// instance. Health checks probe each kind of source once, using the
// freshest instance seen. Safe for concurrent registration.
type Usage struct {
	mu     sync.Mutex
	byName map[string]Source
}

func NewUsage() *Usage {
	return &Usage{byName: make(map[string]Source)}
}

// Record notes a successfully used source, replacing any older instance of
// the same implementation.
func (u *Usage) Record(s Source) {
	u.mu.Lock()
	u.byName[s.Name()] = s
	u.mu.Unlock()
}

// Sources returns one source per implementation.
func (u *Usage) Sources() []Source {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]Source, 0, len(u.byName))
	for _, s := range u.byName {
		out = append(out, s)
	}
	return out
}
