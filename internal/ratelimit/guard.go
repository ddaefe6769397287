package ratelimit

import (
	"sync"

	"github.com/amirk1998/car-rental-client/pkg/errors"
)

// SubmissionGuard allows at most one in-flight submission per key.
type SubmissionGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewSubmissionGuard() *SubmissionGuard {
	return &SubmissionGuard{inFlight: make(map[string]struct{})}
}

// Acquire marks key as in flight. It fails fast with ErrDuplicateSubmission
// when key is already held. The returned release is safe to call twice.
func (g *SubmissionGuard) Acquire(key string) (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inFlight[key]; busy {
		return nil, errors.ErrDuplicateSubmission
	}
	g.inFlight[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inFlight, key)
			g.mu.Unlock()
		})
	}, nil
}

// InFlight returns the number of held keys.
func (g *SubmissionGuard) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inFlight)
}
