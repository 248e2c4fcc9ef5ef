// Package verdict defines the boundary between the form and whatever
// decides on an application.
package verdict

import (
	"context"
	"math/rand/v2"
	"sync"

	"loan-decision/internal/models"
)

// Source turns one frozen application into a verdict. Implementations
// must not retain or mutate app.
type Source interface {
	Name() string
	Evaluate(ctx context.Context, app models.Application) (*models.Verdict, error)
}

// Rand is the randomness a source or generator draws from. Tests pin it
// with a fixed sequence.
type Rand interface {
	IntN(n int) int
	Float64() float64
}

// NewRand returns a Rand seeded from the runtime that is safe to share
// between goroutines.
func NewRand() Rand {
	return &lockedRand{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}
