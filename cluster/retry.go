package cluster

import (
	"math/rand"
	"sync"
	"time"

	"github.com/unkn0wn-root/replog/internal/mathutil"
)

// backoffPolicy decides whether a failed send is retried and for how long
// to wait first: (2^attempt + U[0,1)) * unit.
type backoffPolicy struct {
	unit       time.Duration
	maxRetries int // Unbounded retries forever

	mu  sync.Mutex
	rng *rand.Rand
}

func newBackoffPolicy(unit time.Duration, maxRetries int) *backoffPolicy {
	return &backoffPolicy{
		unit:       unit,
		maxRetries: maxRetries,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// retry reports whether a send that just failed attempt (0-based) may try again.
func (b *backoffPolicy) retry(attempt int) bool {
	return b.maxRetries < 0 || attempt < b.maxRetries
}

func (b *backoffPolicy) delay(attempt int) time.Duration {
	b.mu.Lock()
	jitter := b.rng.Float64()
	b.mu.Unlock()
	return mathutil.ExpBackoff(b.unit, attempt, jitter)
}
