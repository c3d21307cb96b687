package mathutil

import (
	"math"
	"time"
)

// maxShift keeps 2^attempt well inside float64 and time.Duration range.
const maxShift = 30

// ExpBackoff returns (2^attempt + jitter) * unit. attempt is clamped to
// [0, 30] and the result saturates at the largest Duration.
func ExpBackoff(unit time.Duration, attempt int, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxShift {
		attempt = maxShift
	}
	d := (float64(uint64(1)<<uint(attempt)) + jitter) * float64(unit)
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// BackoffFloor is the least total time spent waiting across the first n
// retries, ignoring jitter: (2^0 + ... + 2^(n-1)) * unit.
func BackoffFloor(unit time.Duration, n int) time.Duration {
	var total time.Duration
	for i := 0; i < n; i++ {
		total += ExpBackoff(unit, i, 0)
	}
	return total
}
