package restapi

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// linearBackOff waits delay, 2*delay, 3*delay, ... between attempts.
type linearBackOff struct {
	delay   time.Duration
	attempt int
}

var _ backoff.BackOff = (*linearBackOff)(nil)

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.delay * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// newRetryPolicy allows attempts tries in total, never fewer than one.
func newRetryPolicy(delay time.Duration, attempts int) backoff.BackOff {
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithMaxRetries(&linearBackOff{delay: delay}, uint64(attempts-1))
}
