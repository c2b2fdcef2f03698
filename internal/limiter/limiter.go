package limiter

import (
	"context"

	"golang.org/x/time/rate"
)

// WriteLimiter throttles write throughput to a maximum number of bytes per second
type WriteLimiter struct {
	limiter *rate.Limiter
	burst   int
}

// NewWriteLimiter creates a limiter for maxMBps megabytes per second.
// burst is the largest single write expected, usually the block size.
// Returns nil (no limit) when maxMBps is not positive.
func NewWriteLimiter(maxMBps float64, burst int) *WriteLimiter {
	if maxMBps <= 0 {
		return nil
	}
	bytesPerSec := maxMBps * 1024 * 1024
	if burst < 1 {
		burst = 1
	}
	if float64(burst) < bytesPerSec {
		burst = int(bytesPerSec)
	}
	return &WriteLimiter{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		burst:   burst,
	}
}

// Wait blocks until n bytes may be written. A nil limiter never blocks.
func (l *WriteLimiter) Wait(ctx context.Context, n int) error {
	if l == nil || n <= 0 {
		return nil
	}
	for n > 0 {
		step := n
		if step > l.burst {
			step = l.burst
		}
		if err := l.limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
