// Package limited provides a rate-limited io.Reader, the same
// LimitedReader shape as the teacher's bandwidth_limiter.go, used to
// cap Transport throughput per spec.md §5's bandwidth partition.
package limited

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// Reader wraps r so that Read calls are throttled to limiter's rate.
type Reader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

// NewReader returns a Reader throttled to limiter. ctx bounds how long
// a Read may wait for its token bucket to refill.
func NewReader(ctx context.Context, r io.Reader, limiter *rate.Limiter) *Reader {
	return &Reader{r: r, limiter: limiter, ctx: ctx}
}

func (lr *Reader) Read(p []byte) (int, error) {
	n, err := lr.r.Read(p)
	if n <= 0 {
		return n, err
	}
	// WaitN rejects requests larger than the burst, so a large read
	// waits for its tokens one burst-sized chunk at a time.
	for remaining := n; remaining > 0; {
		chunk := remaining
		if burst := lr.limiter.Burst(); burst > 0 && chunk > burst {
			chunk = burst
		}
		if waitErr := lr.limiter.WaitN(lr.ctx, chunk); waitErr != nil {
			return n, waitErr
		}
		remaining -= chunk
	}
	return n, err
}

// NewLimiter builds a token-bucket limiter capped at kbPerSec KB/s, with
// a burst equal to one second's worth of traffic.
func NewLimiter(kbPerSec int) *rate.Limiter {
	bytesPerSec := kbPerSec * 1024
	if bytesPerSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec)
}

// PerWorker computes each of P workers' share of a global cap W,
// flooring to a minimum of 1 KB/s (spec.md §5: max(floor(W/P), 1)).
func PerWorker(globalKBps, workers int) int {
	if workers <= 0 {
		workers = 1
	}
	share := globalKBps / workers
	if share < 1 {
		share = 1
	}
	return share
}
