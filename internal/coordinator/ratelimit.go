package coordinator

import "time"

// rateLimiter is a small token bucket keyed externally by identity or
// IP. Callers hold the coordinator lock.
type rateLimiter struct {
	tokens   float64
	capacity float64
	refill   float64 // tokens per second
	last     time.Time
}

func newRateLimiter(capacity float64, refillPerSecond float64) *rateLimiter {
	return &rateLimiter{
		tokens:   capacity,
		capacity: capacity,
		refill:   refillPerSecond,
		last:     time.Now(),
	}
}

func (rl *rateLimiter) allow() bool {
	now := time.Now()
	rl.tokens += now.Sub(rl.last).Seconds() * rl.refill
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.last = now

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
