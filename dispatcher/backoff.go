package dispatcher

import "time"

// Backoff is the bounded exponential reconnect schedule used when the
// primary link dies while the signaling link survives. The schedule is
// 250ms, 500ms, 1s, 2s, capped at 4s, and gives up after MaxAttempts.
type Backoff struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// DefaultBackoff returns the 250ms/500ms/1s/2s/4s-cap/5-attempt schedule.
func DefaultBackoff() Backoff {
	return Backoff{Base: 250 * time.Millisecond, Cap: 4 * time.Second, MaxAttempts: 5}
}

// Delay returns the sleep duration before the given (zero-indexed) attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Cap {
			return b.Cap
		}
	}
	return d
}

// Sleep blocks for Delay(attempt). Split out from Delay so tests can assert
// on the computed duration without actually waiting.
func (b Backoff) Sleep(attempt int) {
	time.Sleep(b.Delay(attempt))
}
