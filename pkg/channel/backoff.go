package channel

import (
	"math/rand/v2"
	"time"
)

// reconnectPolicy yields reconnect delays: exponential from initial,
// capped at max, with ±jitter. It allows at most maxAttempts attempts per
// window; running out inside the window means give up for good, while a
// window that passes first resets the count.
type reconnectPolicy struct {
	initial     time.Duration
	max         time.Duration
	jitter      float64
	maxAttempts int
	window      time.Duration

	attempts    int
	windowStart time.Time

	now  func() time.Time
	rand func() float64
}

func newReconnectPolicy(cfg Config) *reconnectPolicy {
	return &reconnectPolicy{
		initial:     cfg.ReconnectInitial,
		max:         cfg.ReconnectMax,
		jitter:      cfg.ReconnectJitter,
		maxAttempts: cfg.ReconnectAttempts,
		window:      cfg.ReconnectWindow,
		now:         time.Now,
		rand:        rand.Float64,
	}
}

// next returns the delay before the next attempt, or false when the client
// should give up.
func (p *reconnectPolicy) next() (time.Duration, bool) {
	now := p.now()
	if p.attempts > 0 && now.Sub(p.windowStart) >= p.window {
		p.attempts = 0
	}
	if p.attempts == 0 {
		p.windowStart = now
	}
	if p.attempts >= p.maxAttempts {
		return 0, false
	}

	delay := p.base(p.attempts)
	if p.jitter > 0 {
		f := 1 + (p.rand()*2-1)*p.jitter
		delay = time.Duration(float64(delay) * f)
	}
	p.attempts++
	return delay, true
}

// base returns the un-jittered delay for the given attempt number.
func (p *reconnectPolicy) base(attempt int) time.Duration {
	d := p.initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.max {
			return p.max
		}
	}
	if d > p.max {
		return p.max
	}
	return d
}

// reset is called after a successful connection.
func (p *reconnectPolicy) reset() {
	p.attempts = 0
}
