package session

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the reconnect delay for attempt N (1-based):
// InitialDelay * Multiplier^(N-1), never above MaxDelay.
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
		if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
			delay = float64(cfg.MaxDelay)
		}
	}
	return time.Duration(delay)
}

// backoffState counts consecutive reconnect attempts since the last
// successful open.
type backoffState struct {
	attempt int
	next    time.Duration
}

func (b *backoffState) advance(cfg BackoffConfig, rng *rand.Rand) time.Duration {
	b.attempt++
	b.next = NextBackoffDelay(cfg, b.attempt, rng)
	return b.next
}

func (b *backoffState) reset() {
	b.attempt = 0
	b.next = 0
}
