package llm

import (
	"sync"
	"time"
)

// Budget rate-limits LLM calls to a fixed number per minute. Callers must
// Acquire before attempting a call; an exhausted budget means the
// semantic or decision path is skipped for that cycle, not an error.
type Budget struct {
	callsPerMin int

	mu          sync.Mutex
	windowStart time.Time
	calls       int
	now         func() time.Time
}

// NewBudget creates a budget allowing callsPerMin calls per minute.
// Values below 1 are raised to 1.
func NewBudget(callsPerMin int) *Budget {
	if callsPerMin < 1 {
		callsPerMin = 1
	}
	return &Budget{
		callsPerMin: callsPerMin,
		now:         time.Now,
	}
}

func (b *Budget) resetIfNeeded() {
	now := b.now()
	if now.Sub(b.windowStart) >= time.Minute {
		b.windowStart = now
		b.calls = 0
	}
}

// Acquire reserves one call. Returns false when the minute window is
// exhausted.
func (b *Budget) Acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNeeded()
	if b.calls >= b.callsPerMin {
		return false
	}
	b.calls++
	return true
}

// Used returns calls consumed in the current window and the window size.
func (b *Budget) Used() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNeeded()
	return b.calls, b.callsPerMin
}
