package service

import (
	"sync"
	"time"

	"github.com/RealKorush/bahbah/internal/domain"
)

// targetBreaker marks a target dead without probing once it has produced
// threshold consecutive dead probes in the current run. After cooldown the
// target gets one more probe. A nil breaker probes everything.
type targetBreaker struct {
	threshold uint32
	cooldown  time.Duration
	now       func() time.Time

	mu      sync.Mutex
	targets map[domain.ConnectTarget]*deadStreak
}

type deadStreak struct {
	count  uint32
	lastAt time.Time
}

// newTargetBreaker returns nil when threshold is 0.
func newTargetBreaker(threshold uint32, cooldown time.Duration, now func() time.Time) *targetBreaker {
	if threshold == 0 {
		return nil
	}
	return &targetBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
		targets:   make(map[domain.ConnectTarget]*deadStreak),
	}
}

func (b *targetBreaker) shouldProbe(t domain.ConnectTarget) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.targets[t]
	if !ok || st.count < b.threshold {
		return true
	}
	if b.now().Sub(st.lastAt) > b.cooldown {
		// half-open: one probe decides whether the streak continues
		st.count = b.threshold - 1
		return true
	}
	return false
}

// observe updates the streak for t with the status of a real probe.
func (b *targetBreaker) observe(t domain.ConnectTarget, status domain.Status) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if status == domain.StatusAlive {
		delete(b.targets, t)
		return
	}
	st, ok := b.targets[t]
	if !ok {
		st = &deadStreak{}
		b.targets[t] = st
	}
	st.count++
	st.lastAt = b.now()
}
