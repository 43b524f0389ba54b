// Package ratelimit provides the two throttling layers of the gateway:
//
//   - Pacer      — outbound: serializes calls to one provider so that two
//     completed acquisitions are never closer than a minimum interval.
//   - RPMLimiter — inbound: a Redis sliding-window requests-per-minute
//     guard applied at the HTTP boundary.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// pacerSlot holds the spacing state for one protected resource.
type pacerSlot struct {
	mu       sync.Mutex
	lastCall time.Time
}

// Pacer enforces a minimum interval between successive calls to the same
// resource. Each resource (provider id) is paced independently.
//
// Acquire suspends only the calling goroutine; the wait is bounded by the
// configured interval, so the pacer cannot deadlock. Contending callers are
// granted in whatever order they obtain the per-resource mutex — no
// fairness guarantee beyond that.
type Pacer struct {
	mu       sync.Mutex
	slots    map[string]*pacerSlot
	interval time.Duration
}

// NewPacer creates a Pacer with the given minimum inter-call interval.
// A zero or negative interval disables pacing (Acquire returns immediately).
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{
		slots:    make(map[string]*pacerSlot),
		interval: interval,
	}
}

// Acquire blocks until at least the configured interval has elapsed since
// the previous completed acquisition for resource, then reserves the
// current time as the new baseline. Returns early with ctx.Err() if the
// context is cancelled while waiting.
func (p *Pacer) Acquire(ctx context.Context, resource string) error {
	if p.interval <= 0 {
		return ctx.Err()
	}

	slot := p.slot(resource)

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if wait := p.interval - time.Since(slot.lastCall); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Baseline is reserved before returning so that the next contender
	// measures its spacing from this acquisition.
	slot.lastCall = time.Now()
	return nil
}

// Interval returns the configured minimum inter-call interval.
func (p *Pacer) Interval() time.Duration { return p.interval }

func (p *Pacer) slot(resource string) *pacerSlot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[resource]
	if !ok {
		s = &pacerSlot{}
		p.slots[resource] = s
	}
	return s
}
