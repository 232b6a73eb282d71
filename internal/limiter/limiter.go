package limiter

import (
	"github.com/local/docverify/internal/metrics"
)

// Inflight bounds the number of concurrently admitted verification runs.
// Requests beyond the bound are rejected immediately, never queued.
type Inflight struct {
	slots chan struct{}
}

func New(max int) *Inflight {
	if max <= 0 {
		max = 1
	}
	return &Inflight{slots: make(chan struct{}, max)}
}

// Acquire tries to reserve a slot. On success it returns a release function
// that must be called exactly once when the run finishes.
func (l *Inflight) Acquire() (func(), bool) {
	select {
	case l.slots <- struct{}{}:
		metrics.RunsInflightAdd(1)
		return func() {
			<-l.slots
			metrics.RunsInflightAdd(-1)
		}, true
	default:
		return nil, false
	}
}

// InUse reports the number of currently held slots.
func (l *Inflight) InUse() int { return len(l.slots) }

// Cap reports the configured bound.
func (l *Inflight) Cap() int { return cap(l.slots) }
