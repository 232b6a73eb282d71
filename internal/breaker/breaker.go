package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/local/docverify/internal/apperr"
	"github.com/local/docverify/internal/metrics"
)

// Settings applies to every breaker handed out by a registry.
type Settings struct {
	Failures uint32
	Cooldown time.Duration
}

// Registry hands out one circuit breaker per external service (ocr, llm).
// Breakers are created lazily and live for the process lifetime.
type Registry struct {
	mu       sync.Mutex
	settings Settings
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewRegistry(s Settings) *Registry {
	if s.Failures == 0 {
		s.Failures = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	return &Registry{settings: s, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (r *Registry) get(service string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[service]; ok {
		return cb
	}
	st := r.settings
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        service,
		MaxRequests: 1, // single half-open probe
		Timeout:     st.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.Failures
		},
		// Typed non-retryable failures are ours, not the service's; they must
		// not poison the breaker. Untyped errors are unexpected and count.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if e, ok := apperr.As(err); ok {
				return !e.Retryable
			}
			return false
		},
		OnStateChange: onStateChange,
	})
	r.breakers[service] = cb
	return cb
}

// Do executes fn through the service's breaker. When the breaker is open (or
// the half-open probe slot is taken) it fails fast with SERVICE_UNAVAILABLE.
func (r *Registry) Do(service string, fn func() error) error {
	cb := r.get(service)
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Wrap(apperr.CodeServiceUnavailable, service+" circuit open", false, err)
	}
	return err
}

// State returns the service's breaker state name (closed when never used).
func (r *Registry) State(service string) string {
	r.mu.Lock()
	cb, ok := r.breakers[service]
	r.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return cb.State().String()
}

// States reports every known breaker's state for the health probe.
func (r *Registry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb.State().String()
	}
	return out
}

func onStateChange(name string, from, to gobreaker.State) {
	log.Warn().Str("service", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
	switch to {
	case gobreaker.StateOpen:
		metrics.BreakerOpened(name)
	case gobreaker.StateHalfOpen:
		metrics.BreakerHalfOpen(name)
	case gobreaker.StateClosed:
		metrics.BreakerClosed(name)
	}
}
