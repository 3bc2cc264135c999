package gateway

import (
	"context"
	"errors"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/BerylCAtieno/recommendation-agent/internal/config"
	"github.com/BerylCAtieno/recommendation-agent/internal/logging"
	"github.com/BerylCAtieno/recommendation-agent/internal/metrics"
	"github.com/BerylCAtieno/recommendation-agent/internal/models"
)

// Breaker rejects calls while the service keeps failing. A rejected call is
// reported as unavailable and is never repeated.
type Breaker struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker[string]
	name string
}

var _ Gateway = (*Breaker)(nil)

func NewBreaker(next Gateway, name string, cfg config.BreakerConfig) *Breaker {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			trip := ratio >= cfg.FailureRatio
			if trip {
				logging.Warn().Str("breaker", name).Uint32("failures", counts.TotalFailures).Float64("failure_ratio", ratio).Msg("Opening circuit")
			}
			return trip
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &Breaker{next: next, cb: cb, name: name}
}

func (b *Breaker) Send(ctx context.Context, req Request) (string, error) {
	text, err := b.cb.Execute(func() (string, error) {
		return b.next.Send(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", &ServiceError{Subkind: models.SubkindUnavailable, Message: "circuit breaker " + b.name + " is open", Err: err}
	}
	return text, err
}

func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// countsAsSuccess keeps caller-side problems from tripping the breaker: only
// failures that say the service itself is unhealthy count.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var se *ServiceError
	if !errors.As(err, &se) {
		return true
	}
	switch se.Subkind {
	case models.SubkindUnavailable, models.SubkindOverloaded, models.SubkindUpstreamInternal, models.SubkindRateLimited:
		return false
	}
	return true
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
