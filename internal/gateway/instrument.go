package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/BerylCAtieno/recommendation-agent/internal/logging"
	"github.com/BerylCAtieno/recommendation-agent/internal/metrics"
)

type instrumented struct {
	next     Gateway
	provider string
}

// Instrument records the outcome of every call in metrics and logs failures.
func Instrument(next Gateway, provider string) Gateway {
	return &instrumented{next: next, provider: provider}
}

func (g *instrumented) Send(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	text, err := g.next.Send(ctx, req)
	outcome := outcomeOf(err)
	metrics.GatewayRequests.WithLabelValues(g.provider, outcome).Inc()

	log := logging.Ctx(ctx)
	if err != nil {
		log.Warn().Err(err).Str("provider", g.provider).Str("outcome", outcome).Dur("duration", time.Since(start)).Msg("Gateway call failed")
		return "", err
	}
	log.Debug().Str("provider", g.provider).Int("response_len", len(text)).Dur("duration", time.Since(start)).Msg("Gateway call completed")
	return text, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return string(se.Subkind)
	}
	return "error"
}
