// Package gateway sends assembled prompts to a generative text service and
// returns the raw text, classifying failures by cause. Nothing in this
// package retries.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/BerylCAtieno/recommendation-agent/internal/config"
	"github.com/BerylCAtieno/recommendation-agent/internal/models"
)

// Request is one assembled prompt.
type Request struct {
	Text string
	// Context holds auxiliary instruction documents sent alongside Text.
	Context  []string
	Document *models.Document
}

// Gateway is a single blocking call to the generative service. Errors are
// either a context error, returned as is, or a *ServiceError.
type Gateway interface {
	Send(ctx context.Context, req Request) (string, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, req Request) (string, error)

func (f GatewayFunc) Send(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// Options are the settings shared by every backend.
type Options struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

func optionsFrom(cfg config.GatewayConfig) Options {
	return Options{
		APIKey:      cfg.ResolvedAPIKey(),
		Model:       cfg.DefaultModel(),
		BaseURL:     cfg.BaseURL,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
	}
}

// Open builds the configured backend, wrapped with instrumentation and, when
// enabled, a circuit breaker. The returned close function releases the
// backend's client.
func Open(ctx context.Context, cfg config.GatewayConfig) (Gateway, func() error, error) {
	opts := optionsFrom(cfg)
	noop := func() error { return nil }

	var (
		gw      Gateway
		closeFn = noop
	)
	switch cfg.Provider {
	case config.ProviderGemini:
		g, err := NewGemini(ctx, opts)
		if err != nil {
			return nil, nil, err
		}
		gw, closeFn = g, g.Close
	case config.ProviderGenAI:
		g, err := NewGenAI(ctx, opts)
		if err != nil {
			return nil, nil, err
		}
		gw = g
	case config.ProviderAnthropic:
		gw = NewAnthropic(opts)
	default:
		return nil, nil, fmt.Errorf("unknown gateway provider %q", cfg.Provider)
	}

	gw = Instrument(gw, cfg.Provider)
	if cfg.Breaker.Enabled {
		gw = NewBreaker(gw, cfg.Provider+"-gateway", cfg.Breaker)
	}
	return gw, closeFn, nil
}

type documentKind int

const (
	documentText documentKind = iota
	documentPDF
)

// classifyDocument decides how a document is forwarded. Only PDF and plain
// text are accepted by every backend.
func classifyDocument(doc *models.Document) (documentKind, error) {
	mime := strings.ToLower(strings.TrimSpace(doc.MIMEType))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch {
	case mime == "application/pdf":
		return documentPDF, nil
	case strings.HasPrefix(mime, "text/"):
		return documentText, nil
	default:
		return 0, &ServiceError{
			Subkind: models.SubkindInvalidRequest,
			Message: fmt.Sprintf("document %q: unsupported type %q", doc.Name, doc.MIMEType),
		}
	}
}
