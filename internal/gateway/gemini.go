package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/BerylCAtieno/recommendation-agent/internal/models"
)

// Gemini talks to the Gemini API through the generative-ai-go SDK.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

var _ Gateway = (*Gemini)(nil)

func NewGemini(ctx context.Context, opts Options) (*Gemini, error) {
	clientOpts := []option.ClientOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.BaseURL))
	}
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(opts.Model)
	model.SetTemperature(opts.Temperature)
	model.SetTopP(opts.TopP)
	model.SetMaxOutputTokens(int32(opts.MaxTokens))

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Send(ctx context.Context, req Request) (string, error) {
	parts := make([]genai.Part, 0, len(req.Context)+2)
	for _, doc := range req.Context {
		parts = append(parts, genai.Text(doc))
	}
	if req.Document != nil {
		kind, err := classifyDocument(req.Document)
		if err != nil {
			return "", err
		}
		if kind == documentPDF {
			parts = append(parts, genai.Blob{MIMEType: "application/pdf", Data: req.Document.Data})
		} else {
			parts = append(parts, genai.Text(req.Document.Data))
		}
	}
	parts = append(parts, genai.Text(req.Text))

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return "", &ServiceError{Subkind: models.SubkindInvalidRequest, Message: "content blocked by safety filters", Err: err}
		}
		return "", classifyGoogle(ctx, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}
