package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GenAI talks to the Gemini API through the google.golang.org/genai SDK.
type GenAI struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

var _ Gateway = (*GenAI)(nil)

func NewGenAI(ctx context.Context, opts Options) (*GenAI, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAI{
		client: client,
		model:  opts.Model,
		config: &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(opts.Temperature),
			TopP:            genai.Ptr(opts.TopP),
			MaxOutputTokens: int32(opts.MaxTokens),
		},
	}, nil
}

func (g *GenAI) Send(ctx context.Context, req Request) (string, error) {
	parts := make([]*genai.Part, 0, 2)
	if req.Document != nil {
		kind, err := classifyDocument(req.Document)
		if err != nil {
			return "", err
		}
		if kind == documentPDF {
			parts = append(parts, genai.NewPartFromBytes(req.Document.Data, "application/pdf"))
		} else {
			parts = append(parts, genai.NewPartFromText(string(req.Document.Data)))
		}
	}
	parts = append(parts, genai.NewPartFromText(req.Text))

	// Copy the shared config so concurrent calls never share a system instruction.
	cfg := *g.config
	if len(req.Context) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(req.Context, "\n\n"), genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&cfg,
	)
	if err != nil {
		return "", classifyGenAI(ctx, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}

func classifyGenAI(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ServiceError{Subkind: ClassifyStatus(apiErr.Code), StatusCode: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &ServiceError{Subkind: ClassifyStatus(apiErrPtr.Code), StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message, Err: err}
	}
	return classifyGoogle(ctx, err)
}
