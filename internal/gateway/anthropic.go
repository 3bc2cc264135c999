package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/goccy/go-json"

	"github.com/BerylCAtieno/recommendation-agent/internal/models"
)

// Anthropic talks to the Anthropic Messages API through the official SDK.
type Anthropic struct {
	client      anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	temperature float64
}

var _ Gateway = (*Anthropic)(nil)

func NewAnthropic(opts Options) *Anthropic {
	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		// Callers decide whether to send again.
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &Anthropic{
		client:      anthropic.NewClient(clientOpts...),
		model:       anthropic.Model(opts.Model),
		maxTokens:   int64(opts.MaxTokens),
		temperature: float64(opts.Temperature),
	}
}

func (a *Anthropic) Send(ctx context.Context, req Request) (string, error) {
	content := make([]anthropic.ContentBlockParamUnion, 0, 2)
	if req.Document != nil {
		block, err := documentBlock(req.Document)
		if err != nil {
			return "", err
		}
		content = append(content, block)
	}
	content = append(content, anthropic.NewTextBlock(req.Text))

	params := anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(a.temperature),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(content...)},
	}
	if len(req.Context) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(req.Context, "\n\n")}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyAnthropic(ctx, err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

func documentBlock(doc *models.Document) (anthropic.ContentBlockParamUnion, error) {
	kind, err := classifyDocument(doc)
	if err != nil {
		return anthropic.ContentBlockParamUnion{}, err
	}
	var block anthropic.ContentBlockParamUnion
	if kind == documentPDF {
		block = anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
			Data: base64.StdEncoding.EncodeToString(doc.Data),
		})
	} else {
		block = anthropic.NewDocumentBlock(anthropic.PlainTextSourceParam{Data: string(doc.Data)})
	}
	if doc.Name != "" {
		block.OfDocument.Title = anthropic.String(doc.Name)
	}
	return block, nil
}

func classifyAnthropic(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		se := anthropicError(apiErr.StatusCode, []byte(apiErr.RawJSON()))
		se.Err = err
		return se
	}
	return &ServiceError{Subkind: models.SubkindUnavailable, Message: "request failed", Err: err}
}

type anthropicErrorBody struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// anthropicTypes maps the API's error type onto a subkind. The type wins over
// the status code when both are present.
var anthropicTypes = map[string]models.ServiceSubkind{
	"invalid_request_error": models.SubkindInvalidRequest,
	"authentication_error":  models.SubkindAuthentication,
	"permission_error":      models.SubkindPermission,
	"not_found_error":       models.SubkindInvalidRequest,
	"request_too_large":     models.SubkindRequestTooLarge,
	"rate_limit_error":      models.SubkindRateLimited,
	"api_error":             models.SubkindUpstreamInternal,
	"overloaded_error":      models.SubkindOverloaded,
}

func anthropicError(code int, raw []byte) *ServiceError {
	se := &ServiceError{Subkind: ClassifyStatus(code), StatusCode: code}

	var body anthropicErrorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Error.Type == "" {
		se.Message = strings.TrimSpace(string(raw))
		if se.Message == "" {
			se.Message = http.StatusText(code)
		}
		return se
	}
	se.Message = body.Error.Message
	if sub, ok := anthropicTypes[body.Error.Type]; ok {
		se.Subkind = sub
	}
	return se
}
