// Package api exposes the recommendation pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/BerylCAtieno/recommendation-agent/internal/logging"
	"github.com/BerylCAtieno/recommendation-agent/internal/models"
	"github.com/BerylCAtieno/recommendation-agent/internal/pipeline"
)

// Recommender runs the pipeline operations. *pipeline.Orchestrator is the
// production implementation.
type Recommender interface {
	Strengths(ctx context.Context, req pipeline.Request) pipeline.CategoryResult
	Challenges(ctx context.Context, req pipeline.Request) pipeline.CategoryResult
	Needs(ctx context.Context, req pipeline.Request) pipeline.CategoryResult
	Goals(ctx context.Context, req pipeline.Request) pipeline.CategoryResult
	Means(ctx context.Context, req pipeline.Request) pipeline.CategoryResult
	FullProfile(ctx context.Context, req pipeline.Request) models.PipelineResult
}

var _ Recommender = (*pipeline.Orchestrator)(nil)

// Envelope is the body of every API response.
type Envelope struct {
	Error   bool   `json:"error"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

const mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Upload types accepted by the full-profile endpoint, by extension.
var uploadExtensions = map[string]string{
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".docx": mimeDocx,
}

func allowedUpload(mimeType string) bool {
	for _, t := range uploadExtensions {
		if t == mimeType {
			return true
		}
	}
	return false
}

type Handler struct {
	rec       Recommender
	maxUpload int64
}

func NewHandler(rec Recommender, maxUpload int64) *Handler {
	registerValidators()
	if maxUpload <= 0 {
		maxUpload = 20 << 20
	}
	return &Handler{rec: rec, maxUpload: maxUpload}
}

func (h *Handler) Strengths(c *gin.Context)  { h.described(c, h.rec.Strengths) }
func (h *Handler) Challenges(c *gin.Context) { h.described(c, h.rec.Challenges) }
func (h *Handler) Needs(c *gin.Context)      { h.described(c, h.rec.Needs) }

func (h *Handler) Goals(c *gin.Context) {
	var req GoalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	h.category(c, h.rec.Goals(c.Request.Context(), req.build()))
}

func (h *Handler) Means(c *gin.Context) {
	var req MeansRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	h.category(c, h.rec.Means(c.Request.Context(), req.build()))
}

type categoryOp func(ctx context.Context, req pipeline.Request) pipeline.CategoryResult

func (h *Handler) described(c *gin.Context, op categoryOp) {
	var body DescriptionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		bindError(c, err)
		return
	}
	req, err := body.build(nil)
	if err != nil {
		respond(c, http.StatusUnprocessableEntity, Envelope{Error: true, Message: err.Error()})
		return
	}
	h.category(c, op(c.Request.Context(), req))
}

func (h *Handler) category(c *gin.Context, r pipeline.CategoryResult) {
	if !r.OK() {
		failure(c, r.Failure)
		return
	}
	if r.Items != nil {
		respond(c, http.StatusOK, Envelope{Data: r.Items})
		return
	}
	respond(c, http.StatusOK, Envelope{Data: r.Texts})
}

// FullProfile accepts a multipart form with an optional "file" part, or a
// JSON body without a document.
func (h *Handler) FullProfile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)

	var body DescriptionRequest
	if err := c.ShouldBind(&body); err != nil {
		bindError(c, err)
		return
	}

	var doc *models.Document
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		d, status, err := h.document(c)
		if err != nil {
			respond(c, status, Envelope{Error: true, Message: err.Error()})
			return
		}
		doc = d
	}

	req, err := body.build(doc)
	if err != nil {
		respond(c, http.StatusUnprocessableEntity, Envelope{Error: true, Message: err.Error()})
		return
	}

	res := h.rec.FullProfile(c.Request.Context(), req)
	if !res.OK() {
		failure(c, res.Failure)
		return
	}
	respond(c, http.StatusOK, Envelope{Data: res.Profile})
}

// document reads the optional upload into memory.
func (h *Handler) document(c *gin.Context) (*models.Document, int, error) {
	fh, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("read upload: %w", err)
	}
	if fh.Size > h.maxUpload {
		return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds %d bytes", h.maxUpload)
	}

	mimeType := uploadType(fh.Header.Get("Content-Type"), fh.Filename)
	if !allowedUpload(mimeType) {
		return nil, http.StatusBadRequest, fmt.Errorf("unsupported file type %q: accepted types are pdf, txt and docx", mimeType)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > h.maxUpload {
		return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds %d bytes", h.maxUpload)
	}

	logging.Ctx(c.Request.Context()).Info().Str("file", fh.Filename).Str("mime_type", mimeType).
		Int("bytes", len(data)).Msg("Document received")
	return &models.Document{Name: fh.Filename, MIMEType: mimeType, Data: data}, 0, nil
}

// uploadType prefers the declared part type and falls back to the file
// extension when the client sent none or a generic one.
func uploadType(declared, filename string) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
		return mt
	}
	if mt, ok := uploadExtensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt
	}
	return declared
}

// StatusFor maps a failure onto the HTTP status returned to the client.
func StatusFor(f *models.Failure) int {
	switch f.Kind {
	case models.KindTimeout:
		return http.StatusGatewayTimeout
	case models.KindService:
		switch f.Subkind {
		case models.SubkindRateLimited:
			return http.StatusTooManyRequests
		case models.SubkindOverloaded, models.SubkindUnavailable:
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}

func failure(c *gin.Context, f *models.Failure) {
	status := StatusFor(f)
	logging.Ctx(c.Request.Context()).Error().Str("kind", string(f.Kind)).Str("subkind", string(f.Subkind)).
		Str("stage", string(f.Stage)).Int("status", status).Msg(f.Message)
	respond(c, status, Envelope{Error: true, Message: f.Error()})
}

func bindError(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		respond(c, http.StatusRequestEntityTooLarge, Envelope{Error: true, Message: fmt.Sprintf("request exceeds %d bytes", maxErr.Limit)})
		return
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		respond(c, http.StatusUnprocessableEntity, Envelope{Error: true, Message: strings.Join(msgs, "; ")})
		return
	}
	respond(c, http.StatusBadRequest, Envelope{Error: true, Message: "invalid request body: " + err.Error()})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case tagChallengesOrNeeds:
		return "at least one of challenges or needs must be provided"
	}
	return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
}

func respond(c *gin.Context, status int, body Envelope) {
	c.JSON(status, body)
}

func (h *Handler) Welcome(c *gin.Context) {
	respond(c, http.StatusOK, Envelope{Data: "Welcome to the recommendation API. Endpoints live under /api/v1."})
}
