// Package a2a exposes the full-profile pipeline as an A2A agent over
// JSON-RPC.
package a2a

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/BerylCAtieno/recommendation-agent/internal/logging"
	"github.com/BerylCAtieno/recommendation-agent/internal/models"
	"github.com/BerylCAtieno/recommendation-agent/internal/pipeline"
)

var ErrNoDescription = errors.New("please describe the student to generate recommendations")

// Profiler runs the full-profile pipeline.
type Profiler interface {
	FullProfile(ctx context.Context, req pipeline.Request) models.PipelineResult
}

type Handler struct {
	profiler Profiler
	card     []byte
}

func NewHandler(profiler Profiler, card AgentCard) (*Handler, error) {
	data, err := json.Marshal(card)
	if err != nil {
		return nil, fmt.Errorf("encode agent card: %w", err)
	}
	return &Handler{profiler: profiler, card: data}, nil
}

// Register mounts the agent card and the JSON-RPC endpoint.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET(cardPath, h.ServeAgentCard)
	r.POST(rpcPath, h.HandleRecommend)
}

func (h *Handler) ServeAgentCard(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", h.card)
}

// HandleRecommend processes message/send and agent/task calls. A body that
// is not a JSON-RPC request but parses as message params is accepted too.
func (h *Handler) HandleRecommend(c *gin.Context) {
	log := logging.Ctx(c.Request.Context())

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read A2A request body")
		h.sendError(c, nil, CodeParseError, "Failed to read request body")
		return
	}
	log.Debug().Int("bytes", len(body)).Msg("A2A request received")

	var rpcReq JSONRPCRequest
	if err := json.Unmarshal(body, &rpcReq); err != nil || rpcReq.Method == "" {
		h.handleDirectMessage(c, body)
		return
	}

	if rpcReq.JSONRPC != "2.0" {
		log.Warn().Str("jsonrpc", rpcReq.JSONRPC).Msg("Invalid JSON-RPC version")
		h.sendError(c, rpcReq.ID, CodeInvalidRequest, "Invalid JSON-RPC version")
		return
	}

	switch rpcReq.Method {
	case "message/send", "agent/task":
		var params MessageParams
		if err := json.Unmarshal(rpcReq.Params, &params); err != nil {
			log.Warn().Err(err).Msg("Invalid message params")
			h.sendError(c, rpcReq.ID, CodeInvalidParams, "Invalid parameters")
			return
		}
		h.sendResult(c, rpcReq.ID, h.runTask(c.Request.Context(), params.Message))
	default:
		log.Warn().Str("method", rpcReq.Method).Msg("Unknown JSON-RPC method")
		h.sendError(c, rpcReq.ID, CodeMethodNotFound, "Method not found: "+rpcReq.Method)
	}
}

func (h *Handler) handleDirectMessage(c *gin.Context, body []byte) {
	var params MessageParams
	if err := json.Unmarshal(body, &params); err != nil || len(params.Message.Parts) == 0 {
		logging.Ctx(c.Request.Context()).Warn().Msg("Request is neither JSON-RPC nor message params")
		h.sendError(c, nil, CodeParseError, "Invalid request format")
		return
	}
	h.sendResult(c, json.RawMessage(`"direct-message"`), h.runTask(c.Request.Context(), params.Message))
}

// runTask turns a user message into a pipeline request and the pipeline
// result into a task.
func (h *Handler) runTask(ctx context.Context, msg Message) TaskResult {
	task := newTask(msg)
	log := logging.Ctx(ctx).With().Str("task_id", task.ID).Logger()

	req, err := requestFrom(msg)
	if err != nil {
		log.Info().Err(err).Msg("Rejected A2A message")
		return task.fail(err.Error(), nil)
	}

	log.Info().Str("locale", req.Locale).Msg("Running full profile for A2A task")
	res := h.profiler.FullProfile(ctx, req)
	if !res.OK() {
		return task.fail(failureText(res.Failure), res.Failure)
	}
	return task.complete(*res.Profile)
}

// maxItemCount matches the bound on the REST endpoints.
const maxItemCount = 50

// profileData is the optional structured part of a user message.
type profileData struct {
	Age       *float64 `json:"age"`
	Gender    string   `json:"gender"`
	Locale    string   `json:"locale"`
	ItemCount int      `json:"item_count"`
}

func requestFrom(msg Message) (pipeline.Request, error) {
	var (
		texts []string
		data  profileData
	)
	for _, part := range msg.Parts {
		switch part.Kind {
		case "text":
			if t := cleanText(part.Text); t != "" {
				texts = append(texts, t)
			}
		case "data":
			t, err := readDataPart(part.Data, &data)
			if err != nil {
				return pipeline.Request{}, err
			}
			if t != "" {
				texts = append(texts, t)
			}
		}
	}

	description := strings.TrimSpace(strings.Join(texts, " "))
	if description == "" {
		return pipeline.Request{}, ErrNoDescription
	}
	if data.ItemCount < 0 || data.ItemCount > maxItemCount {
		return pipeline.Request{}, fmt.Errorf("item_count must be between 1 and %d", maxItemCount)
	}
	gender, err := models.ParseGender(data.Gender)
	if err != nil {
		return pipeline.Request{}, err
	}
	profile, err := models.NewProfile(data.Age, gender, description, nil)
	if err != nil {
		return pipeline.Request{}, err
	}
	return pipeline.Request{Profile: profile, Locale: data.Locale, ItemCount: data.ItemCount}, nil
}

// readDataPart fills profile fields from an object part. An array part is
// treated as conversation history and its latest text entry is returned.
func readDataPart(raw json.RawMessage, into *profileData) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case strings.HasPrefix(trimmed, "{"):
		if err := json.Unmarshal(raw, into); err != nil {
			return "", fmt.Errorf("invalid profile data: %w", err)
		}
	case strings.HasPrefix(trimmed, "["):
		var history []MessagePart
		if err := json.Unmarshal(raw, &history); err != nil {
			return "", fmt.Errorf("invalid message history: %w", err)
		}
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Kind != "text" {
				continue
			}
			if t := cleanText(history[i].Text); t != "" {
				return t, nil
			}
		}
	}
	return "", nil
}

var htmlTags = strings.NewReplacer("<p>", "", "</p>", "", "<br>", " ", "<br/>", " ")

func cleanText(s string) string {
	return strings.TrimSpace(htmlTags.Replace(s))
}

type task struct {
	TaskResult
	request Message
}

func newTask(msg Message) *task {
	id := msg.TaskID
	if id == "" {
		id = uuid.NewString()
	}
	contextID := msg.ContextID
	if contextID == "" {
		contextID = uuid.NewString()
	}
	return &task{
		TaskResult: TaskResult{ID: id, ContextID: contextID, Kind: "task"},
		request:    msg,
	}
}

func (t *task) agentMessage(parts ...MessagePart) *Message {
	return &Message{
		Kind:      "message",
		Role:      RoleAgent,
		Parts:     parts,
		MessageID: uuid.NewString(),
		TaskID:    t.ID,
		ContextID: t.ContextID,
	}
}

func (t *task) complete(p models.FullProfile) TaskResult {
	text := formatProfile(p)
	reply := t.agentMessage(TextPart(text))

	t.Status = TaskStatus{State: StateCompleted, Timestamp: Timestamp(), Message: reply}
	t.Artifacts = []Artifact{{
		ArtifactID: uuid.NewString(),
		Name:       "Recommendations",
		Parts:      []MessagePart{TextPart(text)},
	}}
	if part, err := DataPart(p); err == nil {
		t.Artifacts = append(t.Artifacts, Artifact{
			ArtifactID: uuid.NewString(),
			Name:       "Recommendation Data",
			Parts:      []MessagePart{part},
		})
	}
	t.History = []Message{t.request, *reply}
	return t.TaskResult
}

func (t *task) fail(text string, f *models.Failure) TaskResult {
	parts := []MessagePart{TextPart(text)}
	if f != nil {
		detail := map[string]any{
			"kind":      f.Kind,
			"subkind":   f.Subkind,
			"stage":     f.Stage,
			"message":   f.Message,
			"retryable": f.Retryable(),
		}
		if part, err := DataPart(detail); err == nil {
			parts = append(parts, part)
		}
	}
	t.Status = TaskStatus{State: StateFailed, Timestamp: Timestamp(), Message: t.agentMessage(parts...)}
	return t.TaskResult
}

func failureText(f *models.Failure) string {
	text := "Failed to generate recommendations: " + f.Error()
	if f.Retryable() {
		text += ". The request can be sent again."
	}
	return text
}

func formatProfile(p models.FullProfile) string {
	var b strings.Builder
	b.WriteString("# Student Recommendations\n")

	section := func(title string, entries []string) {
		if len(entries) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n**%s:**\n", title)
		for _, e := range entries {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(e))
		}
	}
	section("Strengths", p.Strengths)
	section("Challenges", p.Challenges)
	section("Needs", p.Needs)
	section("Goals", models.Descriptions(p.Goals))
	section("Means", models.Descriptions(p.Means))
	return b.String()
}

func (h *Handler) sendResult(c *gin.Context, id json.RawMessage, result TaskResult) {
	logging.Ctx(c.Request.Context()).Info().Str("task_id", result.ID).Str("state", result.Status.State).
		Msg("A2A task finished")
	writeJSON(c, JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result})
}

// sendError replies with a JSON-RPC error; transport status stays 200.
func (h *Handler) sendError(c *gin.Context, id json.RawMessage, code int, message string) {
	logging.Ctx(c.Request.Context()).Warn().Int("code", code).Msg(message)
	writeJSON(c, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	})
}

func writeJSON(c *gin.Context, resp JSONRPCResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		logging.Ctx(c.Request.Context()).Error().Err(err).Msg("Failed to encode JSON-RPC response")
		c.String(http.StatusInternalServerError, "failed to encode response")
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}
