package a2a

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BerylCAtieno/recommendation-agent/internal/models"
	"github.com/BerylCAtieno/recommendation-agent/internal/pipeline"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type stubProfiler struct {
	result models.PipelineResult
	calls  int
	last   pipeline.Request
}

func (s *stubProfiler) FullProfile(ctx context.Context, req pipeline.Request) models.PipelineResult {
	s.calls++
	s.last = req
	return s.result
}

func sampleProfile() models.FullProfile {
	return models.FullProfile{
		Strengths:  []string{"Reads fluently"},
		Challenges: []string{"Group work"},
		Needs:      []string{"Quiet corner"},
		Goals:      []models.RecommendationItem{{ID: "g1", Description: "Join one pair activity a week"}},
		Means:      []models.RecommendationItem{{ID: "m1", Description: "Buddy system"}},
	}
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  *TaskResult     `json:"result"`
	Error   *RPCError       `json:"error"`
}

func call(t *testing.T, p Profiler, body string) rpcResponse {
	t.Helper()
	h, err := NewHandler(p, NewAgentCard("http://agent.test", []string{"en", "fr"}))
	require.NoError(t, err)

	r := gin.New()
	h.Register(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, rpcPath, strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

const sendMessage = `{
	"jsonrpc": "2.0",
	"id": "req-1",
	"method": "message/send",
	"params": {
		"message": {
			"kind": "message",
			"role": "user",
			"messageId": "u-1",
			"parts": [
				{"kind": "text", "text": "<p>Eleven year old, reads well, struggles in group work.</p>"},
				{"kind": "data", "data": {"age": 11, "gender": "female", "locale": "fr"}}
			]
		}
	}
}`

func TestHandleRecommend_Completed(t *testing.T) {
	p := &stubProfiler{result: models.PipelineSuccess(sampleProfile())}
	resp := call(t, p, sendMessage)

	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)
	assert.Equal(t, `"req-1"`, string(resp.ID))
	assert.Equal(t, StateCompleted, resp.Result.Status.State)
	assert.NotEmpty(t, resp.Result.ID)

	require.Equal(t, 1, p.calls)
	assert.Equal(t, "Eleven year old, reads well, struggles in group work.", p.last.Profile.Description)
	assert.Equal(t, models.GenderFemale, p.last.Profile.Gender)
	require.NotNil(t, p.last.Profile.Age)
	assert.InDelta(t, 11, *p.last.Profile.Age, 1e-9)
	assert.Equal(t, "fr", p.last.Locale)

	text := resp.Result.Status.Message.Parts[0].Text
	assert.Contains(t, text, "**Goals:**\n- Join one pair activity a week")
	assert.Contains(t, text, "**Means:**\n- Buddy system")

	require.Len(t, resp.Result.Artifacts, 2)
	data := resp.Result.Artifacts[1].Parts[0]
	assert.Equal(t, "data", data.Kind)
	var decoded models.FullProfile
	require.NoError(t, json.Unmarshal(data.Data, &decoded))
	assert.Equal(t, sampleProfile(), decoded)
}

func TestHandleRecommend_FailedTask(t *testing.T) {
	f := &models.Failure{Kind: models.KindTimeout, Stage: models.StageFull, Message: "stage did not complete within 5m0s"}
	resp := call(t, &stubProfiler{result: models.PipelineFailure(f)}, sendMessage)

	require.NotNil(t, resp.Result)
	assert.Equal(t, StateFailed, resp.Result.Status.State)
	parts := resp.Result.Status.Message.Parts
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0].Text, "timeout")
	assert.Contains(t, parts[0].Text, "sent again")
	assert.JSONEq(t, `{"kind":"timeout","subkind":"","stage":"full","message":"stage did not complete within 5m0s","retryable":true}`,
		string(parts[1].Data))
}

func TestHandleRecommend_NoDescription(t *testing.T) {
	p := &stubProfiler{}
	resp := call(t, p, `{"jsonrpc":"2.0","id":"2","method":"agent/task","params":{"message":{"role":"user","parts":[{"kind":"text","text":"  "}]}}}`)

	require.NotNil(t, resp.Result)
	assert.Equal(t, StateFailed, resp.Result.Status.State)
	assert.Equal(t, ErrNoDescription.Error(), resp.Result.Status.Message.Parts[0].Text)
	assert.Zero(t, p.calls)
}

func TestHandleRecommend_InvalidProfileData(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"age not a number", `{"age":"twelve"}`, "invalid profile data"},
		{"item count too large", `{"item_count":51}`, "item_count must be between 1 and 50"},
		{"negative item count", `{"item_count":-1}`, "item_count must be between 1 and 50"},
		{"broken history", `[{"kind":"text","text":1}]`, "invalid message history"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &stubProfiler{}
			body := `{"jsonrpc":"2.0","id":"3","method":"message/send","params":{"message":{"role":"user","parts":[` +
				`{"kind":"text","text":"Quiet student who likes maps"},{"kind":"data","data":` + tt.data + `}]}}}`

			resp := call(t, p, body)
			require.NotNil(t, resp.Result)
			assert.Equal(t, StateFailed, resp.Result.Status.State)
			assert.Contains(t, resp.Result.Status.Message.Parts[0].Text, tt.want)
			assert.Zero(t, p.calls)
		})
	}
}

func TestHandleRecommend_RPCErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"not json", `hello`, CodeParseError},
		{"bad version", `{"jsonrpc":"1.0","id":"1","method":"message/send","params":{}}`, CodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":"1","method":"tasks/cancel","params":{}}`, CodeMethodNotFound},
		{"bad params", `{"jsonrpc":"2.0","id":"1","method":"message/send","params":{"message":"oops"}}`, CodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, &stubProfiler{}, tt.body)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Nil(t, resp.Result)
		})
	}
}

func TestHandleRecommend_DirectMessageWithHistory(t *testing.T) {
	p := &stubProfiler{result: models.PipelineSuccess(sampleProfile())}
	body := `{"message":{"role":"user","parts":[{"kind":"data","data":[
		{"kind":"text","text":"older message"},
		{"kind":"text","text":"<p>Shy student who loves drawing</p>"}
	]}]}}`

	resp := call(t, p, body)
	require.NotNil(t, resp.Result)
	assert.Equal(t, StateCompleted, resp.Result.Status.State)
	assert.Equal(t, "Shy student who loves drawing", p.last.Profile.Description)
	assert.Equal(t, models.GenderUndefined, p.last.Profile.Gender)
}

func TestServeAgentCard(t *testing.T) {
	h, err := NewHandler(&stubProfiler{}, NewAgentCard("http://agent.test/", []string{"en"}))
	require.NoError(t, err)
	r := gin.New()
	h.Register(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var card map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))
	for _, field := range []string{"name", "description", "version", "capabilities", "endpoints", "skills"} {
		assert.Contains(t, card, field)
	}
	assert.Equal(t, "http://agent.test/a2a/recommend", card["url"])
}
