package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
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

type stubRecommender struct {
	mu       sync.Mutex
	calls    int
	last     pipeline.Request
	category pipeline.CategoryResult
	full     models.PipelineResult
}

func (s *stubRecommender) record(req pipeline.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = req
}

func (s *stubRecommender) Strengths(ctx context.Context, req pipeline.Request) pipeline.CategoryResult {
	s.record(req)
	return s.category
}

func (s *stubRecommender) Challenges(ctx context.Context, req pipeline.Request) pipeline.CategoryResult {
	s.record(req)
	return s.category
}

func (s *stubRecommender) Needs(ctx context.Context, req pipeline.Request) pipeline.CategoryResult {
	s.record(req)
	return s.category
}

func (s *stubRecommender) Goals(ctx context.Context, req pipeline.Request) pipeline.CategoryResult {
	s.record(req)
	return s.category
}

func (s *stubRecommender) Means(ctx context.Context, req pipeline.Request) pipeline.CategoryResult {
	s.record(req)
	return s.category
}

func (s *stubRecommender) FullProfile(ctx context.Context, req pipeline.Request) models.PipelineResult {
	s.record(req)
	return s.full
}

type envelope struct {
	Error   bool            `json:"error"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func serve(t *testing.T, h *Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestStrengths_Success(t *testing.T) {
	rec := &stubRecommender{category: pipeline.CategoryResult{Stage: models.StageStrengths, Texts: []string{"a", "b"}}}
	h := NewHandler(rec, 0)

	w, env := serve(t, h, postJSON("/api/v1/strengths/",
		`{"description":"Enjoys music","age":12.5,"gender":"female","locale":"fr","item_count":3}`))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, env.Error)
	assert.JSONEq(t, `["a","b"]`, string(env.Data))

	require.Equal(t, 1, rec.calls)
	assert.Equal(t, models.GenderFemale, rec.last.Profile.Gender)
	require.NotNil(t, rec.last.Profile.Age)
	assert.InDelta(t, 12.5, *rec.last.Profile.Age, 1e-9)
	assert.Equal(t, "fr", rec.last.Locale)
	assert.Equal(t, 3, rec.last.ItemCount)
}

func TestCategory_Validation(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		body    string
		status  int
		message string
	}{
		{"missing description", "/api/v1/needs/", `{"age":10}`, http.StatusUnprocessableEntity, "description is required"},
		{"blank description", "/api/v1/needs/", `{"description":"   "}`, http.StatusUnprocessableEntity, models.ErrEmptyDescription.Error()},
		{"bad gender", "/api/v1/challenges/", `{"description":"x","gender":"robot"}`, http.StatusUnprocessableEntity, "gender must be one of"},
		{"negative age", "/api/v1/strengths/", `{"description":"x","age":-1}`, http.StatusUnprocessableEntity, "age must be at least 0"},
		{"malformed json", "/api/v1/strengths/", `{"description":`, http.StatusBadRequest, "invalid request body"},
		{"goals without challenges or needs", "/api/v1/goals/", `{"strengths":["a"],"needs":[" "]}`, http.StatusUnprocessableEntity, "at least one of challenges or needs"},
		{"means without goals", "/api/v1/means/", `{"needs":["n"]}`, http.StatusUnprocessableEntity, "goals is required"},
		{"means with empty goals", "/api/v1/means/", `{"goals":[]}`, http.StatusUnprocessableEntity, "goals must be at least 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &stubRecommender{}
			w, env := serve(t, NewHandler(rec, 0), postJSON(tt.path, tt.body))

			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.True(t, env.Error)
			assert.Contains(t, env.Message, tt.message)
			assert.Zero(t, rec.calls)
		})
	}
}

func TestGoals_PassesLists(t *testing.T) {
	items := []models.RecommendationItem{{ID: "1", Description: "read daily"}}
	rec := &stubRecommender{category: pipeline.CategoryResult{Stage: models.StageGoals, Items: items}}

	w, env := serve(t, NewHandler(rec, 0), postJSON("/api/v1/goals/",
		`{"strengths":["curious"],"challenges":["reading"]}`))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `[{"id":"1","description":"read daily"}]`, string(env.Data))
	assert.Equal(t, []string{"curious"}, rec.last.Strengths)
	assert.Equal(t, []string{"reading"}, rec.last.Challenges)
	assert.Equal(t, models.GenderUndefined, rec.last.Profile.Gender)
}

func TestMeans_PassesGoals(t *testing.T) {
	items := []models.RecommendationItem{{ID: "m", Description: "tutor"}}
	rec := &stubRecommender{category: pipeline.CategoryResult{Stage: models.StageMeans, Items: items}}

	w, _ := serve(t, NewHandler(rec, 0), postJSON("/api/v1/means/", `{"goals":["read daily"]}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"read daily"}, rec.last.Goals)
}

func TestFailureStatus(t *testing.T) {
	tests := []struct {
		failure *models.Failure
		status  int
	}{
		{&models.Failure{Kind: models.KindTimeout}, http.StatusGatewayTimeout},
		{&models.Failure{Kind: models.KindService, Subkind: models.SubkindRateLimited}, http.StatusTooManyRequests},
		{&models.Failure{Kind: models.KindService, Subkind: models.SubkindOverloaded}, http.StatusServiceUnavailable},
		{&models.Failure{Kind: models.KindService, Subkind: models.SubkindUnavailable}, http.StatusServiceUnavailable},
		{&models.Failure{Kind: models.KindService, Subkind: models.SubkindAuthentication}, http.StatusInternalServerError},
		{&models.Failure{Kind: models.KindMalformedOutput}, http.StatusInternalServerError},
		{&models.Failure{Kind: models.KindEmptyResult}, http.StatusInternalServerError},
		{&models.Failure{Kind: models.KindConfiguration}, http.StatusInternalServerError},
		{&models.Failure{Kind: models.KindUpstreamReported}, http.StatusInternalServerError},
		{&models.Failure{Kind: models.KindInternal}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, StatusFor(tt.failure), "%s/%s", tt.failure.Kind, tt.failure.Subkind)
	}
}

func TestStrengths_TimeoutIs504(t *testing.T) {
	f := &models.Failure{Kind: models.KindTimeout, Stage: models.StageStrengths, Message: "stage did not complete within 1m0s"}
	rec := &stubRecommender{category: pipeline.CategoryResult{Stage: models.StageStrengths, Failure: f}}

	w, env := serve(t, NewHandler(rec, 0), postJSON("/api/v1/strengths/", `{"description":"x"}`))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.True(t, env.Error)
	assert.Contains(t, w.Body.String(), `"data":null`)
	assert.Contains(t, env.Message, "timeout")
}

func multipartRequest(t *testing.T, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/profile/full/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func fullProfile() models.FullProfile {
	return models.FullProfile{
		Strengths:  []string{"s"},
		Challenges: []string{"c"},
		Needs:      []string{"n"},
		Goals:      []models.RecommendationItem{{ID: "g1", Description: "g"}},
		Means:      []models.RecommendationItem{{ID: "m1", Description: "m"}},
	}
}

func TestFullProfile_MultipartWithDocument(t *testing.T) {
	rec := &stubRecommender{full: models.PipelineSuccess(fullProfile())}
	req := multipartRequest(t, map[string]string{"description": "Quiet student", "age": "9", "gender": "male"},
		"report.txt", []byte("teacher notes"))

	w, env := serve(t, NewHandler(rec, 0), req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, env.Error)
	assert.Contains(t, w.Body.String(), `"goals":[{"id":"g1","description":"g"}]`)

	doc := rec.last.Profile.Document
	require.NotNil(t, doc)
	assert.Equal(t, "report.txt", doc.Name)
	assert.Equal(t, "text/plain", doc.MIMEType)
	assert.Equal(t, []byte("teacher notes"), doc.Data)
	assert.Equal(t, "Quiet student", rec.last.Profile.Description)
	assert.Equal(t, models.GenderMale, rec.last.Profile.Gender)
}

func TestFullProfile_MultipartWithoutDocument(t *testing.T) {
	rec := &stubRecommender{full: models.PipelineSuccess(fullProfile())}
	req := multipartRequest(t, map[string]string{"description": "Quiet student"}, "", nil)

	w, _ := serve(t, NewHandler(rec, 0), req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Nil(t, rec.last.Profile.Document)
}

func TestFullProfile_RejectsUploads(t *testing.T) {
	t.Run("unsupported type", func(t *testing.T) {
		rec := &stubRecommender{}
		req := multipartRequest(t, map[string]string{"description": "x"}, "photo.png", []byte{0x89, 'P', 'N', 'G'})
		w, env := serve(t, NewHandler(rec, 0), req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, env.Message, "unsupported file type")
		assert.Zero(t, rec.calls)
	})

	t.Run("too large", func(t *testing.T) {
		rec := &stubRecommender{}
		req := multipartRequest(t, map[string]string{"description": "x"}, "notes.txt", bytes.Repeat([]byte("a"), 64))
		w, _ := serve(t, NewHandler(rec, 16), req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Zero(t, rec.calls)
	})

	t.Run("missing description", func(t *testing.T) {
		rec := &stubRecommender{}
		req := multipartRequest(t, map[string]string{"age": "9"}, "notes.txt", []byte("a"))
		w, env := serve(t, NewHandler(rec, 0), req)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, env.Message, "description is required")
	})
}

func TestFullProfile_JSONAndFailure(t *testing.T) {
	f := &models.Failure{Kind: models.KindService, Subkind: models.SubkindOverloaded, Stage: models.StageFull}
	rec := &stubRecommender{full: models.PipelineFailure(f)}

	w, env := serve(t, NewHandler(rec, 0), postJSON("/api/v1/profile/full/", `{"description":"x","locale":"fr"}`))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.True(t, env.Error)
	assert.Contains(t, env.Message, "overloaded")
	assert.Equal(t, "fr", rec.last.Locale)
}

func TestOperationalRoutes(t *testing.T) {
	h := NewHandler(&stubRecommender{}, 0)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, "req-42")
	w, _ := serve(t, h, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.Equal(t, "req-42", w.Header().Get(headerRequestID))

	w, env := serve(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, env.Error)
	assert.Contains(t, string(env.Data), "/api/v1")
	assert.NotContains(t, w.Body.String(), `"message"`)

	w, _ = serve(t, h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "recommend_http_requests_total")
	assert.NotEmpty(t, w.Header().Get(headerRequestID))
}
