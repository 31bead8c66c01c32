package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klejdi94/assay/analytics"
	"github.com/klejdi94/assay/core"
	"github.com/klejdi94/assay/evaluator"
)

// newTestRouter builds a handler around a lexical-only evaluator, the same
// wiring the server command uses: the evaluator itself carries no length
// limits, the handler enforces them.
func newTestRouter(opts ...HandlerOption) http.Handler {
	eval := evaluator.New(evaluator.WithLimits(core.Limits{}))
	return NewRouter(NewHandler(eval, opts...))
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var decoded map[string]interface{}
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
	}
	return rr, decoded
}

func TestEvaluateEndpoint(t *testing.T) {
	router := newTestRouter()
	rr, resp := doJSON(t, router, http.MethodPost, "/api/evaluate", `{
		"question": "What is photosynthesis?",
		"modelAnswer": "Photosynthesis converts sunlight into chemical energy.",
		"studentAnswer": "Photosynthesis converts sunlight into chemical energy."
	}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, true, resp["success"])
	assert.InDelta(t, 5.0, resp["score"], 1e-9)
	assert.InDelta(t, 1.0, resp["similarity"], 1e-9)
	assert.InDelta(t, 100.0, resp["similarity_percentage"], 1e-9)
	assert.NotEmpty(t, resp["feedback"])
}

func TestEvaluateEndpointPartialMatch(t *testing.T) {
	router := newTestRouter()
	rr, resp := doJSON(t, router, http.MethodPost, "/api/evaluate", `{
		"modelAnswer": "Photosynthesis converts sunlight into chemical energy in plants.",
		"studentAnswer": "The stock market closed higher on Tuesday."
	}`)

	require.Equal(t, http.StatusOK, rr.Code)
	score := resp["score"].(float64)
	sim := resp["similarity"].(float64)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 5.0)
	assert.GreaterOrEqual(t, sim, 0.0)
	assert.Less(t, sim, 1.0)
}

func TestEvaluateEndpointValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"empty body", "", "No JSON data provided"},
		{"empty object", "{}", "No JSON data provided"},
		{"null body", "null", "No JSON data provided"},
		{"not json", "hello there", "No JSON data provided"},
		{"wrong field type", `{"modelAnswer": 7, "studentAnswer": "text"}`, "No JSON data provided"},
		{"missing student answer", `{"modelAnswer": "A reference answer."}`, "Missing required fields: modelAnswer and studentAnswer"},
		{"missing model answer", `{"studentAnswer": "An attempt."}`, "Missing required fields: modelAnswer and studentAnswer"},
		{"whitespace only", `{"modelAnswer": "A reference answer.", "studentAnswer": "   "}`, "Missing required fields: modelAnswer and studentAnswer"},
		{"model answer too short", `{"modelAnswer": "too short", "studentAnswer": "long enough here"}`, "Answers must be at least 5-10 characters long"},
		{"student answer too short", `{"modelAnswer": "a long enough reference", "studentAnswer": "hey"}`, "Answers must be at least 5-10 characters long"},
	}

	router := newTestRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, resp := doJSON(t, router, http.MethodPost, "/api/evaluate", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.wantErr, resp["error"])
		})
	}
}

func TestEvaluateEndpointCustomLimits(t *testing.T) {
	router := newTestRouter(WithLimits(core.Limits{MinModelAnswerLen: 20, MinStudentAnswerLen: 8}))
	rr, resp := doJSON(t, router, http.MethodPost, "/api/evaluate",
		`{"modelAnswer": "not twenty chars", "studentAnswer": "long enough"}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Answers must be at least 8-20 characters long", resp["error"])
}

func TestBatchEvaluateEndpoint(t *testing.T) {
	router := newTestRouter()
	rr, resp := doJSON(t, router, http.MethodPost, "/api/batch-evaluate", `{
		"evaluations": [
			{"modelAnswer": "Photosynthesis converts sunlight into energy.", "studentAnswer": "Plants turn light into energy."},
			{"modelAnswer": "Photosynthesis converts sunlight into energy."},
			{"modelAnswer": "short ref", "studentAnswer": "ok"}
		]
	}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, resp["success"])
	assert.InDelta(t, 3, resp["total"], 1e-9)

	results, ok := resp["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 3)

	first := results[0].(map[string]interface{})
	assert.Equal(t, true, first["success"])
	assert.NotEmpty(t, first["feedback"])

	second := results[1].(map[string]interface{})
	assert.Equal(t, false, second["success"])
	assert.Equal(t, "Missing required fields", second["error"])

	// Batch items skip minimum length checks; presence is enough.
	third := results[2].(map[string]interface{})
	assert.Equal(t, true, third["success"])
}

func TestBatchEvaluateEndpointValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"empty body", "", "Missing evaluations array"},
		{"empty object", "{}", "Missing evaluations array"},
		{"no evaluations key", `{"items": []}`, "Missing evaluations array"},
		{"null evaluations", `{"evaluations": null}`, "evaluations must be an array"},
		{"string evaluations", `{"evaluations": "many"}`, "evaluations must be an array"},
		{"object evaluations", `{"evaluations": {"a": 1}}`, "evaluations must be an array"},
	}

	router := newTestRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, resp := doJSON(t, router, http.MethodPost, "/api/batch-evaluate", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.wantErr, resp["error"])
		})
	}
}

func TestBatchEvaluateEndpointEmptyArray(t *testing.T) {
	router := newTestRouter()
	rr, resp := doJSON(t, router, http.MethodPost, "/api/batch-evaluate", `{"evaluations": []}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, resp["success"])
	assert.InDelta(t, 0, resp["total"], 1e-9)
	assert.Empty(t, resp["results"])
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter()
	rr, resp := doJSON(t, router, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, true, resp["embeddings_model_ready"])
	assert.Equal(t, false, resp["llm_model_ready"])
}

func TestModelsEndpoint(t *testing.T) {
	router := newTestRouter()
	rr, resp := doJSON(t, router, http.MethodGet, "/api/models", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, resp["embeddings_ready"])
	assert.Equal(t, false, resp["llm_ready"])
	assert.Equal(t, "lexical-hash", resp["embeddings_model"])
	assert.Equal(t, "", resp["llm_model"])
}

func TestStatsEndpoint(t *testing.T) {
	store := analytics.NewMemoryStore(0)
	eval := evaluator.New(evaluator.WithLimits(core.Limits{}), evaluator.WithRecorder(store))
	router := NewRouter(NewHandler(eval, WithStats(store)))

	rr, _ := doJSON(t, router, http.MethodPost, "/api/evaluate", `{
		"modelAnswer": "Photosynthesis converts sunlight into chemical energy.",
		"studentAnswer": "Plants turn sunlight into energy."
	}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr, resp := doJSON(t, router, http.MethodGet, "/api/stats?group_by=embedder", "")
	require.Equal(t, http.StatusOK, rr.Code)

	aggs, ok := resp["aggregates"].([]interface{})
	require.True(t, ok)
	require.Len(t, aggs, 1)
	agg := aggs[0].(map[string]interface{})
	assert.Equal(t, "lexical-hash", agg["Key"])
	assert.InDelta(t, 1, agg["Runs"], 1e-9)
}

func TestStatsEndpointNotMountedWithoutStore(t *testing.T) {
	router := newTestRouter()
	rr, resp := doJSON(t, router, http.MethodGet, "/api/stats", "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Endpoint not found", resp["error"])
}

func TestNotFound(t *testing.T) {
	router := newTestRouter()
	rr, resp := doJSON(t, router, http.MethodGet, "/api/nope", "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Endpoint not found", resp["error"])
}

func TestMethodNotAllowed(t *testing.T) {
	router := newTestRouter()
	rr, resp := doJSON(t, router, http.MethodGet, "/api/evaluate", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "Method not allowed", resp["error"])
}
