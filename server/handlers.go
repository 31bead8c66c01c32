// Package server exposes the evaluation pipeline over HTTP: single and
// batch evaluation, model status, health and analytics aggregates.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/klejdi94/assay/analytics"
	"github.com/klejdi94/assay/core"
	"github.com/klejdi94/assay/evaluator"
)

const defaultPingTimeout = 2 * time.Second

// Handler implements the API handlers.
type Handler struct {
	eval        *evaluator.Evaluator
	stats       analytics.Store
	logger      *zap.Logger
	limits      core.Limits
	pingTimeout time.Duration
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the request logger (default: no-op).
func WithLogger(l *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithStats enables the aggregates endpoint backed by the given store.
func WithStats(s analytics.Store) HandlerOption {
	return func(h *Handler) {
		h.stats = s
	}
}

// WithLimits sets the minimum answer lengths enforced on single evaluations.
// Batch items are only checked for presence.
func WithLimits(lim core.Limits) HandlerOption {
	return func(h *Handler) {
		h.limits = lim
	}
}

// WithPingTimeout bounds provider pings during health checks.
func WithPingTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.pingTimeout = d
	}
}

// NewHandler creates the API handler around an evaluator. The evaluator
// should carry no length limits of its own: the handler enforces them on
// single evaluations and deliberately skips them for batch items.
func NewHandler(eval *evaluator.Evaluator, opts ...HandlerOption) *Handler {
	h := &Handler{
		eval:        eval,
		logger:      zap.NewNop(),
		limits:      core.DefaultLimits,
		pingTimeout: defaultPingTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// evalResponse is the JSON shape of one successful evaluation.
type evalResponse struct {
	Success              bool    `json:"success"`
	Score                float64 `json:"score"`
	Similarity           float64 `json:"similarity"`
	SimilarityPercentage float64 `json:"similarity_percentage"`
	Feedback             string  `json:"feedback"`
}

func newEvalResponse(res *core.EvaluationResult) evalResponse {
	return evalResponse{
		Success:              true,
		Score:                res.Score,
		Similarity:           res.Similarity,
		SimilarityPercentage: res.Percent(),
		Feedback:             res.Feedback,
	}
}

// Evaluate handles POST /api/evaluate.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "No JSON data provided")
		return
	}
	var fields map[string]json.RawMessage
	if json.Unmarshal(body, &fields) != nil || len(fields) == 0 {
		writeError(w, http.StatusBadRequest, "No JSON data provided")
		return
	}
	var req core.EvaluationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "No JSON data provided")
		return
	}

	req.Normalize()
	if req.ModelAnswer == "" || req.StudentAnswer == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: modelAnswer and studentAnswer")
		return
	}
	if err := req.Validate(h.limits); err != nil {
		writeError(w, http.StatusBadRequest, h.lengthMessage())
		return
	}

	res, err := h.eval.Evaluate(r.Context(), req)
	if err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, h.lengthMessage())
			return
		}
		h.logger.Error("evaluation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "Failed to process evaluation",
			"details": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, newEvalResponse(res))
}

func (h *Handler) lengthMessage() string {
	return fmt.Sprintf("Answers must be at least %d-%d characters long",
		h.limits.MinStudentAnswerLen, h.limits.MinModelAnswerLen)
}

// batchItemError is the JSON shape of one failed batch item.
type batchItemError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// BatchEvaluate handles POST /api/batch-evaluate. Items are only checked for
// presence of both answers; length limits do not apply here.
func (h *Handler) BatchEvaluate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing evaluations array")
		return
	}
	var fields map[string]json.RawMessage
	if json.Unmarshal(body, &fields) != nil || len(fields) == 0 {
		writeError(w, http.StatusBadRequest, "Missing evaluations array")
		return
	}
	raw, ok := fields["evaluations"]
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing evaluations array")
		return
	}
	var reqs []core.EvaluationRequest
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) || json.Unmarshal(raw, &reqs) != nil {
		writeError(w, http.StatusBadRequest, "evaluations must be an array")
		return
	}

	report := h.eval.EvaluateBatch(r.Context(), reqs)
	results := make([]interface{}, len(report.Results))
	for i, item := range report.Results {
		if item.Err != nil {
			results[i] = batchItemError{Success: false, Error: h.itemErrorMessage(item.Err)}
			continue
		}
		results[i] = newEvalResponse(item.Result)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"total":   report.Total,
		"results": results,
	})
}

func (h *Handler) itemErrorMessage(err error) string {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return "Missing required fields"
	}
	h.logger.Error("batch item failed", zap.Error(err))
	return err.Error()
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.pingTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":                 "ok",
		"embeddings_model_ready": h.eval.EmbedderReady(ctx),
		"llm_model_ready":        h.eval.FeedbackReady(ctx),
	})
}

// Models handles GET /api/models.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.pingTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"embeddings_ready": h.eval.EmbedderReady(ctx),
		"llm_ready":        h.eval.FeedbackReady(ctx),
		"embeddings_model": h.eval.EmbedderModel(),
		"llm_model":        h.eval.FeedbackModel(),
	})
}

// aggregateResponse is the JSON response for GET /api/stats.
type aggregateResponse struct {
	Aggregates []analytics.Aggregate `json:"aggregates"`
}

// Stats handles GET /api/stats. Query params: embedder, group_by, from, to
// (RFC3339), limit.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	q := analytics.Query{
		Embedder: r.URL.Query().Get("embedder"),
		GroupBy:  r.URL.Query().Get("group_by"),
		Limit:    100,
	}
	if from := r.URL.Query().Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			q.From = t
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			q.To = t
		}
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			q.Limit = n
		}
	}

	agg, err := h.stats.Query(r.Context(), q)
	if err != nil {
		h.logger.Error("stats query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, aggregateResponse{Aggregates: agg})
}

// NotFound is the JSON 404 handler for unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Endpoint not found")
}

// MethodNotAllowed is the JSON 405 handler.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
