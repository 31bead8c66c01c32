// Package analytics provides evaluation run recording and aggregate queries
// for observability.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EvalRecord is a single recorded evaluation (embedder, similarity, score,
// latency, whether the lexical fallback had to step in).
type EvalRecord struct {
	ID         string
	Embedder   string
	Degraded   bool
	Similarity float64
	Score      float64
	LatencyMs  int64
	Success    bool
	At         time.Time
}

// Recorder is the write side of Store, for callers that only emit records.
type Recorder interface {
	Record(ctx context.Context, r EvalRecord) error
}

// Store is the interface for recording and querying evaluations.
type Store interface {
	Recorder
	Query(ctx context.Context, q Query) ([]Aggregate, error)
}

// Query filters and groups evaluations for aggregation.
type Query struct {
	Embedder string
	From     time.Time
	To       time.Time
	GroupBy  string // "embedder", "day", "hour"
	Limit    int
}

// Aggregate is a bucketed aggregate (e.g. per embedder or per day).
type Aggregate struct {
	Key           string
	Runs          int64
	SuccessCount  int64
	DegradedCount int64
	AvgLatencyMs  float64
	AvgScore      float64
	AvgSimilarity float64
}

// MemoryStore is an in-memory implementation (bounded slice, no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	max     int
	records []EvalRecord
}

// NewMemoryStore creates an in-memory store that keeps at most max records (0 = unbounded).
func NewMemoryStore(max int) *MemoryStore {
	return &MemoryStore{max: max, records: make([]EvalRecord, 0, 256)}
}

// Record implements Store.
func (m *MemoryStore) Record(ctx context.Context, r EvalRecord) error {
	fillRecord(&r)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	if m.max > 0 && len(m.records) > m.max {
		m.records = m.records[len(m.records)-m.max:]
	}
	return nil
}

// Query implements Store. GroupBy "embedder" groups by embedding model,
// "day" and "hour" by timestamp.
func (m *MemoryStore) Query(ctx context.Context, q Query) ([]Aggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agg := make(map[string]*Aggregate)
	for _, r := range m.records {
		if !matches(r, q) {
			continue
		}
		a := agg[groupKey(r, q.GroupBy)]
		if a == nil {
			a = &Aggregate{Key: groupKey(r, q.GroupBy)}
			agg[a.Key] = a
		}
		a.add(r)
	}
	return collect(agg, q.Limit), nil
}

func fillRecord(r *EvalRecord) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
}

func matches(r EvalRecord, q Query) bool {
	if q.Embedder != "" && r.Embedder != q.Embedder {
		return false
	}
	if !q.From.IsZero() && r.At.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && r.At.After(q.To) {
		return false
	}
	return true
}

func groupKey(r EvalRecord, groupBy string) string {
	switch groupBy {
	case "embedder":
		return r.Embedder
	case "day":
		return r.At.Format("2006-01-02")
	case "hour":
		return r.At.Format("2006-01-02-15")
	default:
		return "all"
	}
}

// add folds one record into the aggregate with running means.
func (a *Aggregate) add(r EvalRecord) {
	a.Runs++
	if r.Success {
		a.SuccessCount++
	}
	if r.Degraded {
		a.DegradedCount++
	}
	n := float64(a.Runs)
	a.AvgLatencyMs = (a.AvgLatencyMs*(n-1) + float64(r.LatencyMs)) / n
	a.AvgScore = (a.AvgScore*(n-1) + r.Score) / n
	a.AvgSimilarity = (a.AvgSimilarity*(n-1) + r.Similarity) / n
}

func collect(agg map[string]*Aggregate, limit int) []Aggregate {
	out := make([]Aggregate, 0, len(agg))
	for _, a := range agg {
		out = append(out, *a)
	}
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
