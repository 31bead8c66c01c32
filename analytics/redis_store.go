// Package analytics: Redis Store for persistent evaluation history.
package analytics

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "assay:analytics:evals"

// RedisStore implements Store using Redis (sorted set by timestamp, value =
// JSON EvalRecord).
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore creates a store that uses the given Redis client.
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

type redisRecord struct {
	ID         string  `json:"id"`
	Embedder   string  `json:"embedder"`
	Degraded   bool    `json:"degraded"`
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"`
	LatencyMs  int64   `json:"latency_ms"`
	Success    bool    `json:"success"`
	At         string  `json:"at"` // RFC3339
}

// Record implements Store. The record ID keeps sorted-set members unique
// even when two evaluations land on the same timestamp.
func (r *RedisStore) Record(ctx context.Context, rec EvalRecord) error {
	fillRecord(&rec)
	score := float64(rec.At.UnixNano()) / 1e9
	payload := redisRecord{
		ID:         rec.ID,
		Embedder:   rec.Embedder,
		Degraded:   rec.Degraded,
		Similarity: rec.Similarity,
		Score:      rec.Score,
		LatencyMs:  rec.LatencyMs,
		Success:    rec.Success,
		At:         rec.At.Format(time.RFC3339),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.client.ZAdd(ctx, r.key, redis.Z{Score: score, Member: string(raw)}).Err()
}

// Query implements Store by reading from the sorted set and aggregating in
// memory.
func (r *RedisStore) Query(ctx context.Context, q Query) ([]Aggregate, error) {
	min, max := "-inf", "+inf"
	if !q.From.IsZero() {
		min = strconv.FormatFloat(float64(q.From.UnixNano())/1e9, 'f', -1, 64)
	}
	if !q.To.IsZero() {
		max = strconv.FormatFloat(float64(q.To.UnixNano())/1e9, 'f', -1, 64)
	}
	const batch = 10000
	agg := make(map[string]*Aggregate)
	for offset := int64(0); ; offset += batch {
		vals, err := r.client.ZRangeByScoreWithScores(ctx, r.key, &redis.ZRangeBy{
			Min: min, Max: max, Offset: offset, Count: batch,
		}).Result()
		if err != nil {
			return nil, err
		}
		for _, z := range vals {
			mem, ok := z.Member.(string)
			if !ok {
				continue
			}
			var rr redisRecord
			if err := json.Unmarshal([]byte(mem), &rr); err != nil {
				continue
			}
			at, _ := time.Parse(time.RFC3339, rr.At)
			rec := EvalRecord{
				ID:         rr.ID,
				Embedder:   rr.Embedder,
				Degraded:   rr.Degraded,
				Similarity: rr.Similarity,
				Score:      rr.Score,
				LatencyMs:  rr.LatencyMs,
				Success:    rr.Success,
				At:         at,
			}
			if !matches(rec, q) {
				continue
			}
			a := agg[groupKey(rec, q.GroupBy)]
			if a == nil {
				a = &Aggregate{Key: groupKey(rec, q.GroupBy)}
				agg[a.Key] = a
			}
			a.add(rec)
		}
		if len(vals) < batch {
			break
		}
	}
	return collect(agg, q.Limit), nil
}
