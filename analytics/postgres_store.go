// Package analytics: PostgreSQL Store for persistent evaluation history.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
)

const defaultTableName = "evaluations"

// PostgresStore implements Store using a PostgreSQL table.
type PostgresStore struct {
	db        *sql.DB
	tableName string
}

// NewPostgresStore creates a store that uses the given *sql.DB (e.g. driver
// "postgres"). The table is created if it doesn't exist.
func NewPostgresStore(db *sql.DB, tableName string) (*PostgresStore, error) {
	if tableName == "" {
		tableName = defaultTableName
	}
	s := &PostgresStore{db: db, tableName: tableName}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	q := `CREATE TABLE IF NOT EXISTS ` + s.tableName + ` (
		id TEXT PRIMARY KEY,
		embedder TEXT NOT NULL,
		degraded BOOLEAN NOT NULL DEFAULT false,
		similarity DOUBLE PRECISION NOT NULL DEFAULT 0,
		score DOUBLE PRECISION NOT NULL DEFAULT 0,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		success BOOLEAN NOT NULL DEFAULT false,
		at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_evaluations_embedder ON ` + s.tableName + ` (embedder);
	CREATE INDEX IF NOT EXISTS idx_evaluations_at ON ` + s.tableName + ` (at);`
	_, err := s.db.ExecContext(ctx, q)
	return err
}

// Record implements Store.
func (s *PostgresStore) Record(ctx context.Context, r EvalRecord) error {
	fillRecord(&r)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.tableName+` (id, embedder, degraded, similarity, score, latency_ms, success, at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.Embedder, r.Degraded, r.Similarity, r.Score, r.LatencyMs, r.Success, r.At)
	return err
}

// Query implements Store.
func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Aggregate, error) {
	args := []interface{}{}
	where := "1=1"
	n := 1
	if q.Embedder != "" {
		args = append(args, q.Embedder)
		where += fmt.Sprintf(" AND embedder = $%d", n)
		n++
	}
	if !q.From.IsZero() {
		args = append(args, q.From)
		where += fmt.Sprintf(" AND at >= $%d", n)
		n++
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		where += fmt.Sprintf(" AND at <= $%d", n)
		n++
	}

	groupCol := "NULL"
	switch q.GroupBy {
	case "embedder":
		groupCol = "embedder"
	case "day":
		groupCol = "date_trunc('day', at)::date::text"
	case "hour":
		groupCol = "to_char(date_trunc('hour', at), 'YYYY-MM-DD-HH24')"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	limitPlaceholder := fmt.Sprintf("$%d", n)

	query := `SELECT ` + groupCol + ` AS key,
		COUNT(*)::bigint AS runs,
		COUNT(*) FILTER (WHERE success)::bigint AS success_count,
		COUNT(*) FILTER (WHERE degraded)::bigint AS degraded_count,
		COALESCE(AVG(latency_ms) FILTER (WHERE success), 0) AS avg_latency_ms,
		COALESCE(AVG(score) FILTER (WHERE success), 0) AS avg_score,
		COALESCE(AVG(similarity) FILTER (WHERE success), 0) AS avg_similarity
		FROM ` + s.tableName + `
		WHERE ` + where + `
		GROUP BY ` + groupCol + `
		ORDER BY runs DESC
		LIMIT ` + limitPlaceholder

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Aggregate
	for rows.Next() {
		var a Aggregate
		var k sql.NullString
		if err := rows.Scan(&k, &a.Runs, &a.SuccessCount, &a.DegradedCount, &a.AvgLatencyMs, &a.AvgScore, &a.AvgSimilarity); err != nil {
			return nil, err
		}
		if k.Valid {
			a.Key = k.String
		} else {
			a.Key = "all"
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
