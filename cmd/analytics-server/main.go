// Command analytics-server exposes a shared evaluation analytics store over
// HTTP (POST /record, GET /aggregates, GET /health), for deployments where
// several evaluation services report to one backend.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klejdi94/assay/analytics"
	"github.com/redis/go-redis/v9"
	_ "github.com/lib/pq"
)

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	storeKind := flag.String("store", "memory", "Store: memory, postgres, redis")
	maxRecords := flag.Int("max", 100000, "Max in-memory records when store=memory (0 = unbounded)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN when store=postgres (or ANALYTICS_DSN env)")
	redisAddr := flag.String("redis", "", "Redis address when store=redis (e.g. localhost:6379, or ANALYTICS_REDIS env)")
	redisKey := flag.String("redis-key", "", "Redis key for analytics (default: assay:analytics:evals)")
	pgTable := flag.String("table", "evaluations", "Postgres table name when store=postgres")
	flag.Parse()

	if v := os.Getenv("ANALYTICS_DSN"); v != "" && *dsn == "" {
		*dsn = v
	}
	if v := os.Getenv("ANALYTICS_REDIS"); v != "" && *redisAddr == "" {
		*redisAddr = v
	}

	store, closeStore := openStore(*storeKind, *maxRecords, *dsn, *pgTable, *redisAddr, *redisKey)
	defer closeStore()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	srv := &http.Server{
		Addr:         *addr,
		Handler:      analytics.NewServer(store, *addr).Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	go func() {
		log.Printf("analytics server listening on %s (store=%s)", *addr, *storeKind)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("server error: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func openStore(kind string, maxRecords int, dsn, pgTable, redisAddr, redisKey string) (analytics.Store, func()) {
	switch kind {
	case "memory":
		return analytics.NewMemoryStore(maxRecords), func() {}
	case "postgres":
		if dsn == "" {
			log.Fatal("postgres store requires -dsn or ANALYTICS_DSN")
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		pg, err := analytics.NewPostgresStore(db, pgTable)
		if err != nil {
			log.Fatalf("postgres store: %v", err)
		}
		return pg, func() { db.Close() }
	case "redis":
		if redisAddr == "" {
			log.Fatal("redis store requires -redis or ANALYTICS_REDIS")
		}
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		return analytics.NewRedisStore(rdb, redisKey), func() { rdb.Close() }
	default:
		log.Fatalf("unknown store: %s", kind)
		return nil, nil
	}
}
