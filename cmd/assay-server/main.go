// Command assay-server exposes the answer evaluation pipeline over HTTP:
// POST /api/evaluate, POST /api/batch-evaluate, GET /api/models, GET /health
// and, when an analytics store is configured, GET /api/stats.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	assay "github.com/klejdi94/assay"
	"github.com/klejdi94/assay/config"
	"github.com/klejdi94/assay/core"
	"github.com/klejdi94/assay/evaluator"
	"github.com/klejdi94/assay/server"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (default: built-in defaults, ASSAY_* env overrides)")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := assay.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// The handler applies the configured length limits to single evaluations
	// and checks batch items for presence only, so the evaluator itself runs
	// without limits.
	pipe, err := assay.Open(cfg, logger, evaluator.WithLimits(core.Limits{}))
	if err != nil {
		return err
	}

	handler := server.NewHandler(pipe.Evaluator,
		server.WithLogger(logger),
		server.WithStats(pipe.Store),
		server.WithLimits(core.Limits{
			MinModelAnswerLen:   cfg.Limits.MinModelAnswerLen,
			MinStudentAnswerLen: cfg.Limits.MinStudentAnswerLen,
		}),
	)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.NewRouter(handler),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("embedder", pipe.Evaluator.EmbedderModel()),
			zap.String("feedback_model", pipe.Evaluator.FeedbackModel()),
			zap.String("analytics", cfg.Analytics.Store))
		// ErrServerClosed is the expected result of Shutdown; anything else
		// is a real failure and triggers the shutdown path.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	if err := pipe.Close(); err != nil {
		logger.Error("pipeline close error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}
