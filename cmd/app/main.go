package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/local/docverify/internal/breaker"
	cfgpkg "github.com/local/docverify/internal/config"
	"github.com/local/docverify/internal/filetype"
	"github.com/local/docverify/internal/httpapi"
	"github.com/local/docverify/internal/llm"
	logpkg "github.com/local/docverify/internal/logger"
	"github.com/local/docverify/internal/metrics"
	"github.com/local/docverify/internal/ocr"
	"github.com/local/docverify/internal/pipeline"
	"github.com/local/docverify/internal/prompts"
	"github.com/local/docverify/internal/statuscheck"
	"github.com/local/docverify/internal/storage"
	"github.com/local/docverify/internal/store"
	"github.com/local/docverify/internal/validity"
	"github.com/local/docverify/internal/verify"
)

func main() {
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	_ = logpkg.Init(logpkg.Options{
		Service:      "docverify",
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	if err := os.MkdirAll(cfg.Pipeline.WorkDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Pipeline.WorkDir).Msg("failed to create work dir")
	}
	// Run dirs older than the pipeline deadline belong to dead runs.
	pipeline.SweepWorkDir(cfg.Pipeline.WorkDir, cfg.Pipeline.Deadline)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.Migrate(cfg.DB.URL); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}
	pool, err := store.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	writer := store.NewWriter(pool)
	janitor := store.NewJanitor(pool, cfg.Pipeline.WorkDir, cfg.Retention)
	go janitor.Run(ctx)

	s3c, err := storage.New(ctx, cfg.S3)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init s3 client")
	}

	ocrClient := ocr.NewClient(cfg.OCR)
	llmClient := llm.NewClient(cfg.LLM)
	breakers := breaker.NewRegistry(breaker.Settings{
		Failures: uint32(cfg.Breaker.Failures),
		Cooldown: cfg.Breaker.Cooldown,
	})

	registry := cfg.DocTypes()
	pipe := pipeline.New(cfg.Pipeline, pipeline.Dependencies{
		Fetcher:  s3c,
		OCR:      ocrClient,
		LLM:      llmClient,
		Writer:   writer,
		Breakers: breakers,
		Prompts:  prompts.NewLibrary(cfg.Pipeline.PromptsDir),
		Detector: filetype.New(),
		Checker:  verify.NewChecker(registry, validity.NewEvaluator(registry)),
	})

	health := statuscheck.New(statuscheck.Options{
		S3:       s3c,
		DB:       statuscheck.PingFunc(pool.Ping),
		OCR:      ocrClient,
		LLM:      llmClient,
		Breakers: breakers,
	})

	api := httpapi.New(cfg.HTTP, pipe, health, cfg.Breaker.Cooldown)
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown incomplete")
	}
	log.Info().Msg("shutdown complete")
}
