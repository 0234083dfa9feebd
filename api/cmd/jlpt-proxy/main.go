package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"jlpt-snap/api/internal/config"
	"jlpt-snap/api/internal/handle"
	"jlpt-snap/api/internal/httpserver"
	"jlpt-snap/api/internal/logging"
	"jlpt-snap/api/internal/ocr/openai"
)

func main() {
	cfg := config.Load()

	logger := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Dir:    cfg.LogDir,
		Name:   "jlpt-proxy.log",
	})

	if cfg.OCRBaseURL == "" || cfg.OCRAPIKey == "" {
		logger.Warn("OCR upstream not configured; /api/ocr will answer 500")
	}
	if cfg.AnalysisBaseURL == "" || cfg.AnalysisAPIKey == "" {
		logger.Warn("analysis upstream not configured; /api/analyze will answer 500")
	}

	engine := openai.New().WithLogger(logger)
	h := handle.New(engine, handle.Options{
		OCR: handle.Upstream{
			BaseURL: cfg.OCRBaseURL,
			APIKey:  cfg.OCRAPIKey,
			Model:   cfg.OCRModel,
		},
		Analysis: handle.Upstream{
			BaseURL: cfg.AnalysisBaseURL,
			APIKey:  cfg.AnalysisAPIKey,
			Model:   cfg.AnalysisModel,
		},
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		Logger:         logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := httpserver.New(cfg.Addr(), h.Handler())
	logger.Info("jlpt-proxy starting",
		"ocr_model", cfg.OCRModel,
		"analysis_model", cfg.AnalysisModel,
		"ocr_key", logging.MaskKey(cfg.OCRAPIKey),
		"analysis_key", logging.MaskKey(cfg.AnalysisAPIKey),
	)
	if err := httpserver.Run(ctx, srv, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
