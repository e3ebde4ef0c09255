package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/convertd/convertd/internal/api"
	"github.com/convertd/convertd/internal/config"
	"github.com/convertd/convertd/internal/detect"
	"github.com/convertd/convertd/internal/job"
	"github.com/convertd/convertd/internal/queue"
	"github.com/convertd/convertd/internal/strategy"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	if err := cfg.EnsureDirs(); err != nil {
		slog.Error("workdir", "error", err)
		os.Exit(1)
	}

	var store job.Store
	if cfg.DBPath != "" {
		store, err = job.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			slog.Error("store", "error", err)
			os.Exit(1)
		}
	} else {
		store = job.NewMemoryStore()
	}
	defer store.Close()

	detector := detect.New(detect.Config{
		SamplePages:    cfg.DetectSamplePages,
		ScannedTextMax: cfg.DetectScannedTextMax,
		DigitalTextMin: cfg.DetectDigitalTextMin,
	})
	engine := strategy.NewEngine(detector, strategy.Config{
		SofficePath:    cfg.SofficePath,
		ChromePath:     cfg.ChromePath,
		TesseractPath:  cfg.TesseractPath,
		OCRLanguage:    cfg.OCRLanguage,
		SofficeTimeout: cfg.SofficeTimeout,
		ChromeTimeout:  cfg.ChromeTimeout,
		OCRTimeout:     cfg.OCRTimeout,
		RenderDPI:      cfg.RenderDPI,
		JPEGQuality:    cfg.JPEGQuality,
	})

	q := queue.New(cfg, store, engine)

	if err := q.Recover(context.Background()); err != nil {
		slog.Error("recovery", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	q.StartCleanup(ctx)

	mux := http.NewServeMux()
	h := api.NewHandler(store, q, cfg)
	h.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	})

	handler := api.Chain(mux,
		c.Handler,
		api.RequestID,
		api.Logging,
		api.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("convertd listening", "addr", cfg.ListenAddr, "concurrency", cfg.Concurrency)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
