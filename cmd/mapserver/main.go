// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command mapserver starts the msbridge mapping API server.
//
// The server indexes the PyTorch→MindSpore API correspondence corpus and
// exposes query, translation, and model catalog endpoints:
//
//	go run ./cmd/mapserver
//	go run ./cmd/mapserver -config config.yaml -port 9090
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8096/v1/mapping/health
//
//	# Resolve an API name
//	curl 'http://localhost:8096/v1/mapping/ops?name=addmm'
//
//	# Translate a buffer
//	curl -X POST http://localhost:8096/v1/mapping/translate \
//	  -H "Content-Type: application/json" \
//	  -d '{"source": "import torch\ny = torch.addmm(a, b, c)"}'
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/msbridge-ai/msbridge/services/mapping"
	"github.com/msbridge-ai/msbridge/services/mapping/config"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	port := flag.Int("port", 0, "Override listen port")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	// Best-effort .env loading; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *debug {
		cfg.Server.Mode = "debug"
		cfg.Telemetry.StdoutTrace = true
	}

	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation so spans correlate across callers.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	shutdownTracing := setupTracing(cfg)
	defer shutdownTracing()

	ctx := context.Background()
	svc, err := mapping.NewService(ctx, cfg)
	if err != nil {
		slog.Error("Failed to load mapping corpus", slog.String("error", err.Error()))
		os.Exit(1)
	}
	handlers := mapping.NewHandlers(svc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("msbridge-mapping"))
	if cfg.Server.Mode == "debug" {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	mapping.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	stopWatcher := func() {}
	if cfg.Corpus.Watch {
		stopWatcher = startCorpusWatcher(ctx, cfg, svc)
	}

	printBanner(cfg.Server.Port)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("Starting msbridge mapping server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down msbridge mapping server")
	stopWatcher()

	shutdownCtx, cancel := context.WithTimeout(ctx,
		time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Forced shutdown", slog.String("error", err.Error()))
	}
}

// setupTracing wires the stdout span exporter when enabled and returns a
// flush/shutdown func.
func setupTracing(cfg *config.Config) func() {
	if !cfg.Telemetry.StdoutTrace {
		return func() {}
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		slog.Warn("Stdout trace exporter unavailable", slog.String("error", err.Error()))
		return func() {}
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}
}

// startCorpusWatcher watches the corpus files and shard dirs and triggers
// a refresh after a debounce window. Returns a stop func.
//
// Description:
//
//	Editors and fetch scripts rewrite corpus files in bursts (truncate,
//	write, rename), so raw fsnotify events are collapsed: each event
//	resets a timer, and the refresh only fires once the timer expires.
//	A failed refresh keeps the previous index live; the watcher keeps
//	running either way.
func startCorpusWatcher(ctx context.Context, cfg *config.Config, svc *mapping.Service) func() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("Corpus watcher unavailable", slog.String("error", err.Error()))
		return func() {}
	}

	paths := []string{cfg.Corpus.ConsistentFile, cfg.Corpus.DiffFile}
	if cfg.Corpus.SectionConsistentDir != "" {
		paths = append(paths, cfg.Corpus.SectionConsistentDir)
	}
	if cfg.Corpus.SectionDiffDir != "" {
		paths = append(paths, cfg.Corpus.SectionDiffDir)
	}
	for _, p := range paths {
		if err := watcher.Add(p); err != nil {
			slog.Warn("Cannot watch corpus path",
				slog.String("path", p), slog.String("error", err.Error()))
		}
	}
	if cfg.Registry.Enabled {
		if err := watcher.Add(cfg.Registry.ModelsFile); err != nil {
			slog.Warn("Cannot watch registry file",
				slog.String("path", cfg.Registry.ModelsFile), slog.String("error", err.Error()))
		}
	}

	done := make(chan struct{})
	debounce := time.Duration(cfg.Corpus.WatchDebounceMS) * time.Millisecond

	go func() {
		var timer *time.Timer
		var fire <-chan time.Time

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				slog.Debug("Corpus change detected", slog.String("path", event.Name))
				if timer == nil {
					timer = time.NewTimer(debounce)
					fire = timer.C
				} else {
					timer.Reset(debounce)
				}

			case <-fire:
				timer = nil
				fire = nil
				if err := svc.Refresh(ctx); err != nil {
					slog.Error("Watcher-triggered refresh failed", slog.String("error", err.Error()))
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Corpus watcher error", slog.String("error", err.Error()))

			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}
}

func printBanner(port int) {
	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                    MSBRIDGE MAPPING SERVER                        ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  PyTorch → MindSpore API mapping, query, and code translation.    ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%-5d/v1/mapping/health               │  ║
║  │                                                             │  ║
║  │ # Resolve an API name                                       │  ║
║  │ curl 'http://localhost:%-5d/v1/mapping/ops?name=addmm'     │  ║
║  │                                                             │  ║
║  │ # Translate a buffer                                        │  ║
║  │ curl -X POST http://localhost:%-5d/v1/mapping/translate \  │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"source": "import torch\ny = torch.abs(x)"}'         │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── /v1/mapping/ops, /translate, /diagnose, /refresh             ║
║  ├── /v1/mapping/models, /models/:id                              ║
║  ├── /v1/mapping/health, /ready                                   ║
║  └── /metrics                                                     ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, port, port, port)
}
