package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brunobiangulo/deckdoc"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("DECKDOC_LOG_LEVEL")),
	})))

	// Defaults, then the optional JSON file, then .env and DECKDOC_* overrides.
	cfg, err := deckdoc.LoadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	apiKey := os.Getenv("DECKDOC_API_KEY")
	corsOrigins := os.Getenv("DECKDOC_CORS_ORIGINS")

	conv, err := deckdoc.New(cfg)
	if err != nil {
		slog.Error("creating converter", "error", err)
		os.Exit(1)
	}
	defer conv.Close()

	srv := &http.Server{
		Addr:         *addr,
		Handler:      newServer(conv, apiKey, corsOrigins),
		ReadTimeout:  5 * time.Minute, // large uploads
		WriteTimeout: 0,               // a conversion waits on one LLM call per slide
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr, "provider", cfg.Chat.Provider, "model", cfg.Chat.Model)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

// newServer registers the routes and wraps them in the middleware chain.
func newServer(conv deckdoc.Converter, apiKey, corsOrigins string) http.Handler {
	h := newHandler(conv)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("POST /convert", h.handleConvert)
	mux.HandleFunc("GET /conversions", h.handleListConversions)
	mux.HandleFunc("GET /conversions/{id}", h.handleGetConversion)
	mux.HandleFunc("GET /conversions/{id}/document", h.handleDocument)
	mux.HandleFunc("GET /conversions/{id}/tables", h.handleTables)
	mux.HandleFunc("DELETE /conversions/{id}", h.handleDeleteConversion)
	mux.HandleFunc("GET /health", h.handleHealth)

	// Middleware chain: recovery -> cors -> request id -> auth -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = requestIDMiddleware(handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)
	return handler
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
