package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"task-tracker/internal/auth"
	"task-tracker/internal/handlers"
	"task-tracker/internal/storage"

	"go.uber.org/zap"
)

const (
	probeAttempts = 5
	probeDelay    = 2 * time.Second
)

func main() {
	addr := flag.String("addr", ":3000", "Address to listen on")
	dbPath := flag.String("db", "tasks.db", "Path to database file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if port := os.Getenv("PORT"); port != "" {
		*addr = ":" + port
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		*dbPath = path
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "default_secret_key"
		logger.Warn("JWT_SECRET not set, using insecure default")
	}

	db, err := storage.NewDB(*dbPath)
	if err != nil {
		logger.Fatal("opening database", zap.Error(err))
	}
	defer db.Close()

	// Liveness gate only: request paths never retry.
	if err := db.Probe(probeAttempts, probeDelay); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}

	authn := auth.NewAuthenticator(db, []byte(secret))
	h := handlers.NewHandlers(db, authn, logger)

	allowedOrigins := []string{
		"http://localhost:5173",
		"http://localhost:3000",
		os.Getenv("FRONTEND_URL"),
	}
	handler := setupRouter(h, allowedOrigins)

	logger.Info("server listening", zap.String("addr", *addr), zap.String("db", *dbPath))
	if err := http.ListenAndServe(*addr, handler); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func setupRouter(h *handlers.Handlers, allowedOrigins []string) http.Handler {
	return handlers.CORSMiddleware(allowedOrigins)(h.Routes())
}
