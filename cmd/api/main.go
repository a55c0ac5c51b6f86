package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"cloaked/internal/cloak"
	"cloaked/internal/config"
	"cloaked/internal/httpserver"
	"cloaked/internal/logger"
	"cloaked/internal/models"
	"cloaked/internal/service"
	"cloaked/internal/storage"
	"cloaked/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg := logger.New(cfg.LogLevel)
	defer lg.Sync()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		lg.Fatalw("db connect failed", "error", err)
	}
	if err := db.AutoMigrate(&models.ImagePair{}); err != nil {
		lg.Fatalw("automigrate failed", "error", err)
	}

	st := store.New(db)
	blobs := storage.New(cfg.StorageURL, cfg.StorageKey, cfg.StorageBucket, cfg.StorageTimeout)
	engine := cloak.NewClient(cfg.CloakEngineURL, cfg.CloakTimeout, cfg.ProveTimeout)

	var analyzer service.Analyzer = service.HeuristicAnalyzer{}
	if cfg.GeminiAPIKey != "" {
		a, err := service.NewGenAIAnalyzer(context.Background(), cfg.GeminiAPIKey, cfg.AnalyzeTimeout)
		if err != nil {
			lg.Warnw("genai analyzer unavailable, scoring heuristically", "error", err)
		} else {
			analyzer = a
		}
	}

	coord := service.NewCoordinator(st, blobs, engine, lg, cfg.MaxUploadBytes)
	proofs := service.NewProofService(st, blobs, engine, analyzer, lg)

	router := httpserver.NewRouter(httpserver.Deps{
		Store:          st,
		Coordinator:    coord,
		Proofs:         proofs,
		Engine:         engine,
		Logger:         lg,
		JWTSecret:      []byte(cfg.JWTSecret),
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		lg.Infow("listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatalw("serve", "error", err)
		}
	}()

	<-done
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Errorw("shutdown", "error", err)
	}
	lg.Infow("stopped")
}
