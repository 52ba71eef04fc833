package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"shipchat/internal/config"
	"shipchat/internal/httpserver"
	"shipchat/internal/security"
	"shipchat/internal/store/postgres"
	"shipchat/internal/store/sqlite"
	"shipchat/internal/ws"
)

// @title           shipchat API
// @version         3.0
// @description     Group chat and looking-for-group service for shipboard communities.

// @host            localhost:8000
// @BasePath        /api/v3

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	repos, closeDB, err := openStore(cfg)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer closeDB()

	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	passwordHasher := security.NewPasswordHasher(0)

	hub := ws.NewHub(logger)

	router := httpserver.NewRouter(cfg, repos, hub, tokenSvc, passwordHasher, logger)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting shipchat server", zap.String("addr", cfg.HTTPAddr()), zap.String("db_driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openStore opens the configured database, runs migrations, and returns the
// repository bundle for that driver.
func openStore(cfg *config.Config) (httpserver.Repositories, func() error, error) {
	switch cfg.DBDriver {
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return httpserver.Repositories{}, nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return httpserver.Repositories{}, nil, err
		}
		return httpserver.Repositories{
			Users:         sqlite.NewUserRepo(db),
			Fezzes:        sqlite.NewFezRepo(db),
			Participants:  sqlite.NewParticipantRepo(db),
			Posts:         sqlite.NewPostRepo(db),
			Blocks:        sqlite.NewBlockRepo(db),
			Notifications: sqlite.NewNotificationRepo(db),
			Reports:       sqlite.NewReportRepo(db),
		}, db.Close, nil
	default:
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return httpserver.Repositories{}, nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return httpserver.Repositories{}, nil, err
		}
		return httpserver.Repositories{
			Users:         postgres.NewUserRepo(db),
			Fezzes:        postgres.NewFezRepo(db),
			Participants:  postgres.NewParticipantRepo(db),
			Posts:         postgres.NewPostRepo(db),
			Blocks:        postgres.NewBlockRepo(db),
			Notifications: postgres.NewNotificationRepo(db),
			Reports:       postgres.NewReportRepo(db),
		}, db.Close, nil
	}
}
