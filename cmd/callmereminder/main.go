package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/humayunah/Call-Me-Reminder/internal/api"
	"github.com/humayunah/Call-Me-Reminder/internal/cache"
	"github.com/humayunah/Call-Me-Reminder/internal/client"
	"github.com/humayunah/Call-Me-Reminder/internal/config"
	"github.com/humayunah/Call-Me-Reminder/internal/repo"
	"github.com/humayunah/Call-Me-Reminder/internal/scheduler"
	"github.com/humayunah/Call-Me-Reminder/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	db, dialect, err := repo.Open(cfg.Database.URL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := repo.EnsureSchema(context.Background(), db, dialect); err != nil {
		log.Fatal(err)
	}

	reminders := repo.NewSQLReminderRepo(db, dialect, clock.New())

	vapi := client.NewVapiClient(cfg.Vapi.APIKey, cfg.Vapi.PhoneNumberID, cfg.Vapi.BaseURL)
	if cfg.Vapi.APIKey == "" || cfg.Vapi.PhoneNumberID == "" {
		logger.Warn("Vapi credentials not configured; due reminders will fail until they are set")
	}

	dispatcher := service.NewDispatcher(reminders, vapi, service.Options{
		MaxInFlight: cfg.Scheduler.MaxConcurrentCalls,
		CallTimeout: cfg.Scheduler.CallTimeout,
		Logger:      logger,
	})

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		completions := cache.NewRedisCache(rdb, cfg.Redis.TTL)
		dispatcher.WithCompletionHook(completions.StoreCompleted)
		logger.Info("completion cache enabled", "addr", cfg.Redis.Address)
	}

	sched, err := scheduler.New(scheduler.Config{
		Interval:      cfg.Scheduler.Interval,
		ShutdownGrace: cfg.Scheduler.ShutdownGrace,
		Logger:        logger,
	}, dispatcher.Tick)
	if err != nil {
		log.Fatal(err)
	}
	sched.Start()

	handler := api.NewHandler(reminders, sched, clock.New())
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: api.Router(handler, cfg.HTTP.CORSAllowedOrigins),
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	sched.Stop()

	logger.Info("shutdown complete")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
