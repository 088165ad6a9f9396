package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/news-bot/app/ai"
	"github.com/lysyi3m/news-bot/app/api"
	"github.com/lysyi3m/news-bot/app/cfg"
	"github.com/lysyi3m/news-bot/app/database"
	"github.com/lysyi3m/news-bot/app/dedup"
	"github.com/lysyi3m/news-bot/app/feed"
	"github.com/lysyi3m/news-bot/app/pipeline"
	"github.com/lysyi3m/news-bot/app/publisher"
	"github.com/lysyi3m/news-bot/app/scraper"
	"github.com/lysyi3m/news-bot/app/seed"
	"github.com/lysyi3m/news-bot/app/tasks"
	"github.com/lysyi3m/news-bot/app/writer"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting News Bot", "version", cfg.GetVersion(), "languages", appCfg.Languages, "bot_disabled", appCfg.BotDisabled)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	index, closeIndex, err := newIndex(appCfg)
	if err != nil {
		slog.Error("Failed to initialize dedup index", "error", err)
		os.Exit(1)
	}
	defer closeIndex()

	catalog, err := seed.LoadCatalog(appCfg.FeedsFile)
	if err != nil {
		slog.Error("Failed to load feed catalog", "file", appCfg.FeedsFile, "error", err)
		os.Exit(1)
	}

	feedRepo := database.NewFeedRepository(db)
	articleRepo := database.NewArticleRepository(db)
	approvalRepo := database.NewApprovalRepository(db)
	settingsRepo := database.NewSettingsRepository(db)
	runRepo := database.NewRunLogRepository(db)

	httpClient := &http.Client{Timeout: appCfg.FetchTimeout}
	feedScraper := scraper.New(feedRepo, articleRepo, index, httpClient, scraper.Options{
		UserAgent:   appCfg.UserAgent,
		Timeout:     appCfg.FetchTimeout,
		Concurrency: appCfg.FetchConcurrency,
	})

	aiClient := ai.NewClient(ai.Config{
		Endpoint: appCfg.AIEndpoint,
		APIKey:   appCfg.AIAPIKey,
		Model:    appCfg.AIModel,
		Timeout:  appCfg.AITimeout,
	})
	articleWriter := writer.New(aiClient, writer.Options{
		Languages:       appCfg.Languages,
		DefaultLanguage: appCfg.DefaultLanguage,
		Timeout:         appCfg.AITimeout,
	})
	articlePublisher := publisher.New(articleRepo, feedRepo, publisher.Options{
		Languages:       appCfg.Languages,
		DefaultLanguage: appCfg.DefaultLanguage,
		Author:          appCfg.ArticleAuthor,
	})

	cycles := pipeline.New(settingsRepo, runRepo, feedScraper, articleWriter, articlePublisher, index,
		pipeline.Options{Disabled: appCfg.BotDisabled})

	var scheduler tasks.TaskSchedulerInterface
	if appCfg.BotDisabled {
		slog.Warn("Bot disabled at process start, scheduler not started")
	} else {
		s := tasks.NewScheduler(cycles, index, settingsRepo, tasks.SchedulerOptions{Location: time.Local})
		if err := s.Start(context.Background()); err != nil {
			slog.Error("Failed to start scheduler", "error", err)
			os.Exit(1)
		}
		defer s.Stop()
		scheduler = s
	}

	handler := api.NewHandler(api.Services{
		Runner:    cycles,
		Seeder:    seed.NewSeeder(feedRepo, settingsRepo, catalog, seed.DefaultSettings(appCfg.Defaults)),
		Backfill:  publisher.NewSlugBackfill(articleRepo),
		Generator: feed.NewGenerator(appCfg.BaseUrl),
		Scheduler: scheduler,
		Index:     index,
		Feeds:     feedRepo,
		Articles:  articleRepo,
		Approvals: approvalRepo,
		Settings:  settingsRepo,
		Runs:      runRepo,
	}, appCfg.Languages, appCfg.BotDisabled, cfg.GetVersion())

	// Manual cycles run synchronously inside the request.
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}
}

// newIndex returns the shared Redis index when REDIS_ADDR is set and an
// in-process index otherwise.
func newIndex(appCfg *cfg.Cfg) (dedup.Index, func(), error) {
	if appCfg.RedisAddr == "" {
		slog.Info("Using in-memory dedup index", "ttl", appCfg.DedupTTL)
		return dedup.NewMemoryIndex(appCfg.DedupTTL), func() {}, nil
	}

	index, err := dedup.NewRedisIndex(dedup.RedisConfig{
		Addr:     appCfg.RedisAddr,
		Password: appCfg.RedisPassword,
		DB:       appCfg.RedisDB,
	}, appCfg.DedupTTL)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Using Redis dedup index", "addr", appCfg.RedisAddr, "ttl", appCfg.DedupTTL)
	return index, func() { index.Close() }, nil
}
