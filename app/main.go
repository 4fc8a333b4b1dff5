package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"creatorank/app/api"
	"creatorank/app/cfg"
	"creatorank/app/crawl"
	"creatorank/app/database"
	"creatorank/app/enrich"
	"creatorank/app/httpclient"
	"creatorank/app/parser"
	"creatorank/app/pipeline"
	"creatorank/app/scoring"
	"creatorank/app/sources"
	"creatorank/app/tasks"
)

func main() {
	appCfg, args, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	command := "run"
	if len(args) > 0 {
		command = args[0]
	}

	if err := run(appCfg, command); err != nil {
		slog.Error("Command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func run(appCfg *cfg.Cfg, command string) error {
	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	if command == "migrate" {
		return nil
	}

	sourcesConfig, err := sources.Load(appCfg.SourcesFile)
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}

	p := buildPipeline(appCfg, db, sourcesConfig)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "discover":
		return reportStage(p.Discover(ctx))
	case "backfill":
		return reportStage(p.Backfill(ctx))
	case "enrich":
		return reportStage(p.Enrich(ctx))
	case "rescore":
		return reportStage(p.Rescore(ctx))
	case "run":
		for _, report := range p.RunAll(ctx) {
			if err := reportStage(report); err != nil {
				return err
			}
		}
		return ctx.Err()
	case "serve":
		return serve(appCfg, db, p)
	default:
		return fmt.Errorf("unknown command %q (expected migrate, discover, backfill, enrich, rescore, run or serve)", command)
	}
}

func buildPipeline(appCfg *cfg.Cfg, db *database.DB, sourcesConfig *sources.Config) *pipeline.Pipeline {
	creatorRepo := database.NewCreatorRepository(db)
	itemRepo := database.NewItemRepository(db)
	scoreRepo := database.NewScoreRepository(db)

	gate := httpclient.NewHostGate(appCfg.RequestDelay)
	fetcher := httpclient.New(gate, appCfg.UserAgent, appCfg.MaxRetries)

	feedParser := parser.NewFeedParser(appCfg.PlatformHost)
	cursor := crawl.NewCursor(fetcher, parser.ParseListing, creatorRepo, itemRepo, appCfg.PageCap)
	enricher := enrich.NewScheduler(fetcher, parser.ParseDetail, itemRepo,
		appCfg.HiddenCooldown, appCfg.StaleAfter, appCfg.EnrichBudget)
	scorer := scoring.NewScorer(appCfg.MinVotes)

	return pipeline.New(fetcher, feedParser, sourcesConfig, creatorRepo, itemRepo, scoreRepo,
		cursor, enricher, scorer, appCfg.WorkerCount)
}

func reportStage(report pipeline.Report) error {
	slog.Info("Stage finished",
		"stage", report.Stage,
		"processed", report.Processed,
		"succeeded", report.Succeeded,
		"failed", report.Failed)

	for _, failure := range report.Failures {
		slog.Warn("Stage failure", "stage", report.Stage, "subject", failure.Subject, "reason", failure.Reason)
	}

	if report.Processed > 0 && report.Succeeded == 0 && report.Failed > 0 {
		return fmt.Errorf("stage %s failed entirely: %s", report.Stage, report.Failures[0].Reason)
	}

	return nil
}

func serve(appCfg *cfg.Cfg, db *database.DB, p *pipeline.Pipeline) error {
	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "interval_seconds", appCfg.SchedulerInterval)
	scheduler := tasks.NewScheduler(p)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(database.NewCreatorRepository(db), database.NewItemRepository(db),
		database.NewScoreRepository(db), scheduler, appCfg.Version)
	server := api.NewServer(handler, p, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
	}

	return nil
}
