// Package main contains the entrypoint for the ChatDesk service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatdesk/chatdesk/internal/app"
	"github.com/chatdesk/chatdesk/internal/app/tasks"
	"github.com/chatdesk/chatdesk/internal/chat"
	"github.com/chatdesk/chatdesk/internal/config"
	"github.com/chatdesk/chatdesk/internal/correlation"
	"github.com/chatdesk/chatdesk/internal/database"
	"github.com/chatdesk/chatdesk/internal/dedup"
	"github.com/chatdesk/chatdesk/internal/gemini"
	"github.com/chatdesk/chatdesk/internal/logger"
	"github.com/chatdesk/chatdesk/internal/notify"
	"github.com/chatdesk/chatdesk/internal/pipeline"
	"github.com/chatdesk/chatdesk/internal/ticketing"
	"github.com/chatdesk/chatdesk/internal/webhook"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components, handles graceful
// shutdown, and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	gemClient, err := gemini.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		return 1
	}

	chatClient, err := chat.NewClient(cfg.Chat, log)
	if err != nil {
		log.Error("Failed to create chat client", "error", err)
		return 1
	}

	ticketClient, err := ticketing.NewClient(cfg.Ticketing, log)
	if err != nil {
		log.Error("Failed to create ticketing client", "error", err)
		return 1
	}

	corrStore := correlation.NewStore(store, ticketClient, log)
	deduper := dedup.NewClassifier(
		corrStore,
		gemClient,
		ticketClient,
		cfg.Workflow.SimilarityThreshold,
		cfg.Workflow.Lookback,
		cfg.Workflow.SimilarityTickets,
		log,
	)
	dispatcher := notify.NewDispatcher(chatClient, log)
	materializer := pipeline.NewMaterializer(ticketClient, corrStore, log)

	pipe := pipeline.NewPipeline(
		chatClient,
		deduper,
		gemClient,
		materializer,
		ticketClient,
		dispatcher,
		corrStore,
		store,
		cfg.Workflow,
		cfg.Chat.BotMention,
		log,
	)
	tracker := pipeline.NewTracker(store, ticketClient, dispatcher, log)

	taskMap := tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:   log,
		Store:    store,
		Pipeline: pipe,
		Tracker:  tracker,
	})
	sched, err := app.NewScheduler(log, &cfg.Scheduler, taskMap)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	var webhookServer *webhook.Server
	if cfg.Webhook.Enabled {
		webhookServer = webhook.NewServer(cfg.Webhook, tracker, store, log)
	}

	application := app.NewApp(log, sched, webhookServer)

	log.Info("Starting ChatDesk...")
	runErr := application.Run(ctx)
	log.Info("Run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Service stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Service stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
