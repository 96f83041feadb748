package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tsungho/knowsync/internal/api"
	"github.com/tsungho/knowsync/internal/config"
	"github.com/tsungho/knowsync/internal/db"
	"github.com/tsungho/knowsync/internal/engine"
	"github.com/tsungho/knowsync/internal/publisher"
	"github.com/tsungho/knowsync/internal/scheduler"
	"github.com/tsungho/knowsync/internal/source"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file (TOML)")
	once := flag.Bool("once", false, "Run a single sync and exit")
	serve := flag.Bool("serve", false, "Run the HTTP API and daily scheduler")
	flag.Parse()

	// Secrets arrive via .env / environment, matching the deployment docs
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting knowsync",
		"database_driver", cfg.Database.Driver,
		"jira_project", cfg.Jira.ProjectKey,
		"confluence_space", cfg.Confluence.SpaceKey)

	database, err := db.Open(cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err, "driver", cfg.Database.Driver)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.EnsureSchema(); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	eng := engine.New(cfg, database, buildSources(cfg, logger), buildPublisher(cfg, logger), logger)

	switch {
	case *once:
		runOnce(eng)
	case *serve:
		runServer(cfg, eng, logger)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// newLogger builds the process logger from config
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// buildSources wires the configured source adapters. Confluence is
// optional: an empty or template space key disables it.
func buildSources(cfg *config.Config, logger *slog.Logger) []source.Source {
	sources := []source.Source{
		source.NewJiraSource(
			cfg.Atlassian.URL,
			cfg.Atlassian.Email,
			cfg.Atlassian.APIToken,
			cfg.Jira.ProjectKey,
			cfg.Jira.SinceDays,
			cfg.Jira.MaxResults,
			logger,
		),
	}

	if cfg.Confluence.SpaceKey != "" && cfg.Confluence.SpaceKey != "YOUR_SPACE_KEY" {
		sources = append(sources, source.NewConfluenceSource(
			cfg.Atlassian.URL,
			cfg.Atlassian.Email,
			cfg.Atlassian.APIToken,
			cfg.Confluence.SpaceKey,
			cfg.Confluence.SinceDays,
			cfg.Confluence.MaxResults,
			logger,
		))
	} else {
		slog.Info("confluence space key not configured, confluence source disabled")
	}

	return sources
}

func buildPublisher(cfg *config.Config, logger *slog.Logger) publisher.Publisher {
	return publisher.NewDifyClient(cfg.Dify.APIURL, cfg.Dify.APIKey, cfg.Dify.DatasetID, logger)
}

// runOnce executes a single sync run and prints the report
func runOnce(eng *engine.Engine) {
	report, err := eng.RunSync(context.Background())
	if err != nil {
		slog.Error("sync run could not start", "error", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))

	if report.Status == engine.StatusError {
		os.Exit(1)
	}
}

// runServer starts the HTTP API and, if enabled, the daily scheduler,
// and blocks until SIGINT/SIGTERM
func runServer(cfg *config.Config, eng *engine.Engine, logger *slog.Logger) {
	lastRun := api.NewLastRun()

	var sched *scheduler.Scheduler
	if cfg.Schedule.Enabled {
		var err error
		sched, err = scheduler.New(cfg.Schedule.Hour, cfg.Schedule.Minute, cfg.Schedule.Timezone, eng, lastRun, logger)
		if err != nil {
			slog.Error("failed to create scheduler", "error", err)
			os.Exit(1)
		}
		sched.Start()
	}

	var httpServer *http.Server
	if cfg.HTTP.Enabled {
		server := api.NewServer(eng, lastRun, logger)
		addr := fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)
		httpServer = &http.Server{
			Addr:    addr,
			Handler: server.Router(),
		}

		go func() {
			slog.Info("http api listening", "address", addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("http server failed", "error", err)
				os.Exit(1)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down gracefully")

	if sched != nil {
		sched.Stop()
	}

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown failed", "error", err)
		}
	}
}
