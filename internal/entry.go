// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/perch/daybook/internal/dates"
	"github.com/perch/daybook/internal/devserver"
	"github.com/perch/daybook/internal/diaryform"
	"github.com/perch/daybook/internal/fixtures"
	"github.com/perch/daybook/internal/localstate"
	"github.com/perch/daybook/internal/mcpserver"
	"github.com/perch/daybook/internal/models"
	"github.com/perch/daybook/internal/push"
	"github.com/perch/daybook/internal/recordstore"
	"github.com/perch/daybook/internal/reminder"
	"github.com/perch/daybook/internal/sse"
)

func setup(opts []Option) (*Config, *slog.Logger, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// Run starts the dev server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	cfg, logger, err := setup(opts)
	if err != nil {
		return err
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("fixtures_path", cfg.Fixtures.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("edit_policy", string(cfg.Diary.EditPolicy)),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure fixtures directory exists.
	if err := os.MkdirAll(cfg.Fixtures.Path, 0o755); err != nil {
		return fmt.Errorf("create fixtures dir: %w", err)
	}
	dir, err := fixtures.NewDir(cfg.Fixtures.Path)
	if err != nil {
		return fmt.Errorf("init fixtures: %w", err)
	}

	// Initialize SQLite store.
	db, err := devserver.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	// Run initial fixture load.
	if err := fixtures.Seed(db, dir, logger); err != nil {
		logger.Warn("initial seed failed", slog.String("error", err.Error()))
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)

	// Build API service and router.
	svc := devserver.NewService(db, cfg.Diary.EditPolicy, cfg.API.Location(),
		devserver.WithChangeHook(broker.PublishDayEvent))
	apiRouter := devserver.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start fixture watcher with SSE callback.
	g.Go(func() error {
		err := fixtures.Watch(gCtx, db, dir, logger, func(kind, date string) {
			broker.PublishDayEvent(kind, date)
		})
		if err != nil {
			logger.Warn("fixture watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunReminder starts the evening reminder scheduler against the configured
// record store and blocks until ctx is cancelled.
func RunReminder(ctx context.Context, opts ...Option) error {
	cfg, logger, err := setup(opts)
	if err != nil {
		return err
	}

	state, err := localstate.Open(cfg.State.Path)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}

	client := recordstore.NewClient(cfg.API.BaseURL, cfg.API.Timezone, recordClientOpts(cfg)...)
	store := recordstore.NewCache(client)
	notifier := reminder.ConsoleNotifier{Logger: logger}

	sched, err := reminder.New(store, state, notifier, cfg.Reminders.Slots, cfg.API.Location(),
		reminder.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	logger.Info("Reminder scheduler started",
		slog.String("slots", fmt.Sprint(cfg.Reminders.Slots)),
		slog.String("timezone", cfg.API.Timezone))

	<-ctx.Done()
	return sched.Stop()
}

// RunSubscribe runs the one-shot push subscription setup flow. Device
// material (endpoint and keys) is read from the configured key file.
func RunSubscribe(ctx context.Context, opts ...Option) error {
	cfg, logger, err := setup(opts)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(cfg.Push.KeyFile)
	if err != nil {
		return fmt.Errorf("read key file: %w", err)
	}
	var sub push.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return fmt.Errorf("parse key file: %w", err)
	}

	state, err := localstate.Open(cfg.State.Path)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}

	capability := push.StaticCapability{
		IsSupported: true,
		State:       push.PermissionDefault,
		Sub:         &sub,
	}
	var pushOpts []push.ClientOption
	if cfg.API.Token != "" {
		pushOpts = append(pushOpts, push.WithToken(cfg.API.Token))
	}
	mgr := push.NewManager(push.NewClient(cfg.API.BaseURL, pushOpts...), capability, state, cfg.Push.CaregiverID, logger)

	res, err := mgr.Ensure(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if !res.Subscribed {
		logger.Warn("Push permission not granted; not subscribed")
		return nil
	}
	logger.Info("Push subscription ensured",
		slog.String("id", string(res.Record.ID)),
		slog.Bool("created", res.Created),
		slog.Bool("verified", res.Verified))
	return nil
}

// RunSubmit submits diary answers for a date through the form state machine,
// so the CLI enforces the same sanitization and guard rules as the portal
// page. Answers are "key=value" pairs keyed by question ID or follow-up
// response key; checkbox values are comma-separated option lists.
func RunSubmit(ctx context.Context, date string, answers []string, opts ...Option) error {
	cfg, logger, err := setup(opts)
	if err != nil {
		return err
	}

	loc := cfg.API.Location()
	if date == "" {
		date = dates.Today(loc)
	}
	if !dates.Valid(date) {
		return fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
	}

	client := recordstore.NewClient(cfg.API.BaseURL, cfg.API.Timezone, recordClientOpts(cfg)...)
	store := recordstore.NewCache(client)
	form := diaryform.New(store, diaryform.WithLocation(loc))
	defer form.Teardown()

	if err := form.SelectDate(ctx, date); err != nil {
		return fmt.Errorf("load %s: %w", date, err)
	}
	if !form.Editable() {
		return fmt.Errorf("%s is not editable", date)
	}
	rec := form.Record()

	for _, pair := range answers {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("answer %q is not key=value", pair)
		}
		if q, found := questionByID(rec.Diary.Questions, key); found {
			if q.Type == models.QuestionCheckbox {
				form.SetAnswer(key, models.SetAnswer(strings.Split(value, ",")...))
			} else {
				form.SetAnswer(key, models.TextAnswer(value))
			}
			continue
		}
		if !followupKeyKnown(rec.Diary.Questions, key) {
			return fmt.Errorf("unknown answer key %q", key)
		}
		form.SetFollowup(key, value)
	}

	if err := form.Save(ctx); err != nil {
		return fmt.Errorf("submit %s: %w", date, err)
	}

	if state, err := localstate.Open(cfg.State.Path); err == nil {
		if err := state.SetSelectedDate(date); err != nil {
			logger.Warn("persist selected date failed", slog.String("error", err.Error()))
		}
	}

	logger.Info("Diary submitted", slog.String("date", date))
	return nil
}

func questionByID(questions []models.Question, id string) (models.Question, bool) {
	for _, q := range questions {
		if q.ID == id {
			return q, true
		}
	}
	return models.Question{}, false
}

func followupKeyKnown(questions []models.Question, key string) bool {
	for _, q := range questions {
		for _, fu := range q.Followups {
			if fu.ResponseKey == key {
				return true
			}
		}
	}
	return false
}

// RunMCP serves the MCP diary tools on stdio against the configured record
// store.
func RunMCP(opts ...Option) error {
	cfg, _, err := setup(opts)
	if err != nil {
		return err
	}
	client := recordstore.NewClient(cfg.API.BaseURL, cfg.API.Timezone, recordClientOpts(cfg)...)
	return mcpserver.New(recordstore.NewCache(client)).ServeStdio()
}

// recordClientOpts translates API config into record store client options.
func recordClientOpts(cfg *Config) []recordstore.ClientOption {
	var opts []recordstore.ClientOption
	if cfg.API.Token != "" {
		opts = append(opts, recordstore.WithToken(cfg.API.Token))
	}
	return opts
}
