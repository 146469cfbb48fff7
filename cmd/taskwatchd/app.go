package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/avelines/taskwatch/internal/api"
	"github.com/avelines/taskwatch/internal/client"
	"github.com/avelines/taskwatch/internal/config"
	"github.com/avelines/taskwatch/internal/events"
	"github.com/avelines/taskwatch/internal/platform/logger"
	"github.com/avelines/taskwatch/internal/platform/pebblekv"
	"github.com/avelines/taskwatch/internal/platform/postgreskv"
	"github.com/avelines/taskwatch/internal/platform/rediskv"
	"github.com/avelines/taskwatch/internal/store/kv"
	"github.com/avelines/taskwatch/internal/task"
)

// application holds the wired dependencies of the daemon. The tracker and
// store are owned here and injected where needed; nothing hangs off package
// state.
type application struct {
	config  *config.Config
	logger  *slog.Logger
	backend kv.Store
	store   *task.Store
	sync    *task.Synchronizer
	tracker *task.Tracker
	emitter *events.InMemoryEmitter
}

func newApplication() (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	log := logger.Setup(cfg.Server)
	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"snapshot_backend", cfg.Snapshot.Backend)

	backend, err := openBackend(cfg.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot backend: %w", err)
	}

	store := task.NewStore(log)
	sync := task.NewSynchronizer(store, backend, log,
		task.WithSnapshotKey(cfg.Snapshot.Key),
		task.WithSnapshotTTL(cfg.Snapshot.TTL))

	// Restore before attaching the change hook so the load itself does
	// not trigger a save, and before any launch can race it.
	restored := sync.Restore(context.Background())
	sync.Attach()
	if restored > 0 {
		log.Info("restored in-flight tasks from snapshot", "count", restored)
	}

	jobClient := client.New(client.Config{
		BaseURL: cfg.Remote.BaseURL,
		Timeout: cfg.Remote.RequestTimeout,
	}, log)

	emitter := events.NewInMemoryEmitter(log)
	emitter.RegisterHandler(notificationLogger(log))

	tracker := task.NewTracker(store, jobClient, jobClient, emitter, task.TrackerConfig{
		MaxConcurrentPollers: cfg.Tracker.MaxConcurrentPollers,
		DefaultPollConfig: task.PollConfig{
			MaxAttempts:    cfg.Tracker.MaxAttempts,
			Interval:       cfg.Tracker.PollInterval,
			TimeoutMessage: cfg.Tracker.TimeoutMessage,
		},
	}, log)

	tracker.Resume(context.Background())

	return &application{
		config:  cfg,
		logger:  log,
		backend: backend,
		store:   store,
		sync:    sync,
		tracker: tracker,
		emitter: emitter,
	}, nil
}

// openBackend builds the configured snapshot backend.
func openBackend(cfg config.SnapshotConfig) (kv.Store, error) {
	switch cfg.Backend {
	case "memory":
		return kv.NewMemory(), nil
	case "pebble":
		return pebblekv.Open(cfg.PebblePath)
	case "redis":
		backend := rediskv.New(rediskv.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := backend.Ping(context.Background()); err != nil {
			return nil, err
		}
		return backend, nil
	case "postgres":
		return postgreskv.Open(context.Background(), cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Backend)
	}
}

// notificationLogger is the default subscriber: it surfaces terminal
// transitions in the log, where a UI would show a dismissible notification.
func notificationLogger(log *slog.Logger) events.HandlerFunc {
	return func(_ context.Context, event *events.TaskEvent) error {
		if event.Message != "" {
			log.Warn("task finished with error",
				"entity_id", event.EntityID,
				"task_type", event.TaskType,
				"status", event.Status,
				"message", event.Message)
			return nil
		}
		log.Info("task finished",
			"entity_id", event.EntityID,
			"task_type", event.TaskType,
			"status", event.Status)
		return nil
	}
}

// cleanup stops the pollers and closes the backend. Descriptors stay in the
// store so the final snapshot keeps in-flight tasks for the next run.
func (app *application) cleanup() {
	if app.tracker != nil {
		app.tracker.Close()
	}
	if app.backend != nil {
		if err := app.backend.Close(); err != nil {
			app.logger.Error("failed to close snapshot backend", "error", err)
		}
	}
}

// handler adapts the tracker to the API's service interface.
func (app *application) handler() *api.TaskHandler {
	return api.NewTaskHandler(app.tracker, app.logger)
}
