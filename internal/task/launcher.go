package task

import (
	"context"
	"fmt"
	"log/slog"
)

// Launcher submits new jobs to the remote service and registers their
// descriptors. It never leaves partial state behind: a descriptor exists
// only after the remote endpoint accepted the job and returned a task id.
type Launcher struct {
	store  *Store
	source LaunchSource
	logger *slog.Logger
}

// NewLauncher creates a Launcher backed by the given store and remote
// source.
func NewLauncher(store *Store, source LaunchSource, logger *slog.Logger) *Launcher {
	return &Launcher{
		store:  store,
		source: source,
		logger: logger.With("component", "launcher"),
	}
}

// Launch submits a job for the given key. It returns ErrAlreadyRunning
// without contacting the server when an active descriptor exists or another
// launch for the key is in flight, a wrapped transport error when the
// request fails, ErrLaunchRejected when the server declined the job, and
// ErrProtocol when the server accepted without returning a task id. On
// success the registered descriptor (status pending, zero attempts) is
// returned.
func (l *Launcher) Launch(ctx context.Context, key Key, payload map[string]any, cfg PollConfig) (Descriptor, error) {
	// Claim the key before any network call, so two concurrent launches
	// for the same key cannot both reach the remote service.
	if err := l.store.Reserve(key); err != nil {
		return Descriptor{}, err
	}
	registered := false
	defer func() {
		if !registered {
			l.store.Release(key)
		}
	}()

	if cfg.MaxAttempts <= 0 || cfg.Interval <= 0 {
		def := DefaultPollConfig()
		if cfg.MaxAttempts <= 0 {
			cfg.MaxAttempts = def.MaxAttempts
		}
		if cfg.Interval <= 0 {
			cfg.Interval = def.Interval
		}
		if cfg.TimeoutMessage == "" {
			cfg.TimeoutMessage = def.TimeoutMessage
		}
	}

	res, err := l.source.LaunchTask(ctx, key.Type, key.EntityID, payload)
	if err != nil {
		return Descriptor{}, fmt.Errorf("launching %s: %w", key, err)
	}

	if ParseRemoteStatus(res.Status) != StatusPending {
		reason := res.Error
		if reason == "" {
			reason = res.Message
		}
		return Descriptor{}, fmt.Errorf("%w: %s (status %q)", ErrLaunchRejected, reason, res.Status)
	}
	if res.TaskID == "" {
		return Descriptor{}, fmt.Errorf("%w: launch accepted without task id for %s", ErrProtocol, key)
	}

	now := l.store.now()
	d := Descriptor{
		EntityID:  key.EntityID,
		Type:      key.Type,
		TaskID:    res.TaskID,
		Status:    StatusPending,
		StartTime: now,
		Attempts:  0,
		Config:    cfg,
	}
	if err := l.store.Register(d); err != nil {
		return Descriptor{}, err
	}
	registered = true

	l.logger.Info("task launched",
		"entity_id", key.EntityID,
		"task_type", key.Type,
		"task_id", res.TaskID)
	return d, nil
}
