package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/avelines/taskwatch/internal/events"
	"github.com/avelines/taskwatch/internal/redact"
	"github.com/avelines/taskwatch/internal/telemetry"
)

// TrackerConfig holds the tracker's resource policy.
type TrackerConfig struct {
	// MaxConcurrentPollers caps how many tasks may be polled at once
	// across all entities and task types. Zero or negative falls back to
	// the default.
	MaxConcurrentPollers int

	// DefaultPollConfig is applied to launches that do not carry their
	// own budget.
	DefaultPollConfig PollConfig
}

// DefaultTrackerConfig returns a TrackerConfig with reasonable defaults.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxConcurrentPollers: 32,
		DefaultPollConfig:    DefaultPollConfig(),
	}
}

// Tracker is the consumer-facing surface of the subsystem. It owns the
// store, launcher and poller lifecycles and is created once by the
// application root and injected where needed; there is no package-level
// shared instance.
type Tracker struct {
	store    *Store
	launcher *Launcher
	source   StatusSource
	emitter  events.Emitter
	config   TrackerConfig
	logger   *slog.Logger

	// sem caps concurrently running pollers.
	sem chan struct{}

	mu      sync.Mutex
	pollers map[Key]context.CancelFunc
	closed  bool

	wg sync.WaitGroup
}

// NewTracker wires a Tracker from its collaborators. emitter may be nil when
// no one subscribes to terminal notifications.
func NewTracker(
	store *Store,
	launch LaunchSource,
	status StatusSource,
	emitter events.Emitter,
	config TrackerConfig,
	logger *slog.Logger,
) *Tracker {
	if config.MaxConcurrentPollers <= 0 {
		config.MaxConcurrentPollers = DefaultTrackerConfig().MaxConcurrentPollers
	}
	if config.DefaultPollConfig.MaxAttempts <= 0 {
		config.DefaultPollConfig = DefaultPollConfig()
	}
	return &Tracker{
		store:    store,
		launcher: NewLauncher(store, launch, logger),
		source:   status,
		emitter:  emitter,
		config:   config,
		logger:   logger.With("component", "tracker"),
		sem:      make(chan struct{}, config.MaxConcurrentPollers),
		pollers:  make(map[Key]context.CancelFunc),
	}
}

// Launch submits a job and attaches a poller for it. Beyond the
// MaxConcurrentPollers cap it fails fast with ErrPollerLimit without
// contacting the server.
func (t *Tracker) Launch(ctx context.Context, entityID string, taskType Type, payload map[string]any) (Descriptor, error) {
	key := Key{EntityID: entityID, Type: taskType}

	if t.store.Has(key) {
		telemetry.LaunchRejects.Inc()
		return Descriptor{}, fmt.Errorf("%w: %s", ErrAlreadyRunning, key)
	}

	select {
	case t.sem <- struct{}{}:
	default:
		return Descriptor{}, fmt.Errorf("%w: cap %d reached", ErrPollerLimit, cap(t.sem))
	}

	d, err := t.launcher.Launch(ctx, key, payload, t.config.DefaultPollConfig)
	if err != nil {
		<-t.sem
		return Descriptor{}, err
	}
	telemetry.LaunchesTotal.Inc()

	if err := t.attach(d); err != nil {
		<-t.sem
		return d, err
	}
	return d, nil
}

// Resume attaches pollers for descriptors restored from a persisted
// snapshot. Descriptors that cannot get a poller slot stay in the store and
// keep their last known status until a later Resume.
func (t *Tracker) Resume(ctx context.Context) int {
	resumed := 0
	for _, d := range t.store.Active() {
		if d.Status.Terminal() {
			// Should not happen; terminal descriptors are removed on
			// transition. Drop defensively restored leftovers.
			t.store.Remove(d.Key())
			continue
		}
		select {
		case t.sem <- struct{}{}:
		default:
			t.logger.Warn("poller cap reached while resuming",
				"entity_id", d.EntityID, "task_type", d.Type)
			return resumed
		}
		if err := t.attach(d); err != nil {
			<-t.sem
			continue
		}
		resumed++
	}
	if resumed > 0 {
		t.logger.Info("resumed polling for restored tasks", "count", resumed)
	}
	return resumed
}

// attach starts the poller goroutine for a registered descriptor.
func (t *Tracker) attach(d Descriptor) error {
	key := d.Key()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("tracker closed")
	}
	if _, exists := t.pollers[key]; exists {
		t.mu.Unlock()
		return fmt.Errorf("%w: poller active for %s", ErrAlreadyRunning, key)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.pollers[key] = cancel
	t.mu.Unlock()

	telemetry.ActiveTasks.Inc()

	p := NewPoller(t.store, t.source, d, t.logger)
	p.SetCallbacks(
		func(d Descriptor) { t.notify(d, nil) },
		func(d Descriptor, err error) { t.notify(d, err) },
	)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			t.detach(key)
			telemetry.ActiveTasks.Dec()
			<-t.sem
		}()
		p.Run(ctx)
	}()
	return nil
}

// detach forgets the poller's cancel handle once its goroutine exits.
func (t *Tracker) detach(key Key) {
	t.mu.Lock()
	delete(t.pollers, key)
	t.mu.Unlock()
}

// notify publishes a terminal transition to subscribers.
func (t *Tracker) notify(d Descriptor, terminalErr error) {
	if t.emitter == nil {
		return
	}
	msg := ""
	if terminalErr != nil {
		// The server's error string ends up in logs and notifications;
		// scrub anything sensitive it may embed.
		msg = redact.Error(terminalErr)
	}
	event := events.NewTaskEvent(d.EntityID, string(d.Type), d.TaskID, string(d.Status), msg)
	if err := t.emitter.Emit(context.Background(), event); err != nil {
		t.logger.Error("failed to publish task event",
			"entity_id", d.EntityID,
			"task_type", d.Type,
			"error", err)
	}
}

// ActiveTasks returns a read-only view of the active descriptors.
func (t *Tracker) ActiveTasks() []Descriptor {
	return t.store.Active()
}

// StatusOf returns the last known status for the entity and task type.
func (t *Tracker) StatusOf(entityID string, taskType Type) (Status, bool) {
	return t.store.EntityStatus(entityID, taskType)
}

// Projection returns the full per-entity projection entry.
func (t *Tracker) Projection(entityID string) (ProjectionEntry, bool) {
	return t.store.Projection(entityID)
}

// ApplyStatuses overlays tracked statuses onto freshly fetched entity
// records.
func (t *Tracker) ApplyStatuses(entities []StatusCarrier) {
	t.store.ApplyStatuses(entities)
}

// Cancel stops the poller for the key and removes its descriptor. The
// remote job is not cancelled (fire-and-forget on the server side) and any
// projection already written stays visible. Reports whether a task was
// actually cancelled.
func (t *Tracker) Cancel(entityID string, taskType Type) bool {
	key := Key{EntityID: entityID, Type: taskType}

	t.mu.Lock()
	cancel, ok := t.pollers[key]
	t.mu.Unlock()
	if ok {
		cancel()
	}

	// Remove the descriptor first so a response already in flight is
	// discarded by the poller's existence check.
	removed := t.store.Remove(key)
	if removed {
		t.logger.Info("task cancelled",
			"entity_id", entityID, "task_type", taskType)
	}
	return removed || ok
}

// CancelAll cancels every active descriptor.
func (t *Tracker) CancelAll() {
	for _, d := range t.store.Active() {
		t.Cancel(d.EntityID, d.Type)
	}
}

// Close stops all pollers without removing their descriptors, so the final
// persisted snapshot still carries the in-flight tasks for the next run to
// resume. Blocks until every poller goroutine has exited.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	cancels := make([]context.CancelFunc, 0, len(t.pollers))
	for _, cancel := range t.pollers {
		cancels = append(cancels, cancel)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	t.wg.Wait()
	t.logger.Info("tracker closed")
}
