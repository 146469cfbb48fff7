package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avelines/taskwatch/internal/telemetry"
)

// Poller drives the state machine of a single descriptor: every interval it
// queries the remote status endpoint and applies the observed transition to
// the store. The machine is PENDING/RUNNING looping into one of the terminal
// states COMPLETED, FAILED, TIMEOUT or UNKNOWN. Pollers for different keys
// are independent; within one key status queries are strictly sequential.
type Poller struct {
	store  *Store
	source StatusSource
	desc   Descriptor
	logger *slog.Logger

	// onComplete and onError deliver terminal transitions. Either may be
	// nil. onError receives ErrTaskFailed, ErrTimeout or ErrUnknownStatus
	// wrapped with the server- or config-provided message.
	onComplete func(Descriptor)
	onError    func(Descriptor, error)
}

// NewPoller creates a poller for an already registered descriptor.
func NewPoller(store *Store, source StatusSource, desc Descriptor, logger *slog.Logger) *Poller {
	return &Poller{
		store:  store,
		source: source,
		desc:   desc,
		logger: logger.With(
			"component", "poller",
			"entity_id", desc.EntityID,
			"task_type", desc.Type,
			"task_id", desc.TaskID,
		),
	}
}

// SetCallbacks installs the terminal transition handlers. Must be called
// before Run.
func (p *Poller) SetCallbacks(onComplete func(Descriptor), onError func(Descriptor, error)) {
	p.onComplete = onComplete
	p.onError = onError
}

// Run blocks until the descriptor reaches a terminal state, its store entry
// disappears, or ctx is cancelled. Cancellation is cooperative: a response
// already in flight is discarded by the store-existence check rather than
// aborted.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.desc.Config.Interval)
	defer ticker.Stop()

	key := p.desc.Key()
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("poller stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
			if done := p.poll(ctx, key); done {
				return
			}
		}
	}
}

// poll performs one status query and applies the resulting transition.
// It reports whether the poller should stop.
func (p *Poller) poll(ctx context.Context, key Key) bool {
	attempts, active := p.store.BumpAttempts(key)
	if !active {
		// Cancelled or already terminal; nothing left to drive.
		return true
	}

	telemetry.PollsTotal.Inc()
	res, err := p.source.TaskStatus(ctx, p.desc.TaskID)
	if err != nil {
		// Transient network failure: swallowed, the loop continues on
		// the next tick, bounded by the same attempt budget.
		telemetry.PollErrors.Inc()
		p.logger.Debug("status query failed", "attempt", attempts, "error", err)
		return p.maybeTimeout(attempts)
	}

	switch status := ParseRemoteStatus(res.Status); status {
	case StatusPending, StatusRunning:
		if err := p.store.UpdateStatus(key, status); err != nil {
			// Descriptor vanished between the bump and the update.
			return true
		}
		return p.maybeTimeout(attempts)

	case StatusCompleted:
		p.finish(key, StatusCompleted, nil)
		return true

	case StatusFailed:
		msg := res.Error
		if msg == "" {
			msg = res.Message
		}
		p.finish(key, StatusFailed, fmt.Errorf("%w: %s", ErrTaskFailed, msg))
		return true

	default:
		p.finish(key, StatusUnknown, fmt.Errorf("%w: %q", ErrUnknownStatus, res.Status))
		return true
	}
}

// maybeTimeout forces the TIMEOUT transition once the attempt budget is
// exhausted while the job is still non-terminal. Reports whether the poller
// should stop.
func (p *Poller) maybeTimeout(attempts int) bool {
	if attempts < p.desc.Config.MaxAttempts {
		return false
	}
	p.finish(p.desc.Key(), StatusTimeout,
		fmt.Errorf("%w: %s", ErrTimeout, p.desc.Config.TimeoutMessage))
	return true
}

// finish applies a terminal transition: projection update plus descriptor
// removal, then callback delivery. Applying the same terminal status twice
// is a no-op because Finish refuses keys with no active descriptor.
func (p *Poller) finish(key Key, status Status, terminalErr error) {
	if !p.store.Finish(key, status) {
		p.logger.Debug("stale terminal result discarded", "status", status)
		return
	}

	telemetry.TasksTerminal.WithLabelValues(string(status)).Inc()

	d := p.desc
	d.Status = status
	if terminalErr != nil {
		p.logger.Warn("task reached terminal state",
			"status", status, "error", terminalErr)
		if p.onError != nil {
			p.onError(d, terminalErr)
		}
		return
	}
	p.logger.Info("task completed")
	if p.onComplete != nil {
		p.onComplete(d)
	}
}
