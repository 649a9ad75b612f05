// Package tracking reports pipeline step progress to subscribers.
package tracking

import (
	"context"
	"log/slog"
	"sync"

	"github.com/helixml/modelprep/domain/model"
)

// Update is a step status together with the run it belongs to.
type Update struct {
	RunID  string
	Model  string
	Status model.Status
}

// Key identifies the step within its run.
func (u Update) Key() string {
	return u.RunID + "/" + string(u.Status.Step())
}

// Reporter receives status updates.
type Reporter interface {
	OnChange(ctx context.Context, update Update) error
}

// Tracker holds the status of one pipeline step and propagates every change
// to its subscribers.
type Tracker struct {
	runID       string
	model       string
	status      model.Status
	subscribers []Reporter
	logger      *slog.Logger
	mu          sync.RWMutex
}

// NewTracker creates a tracker for step of the given run.
func NewTracker(runID, modelName string, step model.Step, logger *slog.Logger, subscribers ...Reporter) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		runID:       runID,
		model:       modelName,
		status:      model.NewStatus(step),
		subscribers: subscribers,
		logger:      logger,
	}
}

// Status returns a copy of the current Status.
func (t *Tracker) Status() model.Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Subscribe adds a reporter to receive status change notifications.
func (t *Tracker) Subscribe(reporter Reporter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers = append(t.subscribers, reporter)
}

// Start announces the step with a message.
func (t *Tracker) Start(ctx context.Context, message string) {
	t.update(ctx, func(s model.Status) model.Status { return s.WithMessage(message) })
}

// SetTotal sets the total for progress tracking.
func (t *Tracker) SetTotal(ctx context.Context, total int64) {
	t.update(ctx, func(s model.Status) model.Status { return s.SetTotal(total) })
}

// SetCurrent updates the current progress and optionally the message.
func (t *Tracker) SetCurrent(ctx context.Context, current int64, message string) {
	t.update(ctx, func(s model.Status) model.Status { return s.SetCurrent(current, message) })
}

// Skip marks the step as skipped with a reason.
func (t *Tracker) Skip(ctx context.Context, reason string) {
	t.update(ctx, func(s model.Status) model.Status { return s.Skip(reason) })
}

// Fail marks the step as failed with an error message.
func (t *Tracker) Fail(ctx context.Context, errMsg string) {
	t.update(ctx, func(s model.Status) model.Status { return s.Fail(errMsg) })
}

// Complete marks the step as completed.
func (t *Tracker) Complete(ctx context.Context, message string) {
	t.update(ctx, func(s model.Status) model.Status { return s.Complete(message) })
}

func (t *Tracker) update(ctx context.Context, fn func(model.Status) model.Status) {
	t.mu.Lock()
	t.status = fn(t.status)
	u := Update{RunID: t.runID, Model: t.model, Status: t.status}
	subscribers := make([]Reporter, len(t.subscribers))
	copy(subscribers, t.subscribers)
	t.mu.Unlock()

	for _, subscriber := range subscribers {
		if err := subscriber.OnChange(ctx, u); err != nil {
			t.logger.Error("failed to notify subscriber",
				slog.String("error", err.Error()),
				slog.String("step", string(u.Status.Step())),
			)
		}
	}
}
