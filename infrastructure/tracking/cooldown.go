package tracking

import (
	"context"
	"io"
	"sync"
	"time"
)

var (
	_ Reporter  = (*Cooldown)(nil)
	_ io.Closer = (*Cooldown)(nil)
)

// Cooldown rate-limits the byte-count updates a download or extraction emits
// so the log gets one progress line per interval for each step of a run.
// The first update of a step and every terminal one (skipped, completed,
// failed) reach inner immediately. Throttled updates are held back and only
// the newest is delivered when the step's window closes.
type Cooldown struct {
	inner    Reporter
	interval time.Duration

	mu    sync.Mutex
	steps map[string]*stepWindow
}

// stepWindow tracks throttling for one run step.
type stepWindow struct {
	openAt time.Time // earliest time the next update may be delivered
	held   *Update
	timer  *time.Timer
}

// NewCooldown wraps inner so each run step reports progress at most once per
// interval.
func NewCooldown(inner Reporter, interval time.Duration) *Cooldown {
	return &Cooldown{
		inner:    inner,
		interval: interval,
		steps:    make(map[string]*stepWindow),
	}
}

// OnChange implements Reporter.
func (c *Cooldown) OnChange(ctx context.Context, u Update) error {
	key := u.Key()
	now := time.Now()

	c.mu.Lock()
	w := c.steps[key]

	if u.Status.State().IsTerminal() {
		// The step is done: drop any held progress, it is stale now.
		if w != nil {
			w.stop()
			delete(c.steps, key)
		}
		c.mu.Unlock()
		return c.inner.OnChange(ctx, u)
	}

	if w == nil {
		w = &stepWindow{}
		c.steps[key] = w
	}

	if !now.Before(w.openAt) {
		w.stop()
		w.openAt = now.Add(c.interval)
		c.mu.Unlock()
		return c.inner.OnChange(ctx, u)
	}

	w.held = &u
	if w.timer == nil {
		w.timer = time.AfterFunc(w.openAt.Sub(now), func() { c.release(key) })
	}
	c.mu.Unlock()
	return nil
}

// Close delivers every held update and stops the timers. Pipeline runs call
// it once all steps have finished.
func (c *Cooldown) Close() error {
	c.mu.Lock()
	steps := c.steps
	c.steps = make(map[string]*stepWindow)
	c.mu.Unlock()

	for _, w := range steps {
		held := w.held
		w.stop()
		if held != nil {
			_ = c.inner.OnChange(context.Background(), *held)
		}
	}
	return nil
}

// release delivers the update held for key once its window has closed.
func (c *Cooldown) release(key string) {
	c.mu.Lock()
	w, ok := c.steps[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	w.timer = nil
	held := w.held
	if held == nil {
		c.mu.Unlock()
		return
	}
	w.held = nil
	w.openAt = time.Now().Add(c.interval)
	c.mu.Unlock()

	_ = c.inner.OnChange(context.Background(), *held)
}

func (w *stepWindow) stop() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.held = nil
}
