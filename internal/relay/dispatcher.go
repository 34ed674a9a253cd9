package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/antoniostano/linerelay/internal/line"
	"github.com/antoniostano/linerelay/internal/observability"
)

type EventHandler interface {
	HandleEvent(ctx context.Context, ev line.Event)
}

// Dispatcher runs every event in its own goroutine, detached from the
// webhook request so the platform gets its acknowledgment immediately.
type Dispatcher struct {
	handler EventHandler
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(handler EventHandler, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{handler: handler, timeout: timeout, logger: logger}
}

// Dispatch starts processing events. After Wait has been called new events
// are dropped.
func (d *Dispatcher) Dispatch(events ...line.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("dispatcher closed; dropping events", "count", len(events))
		return
	}
	for _, ev := range events {
		d.wg.Add(1)
		go d.run(ev)
	}
}

func (d *Dispatcher) run(ev line.Event) {
	defer d.wg.Done()
	ctx := observability.WithEventID(context.Background(), ev.ID)
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("event handler panic", "event_id", observability.EventID(ctx), "panic", rec)
		}
	}()
	d.handler.HandleEvent(ctx, ev)
}

// Wait stops accepting events and blocks until in-flight events finish or
// ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
