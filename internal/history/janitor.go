package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const snapshotTimeout = time.Minute

// StartJanitor evicts histories idle for longer than idle every interval
// until ctx is done.
func (s *Store) StartJanitor(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.EvictIdle(ctx, idle); n > 0 {
					s.logger.Info("evicted idle histories", "count", n, "active", s.Active())
				}
			}
		}
	}()
}

// StartSnapshots runs FlushAll on a cron schedule ("@every 5m", "*/10 * * * *").
// An empty schedule disables snapshots. The returned stop waits for a running
// snapshot to finish.
func (s *Store) StartSnapshots(schedule string) (stop func(), err error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return func() {}, nil
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, s.snapshot); err != nil {
		return nil, fmt.Errorf("invalid snapshot schedule %q: %w", schedule, err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}

func (s *Store) snapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	if err := s.FlushAll(ctx); err != nil {
		s.logger.Warn("history snapshot incomplete", "error", err)
		return
	}
	s.logger.Debug("history snapshot complete", "active", s.Active())
}
