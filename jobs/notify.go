package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, message string) error

func (f NotifierFunc) Notify(ctx context.Context, message string) error {
	return f(ctx, message)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, message string) error {
	n.Log.Info("notify", "message", message)
	return nil
}

// BadgeSink displays the number of active jobs.
type BadgeSink interface {
	SetBadge(count int)
}

type BadgeFunc func(count int)

func (f BadgeFunc) SetBadge(count int) { f(count) }

// WatchBadge pushes the active job count into sink now and then every
// interval until ctx is done. Failed polls are logged and skipped.
func (m *Manager) WatchBadge(ctx context.Context, interval time.Duration, sink BadgeSink) error {
	if interval <= 0 {
		return fmt.Errorf("badge interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if n, err := m.GetNumJobs(ctx); err != nil {
			if ctx.Err() == nil {
				m.log.Debug("badge update failed", "err", err)
			}
		} else {
			sink.SetBadge(n)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
