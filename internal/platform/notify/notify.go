// Package notify carries best-effort "queue changed" events to live observers.
package notify

import (
	"context"
	"log/slog"

	"canditrack/internal/domain/model"
)

type Publisher interface {
	Publish(ctx context.Context, event model.QueueEvent) error
}

// Subscriber streams events until ctx is cancelled; the channel is closed afterwards.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan model.QueueEvent, error)
}

type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// Announce publishes event and only logs failures. A nil publisher is a no-op.
func Announce(ctx context.Context, p Publisher, logger *slog.Logger, event model.QueueEvent) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("queue notification failed", "job_id", event.JobID, "err", err)
	}
}
