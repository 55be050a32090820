package jobs

import (
	"context"
	"log/slog"

	"github.com/colcon/colcon-site/internal/events"
	jobmetrics "github.com/colcon/colcon-site/internal/jobs"
)

// EventRecorder consumes registration events: it logs each one and counts
// it by type.
type EventRecorder struct {
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewEventRecorder constructs an EventRecorder.
func NewEventRecorder(logger *slog.Logger, metrics *jobmetrics.Metrics) *EventRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	return &EventRecorder{logger: logger, metrics: metrics}
}

// Handle is an events.Subscription handler.
func (r *EventRecorder) Handle(ctx context.Context, evt events.Event) {
	r.metrics.AddEvent(string(evt.Type))
	r.logger.InfoContext(ctx, "registration event",
		slog.String("type", string(evt.Type)),
		slog.String("user_id", evt.UserID),
		slog.Time("occurred_at", evt.OccurredAt))
}
