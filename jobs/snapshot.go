package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/colcon/colcon-site/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// metricsJobSnapshot is the job label used for snapshot metrics.
const metricsJobSnapshot = "registration_snapshot"

// Snapshotter copies the registration document aside.
type Snapshotter interface {
	Snapshot(ctx context.Context, dir string, retain int) (string, error)
}

// SnapshotJob writes point-in-time copies of the registration document.
type SnapshotJob struct {
	Store   Snapshotter
	Dir     string
	Retain  int
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSnapshotJob wires dependencies for the snapshot handler.
func NewSnapshotJob(store Snapshotter, dir string, retain int, logger *slog.Logger, metrics *jobmetrics.Metrics) *SnapshotJob {
	return &SnapshotJob{Store: store, Dir: dir, Retain: retain, Logger: logger, Metrics: metrics}
}

// Handle processes TaskStoreSnapshot tasks.
func (j *SnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("registration snapshot: handler not configured")
	}
	if j.Dir == "" {
		return errors.New("registration snapshot: directory not configured")
	}
	var payload SnapshotPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retain := payload.Retain
	if retain <= 0 {
		retain = j.Retain
	}
	if retain <= 0 {
		retain = DefaultSnapshotRetain
	}

	tracker := j.metrics().Track(metricsJobSnapshot)
	logger := j.logger().With(slog.String("dir", j.Dir), slog.Int("retain", retain))

	path, err := j.Store.Snapshot(ctx, j.Dir, retain)
	if err != nil {
		logger.Error("registration snapshot failed", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("registration snapshot written", slog.String("path", path))
	return tracker.End(nil)
}

func (j *SnapshotJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *SnapshotJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
