package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	snapshotMaxRetry = 3
	snapshotTimeout  = 2 * time.Minute
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStoreSnapshot copies the registration document into the snapshot
	// directory and prunes old copies.
	TaskStoreSnapshot = "registration:snapshot"
	// DefaultSnapshotRetain is how many snapshots are kept when neither the
	// payload nor the job specify a count.
	DefaultSnapshotRetain = 14
)

// SnapshotPayload describes a snapshot run. A zero Retain uses the worker's
// configured retention.
type SnapshotPayload struct {
	Retain int `json:"retain"`
}

// NewSnapshotTask constructs an Asynq task.
func NewSnapshotTask(retain int) (*asynq.Task, error) {
	data, err := json.Marshal(SnapshotPayload{Retain: retain})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStoreSnapshot, data), nil
}

// SnapshotTaskOptions are applied to every snapshot, whether scheduled by
// cron or triggered by an operator.
func SnapshotTaskOptions() []asynq.Option {
	return []asynq.Option{
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(snapshotMaxRetry),
		asynq.Timeout(snapshotTimeout),
	}
}
