package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/savor-erp/savor-erp/internal/jobs"
)

const (
	// TaskSyncReplay drains queued offline mutations against the server.
	TaskSyncReplay = "sync:replay"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SyncReplayPayload carries scheduling metadata.
type SyncReplayPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// ReplayService drains the offline sync queue.
type ReplayService interface {
	Replay(ctx context.Context) (synced, failed int, err error)
}

// SyncReplayJob runs the queue drain on a schedule so pending mutations are
// applied even when no client triggers a manual replay.
type SyncReplayJob struct {
	Service ReplayService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSyncReplayJob constructs the job handler.
func NewSyncReplayJob(service ReplayService, logger *slog.Logger, metrics *jobmetrics.Metrics) *SyncReplayJob {
	return &SyncReplayJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewSyncReplayTask constructs an Asynq task for a queue drain.
func NewSyncReplayTask(at time.Time) (*asynq.Task, error) {
	payload := SyncReplayPayload{ScheduledFor: at}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSyncReplay, body, asynq.Queue(QueueDefault)), nil
}

// Handle executes the sync replay job.
func (j *SyncReplayJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("sync replay: dependencies not configured")
	}
	var payload SyncReplayPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskSyncReplay)
	start := j.now()
	synced, failed, err := j.Service.Replay(ctx)
	if err != nil {
		j.log().Error("replay queue", slog.Any("error", err))
		return tracker.End(err)
	}
	j.log().Info("replayed sync queue",
		slog.Int("synced", synced),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *SyncReplayJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SyncReplayJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSyncReplay))
	}
	return slog.Default().With(slog.String("job", TaskSyncReplay))
}

func (j *SyncReplayJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *SyncReplayJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
