package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeReplayer struct {
	synced int
	failed int
	err    error
	calls  int
}

func (f *fakeReplayer) Replay(ctx context.Context) (int, int, error) {
	f.calls++
	return f.synced, f.failed, f.err
}

func TestSyncReplayJobDrainsQueue(t *testing.T) {
	replayer := &fakeReplayer{synced: 3, failed: 1}
	job := NewSyncReplayJob(replayer, nil, nil)

	task, err := NewSyncReplayTask(time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, replayer.calls)
}

func TestSyncReplayJobPropagatesError(t *testing.T) {
	replayer := &fakeReplayer{err: errors.New("redis down")}
	job := NewSyncReplayJob(replayer, nil, nil)

	task, err := NewSyncReplayTask(time.Now().UTC())
	require.NoError(t, err)

	require.Error(t, job.Handle(context.Background(), task))
}

func TestSyncReplayJobSkipsMalformedPayload(t *testing.T) {
	replayer := &fakeReplayer{}
	job := NewSyncReplayJob(replayer, nil, nil)

	task := asynq.NewTask(TaskSyncReplay, []byte("{not json"))
	err := job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, replayer.calls)
}
