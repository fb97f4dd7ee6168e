package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/savor-erp/savor-erp/internal/shared"
)

type memoryRepo struct {
	records []Record
	failing bool
}

func (r *memoryRepo) Insert(ctx context.Context, rec Record) error {
	if r.failing {
		return errors.New("backend unreachable")
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *memoryRepo) Timeline(ctx context.Context, filter TimelineFilter) ([]Record, error) {
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out, nil
}

type memoryQueue struct {
	items []any
}

func (q *memoryQueue) Enqueue(ctx context.Context, entityType, operation string, payload any) error {
	q.items = append(q.items, payload)
	return nil
}

func actorContext() context.Context {
	return shared.ContextWithActor(context.Background(), &shared.Actor{
		UserID:   7,
		Name:     "manager",
		Role:     "BRANCH_MANAGER",
		BranchID: 2,
		DeviceID: "till-1",
	})
}

func TestRecordRoundTripVerifies(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, NewSigner("test-secret"), nil, nil)

	rec, err := svc.Record(actorContext(), EventOrderPlacement, Payload{
		After:  Marshal(map[string]any{"orderId": "abc", "total": 220.0}),
		Reason: "order placed",
	}, map[string]any{"table": 4})
	require.NoError(t, err)
	require.NotEmpty(t, rec.Signature)
	require.True(t, svc.Verify(rec))
	require.Len(t, repo.records, 1)
	require.Equal(t, int64(7), rec.UserID)
	require.Equal(t, int64(2), rec.BranchID)
}

func TestVerifyFailsAfterMutation(t *testing.T) {
	svc := NewService(&memoryRepo{}, NewSigner("test-secret"), nil, nil)

	rec, err := svc.Record(actorContext(), EventPriceChange, Payload{
		Before: Marshal(map[string]float64{"price": 10}),
		After:  Marshal(map[string]float64{"price": 12}),
		Reason: "menu revision",
	}, nil)
	require.NoError(t, err)
	require.True(t, svc.Verify(rec))

	rec.Payload.After = json.RawMessage(`{"price":999}`)
	require.False(t, svc.Verify(rec))

	rec2 := rec
	rec2.Payload.After = Marshal(map[string]float64{"price": 12})
	rec2.UserID = 99
	require.False(t, svc.Verify(rec2))
}

func TestVerifySurvivesStoredPayloadRendering(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, NewSigner("test-secret"), nil, nil)

	rec, err := svc.Record(actorContext(), EventOrderPlacement, Payload{
		After:  json.RawMessage(`{"orderId":"abc","total":220}`),
		Reason: "order placed",
	}, nil)
	require.NoError(t, err)

	// Postgres re-renders JSONB with its own key order and spacing; the
	// signature must hold for the stored form too.
	stored := rec
	stored.Payload.After = json.RawMessage(`{"total": 220, "orderId": "abc"}`)
	require.True(t, svc.Verify(stored))

	stored.Payload.After = json.RawMessage(`{"total": 999, "orderId": "abc"}`)
	require.False(t, svc.Verify(stored))
}

func TestVerifyFailsWithDifferentSecret(t *testing.T) {
	svc := NewService(&memoryRepo{}, NewSigner("secret-a"), nil, nil)
	rec, err := svc.Record(actorContext(), EventUserCreate, Payload{Reason: "onboarding"}, nil)
	require.NoError(t, err)

	other := NewSigner("secret-b")
	require.False(t, other.Verify(rec))
}

func TestRecordWithoutActorRejected(t *testing.T) {
	svc := NewService(&memoryRepo{}, NewSigner("test-secret"), nil, nil)
	_, err := svc.Record(context.Background(), EventOrderPlacement, Payload{}, nil)
	require.ErrorIs(t, err, ErrNoActor)
}

func TestRecordFallsBackToQueue(t *testing.T) {
	repo := &memoryRepo{failing: true}
	queue := &memoryQueue{}
	svc := NewService(repo, NewSigner("test-secret"), queue, nil)

	rec, err := svc.Record(actorContext(), EventInventoryAdjustment, Payload{Reason: "stocktake"}, nil)
	require.NoError(t, err)
	require.Len(t, queue.items, 1)
	queued, ok := queue.items[0].(Record)
	require.True(t, ok)
	require.Equal(t, rec.ID, queued.ID)
	require.True(t, svc.Verify(queued))
}

func TestTimelineFlagsTamperedRows(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, NewSigner("test-secret"), nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) })

	_, err := svc.Record(actorContext(), EventMenuItemUpdate, Payload{Reason: "rename"}, nil)
	require.NoError(t, err)
	_, err = svc.Record(actorContext(), EventMenuItemUpdate, Payload{Reason: "reprice"}, nil)
	require.NoError(t, err)

	// Simulate post-hoc mutation in storage.
	repo.records[1].Payload.Reason = "rewritten"

	rows, err := svc.Timeline(context.Background(), TimelineFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.False(t, rows[0].Tampered)
	require.True(t, rows[1].Tampered)
}

func TestReplayRecordReinsertsQueuedRecord(t *testing.T) {
	signer := NewSigner("test-secret")
	failing := &memoryRepo{failing: true}
	queue := &memoryQueue{}
	svc := NewService(failing, signer, queue, nil)

	rec, err := svc.Record(actorContext(), EventOrderPlacement, Payload{Reason: "offline order"}, nil)
	require.NoError(t, err)
	require.Len(t, queue.items, 1)

	payload, err := json.Marshal(queue.items[0])
	require.NoError(t, err)

	repo := &memoryRepo{}
	replaySvc := NewService(repo, signer, nil, nil)
	require.NoError(t, replaySvc.ReplayRecord(context.Background(), "create", payload))
	require.Len(t, repo.records, 1)
	require.Equal(t, rec.ID, repo.records[0].ID)
	require.True(t, replaySvc.Verify(repo.records[0]))
}

func TestReplayRecordRejectsTamperedPayload(t *testing.T) {
	signer := NewSigner("test-secret")
	repo := &memoryRepo{}
	svc := NewService(repo, signer, nil, nil)

	rec, err := svc.Record(actorContext(), EventPriceChange, Payload{Reason: "markup"}, nil)
	require.NoError(t, err)

	rec.Payload.Reason = "rewritten"
	payload, err := json.Marshal(rec)
	require.NoError(t, err)

	target := &memoryRepo{}
	replaySvc := NewService(target, signer, nil, nil)
	require.Error(t, replaySvc.ReplayRecord(context.Background(), "create", payload))
	require.Empty(t, target.records)
}

func TestReplayRecordRejectsUnknownOperation(t *testing.T) {
	svc := NewService(&memoryRepo{}, NewSigner("test-secret"), nil, nil)
	err := svc.ReplayRecord(context.Background(), "update", json.RawMessage(`{}`))
	require.Error(t, err)
}
