package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/savor-erp/savor-erp/internal/shared"
)

type memoryRepo struct {
	items   map[uuid.UUID]*Item
	nextSeq int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[uuid.UUID]*Item), nextSeq: 1}
}

func (m *memoryRepo) Insert(_ context.Context, item Item) (Item, error) {
	item.Seq = m.nextSeq
	m.nextSeq++
	stored := item
	m.items[item.ID] = &stored
	return item, nil
}

func (m *memoryRepo) Get(_ context.Context, id uuid.UUID) (Item, error) {
	item, ok := m.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return *item, nil
}

func (m *memoryRepo) ListQueuedByEntity(_ context.Context, entityType string) ([]Item, error) {
	var out []Item
	for _, item := range m.items {
		if item.EntityType == entityType && item.Status == StatusQueued {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *memoryRepo) EntityTypesWithQueued(_ context.Context) ([]string, error) {
	firstSeq := make(map[string]int64)
	for _, item := range m.items {
		if item.Status != StatusQueued {
			continue
		}
		if seq, ok := firstSeq[item.EntityType]; !ok || item.Seq < seq {
			firstSeq[item.EntityType] = item.Seq
		}
	}
	types := make([]string, 0, len(firstSeq))
	for t := range firstSeq {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return firstSeq[types[i]] < firstSeq[types[j]] })
	return types, nil
}

func (m *memoryRepo) MarkSynced(_ context.Context, id uuid.UUID) error {
	item, ok := m.items[id]
	if !ok {
		return ErrItemNotFound
	}
	item.Status = StatusSynced
	item.Attempts++
	item.LastError = ""
	return nil
}

func (m *memoryRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	item, ok := m.items[id]
	if !ok {
		return ErrItemNotFound
	}
	item.Status = StatusFailed
	item.Attempts++
	item.LastError = reason
	return nil
}

func (m *memoryRepo) Requeue(_ context.Context, id uuid.UUID) error {
	item, ok := m.items[id]
	if !ok || item.Status != StatusFailed {
		return ErrItemNotFound
	}
	item.Status = StatusQueued
	item.LastError = ""
	return nil
}

func (m *memoryRepo) Stats(_ context.Context) (Stats, error) {
	var st Stats
	for _, item := range m.items {
		st.Total++
		switch item.Status {
		case StatusQueued:
			st.Pending++
		case StatusFailed:
			st.Failed++
		case StatusSynced:
			st.Synced++
		}
	}
	return st, nil
}

type memoryIdem struct {
	keys map[string]bool
}

func newMemoryIdem() *memoryIdem { return &memoryIdem{keys: make(map[string]bool)} }

func (m *memoryIdem) CheckAndInsert(_ context.Context, key string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdem) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type opPayload struct {
	Step int `json:"step"`
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, newMemoryIdem(), nil, slog.Default())
}

func enqueueSteps(t *testing.T, svc *Service, entityType string, steps ...int) {
	t.Helper()
	for _, step := range steps {
		require.NoError(t, svc.Enqueue(context.Background(), entityType, "apply", opPayload{Step: step}))
	}
}

func TestReplayAppliesInSequenceOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	var applied []int
	svc.RegisterApplier("order", func(_ context.Context, _ string, payload json.RawMessage) error {
		var p opPayload
		require.NoError(t, json.Unmarshal(payload, &p))
		applied = append(applied, p.Step)
		return nil
	})
	enqueueSteps(t, svc, "order", 1, 2, 3, 4)

	synced, failed, err := svc.Replay(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, synced)
	require.Zero(t, failed)
	require.Equal(t, []int{1, 2, 3, 4}, applied)

	st, err := svc.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, Stats{Total: 4, Synced: 4}, st)
}

func TestReplayHaltsEntityTypeOnFirstFailure(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	var applied []int
	svc.RegisterApplier("order", func(_ context.Context, _ string, payload json.RawMessage) error {
		var p opPayload
		require.NoError(t, json.Unmarshal(payload, &p))
		if p.Step == 2 {
			return errors.New("upstream rejected")
		}
		applied = append(applied, p.Step)
		return nil
	})
	enqueueSteps(t, svc, "order", 1, 2, 3)

	synced, failed, err := svc.Replay(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, synced)
	require.Equal(t, 1, failed)
	// Step 3 must never apply before step 2 succeeds.
	require.Equal(t, []int{1}, applied)

	st, err := svc.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, Stats{Total: 3, Pending: 1, Failed: 1, Synced: 1}, st)
}

func TestReplayFailureDoesNotBlockOtherEntityTypes(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	svc.RegisterApplier("order", func(context.Context, string, json.RawMessage) error {
		return errors.New("broken")
	})
	var inventoryApplied int
	svc.RegisterApplier("inventory", func(context.Context, string, json.RawMessage) error {
		inventoryApplied++
		return nil
	})
	enqueueSteps(t, svc, "order", 1)
	enqueueSteps(t, svc, "inventory", 1, 2)

	synced, failed, err := svc.Replay(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, synced)
	require.Equal(t, 1, failed)
	require.Equal(t, 2, inventoryApplied)
}

func TestRetryRequeuesFailedItem(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	attempts := 0
	svc.RegisterApplier("order", func(context.Context, string, json.RawMessage) error {
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		return nil
	})
	enqueueSteps(t, svc, "order", 1)

	_, failed, err := svc.Replay(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, failed)

	var failedID uuid.UUID
	for id, item := range repo.items {
		if item.Status == StatusFailed {
			failedID = id
		}
	}
	require.NotEqual(t, uuid.Nil, failedID)
	require.NoError(t, svc.Retry(context.Background(), failedID))

	synced, failed, err := svc.Replay(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, synced)
	require.Zero(t, failed)
}

func TestRetryRejectsNonFailedItem(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	svc.RegisterApplier("order", func(context.Context, string, json.RawMessage) error { return nil })
	enqueueSteps(t, svc, "order", 1)

	var queuedID uuid.UUID
	for id := range repo.items {
		queuedID = id
	}
	require.ErrorIs(t, svc.Retry(context.Background(), queuedID), ErrNotRetryable)
}

func TestReplaySkipsAlreadyAppliedItem(t *testing.T) {
	repo := newMemoryRepo()
	idem := newMemoryIdem()
	svc := NewService(repo, idem, nil, slog.Default())

	applied := 0
	svc.RegisterApplier("order", func(context.Context, string, json.RawMessage) error {
		applied++
		return nil
	})
	enqueueSteps(t, svc, "order", 1)

	// Simulate a crash after apply but before the status update.
	var id uuid.UUID
	for i := range repo.items {
		id = i
	}
	require.NoError(t, idem.CheckAndInsert(context.Background(), "syncq:"+id.String()))

	synced, failed, err := svc.Replay(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, synced)
	require.Zero(t, failed)
	require.Zero(t, applied, "operation must not apply twice")
}
