package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/savor-erp/savor-erp/internal/shared"
)

// Repository abstracts queue persistence.
type Repository interface {
	Insert(ctx context.Context, item Item) (Item, error)
	Get(ctx context.Context, id uuid.UUID) (Item, error)
	ListQueuedByEntity(ctx context.Context, entityType string) ([]Item, error)
	EntityTypesWithQueued(ctx context.Context) ([]string, error)
	MarkSynced(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	Requeue(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context) (Stats, error)
}

// ApplierFunc replays one buffered operation against the live services.
type ApplierFunc func(ctx context.Context, operation string, payload json.RawMessage) error

// IdempotencyPort guards each replay attempt so a crash between apply and
// MarkSynced cannot double-apply an operation.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) error
}

// MetricsPort publishes queue depth for the sync status indicator.
type MetricsPort interface {
	SetQueueDepth(status string, depth int)
}

// Service buffers mutations while the upstream is unreachable and drains them
// in per-entity order once connectivity returns.
type Service struct {
	repo        Repository
	idempotency IdempotencyPort
	metrics     MetricsPort
	appliers    map[string]ApplierFunc
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(repo Repository, idem IdempotencyPort, metrics MetricsPort, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		idempotency: idem,
		metrics:     metrics,
		appliers:    make(map[string]ApplierFunc),
		logger:      logger,
		now:         time.Now,
	}
}

// WithNow overrides the clock for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// RegisterApplier binds a replay function to an entity type. Wiring happens at
// startup before any replay runs; the map is read-only afterwards.
func (s *Service) RegisterApplier(entityType string, fn ApplierFunc) {
	s.appliers[entityType] = fn
}

// Enqueue buffers one operation. Payload is marshalled as-is; the applier for
// the entity type decodes it at replay time.
func (s *Service) Enqueue(ctx context.Context, entityType, operation string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("syncq: marshal payload: %w", err)
	}
	item := Item{
		ID:         uuid.New(),
		EntityType: entityType,
		Operation:  operation,
		Payload:    raw,
		Status:     StatusQueued,
		CreatedAt:  s.now(),
		UpdatedAt:  s.now(),
	}
	if _, err := s.repo.Insert(ctx, item); err != nil {
		return err
	}
	s.publishDepth(ctx)
	return nil
}

// Replay drains every entity type's queued items in sequence order. A failure
// stops that entity type's drain so later items never apply before earlier
// ones; other entity types continue independently. Returns counts of synced
// and failed items.
func (s *Service) Replay(ctx context.Context) (synced, failed int, err error) {
	types, err := s.repo.EntityTypesWithQueued(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, entityType := range types {
		n, f, terr := s.replayEntity(ctx, entityType)
		synced += n
		failed += f
		if terr != nil {
			return synced, failed, terr
		}
	}
	s.publishDepth(ctx)
	return synced, failed, nil
}

func (s *Service) replayEntity(ctx context.Context, entityType string) (synced, failed int, err error) {
	apply, ok := s.appliers[entityType]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrNoApplier, entityType)
	}
	items, err := s.repo.ListQueuedByEntity(ctx, entityType)
	if err != nil {
		return 0, 0, err
	}
	for _, item := range items {
		key := "syncq:" + item.ID.String()
		if err := s.idempotency.CheckAndInsert(ctx, key); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				// Applied on a previous attempt that crashed before MarkSynced.
				if merr := s.repo.MarkSynced(ctx, item.ID); merr != nil {
					return synced, failed, merr
				}
				synced++
				continue
			}
			return synced, failed, err
		}
		if err := apply(ctx, item.Operation, item.Payload); err != nil {
			if derr := s.idempotency.Delete(ctx, key); derr != nil {
				s.logger.Warn("syncq: release idempotency key", "id", item.ID, "err", derr)
			}
			if merr := s.repo.MarkFailed(ctx, item.ID, err.Error()); merr != nil {
				return synced, failed, merr
			}
			failed++
			s.logger.Warn("syncq: replay failed, halting entity type",
				"entity_type", entityType, "id", item.ID, "err", err)
			return synced, failed, nil
		}
		if err := s.repo.MarkSynced(ctx, item.ID); err != nil {
			return synced, failed, err
		}
		synced++
	}
	return synced, failed, nil
}

// Retry requeues a failed item so the next replay picks it up first in its
// entity type's sequence.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) error {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != StatusFailed {
		return ErrNotRetryable
	}
	if err := s.repo.Requeue(ctx, id); err != nil {
		return err
	}
	s.publishDepth(ctx)
	return nil
}

// Stats reports queue totals for the sync indicator.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx)
}

func (s *Service) publishDepth(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		s.logger.Warn("syncq: stats for metrics", "err", err)
		return
	}
	s.metrics.SetQueueDepth("pending", stats.Pending)
	s.metrics.SetQueueDepth("failed", stats.Failed)
	s.metrics.SetQueueDepth("synced", stats.Synced)
}
