package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/savor-erp/savor-erp/internal/shared"
)

// Repository persists audit records.
type Repository interface {
	Insert(ctx context.Context, rec Record) error
	Timeline(ctx context.Context, filter TimelineFilter) ([]Record, error)
}

// QueuePort buffers records that could not be persisted.
type QueuePort interface {
	Enqueue(ctx context.Context, entityType, operation string, payload any) error
}

// TimelineFilter narrows the forensics timeline query.
type TimelineFilter struct {
	From      time.Time
	To        time.Time
	EventType EventType
	UserID    int64
	Page      int
	PageSize  int
}

// Service records and verifies audit entries. The actor is read from the
// request context; a record without an actor is rejected rather than
// attributed to nobody.
type Service struct {
	repo   Repository
	signer *Signer
	queue  QueuePort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the audit service.
func NewService(repo Repository, signer *Signer, queue QueuePort, logger *slog.Logger) *Service {
	return &Service{repo: repo, signer: signer, queue: queue, logger: logger, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Record assigns id and timestamp, signs the entry and persists it. When the
// store is unreachable the signed record is handed to the sync queue instead
// of being dropped.
func (s *Service) Record(ctx context.Context, event EventType, payload Payload, meta map[string]any) (Record, error) {
	actor := shared.ActorFromContext(ctx)
	if actor == nil {
		return Record{}, ErrNoActor
	}
	rec := Record{
		ID:        uuid.New(),
		At:        s.now().UTC(),
		EventType: event,
		UserID:    actor.UserID,
		UserName:  actor.Name,
		Role:      actor.Role,
		BranchID:  actor.BranchID,
		DeviceID:  actor.DeviceID,
		Payload:   payload,
		Meta:      meta,
	}
	sig, err := s.signer.Sign(rec)
	if err != nil {
		return Record{}, fmt.Errorf("audit: sign: %w", err)
	}
	rec.Signature = sig

	if err := s.repo.Insert(ctx, rec); err != nil {
		if s.queue == nil {
			return Record{}, fmt.Errorf("audit: insert: %w", err)
		}
		if s.logger != nil {
			s.logger.Warn("audit insert failed, queueing record", slog.Any("error", err), slog.String("event", string(event)))
		}
		if qerr := s.queue.Enqueue(ctx, "audit_log", "create", rec); qerr != nil {
			return Record{}, fmt.Errorf("audit: insert: %w, queue fallback: %v", err, qerr)
		}
	}
	return rec, nil
}

// ReplayRecord re-inserts a record that was buffered by the sync queue. It is
// registered as the applier for the audit_log entity type. The signature is
// re-verified so a record altered while queued is rejected.
func (s *Service) ReplayRecord(ctx context.Context, operation string, payload json.RawMessage) error {
	if operation != "create" {
		return fmt.Errorf("audit: unknown replay operation %q", operation)
	}
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return fmt.Errorf("audit: decode queued record: %w", err)
	}
	if !s.signer.Verify(rec) {
		return fmt.Errorf("audit: queued record %s failed verification", rec.ID)
	}
	return s.repo.Insert(ctx, rec)
}

// Verify reports whether the stored record still matches its signature.
func (s *Service) Verify(rec Record) bool {
	return s.signer.Verify(rec)
}

// TimelineRow pairs a stored record with its verification result.
type TimelineRow struct {
	Record   Record
	Tampered bool
}

// Timeline returns stored records for the forensics view, flagging any entry
// whose signature no longer verifies.
func (s *Service) Timeline(ctx context.Context, filter TimelineFilter) ([]TimelineRow, error) {
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	recs, err := s.repo.Timeline(ctx, filter)
	if err != nil {
		return nil, err
	}
	rows := make([]TimelineRow, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, TimelineRow{Record: rec, Tampered: !s.signer.Verify(rec)})
	}
	return rows, nil
}
