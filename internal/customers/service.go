package customers

import (
	"context"
	"fmt"
	"time"

	"github.com/savor-erp/savor-erp/internal/audit"
)

// Repository abstracts customer persistence.
type Repository interface {
	Insert(ctx context.Context, c Customer) (Customer, error)
	Get(ctx context.Context, id int64) (Customer, error)
	List(ctx context.Context, search string, limit int) ([]Customer, error)
}

// AuditPort records customer creation.
type AuditPort interface {
	Record(ctx context.Context, event audit.EventType, payload audit.Payload, meta map[string]any) (audit.Record, error)
}

// Service manages the customer registry.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

func NewService(repo Repository, auditor AuditPort) *Service {
	return &Service{repo: repo, audit: auditor, now: time.Now}
}

// Create registers a customer and audits the creation.
func (s *Service) Create(ctx context.Context, c Customer) (Customer, error) {
	if c.Name == "" {
		return Customer{}, fmt.Errorf("customers: name required")
	}
	now := s.now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	created, err := s.repo.Insert(ctx, c)
	if err != nil {
		return Customer{}, err
	}
	if s.audit != nil {
		_, _ = s.audit.Record(ctx, audit.EventCustomerCreate, audit.Payload{
			After: audit.Marshal(created),
		}, map[string]any{"customer_id": created.ID})
	}
	return created, nil
}

// Get loads one customer.
func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	return s.repo.Get(ctx, id)
}

// List searches customers by name or phone prefix.
func (s *Service) List(ctx context.Context, search string, limit int) ([]Customer, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.List(ctx, search, limit)
}
