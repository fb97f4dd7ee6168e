package catalog

import (
	"context"
	"fmt"

	"github.com/savor-erp/savor-erp/internal/audit"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	GetItem(ctx context.Context, id int64) (MenuItem, error)
	ListItems(ctx context.Context) ([]MenuItem, error)
	InsertItem(ctx context.Context, item MenuItem) (int64, error)
	UpdateItem(ctx context.Context, item MenuItem) error
}

// AuditPort records privileged catalog mutations.
type AuditPort interface {
	Record(ctx context.Context, event audit.EventType, payload audit.Payload, meta map[string]any) (audit.Record, error)
}

// Service coordinates menu and recipe management.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, auditor AuditPort) *Service {
	return &Service{repo: repo, audit: auditor}
}

// GetItem loads one item.
func (s *Service) GetItem(ctx context.Context, id int64) (MenuItem, error) {
	return s.repo.GetItem(ctx, id)
}

// ListItems lists the catalog.
func (s *Service) ListItems(ctx context.Context) ([]MenuItem, error) {
	return s.repo.ListItems(ctx)
}

// CreateItem validates and stores a new menu item.
func (s *Service) CreateItem(ctx context.Context, item MenuItem, reason string) (MenuItem, error) {
	if item.Name == "" {
		return MenuItem{}, fmt.Errorf("catalog: name required")
	}
	if item.Price <= 0 {
		return MenuItem{}, ErrInvalidPrice
	}
	id, err := s.repo.InsertItem(ctx, item)
	if err != nil {
		return MenuItem{}, err
	}
	item.ID = id
	if s.audit != nil {
		_, _ = s.audit.Record(ctx, audit.EventMenuItemCreate, audit.Payload{
			After:  audit.Marshal(item),
			Reason: reason,
		}, map[string]any{"item_id": id})
	}
	return item, nil
}

// UpdateItem rewrites an item. A price difference additionally produces a
// PRICE_CHANGE audit event so tariff history stays queryable on its own.
func (s *Service) UpdateItem(ctx context.Context, item MenuItem, reason string) (MenuItem, error) {
	if item.ID == 0 {
		return MenuItem{}, fmt.Errorf("catalog: item id required")
	}
	if item.Price <= 0 {
		return MenuItem{}, ErrInvalidPrice
	}
	before, err := s.repo.GetItem(ctx, item.ID)
	if err != nil {
		return MenuItem{}, err
	}
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return MenuItem{}, err
	}
	if s.audit != nil {
		event := audit.EventMenuItemUpdate
		if before.Price != item.Price {
			event = audit.EventPriceChange
		}
		_, _ = s.audit.Record(ctx, event, audit.Payload{
			Before: audit.Marshal(before),
			After:  audit.Marshal(item),
			Reason: reason,
		}, map[string]any{"item_id": item.ID})
	}
	return item, nil
}

// ExpandLine resolves a sold line against the stored catalog.
func (s *Service) ExpandLine(ctx context.Context, itemID int64, quantity float64, selections []Selection) ([]Consumption, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return Expand(item, quantity, selections)
}
