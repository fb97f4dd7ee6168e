package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/savor-erp/savor-erp/internal/audit"
	"github.com/savor-erp/savor-erp/internal/catalog"
	"github.com/savor-erp/savor-erp/internal/inventory"
	"github.com/savor-erp/savor-erp/internal/ledger"
	"github.com/savor-erp/savor-erp/internal/shared"
)

// paymentEpsilon is the tolerance when reconciling split tenders against the
// order total, matching the smallest cash denomination.
const paymentEpsilon = 0.01

// RepositoryPort abstracts order persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, order Order) error
	Get(ctx context.Context, id uuid.UUID) (Order, error)
	List(ctx context.Context, status Status, limit int) ([]Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, updatedAt time.Time) error
	MarkSynced(ctx context.Context, id uuid.UUID, updatedAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	SalesTotals(ctx context.Context, from, to time.Time) (SalesSummary, error)
}

// CatalogPort resolves menu items for pricing and recipe expansion.
type CatalogPort interface {
	GetItem(ctx context.Context, id int64) (catalog.MenuItem, error)
}

// InventoryPort consumes stock for a sale. The implementation forwards the
// accumulated cost of goods sold to the ledger through its own integration.
type InventoryPort interface {
	ConsumeForSale(ctx context.Context, input inventory.SaleConsumptionInput) ([]inventory.Movement, error)
}

// LedgerPort posts the revenue side of a placement.
type LedgerPort interface {
	Post(ctx context.Context, input ledger.EntryInput) (ledger.JournalEntry, error)
}

// AuditPort records the placement and every status change.
type AuditPort interface {
	Record(ctx context.Context, event audit.EventType, payload audit.Payload, meta map[string]any) (audit.Record, error)
}

// QueuePort buffers placements captured while the downstream is unreachable.
type QueuePort interface {
	Enqueue(ctx context.Context, entityType, operation string, payload any) error
}

// Accounts names the ledger accounts the order pipeline posts against.
type Accounts struct {
	CashAccountID    int64
	RevenueAccountID int64
}

// Service runs the order placement pipeline and the kitchen status workflow.
type Service struct {
	repo      RepositoryPort
	catalog   CatalogPort
	inventory InventoryPort
	ledger    LedgerPort
	audit     AuditPort
	queue     QueuePort
	accounts  Accounts
	taxRate   float64
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(
	repo RepositoryPort,
	cat CatalogPort,
	inv InventoryPort,
	led LedgerPort,
	auditor AuditPort,
	queue QueuePort,
	accounts Accounts,
	taxRate float64,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		catalog:   cat,
		inventory: inv,
		ledger:    led,
		audit:     auditor,
		queue:     queue,
		accounts:  accounts,
		taxRate:   taxRate,
		logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// LineInput is one requested line.
type LineInput struct {
	MenuItemID int64
	Quantity   float64
	Selections []catalog.Selection
}

// PlaceOrderInput describes a placement request. Offline marks a placement
// captured while the client had no connectivity; its downstream effects are
// deferred to sync replay.
type PlaceOrderInput struct {
	BranchID    int64
	WarehouseID int64
	Type        Type
	TableNumber string
	CustomerID  *int64
	Lines       []LineInput
	Payments    []Payment
	// Discount is a fractional rate in [0, 1] applied to the subtotal
	// before tax.
	Discount float64
	Notes    string
	Offline  bool
}

// PlaceOrder validates, prices and persists an order. The online pipeline
// runs expand, consume stock, post revenue, audit, in that order; the
// consumption step forwards cost of goods sold to the ledger, so a completed
// placement leaves exactly two journal entries. An offline placement persists
// with sync status pending and buffers the whole pipeline for replay.
func (s *Service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (Order, error) {
	actor := shared.ActorFromContext(ctx)
	if actor == nil {
		return Order{}, audit.ErrNoActor
	}
	order, consumption, err := s.buildOrder(ctx, input, actor)
	if err != nil {
		return Order{}, err
	}

	if input.Offline {
		if err := s.repo.Insert(ctx, order); err != nil {
			return Order{}, err
		}
		payload := placementPayload{Order: order, Consumption: consumption, Actor: *actor}
		if err := s.queue.Enqueue(ctx, "order", "place", payload); err != nil {
			return Order{}, err
		}
		return order, nil
	}

	if err := s.repo.Insert(ctx, order); err != nil {
		return Order{}, err
	}
	if err := s.settle(ctx, order, consumption); err != nil {
		// Strict rejection leaves no partial state: the placement row is
		// removed along with any effects the settle path rolled back.
		if derr := s.repo.Delete(ctx, order.ID); derr != nil {
			s.logger.Error("orders: remove rejected placement", "id", order.ID, "err", derr)
		}
		return Order{}, err
	}
	if err := s.repo.MarkSynced(ctx, order.ID, s.now().UTC()); err != nil {
		return Order{}, err
	}
	order.SyncStatus = SyncSynced
	return order, nil
}

// buildOrder prices every line, expands recipes and reconciles payments.
// It touches no stock or ledger state.
func (s *Service) buildOrder(ctx context.Context, input PlaceOrderInput, actor *shared.Actor) (Order, []inventory.ConsumptionLine, error) {
	if len(input.Lines) == 0 {
		return Order{}, nil, ErrEmptyCart
	}
	var (
		lines       []Line
		consumption []inventory.ConsumptionLine
		subtotal    float64
	)
	for _, req := range input.Lines {
		if req.Quantity <= 0 {
			return Order{}, nil, fmt.Errorf("orders: quantity must be positive for item %d", req.MenuItemID)
		}
		item, err := s.catalog.GetItem(ctx, req.MenuItemID)
		if err != nil {
			return Order{}, nil, err
		}
		if !item.Available {
			return Order{}, nil, fmt.Errorf("%w: %s", ErrItemUnavailable, item.Name)
		}
		unitPrice, err := catalog.LinePrice(item, req.Selections)
		if err != nil {
			return Order{}, nil, err
		}
		expanded, err := catalog.Expand(item, req.Quantity, req.Selections)
		if err != nil {
			return Order{}, nil, err
		}
		for _, c := range expanded {
			consumption = append(consumption, inventory.ConsumptionLine{
				ItemID: c.InventoryItemID,
				Qty:    c.Quantity,
			})
		}
		lineTotal := round2(unitPrice * req.Quantity)
		subtotal += lineTotal
		lines = append(lines, Line{
			MenuItemID: item.ID,
			Name:       item.Name,
			Quantity:   req.Quantity,
			Selections: req.Selections,
			UnitPrice:  unitPrice,
			LineTotal:  lineTotal,
		})
	}

	if input.Discount < 0 || input.Discount > 1 {
		return Order{}, nil, fmt.Errorf("orders: discount rate must be between 0 and 1")
	}
	subtotal = round2(subtotal)
	// Discount is a fraction of the subtotal; tax applies to the
	// discounted amount.
	discounted := round2(subtotal * (1 - input.Discount))
	tax := round2(discounted * s.taxRate)
	total := round2(discounted + tax)
	var paid float64
	for _, p := range input.Payments {
		if p.Amount <= 0 {
			return Order{}, nil, fmt.Errorf("%w: non-positive tender", ErrPaymentMismatch)
		}
		paid += p.Amount
	}
	if math.Abs(paid-total) > paymentEpsilon {
		return Order{}, nil, fmt.Errorf("%w: paid %.2f, total %.2f", ErrPaymentMismatch, paid, total)
	}

	now := s.now().UTC()
	id := uuid.New()
	order := Order{
		ID:          id,
		Number:      orderNumber(id, now),
		BranchID:    input.BranchID,
		WarehouseID: input.WarehouseID,
		Type:        input.Type,
		Status:      StatusPending,
		// The row is inserted before the downstream effects apply; it only
		// flips to SYNCED once settle has run.
		SyncStatus: SyncPending,
		TableNumber: input.TableNumber,
		CustomerID:  input.CustomerID,
		Lines:       lines,
		Payments:    input.Payments,
		Subtotal:    subtotal,
		Tax:         tax,
		Discount:    input.Discount,
		Total:       total,
		Notes:       input.Notes,
		PlacedBy:    actor.UserID,
		PlacedAt:    now,
		UpdatedAt:   now,
	}
	return order, consumption, nil
}

// settle applies the downstream effects of a placement: stock consumption
// first, then the revenue posting, then the audit record. Consumption is
// transactional on the stock side, so an underflow rejects with nothing
// applied.
func (s *Service) settle(ctx context.Context, order Order, consumption []inventory.ConsumptionLine) error {
	if len(consumption) > 0 {
		_, err := s.inventory.ConsumeForSale(ctx, inventory.SaleConsumptionInput{
			WarehouseID: order.WarehouseID,
			BranchID:    order.BranchID,
			RefID:       order.ID.String(),
			Lines:       consumption,
			ActorID:     order.PlacedBy,
		})
		if err != nil {
			return err
		}
	}
	if _, err := s.ledger.Post(ctx, ledger.EntryInput{
		Date:            order.PlacedAt,
		Description:     fmt.Sprintf("sales revenue for order %s", order.Number),
		DebitAccountID:  s.accounts.CashAccountID,
		CreditAccountID: s.accounts.RevenueAccountID,
		Amount:          order.Total,
		ReferenceType:   "order",
		ReferenceID:     order.ID.String(),
		ActorID:         order.PlacedBy,
	}); err != nil {
		return err
	}
	_, err := s.audit.Record(ctx, audit.EventOrderPlacement, audit.Payload{
		After: audit.Marshal(order),
	}, map[string]any{
		"order_id": order.ID.String(),
		"number":   order.Number,
		"total":    order.Total,
	})
	return err
}

// placementPayload is the replayable capture of an offline placement.
type placementPayload struct {
	Order       Order                       `json:"order"`
	Consumption []inventory.ConsumptionLine `json:"consumption"`
	Actor       shared.Actor                `json:"actor"`
}

// ReplayPlacement applies the buffered downstream effects of one offline
// placement. It is registered with the sync queue as the applier for the
// order entity type.
func (s *Service) ReplayPlacement(ctx context.Context, operation string, payload json.RawMessage) error {
	if operation != "place" {
		return fmt.Errorf("orders: unknown replay operation %q", operation)
	}
	var p placementPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("orders: decode placement: %w", err)
	}
	// Replay runs under the worker's context; the audit trail must carry the
	// user who captured the order, not the worker.
	ctx = shared.ContextWithActor(ctx, &p.Actor)
	if err := s.settle(ctx, p.Order, p.Consumption); err != nil {
		return err
	}
	return s.repo.MarkSynced(ctx, p.Order.ID, s.now().UTC())
}

// UpdateStatus moves an order along the kitchen workflow and audits the
// change.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, next Status) (Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(order.Status, next) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, next)
	}
	prev := order.Status
	now := s.now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, next, now); err != nil {
		return Order{}, err
	}
	order.Status = next
	order.UpdatedAt = now
	if s.audit != nil {
		_, _ = s.audit.Record(ctx, audit.EventOrderStatusChange, audit.Payload{
			Before: audit.Marshal(map[string]any{"status": prev}),
			After:  audit.Marshal(map[string]any{"status": next}),
		}, map[string]any{"order_id": id.String()})
	}
	return order, nil
}

// Get loads one order.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns recent orders, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.List(ctx, status, limit)
}

// SalesSummary aggregates settled orders over a period. Cancelled orders and
// placements still pending sync are excluded.
func (s *Service) SalesSummary(ctx context.Context, from, to time.Time) (SalesSummary, error) {
	if to.IsZero() {
		to = s.now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	return s.repo.SalesTotals(ctx, from, to)
}

func orderNumber(id uuid.UUID, at time.Time) string {
	short := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
	return fmt.Sprintf("POS-%s-%s", at.Format("20060102"), short)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
