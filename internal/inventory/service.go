package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/savor-erp/savor-erp/internal/audit"
	"github.com/savor-erp/savor-erp/internal/shared"
)

const qtyEpsilon = 1e-9

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, itemID int64) (Item, error)
	ListBalances(ctx context.Context, itemID int64) ([]Balance, error)
	ListLowStock(ctx context.Context) ([]LowStockRow, error)
	ListMovements(ctx context.Context, itemID, warehouseID int64, limit int) ([]Movement, error)
}

// AuditPort records privileged stock mutations.
type AuditPort interface {
	Record(ctx context.Context, event audit.EventType, payload audit.Payload, meta map[string]any) (audit.Record, error)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// AllowClamp floors underflowing decreases at zero instead of
	// rejecting them, matching the legacy client behaviour. The clamped
	// shrinkage is recorded on the movement.
	AllowClamp bool
}

// Service coordinates stock ledger operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	allowClamp  bool
	integration IntegrationHandler
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, auditor AuditPort, idem *shared.IdempotencyStore, cfg ServiceConfig, integration IntegrationHandler) *Service {
	return &Service{
		repo:        repo,
		audit:       auditor,
		idempotency: idem,
		allowClamp:  cfg.AllowClamp,
		integration: integration,
		now:         time.Now,
	}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// MovementInput describes a single-warehouse movement request.
type MovementInput struct {
	Kind        MovementKind
	ItemID      int64
	WarehouseID int64
	Delta       float64
	UnitCost    float64
	Reason      string
	RefType     string
	RefID       string
	ActorID     int64
}

// ApplyMovement validates and applies one movement, returning it with the
// resulting balance quantity.
func (s *Service) ApplyMovement(ctx context.Context, input MovementInput) (Movement, error) {
	if err := validateMovement(input); err != nil {
		return Movement{}, err
	}
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = s.applyOne(ctx, tx, input)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordMovementAudit(ctx, movement)
	return movement, nil
}

// TransferInput describes a warehouse-to-warehouse move.
type TransferInput struct {
	ItemID       int64
	Qty          float64
	SrcWarehouse int64
	DstWarehouse int64
	Reason       string
	RefType      string
	RefID        string
	ActorID      int64
}

// Transfer applies both legs of a transfer inside one transaction, so a
// failure on either side leaves no partial state behind.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (Movement, Movement, error) {
	if input.SrcWarehouse == 0 || input.DstWarehouse == 0 || input.ItemID == 0 {
		return Movement{}, Movement{}, errors.New("inventory: warehouse and item required")
	}
	if input.SrcWarehouse == input.DstWarehouse {
		return Movement{}, Movement{}, errors.New("inventory: source and destination warehouse must differ")
	}
	if input.Qty <= 0 {
		return Movement{}, Movement{}, ErrInvalidQuantity
	}
	var out, in Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = s.applyOne(ctx, tx, MovementInput{
			Kind:        MovementTransfer,
			ItemID:      input.ItemID,
			WarehouseID: input.SrcWarehouse,
			Delta:       -input.Qty,
			Reason:      fmt.Sprintf("transfer to warehouse %d: %s", input.DstWarehouse, input.Reason),
			RefType:     input.RefType,
			RefID:       input.RefID,
			ActorID:     input.ActorID,
		})
		if err != nil {
			return err
		}
		// The inbound leg inherits the source's average cost so value
		// moves with the goods.
		in, err = s.applyOne(ctx, tx, MovementInput{
			Kind:        MovementTransfer,
			ItemID:      input.ItemID,
			WarehouseID: input.DstWarehouse,
			Delta:       input.Qty,
			UnitCost:    out.UnitCost,
			Reason:      fmt.Sprintf("transfer from warehouse %d: %s", input.SrcWarehouse, input.Reason),
			RefType:     input.RefType,
			RefID:       input.RefID,
			ActorID:     input.ActorID,
		})
		return err
	})
	if err != nil {
		return Movement{}, Movement{}, err
	}
	if s.audit != nil {
		_, _ = s.audit.Record(ctx, audit.EventInventoryTransfer, audit.Payload{
			After:  audit.Marshal(map[string]any{"out": out, "in": in}),
			Reason: input.Reason,
		}, map[string]any{"item_id": input.ItemID, "qty": input.Qty})
	}
	return out, in, nil
}

// ConsumptionLine is one raw-material requirement from recipe expansion.
type ConsumptionLine struct {
	ItemID int64
	Qty    float64
}

// SaleConsumptionInput consumes expanded recipe lines for one sold order.
type SaleConsumptionInput struct {
	WarehouseID int64
	BranchID    int64
	RefID       string
	Lines       []ConsumptionLine
	ActorID     int64
}

// ConsumeForSale applies all consumption lines in a single transaction,
// accumulating cost of goods sold at the moving average cost of each item.
// The COGS total is handed to the financial integration after commit; the
// order placement path relies on stock being updated before any ledger
// entry is posted.
func (s *Service) ConsumeForSale(ctx context.Context, input SaleConsumptionInput) ([]Movement, error) {
	if input.WarehouseID == 0 {
		return nil, errors.New("inventory: warehouse required")
	}
	if len(input.Lines) == 0 {
		return nil, errors.New("inventory: no consumption lines")
	}
	key := fmt.Sprintf("sale:%s:%d", input.RefID, input.WarehouseID)
	insertedKey := false
	if s.idempotency != nil && input.RefID != "" {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return nil, err
		}
		insertedKey = true
	}

	var (
		movements []Movement
		totalCOGS float64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movements = movements[:0]
		totalCOGS = 0
		for _, line := range input.Lines {
			if line.Qty <= 0 {
				return fmt.Errorf("%w: consumption of item %d", ErrInvalidQuantity, line.ItemID)
			}
			movement, err := s.applyOne(ctx, tx, MovementInput{
				Kind:        MovementSaleConsumption,
				ItemID:      line.ItemID,
				WarehouseID: input.WarehouseID,
				Delta:       -line.Qty,
				RefType:     "order",
				RefID:       input.RefID,
				ActorID:     input.ActorID,
			})
			if err != nil {
				return err
			}
			totalCOGS += movement.UnitCost * line.Qty
			movements = append(movements, movement)
		}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return nil, err
	}
	if s.integration != nil {
		evt := SaleConsumptionEvent{
			RefType:   "order",
			RefID:     input.RefID,
			BranchID:  input.BranchID,
			TotalCOGS: round2(totalCOGS),
			ActorID:   input.ActorID,
			PostedAt:  s.now().UTC(),
		}
		if err := s.integration.HandleSaleConsumptionPosted(ctx, evt); err != nil {
			// The movements are already committed. Compensate them before
			// releasing the idempotency key, so a retried sale consumes
			// exactly once; if the compensation itself fails the key stays
			// held and blocks re-consumption.
			if rerr := s.reverseConsumption(ctx, input, movements); rerr != nil {
				return nil, fmt.Errorf("inventory: cost posting failed: %w (reversal also failed: %v)", err, rerr)
			}
			if insertedKey {
				_ = s.idempotency.Delete(ctx, key)
			}
			return nil, err
		}
	}
	return movements, nil
}

// reverseConsumption restores the stock committed by a sale consumption whose
// downstream cost posting failed. Each leg re-enters at the unit cost it left
// with, so the moving average is unchanged by the round trip.
func (s *Service) reverseConsumption(ctx context.Context, input SaleConsumptionInput, movements []Movement) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, m := range movements {
			if _, err := s.applyOne(ctx, tx, MovementInput{
				Kind:        MovementSaleConsumption,
				ItemID:      m.ItemID,
				WarehouseID: m.WarehouseID,
				Delta:       -m.Delta,
				UnitCost:    m.UnitCost,
				Reason:      "reversal: cost posting failed",
				RefType:     "order",
				RefID:       input.RefID,
				ActorID:     input.ActorID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetItem loads an item definition.
func (s *Service) GetItem(ctx context.Context, itemID int64) (Item, error) {
	return s.repo.GetItem(ctx, itemID)
}

// Balances lists per-warehouse quantities for an item.
func (s *Service) Balances(ctx context.Context, itemID int64) ([]Balance, error) {
	return s.repo.ListBalances(ctx, itemID)
}

// LowStock reports items below their threshold.
func (s *Service) LowStock(ctx context.Context) ([]LowStockRow, error) {
	return s.repo.ListLowStock(ctx)
}

// Movements lists recent movements for an (item, warehouse) pair.
func (s *Service) Movements(ctx context.Context, itemID, warehouseID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListMovements(ctx, itemID, warehouseID, limit)
}

func (s *Service) applyOne(ctx context.Context, tx TxRepository, input MovementInput) (Movement, error) {
	if input.ItemID == 0 || input.WarehouseID == 0 {
		return Movement{}, errors.New("inventory: warehouse and item required")
	}
	if math.Abs(input.Delta) < qtyEpsilon {
		return Movement{}, ErrInvalidQuantity
	}
	balance, err := tx.GetBalanceForUpdate(ctx, input.ItemID, input.WarehouseID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return Movement{}, err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		balance = Balance{ItemID: input.ItemID, WarehouseID: input.WarehouseID}
	}

	newQty := balance.Qty + input.Delta
	reason := input.Reason
	if newQty < -qtyEpsilon {
		if !s.allowClamp {
			return Movement{}, fmt.Errorf("%w: item %d warehouse %d has %v, requested %v",
				ErrInsufficientStock, input.ItemID, input.WarehouseID, balance.Qty, -input.Delta)
		}
		shrinkage := -newQty
		newQty = 0
		reason = fmt.Sprintf("%s (clamped, shrinkage %.4f)", reason, shrinkage)
	}
	if math.Abs(newQty) < qtyEpsilon {
		newQty = 0
	}

	var unitCost, newAvg float64
	if input.Delta > 0 {
		if input.UnitCost < 0 {
			return Movement{}, ErrInvalidUnitCost
		}
		unitCost = input.UnitCost
		totalCost := balance.Qty*balance.AvgCost + input.Delta*unitCost
		if newQty > 0 {
			newAvg = totalCost / newQty
		}
	} else {
		unitCost = balance.AvgCost
		if newQty > 0 {
			newAvg = balance.AvgCost
		}
	}

	now := s.now().UTC()
	movement := Movement{
		Kind:        input.Kind,
		ItemID:      input.ItemID,
		WarehouseID: input.WarehouseID,
		Delta:       input.Delta,
		UnitCost:    unitCost,
		BalanceQty:  newQty,
		Reason:      reason,
		RefType:     input.RefType,
		RefID:       input.RefID,
		PostedAt:    now,
		CreatedBy:   input.ActorID,
	}
	id, err := tx.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, err
	}
	movement.ID = id

	balance.Qty = newQty
	balance.AvgCost = newAvg
	balance.UpdatedAt = now
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return Movement{}, err
	}
	return movement, nil
}

func (s *Service) recordMovementAudit(ctx context.Context, movement Movement) {
	if s.audit == nil {
		return
	}
	event, ok := auditEventForKind(movement.Kind)
	if !ok {
		return
	}
	_, _ = s.audit.Record(ctx, event, audit.Payload{
		After:  audit.Marshal(movement),
		Reason: movement.Reason,
	}, map[string]any{
		"item_id":      movement.ItemID,
		"warehouse_id": movement.WarehouseID,
		"delta":        movement.Delta,
	})
}

func auditEventForKind(kind MovementKind) (audit.EventType, bool) {
	switch kind {
	case MovementAdjustment:
		return audit.EventInventoryAdjustment, true
	case MovementPurchase:
		return audit.EventInventoryPurchase, true
	case MovementWaste:
		return audit.EventInventoryWaste, true
	default:
		// Sale consumption is covered by the order-level audit entry;
		// transfers are audited by Transfer itself.
		return "", false
	}
}

func validateMovement(input MovementInput) error {
	switch input.Kind {
	case MovementPurchase:
		if input.Delta <= 0 {
			return fmt.Errorf("%w: purchase delta must be positive", ErrInvalidQuantity)
		}
	case MovementWaste, MovementSaleConsumption:
		if input.Delta >= 0 {
			return fmt.Errorf("%w: %s delta must be negative", ErrInvalidQuantity, input.Kind)
		}
	case MovementAdjustment:
		// Either sign allowed.
	case MovementTransfer:
		return errors.New("inventory: use Transfer for transfer movements")
	default:
		return fmt.Errorf("inventory: unknown movement kind %q", input.Kind)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
