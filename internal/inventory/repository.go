package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, itemID, warehouseID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
}

// ErrBalanceNotFound indicates a missing balance row.
var ErrBalanceNotFound = errors.New("inventory: balance not found")

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetItem loads an item definition.
func (r *Repository) GetItem(ctx context.Context, itemID int64) (Item, error) {
	var item Item
	err := r.pool.QueryRow(ctx, `
		SELECT id, sku, name, unit, category, low_stock_threshold, created_at, updated_at
		FROM inventory_items WHERE id = $1`, itemID).
		Scan(&item.ID, &item.SKU, &item.Name, &item.Unit, &item.Category, &item.LowStockThreshold, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return item, err
}

// ListBalances lists per-warehouse balances for an item.
func (r *Repository) ListBalances(ctx context.Context, itemID int64) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT item_id, warehouse_id, qty, avg_cost, updated_at
		FROM inventory_balances WHERE item_id = $1 ORDER BY warehouse_id`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var balances []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.ItemID, &b.WarehouseID, &b.Qty, &b.AvgCost, &b.UpdatedAt); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// ListLowStock reports balances under their item's threshold.
func (r *Repository) ListLowStock(ctx context.Context) ([]LowStockRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.sku, i.name, b.warehouse_id, b.qty, i.low_stock_threshold
		FROM inventory_balances b
		JOIN inventory_items i ON i.id = b.item_id
		WHERE i.low_stock_threshold > 0 AND b.qty < i.low_stock_threshold
		ORDER BY i.name, b.warehouse_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LowStockRow
	for rows.Next() {
		var row LowStockRow
		if err := rows.Scan(&row.ItemID, &row.SKU, &row.Name, &row.WarehouseID, &row.Qty, &row.Threshold); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListMovements lists recent movements for an (item, warehouse) pair.
func (r *Repository) ListMovements(ctx context.Context, itemID, warehouseID int64, limit int) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, kind, item_id, warehouse_id, delta, unit_cost, balance_qty, reason, ref_type, ref_id, posted_at, created_by
		FROM inventory_movements
		WHERE item_id = $1 AND warehouse_id = $2
		ORDER BY posted_at DESC, id DESC LIMIT $3`, itemID, warehouseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var (
			m    Movement
			kind string
			at   time.Time
		)
		if err := rows.Scan(&m.ID, &kind, &m.ItemID, &m.WarehouseID, &m.Delta, &m.UnitCost, &m.BalanceQty, &m.Reason, &m.RefType, &m.RefID, &at, &m.CreatedBy); err != nil {
			return nil, err
		}
		m.Kind = MovementKind(kind)
		m.PostedAt = at
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *txRepo) GetBalanceForUpdate(ctx context.Context, itemID, warehouseID int64) (Balance, error) {
	var b Balance
	err := r.tx.QueryRow(ctx, `
		SELECT item_id, warehouse_id, qty, avg_cost, updated_at
		FROM inventory_balances WHERE item_id = $1 AND warehouse_id = $2 FOR UPDATE`,
		itemID, warehouseID).
		Scan(&b.ItemID, &b.WarehouseID, &b.Qty, &b.AvgCost, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{ItemID: itemID, WarehouseID: warehouseID}, ErrBalanceNotFound
	}
	return b, err
}

func (r *txRepo) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO inventory_balances (item_id, warehouse_id, qty, avg_cost, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (item_id, warehouse_id)
		DO UPDATE SET qty = EXCLUDED.qty, avg_cost = EXCLUDED.avg_cost, updated_at = EXCLUDED.updated_at`,
		balance.ItemID, balance.WarehouseID, balance.Qty, balance.AvgCost, balance.UpdatedAt)
	return err
}

func (r *txRepo) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO inventory_movements (kind, item_id, warehouse_id, delta, unit_cost, balance_qty, reason, ref_type, ref_id, posted_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		string(movement.Kind), movement.ItemID, movement.WarehouseID, movement.Delta, movement.UnitCost,
		movement.BalanceQty, movement.Reason, movement.RefType, movement.RefID, movement.PostedAt, movement.CreatedBy).
		Scan(&id)
	return id, err
}
