package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository stores orders in Postgres. Lines and payments live in JSONB
// columns since they are read and written whole with the order.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Insert(ctx context.Context, order Order) error {
	lines, err := json.Marshal(order.Lines)
	if err != nil {
		return fmt.Errorf("orders: marshal lines: %w", err)
	}
	payments, err := json.Marshal(order.Payments)
	if err != nil {
		return fmt.Errorf("orders: marshal payments: %w", err)
	}
	const q = `
		INSERT INTO orders (
			id, number, branch_id, warehouse_id, order_type, status, sync_status,
			table_number, customer_id, lines, payments,
			subtotal, tax, discount, total, notes, placed_by, placed_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`
	_, err = r.pool.Exec(ctx, q,
		order.ID, order.Number, order.BranchID, order.WarehouseID,
		order.Type, order.Status, order.SyncStatus,
		order.TableNumber, order.CustomerID, lines, payments,
		order.Subtotal, order.Tax, order.Discount, order.Total,
		order.Notes, order.PlacedBy, order.PlacedAt, order.UpdatedAt,
	)
	return err
}

func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	const q = selectOrder + ` WHERE id = $1`
	order, err := scanOrder(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return order, err
}

func (r *PGRepository) List(ctx context.Context, status Status, limit int) ([]Order, error) {
	q := selectOrder
	args := []any{limit}
	if status != "" {
		q += ` WHERE status = $2`
		args = append(args, status)
	}
	q += ` ORDER BY placed_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, rows.Err()
}

func (r *PGRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, updatedAt time.Time) error {
	const q = `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, status, updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *PGRepository) MarkSynced(ctx context.Context, id uuid.UUID, updatedAt time.Time) error {
	const q = `UPDATE orders SET sync_status = 'SYNCED', updated_at = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	return err
}

func (r *PGRepository) SalesTotals(ctx context.Context, from, to time.Time) (SalesSummary, error) {
	const q = `
		SELECT COUNT(*), COALESCE(SUM(total), 0)
		FROM orders
		WHERE placed_at >= $1 AND placed_at < $2
		  AND status <> 'CANCELLED' AND sync_status = 'SYNCED'`
	summary := SalesSummary{From: from, To: to}
	if err := r.pool.QueryRow(ctx, q, from, to).Scan(&summary.Orders, &summary.Revenue); err != nil {
		return SalesSummary{}, err
	}
	return summary, nil
}

const selectOrder = `
	SELECT id, number, branch_id, warehouse_id, order_type, status, sync_status,
	       table_number, customer_id, lines, payments,
	       subtotal, tax, discount, total, notes, placed_by, placed_at, updated_at
	FROM orders`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		order    Order
		lines    []byte
		payments []byte
	)
	err := row.Scan(
		&order.ID, &order.Number, &order.BranchID, &order.WarehouseID,
		&order.Type, &order.Status, &order.SyncStatus,
		&order.TableNumber, &order.CustomerID, &lines, &payments,
		&order.Subtotal, &order.Tax, &order.Discount, &order.Total,
		&order.Notes, &order.PlacedBy, &order.PlacedAt, &order.UpdatedAt,
	)
	if err != nil {
		return Order{}, err
	}
	if err := json.Unmarshal(lines, &order.Lines); err != nil {
		return Order{}, fmt.Errorf("orders: decode lines: %w", err)
	}
	if len(payments) > 0 {
		if err := json.Unmarshal(payments, &order.Payments); err != nil {
			return Order{}, fmt.Errorf("orders: decode payments: %w", err)
		}
	}
	return order, nil
}
