package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository stores audit records in PostgreSQL. The table is append-only;
// no update or delete statements exist in this package.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs the repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert appends a record.
func (r *PGRepository) Insert(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("audit: marshal payload: %w", err)
	}
	meta, err := json.Marshal(rec.Meta)
	if err != nil {
		return fmt.Errorf("audit: marshal meta: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, occurred_at, event_type, user_id, user_name, role, branch_id, device_id, payload, meta, signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.At, string(rec.EventType), rec.UserID, rec.UserName, rec.Role, rec.BranchID, rec.DeviceID, payload, meta, rec.Signature)
	return err
}

// Timeline lists records matching the filter, most recent first.
func (r *PGRepository) Timeline(ctx context.Context, filter TimelineFilter) ([]Record, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !filter.From.IsZero() {
		add("occurred_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("occurred_at <= $%d", filter.To)
	}
	if filter.EventType != "" {
		add("event_type = $%d", string(filter.EventType))
	}
	if filter.UserID != 0 {
		add("user_id = $%d", filter.UserID)
	}
	query := `SELECT id, occurred_at, event_type, user_id, user_name, role, branch_id, device_id, payload, meta, signature FROM audit_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var (
			rec       Record
			eventType string
			payload   []byte
			meta      []byte
			at        time.Time
		)
		if err := rows.Scan(&rec.ID, &at, &eventType, &rec.UserID, &rec.UserName, &rec.Role, &rec.BranchID, &rec.DeviceID, &payload, &meta, &rec.Signature); err != nil {
			return nil, err
		}
		rec.At = at
		rec.EventType = EventType(eventType)
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return nil, fmt.Errorf("audit: unmarshal payload: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &rec.Meta); err != nil {
				return nil, fmt.Errorf("audit: unmarshal meta: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
