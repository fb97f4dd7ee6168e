package syncq

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository stores the queue in Postgres. Seq comes from a bigserial so
// per-entity ordering survives restarts.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Insert(ctx context.Context, item Item) (Item, error) {
	const q = `
		INSERT INTO sync_queue (id, entity_type, operation, payload, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq`
	err := r.pool.QueryRow(ctx, q,
		item.ID, item.EntityType, item.Operation, item.Payload,
		item.Status, item.Attempts, item.CreatedAt, item.UpdatedAt,
	).Scan(&item.Seq)
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (Item, error) {
	const q = `
		SELECT id, seq, entity_type, operation, payload, status, attempts, last_error, created_at, updated_at
		FROM sync_queue WHERE id = $1`
	var item Item
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&item.ID, &item.Seq, &item.EntityType, &item.Operation, &item.Payload,
		&item.Status, &item.Attempts, &item.LastError, &item.CreatedAt, &item.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

func (r *PGRepository) ListQueuedByEntity(ctx context.Context, entityType string) ([]Item, error) {
	const q = `
		SELECT id, seq, entity_type, operation, payload, status, attempts, last_error, created_at, updated_at
		FROM sync_queue
		WHERE entity_type = $1 AND status = 'QUEUED'
		ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, q, entityType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(
			&item.ID, &item.Seq, &item.EntityType, &item.Operation, &item.Payload,
			&item.Status, &item.Attempts, &item.LastError, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *PGRepository) EntityTypesWithQueued(ctx context.Context) ([]string, error) {
	const q = `
		SELECT entity_type FROM sync_queue
		WHERE status = 'QUEUED'
		GROUP BY entity_type
		ORDER BY MIN(seq) ASC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func (r *PGRepository) MarkSynced(ctx context.Context, id uuid.UUID) error {
	const q = `
		UPDATE sync_queue
		SET status = 'SYNCED', attempts = attempts + 1, last_error = '', updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *PGRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	const q = `
		UPDATE sync_queue
		SET status = 'FAILED', attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *PGRepository) Requeue(ctx context.Context, id uuid.UUID) error {
	const q = `
		UPDATE sync_queue
		SET status = 'QUEUED', last_error = '', updated_at = NOW()
		WHERE id = $1 AND status = 'FAILED'`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *PGRepository) Stats(ctx context.Context) (Stats, error) {
	const q = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'QUEUED'),
			COUNT(*) FILTER (WHERE status = 'FAILED'),
			COUNT(*) FILTER (WHERE status = 'SYNCED')
		FROM sync_queue`
	var st Stats
	if err := r.pool.QueryRow(ctx, q).Scan(&st.Total, &st.Pending, &st.Failed, &st.Synced); err != nil {
		return Stats{}, err
	}
	return st, nil
}
