package customers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository stores customers in Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Insert(ctx context.Context, c Customer) (Customer, error) {
	const q = `
		INSERT INTO customers (name, phone, email, branch_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := r.pool.QueryRow(ctx, q, c.Name, c.Phone, c.Email, c.BranchID, c.CreatedAt, c.UpdatedAt).Scan(&c.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Customer{}, ErrDuplicatePhone
	}
	if err != nil {
		return Customer{}, err
	}
	return c, nil
}

func (r *PGRepository) Get(ctx context.Context, id int64) (Customer, error) {
	const q = `
		SELECT id, name, phone, email, branch_id, created_at, updated_at
		FROM customers WHERE id = $1`
	var c Customer
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&c.ID, &c.Name, &c.Phone, &c.Email, &c.BranchID, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	if err != nil {
		return Customer{}, err
	}
	return c, nil
}

func (r *PGRepository) List(ctx context.Context, search string, limit int) ([]Customer, error) {
	const q = `
		SELECT id, name, phone, email, branch_id, created_at, updated_at
		FROM customers
		WHERE $1 = '' OR name ILIKE $1 || '%' OR phone LIKE $1 || '%'
		ORDER BY name
		LIMIT $2`
	rows, err := r.pool.Query(ctx, q, search, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.BranchID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
