package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository stores operator accounts in Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectUser = `
	SELECT id, username, name, role, branch_id, password_hash, active, created_at, updated_at
	FROM users`

func (r *PGRepository) GetByUsername(ctx context.Context, username string) (User, error) {
	return r.getOne(ctx, selectUser+` WHERE username = $1`, username)
}

func (r *PGRepository) GetByID(ctx context.Context, id int64) (User, error) {
	return r.getOne(ctx, selectUser+` WHERE id = $1`, id)
}

func (r *PGRepository) getOne(ctx context.Context, q string, arg any) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, q, arg).Scan(
		&u.ID, &u.Username, &u.Name, &u.Role, &u.BranchID,
		&u.PasswordHash, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (r *PGRepository) Insert(ctx context.Context, user User) (User, error) {
	const q = `
		INSERT INTO users (username, name, role, branch_id, password_hash, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	err := r.pool.QueryRow(ctx, q,
		user.Username, user.Name, user.Role, user.BranchID,
		user.PasswordHash, user.Active, user.CreatedAt, user.UpdatedAt,
	).Scan(&user.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return User{}, ErrDuplicateUsername
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (r *PGRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, selectUser+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(
			&u.ID, &u.Username, &u.Name, &u.Role, &u.BranchID,
			&u.PasswordHash, &u.Active, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
