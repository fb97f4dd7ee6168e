package rbac

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads role grants from Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) ListRolePermissions(ctx context.Context, role string) ([]Permission, error) {
	const q = `SELECT permission FROM role_permissions WHERE role = $1 ORDER BY permission`
	rows, err := r.pool.Query(ctx, q, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		// Unknown rows are skipped rather than surfaced; the closed set is
		// the source of truth.
		if Valid(p) {
			perms = append(perms, p)
		}
	}
	return perms, rows.Err()
}
