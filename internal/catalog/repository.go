package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists catalog data in PostgreSQL. Recipes and modifier
// groups are stored as JSONB documents alongside the item row.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetItem loads a single menu item.
func (r *Repository) GetItem(ctx context.Context, id int64) (MenuItem, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, category, price, available, recipe, modifier_groups, created_at, updated_at
		FROM menu_items WHERE id = $1`, id)
	return scanItem(row)
}

// ListItems returns available items ordered by category and name.
func (r *Repository) ListItems(ctx context.Context) ([]MenuItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, category, price, available, recipe, modifier_groups, created_at, updated_at
		FROM menu_items ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MenuItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// InsertItem creates a menu item and returns its id.
func (r *Repository) InsertItem(ctx context.Context, item MenuItem) (int64, error) {
	recipe, groups, err := encodeDocs(item)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.pool.QueryRow(ctx, `
		INSERT INTO menu_items (name, category, price, available, recipe, modifier_groups, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING id`,
		item.Name, item.Category, item.Price, item.Available, recipe, groups).Scan(&id)
	return id, err
}

// UpdateItem rewrites the mutable fields of an item.
func (r *Repository) UpdateItem(ctx context.Context, item MenuItem) error {
	recipe, groups, err := encodeDocs(item)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE menu_items SET name=$2, category=$3, price=$4, available=$5, recipe=$6, modifier_groups=$7, updated_at=NOW()
		WHERE id = $1`,
		item.ID, item.Name, item.Category, item.Price, item.Available, recipe, groups)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func encodeDocs(item MenuItem) ([]byte, []byte, error) {
	recipe, err := json.Marshal(item.Recipe)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: marshal recipe: %w", err)
	}
	groups, err := json.Marshal(item.ModifierGroups)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: marshal modifier groups: %w", err)
	}
	return recipe, groups, nil
}

func scanItem(row pgx.Row) (MenuItem, error) {
	var (
		item   MenuItem
		recipe []byte
		groups []byte
		cr, up time.Time
	)
	err := row.Scan(&item.ID, &item.Name, &item.Category, &item.Price, &item.Available, &recipe, &groups, &cr, &up)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MenuItem{}, ErrItemNotFound
		}
		return MenuItem{}, err
	}
	item.CreatedAt = cr
	item.UpdatedAt = up
	if len(recipe) > 0 {
		if err := json.Unmarshal(recipe, &item.Recipe); err != nil {
			return MenuItem{}, fmt.Errorf("catalog: unmarshal recipe: %w", err)
		}
	}
	if len(groups) > 0 {
		if err := json.Unmarshal(groups, &item.ModifierGroups); err != nil {
			return MenuItem{}, fmt.Errorf("catalog: unmarshal modifier groups: %w", err)
		}
	}
	return item, nil
}
