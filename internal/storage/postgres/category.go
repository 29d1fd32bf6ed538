package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"guide_sync/internal/domain"
)

const categoryColumns = `id, name, remote_id, parent_id, sequence, group_id, group_name`

type CategoryStore struct {
	db *sqlx.DB
}

func NewCategoryStore(db *sqlx.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

func (s *CategoryStore) List(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &categories,
		`SELECT `+categoryColumns+` FROM categories ORDER BY id`)
	return categories, err
}

func (s *CategoryStore) Get(ctx context.Context, id int64) (*domain.Category, error) {
	return s.getBy(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
}

func (s *CategoryStore) GetByRemoteID(ctx context.Context, remoteID int64) (*domain.Category, error) {
	return s.getBy(ctx, `SELECT `+categoryColumns+` FROM categories WHERE remote_id = $1`, remoteID)
}

func (s *CategoryStore) getBy(ctx context.Context, query string, arg int64) (*domain.Category, error) {
	var category domain.Category
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &category, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (s *CategoryStore) Insert(ctx context.Context, category *domain.Category) (int64, error) {
	query := `
		INSERT INTO categories (name, remote_id, parent_id, sequence, group_id, group_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		category.Name,
		category.RemoteID,
		category.ParentID,
		category.Sequence,
		category.GroupID,
		category.GroupName,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *CategoryStore) Update(ctx context.Context, category *domain.Category) error {
	query := `
		UPDATE categories SET
			name = $2,
			remote_id = $3,
			parent_id = $4,
			sequence = $5,
			group_id = $6,
			group_name = $7,
			updated_at = NOW()
		WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		category.ID,
		category.Name,
		category.RemoteID,
		category.ParentID,
		category.Sequence,
		category.GroupID,
		category.GroupName,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes a category. Children become roots and guide links go
// with it.
func (s *CategoryStore) Delete(ctx context.Context, id int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
