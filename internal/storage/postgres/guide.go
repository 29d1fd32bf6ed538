package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"guide_sync/internal/domain"
)

const guideColumns = `id, external_id, title, body, excerpt, status, last_synced_date,
	view_count, useful_count, notuseful_count, next_review_date, tags, created_at, updated_at`

type GuideStore struct {
	db *sqlx.DB
}

func NewGuideStore(db *sqlx.DB) *GuideStore {
	return &GuideStore{db: db}
}

func (s *GuideStore) List(ctx context.Context) ([]domain.Guide, error) {
	return s.list(ctx, `SELECT `+guideColumns+` FROM guides ORDER BY id`)
}

func (s *GuideStore) ListPublished(ctx context.Context) ([]domain.Guide, error) {
	return s.list(ctx, `SELECT `+guideColumns+` FROM guides WHERE status = 'publish' ORDER BY title, id`)
}

func (s *GuideStore) list(ctx context.Context, query string) ([]domain.Guide, error) {
	exec := GetExecutor(ctx, s.db)

	var guides []domain.Guide
	if err := sqlx.SelectContext(ctx, exec, &guides, query); err != nil {
		return nil, err
	}
	if len(guides) == 0 {
		return guides, nil
	}

	var links []struct {
		GuideID    int64 `db:"guide_id"`
		CategoryID int64 `db:"category_id"`
	}
	err := sqlx.SelectContext(ctx, exec, &links,
		`SELECT guide_id, category_id FROM guide_categories ORDER BY guide_id, category_id`)
	if err != nil {
		return nil, err
	}

	byGuide := make(map[int64][]int64)
	for _, l := range links {
		byGuide[l.GuideID] = append(byGuide[l.GuideID], l.CategoryID)
	}
	for i := range guides {
		guides[i].CategoryIDs = byGuide[guides[i].ID]
	}
	return guides, nil
}

func (s *GuideStore) GetByExternalID(ctx context.Context, externalID int64) (*domain.Guide, error) {
	exec := GetExecutor(ctx, s.db)

	var guide domain.Guide
	err := sqlx.GetContext(ctx, exec, &guide,
		`SELECT `+guideColumns+` FROM guides WHERE external_id = $1`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	ids, err := s.CategoryIDs(ctx, guide.ID)
	if err != nil {
		return nil, err
	}
	guide.CategoryIDs = ids
	return &guide, nil
}

func (s *GuideStore) CategoryIDs(ctx context.Context, guideID int64) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &ids,
		`SELECT category_id FROM guide_categories WHERE guide_id = $1 ORDER BY category_id`, guideID)
	return ids, err
}

func (s *GuideStore) Insert(ctx context.Context, guide *domain.Guide) (int64, error) {
	query := `
		INSERT INTO guides (
			external_id, title, body, excerpt, status, last_synced_date,
			view_count, useful_count, notuseful_count, next_review_date, tags
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		guide.ExternalID,
		guide.Title,
		guide.Body,
		guide.Excerpt,
		guide.Status,
		guide.LastSyncedDate,
		guide.ViewCount,
		guide.UsefulCount,
		guide.NotUsefulCount,
		guide.NextReviewDate,
		guide.Tags,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Update rewrites a guide's content and meta fields. The external id is
// fixed at insert time.
func (s *GuideStore) Update(ctx context.Context, guide *domain.Guide) error {
	query := `
		UPDATE guides SET
			title = $2,
			body = $3,
			excerpt = $4,
			status = $5,
			last_synced_date = $6,
			view_count = $7,
			useful_count = $8,
			notuseful_count = $9,
			next_review_date = $10,
			tags = $11,
			updated_at = NOW()
		WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		guide.ID,
		guide.Title,
		guide.Body,
		guide.Excerpt,
		guide.Status,
		guide.LastSyncedDate,
		guide.ViewCount,
		guide.UsefulCount,
		guide.NotUsefulCount,
		guide.NextReviewDate,
		guide.Tags,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *GuideStore) Delete(ctx context.Context, id int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM guides WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetCategories replaces the guide's category set.
func (s *GuideStore) SetCategories(ctx context.Context, guideID int64, categoryIDs []int64) error {
	exec := GetExecutor(ctx, s.db)

	_, err := exec.ExecContext(ctx, `DELETE FROM guide_categories WHERE guide_id = $1`, guideID)
	if err != nil {
		return err
	}
	if len(categoryIDs) == 0 {
		return nil
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO guide_categories (guide_id, category_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING`,
		guideID, pq.Array(categoryIDs),
	)
	return err
}
