package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"guide_sync/internal/domain"
)

type SyncRunStore struct {
	db *sqlx.DB
}

func NewSyncRunStore(db *sqlx.DB) *SyncRunStore {
	return &SyncRunStore{db: db}
}

func (s *SyncRunStore) Record(ctx context.Context, run *domain.SyncRun) error {
	report := run.Report
	if len(report) == 0 {
		report = []byte("{}")
	}

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO sync_runs (id, started_at, finished_at, status, message, report)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)`,
		run.ID,
		run.StartedAt,
		run.FinishedAt,
		run.Status,
		run.Message,
		string(report),
	)
	return err
}

func (s *SyncRunStore) Last(ctx context.Context) (*domain.SyncRun, error) {
	var run domain.SyncRun
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &run, `
		SELECT id::text AS id, started_at, finished_at, status, message, report::text AS report
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}
