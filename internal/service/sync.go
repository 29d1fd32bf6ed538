package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"guide_sync/internal/config"
	"guide_sync/internal/domain"
)

type SyncService struct {
	source     Source
	categories CategoryStore
	guides     GuideStore
	runs       SyncRunStore
	txManager  TransactionManager
	locker     Locker
	publisher  Publisher
	logger     *slog.Logger
	config     config.SyncConfig
}

// NewSyncService wires a sync run. runs and publisher may be nil.
func NewSyncService(
	source Source,
	categories CategoryStore,
	guides GuideStore,
	runs SyncRunStore,
	txManager TransactionManager,
	locker Locker,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		source:     source,
		categories: categories,
		guides:     guides,
		runs:       runs,
		txManager:  txManager,
		locker:     locker,
		publisher:  publisher,
		logger:     logger.With("source", source.Name()),
		config:     cfg,
	}
}

// Sync mirrors categories and then guides. A failed listing aborts only
// its own phase. It returns domain.ErrSyncInProgress when another run
// holds the lock.
func (s *SyncService) Sync(ctx context.Context) (*domain.SyncReport, error) {
	release, acquired, err := s.locker.TryLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !acquired {
		s.logger.Warn("sync skipped, another run is in progress")
		return nil, domain.ErrSyncInProgress
	}
	defer release()

	report := &domain.SyncReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	logger := s.logger.With("run_id", report.RunID)
	logger.Info("starting sync", "retain_on_error", s.config.Retain())

	report.Categories = s.syncCategories(ctx, logger)
	report.Guides = s.syncGuides(ctx, logger)

	report.FinishedAt = time.Now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)

	logger.Info("sync completed",
		"status", report.Status(),
		"categories_created", report.Categories.Created,
		"categories_updated", report.Categories.Updated,
		"categories_deleted", report.Categories.Deleted,
		"guides_created", report.Guides.Created,
		"guides_updated", report.Guides.Updated,
		"guides_unchanged", report.Guides.Unchanged,
		"guides_deleted", report.Guides.Deleted,
		"guides_failed", report.Guides.Failed,
		"detail_fetches", report.Guides.DetailFetches,
		"duration", report.Duration,
	)

	s.recordRun(ctx, report, logger)
	return report, nil
}

func (s *SyncService) recordRun(ctx context.Context, report *domain.SyncReport, logger *slog.Logger) {
	if s.runs == nil {
		return
	}

	body, err := json.Marshal(report)
	if err != nil {
		logger.Error("failed to encode sync report", "error", err)
		return
	}

	run := &domain.SyncRun{
		ID:         report.RunID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Status:     report.Status(),
		Message:    report.Message(),
		Report:     body,
	}
	// The run outcome is kept even when the sync context has expired.
	if err := s.runs.Record(context.WithoutCancel(ctx), run); err != nil {
		logger.Error("failed to record sync run", "error", err)
	}
}

func (s *SyncService) publish(ctx context.Context, logger *slog.Logger, report *domain.PhaseReport, action domain.GuideAction, guide *domain.Guide) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, action, guide); err != nil {
		logger.Warn("failed to publish guide event",
			"action", action,
			"external_id", guide.ExternalID,
			"error", err,
		)
		return
	}
	report.Published++
}
