package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"guide_sync/internal/domain"
)

type guideOutcome int

const (
	guideUnchanged guideOutcome = iota
	guideCreated
	guideUpdated
	guideSkipped
	guideFailed
)

// categoryIndex maps remote references onto local category keys for the
// guide phase.
type categoryIndex struct {
	byRemote map[int64]int64
	byName   map[string]int64
}

func (s *SyncService) syncGuides(ctx context.Context, logger *slog.Logger) domain.PhaseReport {
	report := domain.PhaseReport{Name: domain.PhaseGuides}
	logger = logger.With("phase", domain.PhaseGuides)

	summaries, err := s.source.ListArticles(ctx)
	if err != nil {
		logger.Error("failed to list articles", "error", err)
		report.Error = err.Error()
		return report
	}
	report.Fetched = len(summaries)

	existing, err := s.guides.List(ctx)
	if err != nil {
		logger.Error("failed to load local guides", "error", err)
		report.Error = err.Error()
		return report
	}
	byExternal := make(map[int64]*domain.Guide, len(existing))
	for i := range existing {
		byExternal[existing[i].ExternalID] = &existing[i]
	}

	index, err := s.loadCategoryIndex(ctx)
	if err != nil {
		logger.Error("failed to load local categories", "error", err)
		report.Error = err.Error()
		return report
	}

	keep := make(map[int64]struct{}, len(existing))
	seen := make(map[int64]struct{}, len(summaries))
	for _, summary := range summaries {
		if err := ctx.Err(); err != nil {
			logger.Error("guide sync interrupted", "error", err)
			report.Error = err.Error()
			return report
		}
		if _, dup := seen[summary.ID]; dup {
			continue
		}
		seen[summary.ID] = struct{}{}

		current := byExternal[summary.ID]
		outcome, guide := s.syncGuide(ctx, logger, summary, current, index, &report)

		switch outcome {
		case guideUnchanged:
			report.Unchanged++
			keep[guide.ID] = struct{}{}
		case guideCreated:
			report.Created++
			keep[guide.ID] = struct{}{}
			s.publish(ctx, logger, &report, domain.ActionCreate, guide)
		case guideUpdated:
			report.Updated++
			keep[guide.ID] = struct{}{}
			s.publish(ctx, logger, &report, domain.ActionUpdate, guide)
		case guideSkipped:
			report.Skipped++
		case guideFailed:
			report.Failed++
			if current != nil && s.config.Retain() {
				report.Retained++
				keep[current.ID] = struct{}{}
			}
		}
	}

	for i := range existing {
		guide := &existing[i]
		if _, ok := keep[guide.ID]; ok {
			continue
		}
		if err := s.guides.Delete(ctx, guide.ID); err != nil {
			logger.Error("failed to delete guide", "id", guide.ID, "external_id", guide.ExternalID, "error", err)
			report.Failed++
			continue
		}
		logger.Debug("deleted guide", "id", guide.ID, "external_id", guide.ExternalID)
		report.Deleted++
		s.publish(ctx, logger, &report, domain.ActionDelete, guide)
	}

	report.OK = true
	logger.Info("guides synced",
		"fetched", report.Fetched,
		"created", report.Created,
		"updated", report.Updated,
		"unchanged", report.Unchanged,
		"deleted", report.Deleted,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"retained", report.Retained,
		"detail_fetches", report.DetailFetches,
	)
	return report
}

func (s *SyncService) syncGuide(
	ctx context.Context,
	logger *slog.Logger,
	summary domain.ArticleSummary,
	current *domain.Guide,
	index *categoryIndex,
	report *domain.PhaseReport,
) (guideOutcome, *domain.Guide) {
	logger = logger.With("external_id", summary.ID)

	if current != nil && !current.LastSyncedDate.IsZero() && !summary.DateEdited.NewerThan(current.LastSyncedDate) {
		return guideUnchanged, current
	}

	report.DetailFetches++
	detail, err := s.source.GetArticle(ctx, summary.ID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPayload) {
			logger.Warn("skipping article with invalid detail", "error", err)
			return guideSkipped, nil
		}
		logger.Error("failed to fetch article", "error", err)
		return guideFailed, nil
	}

	body := BuildBody(detail)
	if body == "" {
		logger.Warn("skipping article without content")
		return guideSkipped, nil
	}

	categoryIDs, err := s.resolveGuideCategories(ctx, logger, detail.Categories, index)
	if err != nil {
		logger.Error("failed to resolve article categories", "error", err)
		return guideFailed, nil
	}

	guide := &domain.Guide{
		ExternalID:     summary.ID,
		Title:          detail.Name,
		Body:           body,
		Excerpt:        Excerpt(body),
		Status:         domain.StatusFromInactive(detail.Inactive),
		LastSyncedDate: summary.DateEdited,
		ViewCount:      detail.ViewCount,
		UsefulCount:    detail.UsefulCount,
		NotUsefulCount: detail.NotUsefulCount,
		NextReviewDate: detail.NextReviewDate,
		Tags:           detail.Tags,
		CategoryIDs:    categoryIDs,
	}
	// An article listed without an edit date keeps the stored watermark.
	if current != nil && summary.DateEdited.IsZero() {
		guide.LastSyncedDate = current.LastSyncedDate
	}

	outcome := guideCreated
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if current == nil {
			id, err := s.guides.Insert(txCtx, guide)
			if err != nil {
				return fmt.Errorf("insert guide: %w", err)
			}
			guide.ID = id
		} else {
			outcome = guideUpdated
			guide.ID = current.ID
			guide.ExternalID = current.ExternalID
			guide.CreatedAt = current.CreatedAt
			if err := s.guides.Update(txCtx, guide); err != nil {
				return fmt.Errorf("update guide: %w", err)
			}
		}

		if err := s.guides.SetCategories(txCtx, guide.ID, categoryIDs); err != nil {
			return fmt.Errorf("set categories: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Error("failed to store guide", "error", err)
		return guideFailed, nil
	}

	logger.Debug("stored guide", "id", guide.ID, "status", guide.Status, "categories", len(categoryIDs))
	return outcome, guide
}

func (s *SyncService) loadCategoryIndex(ctx context.Context) (*categoryIndex, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, err
	}

	index := &categoryIndex{
		byRemote: make(map[int64]int64, len(categories)),
		byName:   make(map[string]int64, len(categories)),
	}
	for _, c := range categories {
		if c.RemoteID != nil {
			index.byRemote[*c.RemoteID] = c.ID
		}
		if key := domain.NameKey(c.Name); key != "" {
			if _, taken := index.byName[key]; !taken {
				index.byName[key] = c.ID
			}
		}
	}
	return index, nil
}

// resolveGuideCategories maps an article's category references onto local
// keys, creating root categories for references that match nothing.
func (s *SyncService) resolveGuideCategories(
	ctx context.Context,
	logger *slog.Logger,
	refs []domain.CategoryRef,
	index *categoryIndex,
) ([]int64, error) {
	ids := make([]int64, 0, len(refs))
	seen := make(map[int64]struct{}, len(refs))
	add := func(id int64) {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	for _, ref := range refs {
		if ref.ID != 0 {
			if id, ok := index.byRemote[ref.ID]; ok {
				add(id)
				continue
			}
		}
		key := domain.NameKey(ref.Name)
		if key == "" {
			logger.Warn("ignoring unresolvable category reference", "remote_id", ref.ID)
			continue
		}
		if id, ok := index.byName[key]; ok {
			add(id)
			continue
		}

		category := &domain.Category{Name: ref.Name}
		if ref.ID != 0 {
			remoteID := ref.ID
			category.RemoteID = &remoteID
		}
		id, err := s.categories.Insert(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("create category %q: %w", ref.Name, err)
		}
		logger.Info("created category referenced by article", "id", id, "name", ref.Name)
		if ref.ID != 0 {
			index.byRemote[ref.ID] = id
		}
		index.byName[key] = id
		add(id)
	}
	return ids, nil
}
