package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"guide_sync/internal/config"
	"guide_sync/internal/domain"
	"guide_sync/internal/service/mocks"
	"guide_sync/internal/testutil"
)

type GuideReconcileSuite struct {
	reconcileSuite
}

func TestGuideReconcileSuite(t *testing.T) {
	suite.Run(t, new(GuideReconcileSuite))
}

func (s *GuideReconcileSuite) SetupTest() {
	s.reconcileSuite.SetupTest()
	s.syncCategories(remote(1, "General", 0), remote(2, "Billing", 1))
}

func (s *GuideReconcileSuite) TestCreatesGuideWithCategoriesAndMeta() {
	d := detail(100, "Pay an invoice", domain.CategoryRef{ID: 2, Name: "Billing"})
	d.ViewCount = 12
	d.UsefulCount = 3
	d.NotUsefulCount = 1
	d.NextReviewDate = "2025-01-01"
	d.Tags = "billing, invoice"
	s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(d, nil)

	report := s.syncGuides(summary(100, "2024-01-01T10:00:00"))

	s.True(report.OK)
	s.Equal(1, report.Created)
	g := s.guide(100)
	s.Equal("Pay an invoice", g.Title)
	s.Equal(domain.StatusPublish, g.Status)
	s.Equal(`<div class="guide-description">How to Pay an invoice</div>`, g.Body)
	s.Equal("How to Pay an invoice", g.Excerpt)
	s.Equal(domain.Watermark("2024-01-01T10:00:00"), g.LastSyncedDate)
	s.Equal(12, g.ViewCount)
	s.Equal(3, g.UsefulCount)
	s.Equal(1, g.NotUsefulCount)
	s.Equal("2025-01-01", g.NextReviewDate)
	s.Equal("billing, invoice", g.Tags)
	s.Equal([]int64{s.category("Billing").ID}, g.CategoryIDs)
}

func (s *GuideReconcileSuite) TestUnchangedWatermarkSkipsDetailFetch() {
	s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).
		Return(detail(100, "Pay an invoice"), nil).
		Times(1)

	s.syncGuides(summary(100, "2024-01-01T10:00:00"))
	writes := s.store.Writes()

	report := s.syncGuides(summary(100, "2024-01-01T10:00:00"))

	s.Equal(1, report.Unchanged)
	s.Equal(0, report.DetailFetches)
	s.Equal(0, report.Mutations())
	s.Equal(writes, s.store.Writes())
}

func (s *GuideReconcileSuite) TestOlderWatermarkSkipsDetailFetch() {
	s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).
		Return(detail(100, "Pay an invoice"), nil).
		Times(1)

	s.syncGuides(summary(100, "2024-02-01T10:00:00"))
	report := s.syncGuides(summary(100, "2024-01-01T10:00:00"))

	s.Equal(1, report.Unchanged)
}

func (s *GuideReconcileSuite) TestNewerWatermarkUpdatesInPlace() {
	gomock.InOrder(
		s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(detail(100, "Old title"), nil),
		s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(detail(100, "New title"), nil),
	)

	s.syncGuides(summary(100, "2024-01-01T10:00:00"))
	before := s.guide(100)

	report := s.syncGuides(summary(100, "2024-01-02T08:00:00"))

	s.Equal(1, report.Updated)
	after := s.guide(100)
	s.Equal(before.ID, after.ID)
	s.Equal(int64(100), after.ExternalID)
	s.Equal("New title", after.Title)
	s.Equal(domain.Watermark("2024-01-02T08:00:00"), after.LastSyncedDate)
}

func (s *GuideReconcileSuite) TestCategorySetReplaced() {
	gomock.InOrder(
		s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(detail(100, "Guide",
			domain.CategoryRef{ID: 1, Name: "General"},
			domain.CategoryRef{ID: 2, Name: "Billing"},
		), nil),
		s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(detail(100, "Guide",
			domain.CategoryRef{ID: 2, Name: "Billing"},
		), nil),
	)

	s.syncGuides(summary(100, "2024-01-01"))
	s.Len(s.guide(100).CategoryIDs, 2)

	s.syncGuides(summary(100, "2024-01-02"))
	s.Equal([]int64{s.category("Billing").ID}, s.guide(100).CategoryIDs)
}

func (s *GuideReconcileSuite) TestCategoryResolvedByNameThenCreated() {
	s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(detail(100, "Guide",
		domain.CategoryRef{Name: "BILLING"},
		domain.CategoryRef{ID: 77, Name: "Release Notes"},
		domain.CategoryRef{ID: 78},
	), nil)

	report := s.syncGuides(summary(100, "2024-01-01"))

	s.Equal(1, report.Created)
	notes := s.category("Release Notes")
	s.True(notes.IsRoot())
	s.Equal(int64(77), *notes.RemoteID)
	s.ElementsMatch([]int64{s.category("Billing").ID, notes.ID}, s.guide(100).CategoryIDs)
}

func (s *GuideReconcileSuite) TestReferencedCategoryOutsideSnapshotSurvivesNextRun() {
	s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(detail(100, "Guide",
		domain.CategoryRef{ID: 77, Name: "Release Notes"},
	), nil).Times(1)

	s.syncGuides(summary(100, "2024-01-01"))
	notes := s.category("Release Notes")
	writes := s.store.Writes()

	categories := s.syncCategories(remote(1, "General", 0), remote(2, "Billing", 1))
	guides := s.syncGuides(summary(100, "2024-01-01"))

	s.Equal(0, categories.Mutations())
	s.Equal(1, categories.Retained)
	s.Equal(0, guides.Mutations())
	s.Equal(writes, s.store.Writes())
	s.Equal([]int64{notes.ID}, s.guide(100).CategoryIDs)
}

func (s *GuideReconcileSuite) TestReferencedCategoryDeletedOnceUnlinked() {
	s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(detail(100, "Guide",
		domain.CategoryRef{ID: 77, Name: "Release Notes"},
	), nil)
	s.syncGuides(summary(100, "2024-01-01"))
	s.syncGuides()

	report := s.syncCategories(remote(1, "General", 0), remote(2, "Billing", 1))

	s.Equal(1, report.Deleted)
	s.Len(s.allCategories(), 2)
}

func (s *GuideReconcileSuite) TestMissingEditDateKeepsStoredWatermark() {
	gomock.InOrder(
		s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(detail(100, "Old title"), nil),
		s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(detail(100, "New title"), nil),
	)

	s.syncGuides(summary(100, "2024-01-01T10:00:00"))
	report := s.syncGuides(summary(100, ""))

	s.Equal(1, report.Updated)
	g := s.guide(100)
	s.Equal("New title", g.Title)
	s.Equal(domain.Watermark("2024-01-01T10:00:00"), g.LastSyncedDate)
}

func (s *GuideReconcileSuite) TestInactiveArticleStoredAsDraft() {
	d := detail(100, "Hidden guide")
	d.Inactive = true
	s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(d, nil)

	s.syncGuides(summary(100, "2024-01-01"))

	s.Equal(domain.StatusDraft, s.guide(100).Status)
}

func (s *GuideReconcileSuite) TestOrphanGuideDeleted() {
	s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(detail(100, "Keep"), nil)
	s.source.EXPECT().GetArticle(gomock.Any(), int64(200)).Return(detail(200, "Drop"), nil)
	s.syncGuides(summary(100, "2024-01-01"), summary(200, "2024-01-01"))

	report := s.syncGuides(summary(100, "2024-01-01"))

	s.Equal(1, report.Deleted)
	_, err := s.store.Guides().GetByExternalID(context.Background(), 200)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *GuideReconcileSuite) TestEmptyListingDeletesAll() {
	s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(detail(100, "Guide"), nil)
	s.syncGuides(summary(100, "2024-01-01"))

	report := s.syncGuides()

	s.True(report.OK)
	s.Equal(1, report.Deleted)
}

func (s *GuideReconcileSuite) TestListingFailureKeepsGuides() {
	s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(detail(100, "Guide"), nil)
	s.syncGuides(summary(100, "2024-01-01"))

	s.source.EXPECT().ListArticles(gomock.Any()).Return(nil, errConnReset)
	report := s.service.syncGuides(context.Background(), s.logger)

	s.False(report.OK)
	s.Equal(0, report.Deleted)
	s.guide(100)
}

func (s *GuideReconcileSuite) TestInvalidDetailSkipped() {
	s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).
		Return(nil, fmt.Errorf("article 100: %w", domain.ErrInvalidPayload))

	report := s.syncGuides(summary(100, "2024-01-01"))

	s.Equal(1, report.Skipped)
	s.Equal(0, report.Failed)
	_, err := s.store.Guides().GetByExternalID(context.Background(), 100)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *GuideReconcileSuite) TestEmptyBodySkipped() {
	s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).
		Return(&domain.ArticleDetail{ID: 100, Name: "Blank"}, nil)

	report := s.syncGuides(summary(100, "2024-01-01"))

	s.Equal(1, report.Skipped)
	s.Equal(0, report.Created)
}

func (s *GuideReconcileSuite) TestFetchFailureRetainsExistingGuide() {
	gomock.InOrder(
		s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(detail(100, "Guide"), nil),
		s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(nil, errConnReset),
	)
	s.syncGuides(summary(100, "2024-01-01"))

	report := s.syncGuides(summary(100, "2024-01-02"))

	s.Equal(1, report.Failed)
	s.Equal(1, report.Retained)
	s.Equal(0, report.Deleted)
	s.Equal(domain.Watermark("2024-01-01"), s.guide(100).LastSyncedDate)
}

func (s *GuideReconcileSuite) TestFetchFailureDeletesWhenRetainDisabled() {
	s.service = s.newService(config.SyncConfig{RetainOnError: testutil.Ptr(false)}, nil)
	gomock.InOrder(
		s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(detail(100, "Guide"), nil),
		s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(nil, errConnReset),
	)
	s.syncGuides(summary(100, "2024-01-01"))

	report := s.syncGuides(summary(100, "2024-01-02"))

	s.Equal(1, report.Failed)
	s.Equal(0, report.Retained)
	s.Equal(1, report.Deleted)
}

func (s *GuideReconcileSuite) TestStoreFailureRollsBackGuide() {
	s.guides = failingGuideStore{GuideStore: s.store.Guides()}
	s.service = s.newService(config.SyncConfig{}, nil)
	s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(detail(100, "Guide"), nil)

	report := s.syncGuides(summary(100, "2024-01-01"))

	s.Equal(1, report.Failed)
	s.Equal(0, report.Created)
	_, err := s.store.Guides().GetByExternalID(context.Background(), 100)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *GuideReconcileSuite) TestDuplicateSummaryProcessedOnce() {
	s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(detail(100, "Guide"), nil).Times(1)

	report := s.syncGuides(summary(100, "2024-01-01"), summary(100, "2024-01-01"))

	s.Equal(1, report.Created)
}

func (s *GuideReconcileSuite) TestPublishesChangeEvents() {
	publisher := mocks.NewMockPublisher(s.ctrl)
	s.service = s.newService(config.SyncConfig{}, publisher)

	s.source.EXPECT().GetArticle(gomock.Any(), int64(100)).Return(detail(100, "Guide"), nil)
	publisher.EXPECT().Publish(gomock.Any(), domain.ActionCreate, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.GuideAction, g *domain.Guide) error {
			s.Equal(int64(100), g.ExternalID)
			return nil
		})
	created := s.syncGuides(summary(100, "2024-01-01"))
	s.Equal(1, created.Published)

	publisher.EXPECT().Publish(gomock.Any(), domain.ActionDelete, gomock.Any()).Return(errConnReset)
	deleted := s.syncGuides()
	s.Equal(1, deleted.Deleted)
	s.Equal(0, deleted.Published)
}
