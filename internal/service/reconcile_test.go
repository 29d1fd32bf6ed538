package service

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"guide_sync/internal/config"
	"guide_sync/internal/domain"
	"guide_sync/internal/service/mocks"
	"guide_sync/internal/storage/memory"
)

// reconcileSuite runs the reconcilers against the in-memory store with a
// mocked remote source.
type reconcileSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	source *mocks.MockSource
	store  *memory.Store

	categories CategoryStore
	guides     GuideStore

	service *SyncService
	logger  *slog.Logger
}

func (s *reconcileSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.source = mocks.NewMockSource(s.ctrl)
	s.source.EXPECT().Name().Return("Test Source").AnyTimes()

	s.store = memory.New()
	s.categories = s.store.Categories()
	s.guides = s.store.Guides()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.service = s.newService(config.SyncConfig{}, nil)
}

func (s *reconcileSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *reconcileSuite) newService(cfg config.SyncConfig, publisher Publisher) *SyncService {
	return NewSyncService(
		s.source,
		s.categories,
		s.guides,
		s.store.Runs(),
		s.store,
		&memory.Locker{},
		publisher,
		s.logger,
		cfg,
	)
}

func (s *reconcileSuite) syncCategories(items ...domain.RemoteCategory) domain.PhaseReport {
	s.source.EXPECT().ListCategories(gomock.Any()).Return(items, nil)
	return s.service.syncCategories(context.Background(), s.logger)
}

func (s *reconcileSuite) syncGuides(summaries ...domain.ArticleSummary) domain.PhaseReport {
	s.source.EXPECT().ListArticles(gomock.Any()).Return(summaries, nil)
	return s.service.syncGuides(context.Background(), s.logger)
}

func (s *reconcileSuite) category(name string) domain.Category {
	all, err := s.store.Categories().List(context.Background())
	s.Require().NoError(err)
	for _, c := range all {
		if c.Name == name {
			return c
		}
	}
	s.FailNow("category not found", name)
	return domain.Category{}
}

func (s *reconcileSuite) allCategories() []domain.Category {
	all, err := s.store.Categories().List(context.Background())
	s.Require().NoError(err)
	return all
}

func (s *reconcileSuite) guide(externalID int64) *domain.Guide {
	g, err := s.store.Guides().GetByExternalID(context.Background(), externalID)
	s.Require().NoError(err)
	return g
}

func (s *reconcileSuite) assertAcyclic() {
	byID := make(map[int64]domain.Category)
	for _, c := range s.allCategories() {
		byID[c.ID] = c
	}
	for _, c := range byID {
		seen := map[int64]bool{c.ID: true}
		for p := c.ParentID; p != nil; p = byID[*p].ParentID {
			s.Require().Contains(byID, *p, "dangling parent of %q", c.Name)
			s.Require().False(seen[*p], "cycle through %q", c.Name)
			seen[*p] = true
		}
	}
}

func remote(id int64, name string, groupID int64) domain.RemoteCategory {
	return domain.RemoteCategory{ID: id, Name: name, GroupID: groupID}
}

func summary(id int64, edited string) domain.ArticleSummary {
	return domain.ArticleSummary{ID: id, DateEdited: domain.Watermark(edited)}
}

func detail(id int64, name string, refs ...domain.CategoryRef) *domain.ArticleDetail {
	return &domain.ArticleDetail{
		ID:          id,
		Name:        name,
		Description: "How to " + name,
		Categories:  refs,
	}
}

var errConnReset = errors.New("connection reset by peer")

// failingCategoryStore rejects inserts of one category name.
type failingCategoryStore struct {
	*memory.CategoryStore
	failName string
}

func (f failingCategoryStore) Insert(ctx context.Context, category *domain.Category) (int64, error) {
	if category.Name == f.failName {
		return 0, errors.New("insert rejected")
	}
	return f.CategoryStore.Insert(ctx, category)
}

// failingGuideStore rejects category assignment for every guide.
type failingGuideStore struct {
	*memory.GuideStore
}

func (f failingGuideStore) SetCategories(ctx context.Context, guideID int64, categoryIDs []int64) error {
	return errors.New("set categories rejected")
}
