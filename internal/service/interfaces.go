package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"guide_sync/internal/domain"
)

type CategoryStore interface {
	List(ctx context.Context) ([]domain.Category, error)
	Insert(ctx context.Context, category *domain.Category) (int64, error)
	Update(ctx context.Context, category *domain.Category) error
	Delete(ctx context.Context, id int64) error
}

type GuideStore interface {
	List(ctx context.Context) ([]domain.Guide, error)
	Insert(ctx context.Context, guide *domain.Guide) (int64, error)
	Update(ctx context.Context, guide *domain.Guide) error
	Delete(ctx context.Context, id int64) error
	SetCategories(ctx context.Context, guideID int64, categoryIDs []int64) error
}

type SyncRunStore interface {
	Record(ctx context.Context, run *domain.SyncRun) error
}

type Source interface {
	Name() string
	ListCategories(ctx context.Context) ([]domain.RemoteCategory, error)
	ListArticles(ctx context.Context) ([]domain.ArticleSummary, error)
	GetArticle(ctx context.Context, id int64) (*domain.ArticleDetail, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker guards a sync run. release must be called once acquired is true.
type Locker interface {
	TryLock(ctx context.Context) (release func(), acquired bool, err error)
}

type Publisher interface {
	Publish(ctx context.Context, action domain.GuideAction, guide *domain.Guide) error
}
