package domain

import "time"

type GuideStatus string

const (
	StatusPublish GuideStatus = "publish"
	StatusDraft   GuideStatus = "draft"
)

// StatusFromInactive maps the remote inactive flag onto a guide status.
func StatusFromInactive(inactive bool) GuideStatus {
	if inactive {
		return StatusDraft
	}
	return StatusPublish
}

type Guide struct {
	ID             int64       `db:"id" json:"id"`
	ExternalID     int64       `db:"external_id" json:"external_id"`
	Title          string      `db:"title" json:"title"`
	Body           string      `db:"body" json:"body"`
	Excerpt        string      `db:"excerpt" json:"excerpt"`
	Status         GuideStatus `db:"status" json:"status"`
	LastSyncedDate Watermark   `db:"last_synced_date" json:"last_synced_date"`
	ViewCount      int         `db:"view_count" json:"view_count"`
	UsefulCount    int         `db:"useful_count" json:"useful_count"`
	NotUsefulCount int         `db:"notuseful_count" json:"notuseful_count"`
	NextReviewDate string      `db:"next_review_date" json:"next_review_date"`
	Tags           string      `db:"tags" json:"tags"`
	CategoryIDs    []int64     `db:"-" json:"category_ids"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

func (g *Guide) IsPublished() bool {
	return g.Status == StatusPublish
}

// ArticleSummary is one entry of the remote article listing.
type ArticleSummary struct {
	ID         int64
	DateEdited Watermark
}

// CategoryRef is a category reference carried by an article detail.
type CategoryRef struct {
	ID   int64
	Name string
}

// ArticleDetail is the full remote article as returned by the detail endpoint.
type ArticleDetail struct {
	ID              int64
	Name            string
	Inactive        bool
	Description     string
	DescriptionHTML string
	Resolution      string
	ResolutionHTML  string
	ViewCount       int
	UsefulCount     int
	NotUsefulCount  int
	NextReviewDate  string
	Tags            string
	Categories      []CategoryRef
}

// GuideAction is the kind of change published for a guide.
type GuideAction string

const (
	ActionCreate GuideAction = "create"
	ActionUpdate GuideAction = "update"
	ActionDelete GuideAction = "delete"
)
