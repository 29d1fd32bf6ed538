package halo

import "encoding/json"

// FAQList is one entry of GET /FAQLists.
type FAQList struct {
	ID        int64   `json:"id"`
	Name      *string `json:"name"`
	GroupID   *int64  `json:"group_id"`
	GroupName *string `json:"group_name"`
	Sequence  *int    `json:"sequence"`
}

// ArticleListResponse is the body of GET /KBArticle.
type ArticleListResponse struct {
	Articles []ArticleSummary `json:"articles"`
}

type ArticleSummary struct {
	ID         int64   `json:"id"`
	DateEdited *string `json:"date_edited"`
}

// ArticleDetail is the body of GET /KBArticle/{id}?includedetails=true.
type ArticleDetail struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Inactive        bool            `json:"inactive"`
	Description     *string         `json:"description"`
	DescriptionHTML *string         `json:"description_html"`
	Resolution      *string         `json:"resolution"`
	ResolutionHTML  *string         `json:"resolution_html"`
	ViewCount       *int            `json:"view_count"`
	UsefulCount     *int            `json:"useful_count"`
	NotUsefulCount  *int            `json:"notuseful_count"`
	NextReviewDate  *string         `json:"next_review_date"`
	KBTags          json.RawMessage `json:"kb_tags"`
	FAQLists        []FAQListRef    `json:"faqlists"`
}

type FAQListRef struct {
	ID   int64   `json:"id"`
	Name *string `json:"name"`
}
