package halo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"guide_sync/internal/domain"
)

const SourceName = "Halo Service Desk"

// Config holds Halo API client configuration.
type Config struct {
	BaseURL        string
	ArticleCount   int
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Source fetches FAQ lists and KB articles from the Halo API.
type Source struct {
	httpClient     *http.Client
	baseURL        string
	articleCount   int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	schemas        *schemas
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Source, error) {
	s, err := compileSchemas()
	if err != nil {
		return nil, fmt.Errorf("compile schemas: %w", err)
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		articleCount:   cfg.ArticleCount,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		schemas:        s,
		logger:         logger.With("source", "halo"),
	}, nil
}

func (s *Source) Name() string {
	return SourceName
}

// ListCategories fetches the full FAQ list snapshot.
func (s *Source) ListCategories(ctx context.Context) ([]domain.RemoteCategory, error) {
	body, err := s.get(ctx, "/FAQLists", url.Values{"isportal": {"true"}})
	if err != nil {
		return nil, err
	}
	if err := validate(s.schemas.faqLists, body); err != nil {
		return nil, fmt.Errorf("faq lists: %w", err)
	}

	var lists []FAQList
	if err := json.Unmarshal(body, &lists); err != nil {
		return nil, fmt.Errorf("decode faq lists: %w", err)
	}

	categories := make([]domain.RemoteCategory, 0, len(lists))
	for _, l := range lists {
		categories = append(categories, domain.RemoteCategory{
			ID:        l.ID,
			Name:      deref(l.Name),
			GroupID:   derefInt64(l.GroupID),
			GroupName: deref(l.GroupName),
			Sequence:  l.Sequence,
		})
	}

	s.logger.Debug("fetched faq lists", "count", len(categories))
	return categories, nil
}

// ListArticles fetches the article summaries used for change detection.
func (s *Source) ListArticles(ctx context.Context) ([]domain.ArticleSummary, error) {
	query := url.Values{
		"count":    {fmt.Sprintf("%d", s.articleCount)},
		"type":     {"0"},
		"isportal": {"true"},
	}
	body, err := s.get(ctx, "/KBArticle", query)
	if err != nil {
		return nil, err
	}
	if err := validate(s.schemas.articleList, body); err != nil {
		return nil, fmt.Errorf("article list: %w", err)
	}

	var resp ArticleListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode article list: %w", err)
	}

	summaries := make([]domain.ArticleSummary, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		summaries = append(summaries, domain.ArticleSummary{
			ID:         a.ID,
			DateEdited: domain.Watermark(deref(a.DateEdited)),
		})
	}

	s.logger.Debug("fetched article list", "count", len(summaries))
	return summaries, nil
}

// GetArticle fetches one article with details.
func (s *Source) GetArticle(ctx context.Context, id int64) (*domain.ArticleDetail, error) {
	body, err := s.get(ctx, fmt.Sprintf("/KBArticle/%d", id), url.Values{"includedetails": {"true"}})
	if err != nil {
		return nil, err
	}
	if err := validate(s.schemas.articleDetail, body); err != nil {
		return nil, fmt.Errorf("article %d: %w", id, err)
	}

	var d ArticleDetail
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("decode article %d: %w", id, err)
	}

	return s.transform(id, &d), nil
}

func (s *Source) transform(id int64, d *ArticleDetail) *domain.ArticleDetail {
	detail := &domain.ArticleDetail{
		ID:              id,
		Name:            strings.TrimSpace(d.Name),
		Inactive:        d.Inactive,
		Description:     deref(d.Description),
		DescriptionHTML: deref(d.DescriptionHTML),
		Resolution:      deref(d.Resolution),
		ResolutionHTML:  deref(d.ResolutionHTML),
		ViewCount:       derefInt(d.ViewCount),
		UsefulCount:     derefInt(d.UsefulCount),
		NotUsefulCount:  derefInt(d.NotUsefulCount),
		NextReviewDate:  deref(d.NextReviewDate),
		Tags:            decodeTags(d.KBTags),
	}

	for _, ref := range d.FAQLists {
		detail.Categories = append(detail.Categories, domain.CategoryRef{
			ID:   ref.ID,
			Name: strings.TrimSpace(deref(ref.Name)),
		})
	}

	return detail
}

// decodeTags flattens kb_tags, which is either a string or a list of
// strings or {"text": ...} objects, into a comma separated string.
func decodeTags(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return ""
	}

	tags := make([]string, 0, len(items))
	for _, item := range items {
		var tag string
		if err := json.Unmarshal(item, &tag); err == nil {
			tags = append(tags, tag)
			continue
		}
		var obj struct {
			Text string `json:"text"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(item, &obj); err == nil {
			if obj.Text != "" {
				tags = append(tags, obj.Text)
			} else if obj.Name != "" {
				tags = append(tags, obj.Name)
			}
		}
	}
	return strings.Join(tags, ", ")
}

func (s *Source) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := s.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body []byte
	var err error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		body, err = s.doRequest(ctx, u)
		if err == nil {
			return body, nil
		}

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && !httpErr.retryable() {
			return nil, err
		}
		if attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"url", u,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", s.maxAttempts, err)
}

func (s *Source) doRequest(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "GuideSync/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: u}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

func derefInt64(i *int64) int64 {
	if i == nil {
		return 0
	}
	return *i
}
