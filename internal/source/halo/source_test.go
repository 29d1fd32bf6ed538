package halo

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"guide_sync/internal/domain"
)

type SourceTestSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestSourceTestSuite(t *testing.T) {
	suite.Run(t, new(SourceTestSuite))
}

func (s *SourceTestSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func (s *SourceTestSuite) newSource(handler http.HandlerFunc) (*Source, func()) {
	server := httptest.NewServer(handler)
	src, err := New(Config{
		BaseURL:        server.URL + "/api/",
		ArticleCount:   50,
		Timeout:        time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, s.logger)
	s.Require().NoError(err)
	return src, server.Close
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (s *SourceTestSuite) TestListCategories() {
	src, closeFn := s.newSource(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("/api/FAQLists", r.URL.Path)
		s.Equal("true", r.URL.Query().Get("isportal"))
		writeJSON(w, `[{"id":1,"name":"General"},{"id":2,"name":"Billing","group_id":1,"sequence":3}]`)
	})
	defer closeFn()

	cats, err := src.ListCategories(context.Background())
	s.Require().NoError(err)
	s.Require().Len(cats, 2)

	s.Equal(int64(1), cats[0].ID)
	s.Equal("General", cats[0].Name)
	s.Equal(int64(0), cats[0].GroupID)
	s.Nil(cats[0].Sequence)

	s.Equal(int64(1), cats[1].GroupID)
	s.Require().NotNil(cats[1].Sequence)
	s.Equal(3, *cats[1].Sequence)
}

func (s *SourceTestSuite) TestListCategories_EmptyPayload() {
	src, closeFn := s.newSource(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[]`)
	})
	defer closeFn()

	_, err := src.ListCategories(context.Background())
	s.ErrorIs(err, ErrInvalidPayload)
}

func (s *SourceTestSuite) TestListCategories_WrongShape() {
	src, closeFn := s.newSource(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"id":1,"name":"General"}`)
	})
	defer closeFn()

	_, err := src.ListCategories(context.Background())
	s.ErrorIs(err, ErrInvalidPayload)
}

func (s *SourceTestSuite) TestListArticles() {
	src, closeFn := s.newSource(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("/api/KBArticle", r.URL.Path)
		s.Equal("50", r.URL.Query().Get("count"))
		s.Equal("0", r.URL.Query().Get("type"))
		s.Equal("true", r.URL.Query().Get("isportal"))
		writeJSON(w, `{"articles":[{"id":100,"date_edited":"2024-01-01"},{"id":101}]}`)
	})
	defer closeFn()

	articles, err := src.ListArticles(context.Background())
	s.Require().NoError(err)
	s.Equal([]domain.ArticleSummary{
		{ID: 100, DateEdited: "2024-01-01"},
		{ID: 101},
	}, articles)
}

func (s *SourceTestSuite) TestListArticles_MissingArticlesKey() {
	src, closeFn := s.newSource(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"record_count":0}`)
	})
	defer closeFn()

	_, err := src.ListArticles(context.Background())
	s.ErrorIs(err, ErrInvalidPayload)
}

func (s *SourceTestSuite) TestGetArticle() {
	src, closeFn := s.newSource(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("/api/KBArticle/100", r.URL.Path)
		s.Equal("true", r.URL.Query().Get("includedetails"))
		writeJSON(w, `{
			"id": 100,
			"name": " How to pay ",
			"inactive": false,
			"description_html": "<p>Pay here</p>",
			"resolution": null,
			"view_count": 7,
			"useful_count": 2,
			"next_review_date": "2025-01-01T00:00:00",
			"kb_tags": [{"text": "billing"}, "payments"],
			"faqlists": [{"id": 2, "name": "Billing"}]
		}`)
	})
	defer closeFn()

	detail, err := src.GetArticle(context.Background(), 100)
	s.Require().NoError(err)

	s.Equal("How to pay", detail.Name)
	s.False(detail.Inactive)
	s.Equal("<p>Pay here</p>", detail.DescriptionHTML)
	s.Empty(detail.Resolution)
	s.Equal(7, detail.ViewCount)
	s.Equal(2, detail.UsefulCount)
	s.Equal(0, detail.NotUsefulCount)
	s.Equal("billing, payments", detail.Tags)
	s.Equal([]domain.CategoryRef{{ID: 2, Name: "Billing"}}, detail.Categories)
}

func (s *SourceTestSuite) TestGetArticle_MissingRequiredFields() {
	src, closeFn := s.newSource(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"id": 100, "name": "No flag"}`)
	})
	defer closeFn()

	_, err := src.GetArticle(context.Background(), 100)
	s.ErrorIs(err, ErrInvalidPayload)
}

func (s *SourceTestSuite) TestGetArticle_EmptyName() {
	src, closeFn := s.newSource(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"id": 100, "name": "", "inactive": true}`)
	})
	defer closeFn()

	_, err := src.GetArticle(context.Background(), 100)
	s.ErrorIs(err, ErrInvalidPayload)
}

func (s *SourceTestSuite) TestRetriesTransientFailure() {
	var calls int32
	src, closeFn := s.newSource(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, `[{"id":1,"name":"General"}]`)
	})
	defer closeFn()

	cats, err := src.ListCategories(context.Background())
	s.Require().NoError(err)
	s.Len(cats, 1)
	s.Equal(int32(2), atomic.LoadInt32(&calls))
}

func (s *SourceTestSuite) TestDoesNotRetryClientError() {
	var calls int32
	src, closeFn := s.newSource(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})
	defer closeFn()

	_, err := src.GetArticle(context.Background(), 5)
	var httpErr *HTTPError
	s.Require().ErrorAs(err, &httpErr)
	s.Equal(http.StatusNotFound, httpErr.StatusCode)
	s.Equal(int32(1), atomic.LoadInt32(&calls))
}

func (s *SourceTestSuite) TestGivesUpAfterMaxAttempts() {
	var calls int32
	src, closeFn := s.newSource(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})
	defer closeFn()

	_, err := src.ListArticles(context.Background())
	s.ErrorContains(err, "after 3 attempts")
	s.Equal(int32(3), atomic.LoadInt32(&calls))
}

func (s *SourceTestSuite) TestDecodeTags() {
	s.Equal("", decodeTags(nil))
	s.Equal("", decodeTags(json.RawMessage(`null`)))
	s.Equal("a,b", decodeTags(json.RawMessage(`"a,b"`)))
	s.Equal("x, y", decodeTags(json.RawMessage(`[{"name":"x"},{"text":"y"}]`)))
}
