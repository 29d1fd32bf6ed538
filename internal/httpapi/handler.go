// Package httpapi exposes the mirror and the manual sync trigger over HTTP.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"guide_sync/internal/browse"
	"guide_sync/internal/domain"
)

type Syncer interface {
	Sync(ctx context.Context) (*domain.SyncReport, error)
}

type CategoryFinder interface {
	GetByRemoteID(ctx context.Context, remoteID int64) (*domain.Category, error)
}

type GuideFinder interface {
	GetByExternalID(ctx context.Context, externalID int64) (*domain.Guide, error)
}

type RunFinder interface {
	Last(ctx context.Context) (*domain.SyncRun, error)
}

type Router interface {
	Products(ctx context.Context, guide *domain.Guide) ([]string, error)
	Permalinks(ctx context.Context, guide *domain.Guide) ([]string, error)
	Validate(ctx context.Context, product string, externalID int64) (bool, error)
}

type TreeBuilder interface {
	Tree(ctx context.Context, opts browse.Options) ([]*browse.Node, error)
}

type Handler struct {
	syncer     Syncer
	categories CategoryFinder
	guides     GuideFinder
	runs       RunFinder
	router     Router
	browser    TreeBuilder
	adminToken string
	// syncTimeout bounds a manually triggered run. Zero means no bound.
	syncTimeout time.Duration
	logger      *slog.Logger
}

func NewHandler(
	syncer Syncer,
	categories CategoryFinder,
	guides GuideFinder,
	runs RunFinder,
	router Router,
	browser TreeBuilder,
	adminToken string,
	syncTimeout time.Duration,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		syncer:     syncer,
		categories: categories,
		guides:     guides,
		runs:       runs,
		router:     router,
		browser:    browser,
		adminToken:  adminToken,
		syncTimeout: syncTimeout,
		logger:      logger,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	admin := r.Group("/admin", h.requireToken)
	{
		admin.POST("/sync", h.TriggerSync)
	}

	api := r.Group("/api")
	{
		api.GET("/categories/:remote_id", h.GetCategory)
		api.GET("/guides/:external_id", h.GetGuide)
		api.GET("/runs/last", h.LastRun)
	}

	// Product help center pages.
	r.GET("/:product/guides", h.BrowseGuides)
	r.GET("/:product/guides/:external_id", h.ProductGuide)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) requireToken(c *gin.Context) {
	if h.adminToken == "" {
		c.Next()
		return
	}
	token := c.GetHeader("X-Admin-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
		return
	}
	c.Next()
}

func (h *Handler) TriggerSync(c *gin.Context) {
	// The run outlives a client that disconnects.
	ctx := context.WithoutCancel(c.Request.Context())
	if h.syncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.syncTimeout)
		defer cancel()
	}

	report, err := h.syncer.Sync(ctx)
	if errors.Is(err, domain.ErrSyncInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("manual sync failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if report.Status() == domain.RunFailed {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{
		"status":  report.Status(),
		"message": report.Message(),
		"run_id":  report.RunID,
		"report":  report,
	})
}

func (h *Handler) GetCategory(c *gin.Context) {
	id, ok := idParam(c, "remote_id")
	if !ok {
		return
	}
	category, err := h.categories.GetByRemoteID(c.Request.Context(), id)
	if h.failed(c, err, "category not found") {
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *Handler) GetGuide(c *gin.Context) {
	id, ok := idParam(c, "external_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	guide, err := h.guides.GetByExternalID(ctx, id)
	if h.failed(c, err, "guide not found") {
		return
	}
	products, err := h.router.Products(ctx, guide)
	if h.failed(c, err, "") {
		return
	}
	links, err := h.router.Permalinks(ctx, guide)
	if h.failed(c, err, "") {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"guide":      guide,
		"products":   products,
		"permalinks": links,
	})
}

func (h *Handler) LastRun(c *gin.Context) {
	run, err := h.runs.Last(c.Request.Context())
	if h.failed(c, err, "no sync run recorded") {
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", run.Report)
}

func (h *Handler) BrowseGuides(c *gin.Context) {
	nodes, err := h.browser.Tree(c.Request.Context(), browse.Options{
		Product: c.Param("product"),
		Query:   c.Query("q"),
	})
	if h.failed(c, err, "") {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product":    c.Param("product"),
		"query":      c.Query("q"),
		"categories": nodes,
	})
}

func (h *Handler) ProductGuide(c *gin.Context) {
	id, ok := idParam(c, "external_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	valid, err := h.router.Validate(ctx, c.Param("product"), id)
	if h.failed(c, err, "") {
		return
	}
	if !valid {
		c.JSON(http.StatusNotFound, gin.H{"error": "guide not found"})
		return
	}

	guide, err := h.guides.GetByExternalID(ctx, id)
	if h.failed(c, err, "guide not found") {
		return
	}
	c.JSON(http.StatusOK, guide)
}

// failed writes the error response for err and reports whether it did.
func (h *Handler) failed(c *gin.Context, err error, notFound string) bool {
	if err == nil {
		return false
	}
	if notFound != "" && errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return true
	}
	h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	return true
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
