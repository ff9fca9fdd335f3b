// Package api exposes the newsclean HTTP surface: rule management,
// article ingest and lookup, and aggregate statistics.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orbitwire/newsclean/internal/aggregate"
	"github.com/orbitwire/newsclean/internal/domain"
	"github.com/orbitwire/newsclean/internal/logging"
	"github.com/orbitwire/newsclean/internal/processor"
	"github.com/orbitwire/newsclean/internal/rules"
	"github.com/orbitwire/newsclean/internal/storage"
)

const maxTrendDays = 365

// Handler handles HTTP requests for the newsclean API.
type Handler struct {
	rules           *rules.Store
	store           storage.ArticleStore
	ingestor        *processor.Ingestor
	agg             *aggregate.Aggregator
	trendWindowDays int
	serviceName     string
	serviceVersion  string
	logger          logging.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	ruleStore *rules.Store,
	store storage.ArticleStore,
	ingestor *processor.Ingestor,
	agg *aggregate.Aggregator,
	trendWindowDays int,
	serviceName, serviceVersion string,
	logger logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		rules:           ruleStore,
		store:           store,
		ingestor:        ingestor,
		agg:             agg,
		trendWindowDays: trendWindowDays,
		serviceName:     serviceName,
		serviceVersion:  serviceVersion,
		logger:          logger,
	}
}

// ListRules handles GET /api/v1/rules.
func (h *Handler) ListRules(c *gin.Context) {
	all, version := h.rules.List()

	response := make([]RuleResponse, len(all))
	for i, rule := range all {
		response[i] = toRuleResponse(rule)
	}

	c.JSON(http.StatusOK, RulesListResponse{
		Rules:   response,
		Total:   len(response),
		Version: version,
	})
}

// CreateRule handles POST /api/v1/rules.
func (h *Handler) CreateRule(c *gin.Context) {
	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create rule request", logging.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	rule, err := h.rules.Create(c.Request.Context(), req.Pattern, req.Tag, enabled)
	if err != nil {
		h.ruleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toRuleResponse(*rule))
}

// UpdateRule handles PUT /api/v1/rules/:id.
func (h *Handler) UpdateRule(c *gin.Context) {
	id, ok := h.ruleID(c)
	if !ok {
		return
	}

	var req UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update rule request", logging.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch := domain.RulePatch{
		Pattern: req.Pattern,
		Tag:     req.Tag,
		Enabled: req.Enabled,
	}

	rule, err := h.rules.Update(c.Request.Context(), id, patch)
	if err != nil {
		h.ruleError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRuleResponse(*rule))
}

// DeleteRule handles DELETE /api/v1/rules/:id.
func (h *Handler) DeleteRule(c *gin.Context) {
	id, ok := h.ruleID(c)
	if !ok {
		return
	}

	if err := h.rules.Delete(c.Request.Context(), id); err != nil {
		h.ruleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "rule deleted"})
}

// IngestArticle handles POST /api/v1/articles. The article is stored and
// acknowledged immediately; classification runs asynchronously.
func (h *Handler) IngestArticle(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid ingest request", logging.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	createdAt := time.Now().UTC()
	if req.CreatedAt != nil {
		createdAt = *req.CreatedAt
	}

	id, err := h.ingestor.Submit(c.Request.Context(), req.RawText, createdAt)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyText) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "raw_text must not be empty"})
			return
		}
		h.logger.Error("ingest failed", logging.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store article"})
		return
	}

	c.JSON(http.StatusAccepted, IngestResponse{ID: id})
}

// GetArticle handles GET /api/v1/articles/:id.
func (h *Handler) GetArticle(c *gin.Context) {
	id := c.Param("id")

	article, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "article not found"})
			return
		}
		h.logger.Error("get article failed",
			logging.String("article_id", id),
			logging.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load article"})
		return
	}

	c.JSON(http.StatusOK, toArticleResponse(article))
}

// ListCleanedArticles handles GET /api/v1/articles?date=YYYY-MM-DD,
// returning cleaned articles created on the given day.
// With ?unsent=true it instead returns cleaned articles not yet
// delivered, the pull surface for the downstream sender.
func (h *Handler) ListCleanedArticles(c *gin.Context) {
	if c.Query("unsent") == "true" {
		h.listUnsent(c)
		return
	}

	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date query parameter is required"})
		return
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	articles, err := h.store.ListCleanedByDate(c.Request.Context(), date)
	if err != nil {
		h.logger.Error("list cleaned articles failed",
			logging.String("date", date),
			logging.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load articles"})
		return
	}

	response := make([]ArticleResponse, len(articles))
	for i, article := range articles {
		response[i] = toArticleResponse(article)
	}

	c.JSON(http.StatusOK, ArticlesListResponse{
		Articles: response,
		Total:    len(response),
	})
}

func (h *Handler) listUnsent(c *gin.Context) {
	articles, err := h.store.ListUnsentCleaned(c.Request.Context())
	if err != nil {
		h.logger.Error("list unsent articles failed", logging.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load articles"})
		return
	}

	response := make([]ArticleResponse, len(articles))
	for i, article := range articles {
		response[i] = toArticleResponse(article)
	}

	c.JSON(http.StatusOK, ArticlesListResponse{
		Articles: response,
		Total:    len(response),
	})
}

// GetStats handles GET /api/v1/stats.
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, toStatsResponse(h.agg.Snapshot()))
}

// GetTrend handles GET /api/v1/stats/trend?days=N.
func (h *Handler) GetTrend(c *gin.Context) {
	days := h.trendWindowDays
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxTrendDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 365"})
			return
		}
		days = parsed
	}

	points := h.agg.Trend(days, time.Now())
	if points == nil {
		points = []domain.TrendPoint{}
	}

	c.JSON(http.StatusOK, TrendResponse{Days: days, Trend: points})
}

// RecomputeStats handles POST /api/v1/stats/recompute, rebuilding the
// aggregates from the full article set. The rebuild is serialized
// against in-flight classification events.
func (h *Handler) RecomputeStats(c *gin.Context) {
	if err := h.agg.RecomputeFrom(c.Request.Context(), h.store.ListAll); err != nil {
		h.logger.Error("recompute failed", logging.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load articles"})
		return
	}

	c.JSON(http.StatusOK, toStatsResponse(h.agg.Snapshot()))
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.serviceName,
		"version": h.serviceVersion,
	})
}

func (h *Handler) ruleID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
		return 0, false
	}
	return id, true
}

// ruleError maps rule store errors onto HTTP statuses.
func (h *Handler) ruleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
	case domain.IsInvalidPattern(err), errors.Is(err, domain.ErrEmptyTag):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("rule operation failed", logging.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rule operation failed"})
	}
}
