package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/gobacklinks/internal/logger"
	"github.com/jonesrussell/gobacklinks/internal/lookup"
	"github.com/jonesrussell/gobacklinks/internal/quota"
	"github.com/jonesrussell/gobacklinks/internal/repository"
)

// Searcher runs lookups. Implemented by lookup.Aggregator.
type Searcher interface {
	Search(ctx context.Context, req lookup.Request) (*lookup.Response, error)
}

// StatsSource serves inventory-wide stats. Implemented by the offer
// repository.
type StatsSource interface {
	Stats(ctx context.Context) (*repository.LookupStats, error)
}

type LookupHandler struct {
	searcher Searcher
	stats    StatsSource
	quota    quota.Service
	logger   logger.Logger
}

// NewLookupHandler creates the lookup handler. quotaService may be nil, in
// which case searches are not gated.
func NewLookupHandler(searcher Searcher, stats StatsSource, quotaService quota.Service, log logger.Logger) *LookupHandler {
	return &LookupHandler{
		searcher: searcher,
		stats:    stats,
		quota:    quotaService,
		logger:   log,
	}
}

// Search handles POST /api/v1/lookup.
func (h *LookupHandler) Search(c *gin.Context) {
	var req lookup.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid request body",
			logger.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	userID, plan := callerIdentity(c)
	if h.quota != nil && userID != "" {
		allowed, msg, err := h.quota.CanPerformSearch(c.Request.Context(), userID, plan)
		if err != nil {
			h.logger.Warn("Quota check degraded",
				logger.String("user_id", userID),
				logger.Error(err),
			)
		}
		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": msg})
			return
		}
	}

	resp, err := h.searcher.Search(c.Request.Context(), req)
	if errors.Is(err, lookup.ErrNoValidDomains) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No valid domains to search"})
		return
	}
	if err != nil {
		h.logger.Error("Lookup failed",
			logger.Int("domains", len(req.Domains)),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lookup failed"})
		return
	}

	if h.quota != nil && userID != "" {
		query := strings.Join(req.Domains, ", ")
		if err := h.quota.RecordSearch(c.Request.Context(), userID, query, resp.Summary.TotalOffers); err != nil {
			h.logger.Warn("Failed to record search",
				logger.String("user_id", userID),
				logger.Error(err),
			)
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Stats handles GET /api/v1/lookup/stats.
func (h *LookupHandler) Stats(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load lookup stats",
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// callerIdentity reads the caller's id and plan from request headers. Auth
// itself is handled upstream; these headers are trusted as-is.
func callerIdentity(c *gin.Context) (string, quota.Plan) {
	userID := c.GetHeader("X-User-ID")
	plan := quota.Plan(strings.ToLower(c.GetHeader("X-User-Plan")))
	if plan == "" {
		plan = quota.PlanFree
	}
	return userID, plan
}
