package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/gobacklinks/internal/logger"
	"github.com/jonesrussell/gobacklinks/internal/models"
	"github.com/jonesrussell/gobacklinks/internal/repository"
)

// MarketplaceReader is the read surface the marketplace endpoints need.
type MarketplaceReader interface {
	List(ctx context.Context) ([]models.Marketplace, error)
	GetBySlug(ctx context.Context, slug string) (*models.Marketplace, error)
	Stats(ctx context.Context, marketplaceID int64) (*repository.MarketplaceStats, error)
}

type MarketplaceHandler struct {
	repo   MarketplaceReader
	logger logger.Logger
}

func NewMarketplaceHandler(repo MarketplaceReader, log logger.Logger) *MarketplaceHandler {
	return &MarketplaceHandler{
		repo:   repo,
		logger: log,
	}
}

func (h *MarketplaceHandler) List(c *gin.Context) {
	marketplaces, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list marketplaces",
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list marketplaces"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"marketplaces": marketplaces,
		"count":        len(marketplaces),
	})
}

func (h *MarketplaceHandler) GetBySlug(c *gin.Context) {
	slug := c.Param("slug")

	marketplace, err := h.repo.GetBySlug(c.Request.Context(), slug)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Marketplace not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load marketplace",
			logger.String("slug", slug),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load marketplace"})
		return
	}

	c.JSON(http.StatusOK, marketplace)
}

func (h *MarketplaceHandler) Stats(c *gin.Context) {
	slug := c.Param("slug")

	marketplace, err := h.repo.GetBySlug(c.Request.Context(), slug)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Marketplace not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load marketplace",
			logger.String("slug", slug),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load marketplace"})
		return
	}

	stats, err := h.repo.Stats(c.Request.Context(), marketplace.ID)
	if err != nil {
		h.logger.Error("Failed to load marketplace stats",
			logger.String("slug", slug),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"marketplace": marketplace,
		"stats":       stats,
	})
}
