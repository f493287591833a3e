package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/gobacklinks/internal/domains"
	"github.com/jonesrussell/gobacklinks/internal/logger"
	"github.com/jonesrussell/gobacklinks/internal/metadata"
	"github.com/jonesrussell/gobacklinks/internal/models"
	"github.com/jonesrussell/gobacklinks/internal/repository"
)

// DomainReader resolves normalized domain keys read-only.
type DomainReader interface {
	ResolveExisting(ctx context.Context, keys []string) ([]models.Domain, error)
}

// OfferReader fetches a domain's offers.
type OfferReader interface {
	ForDomains(ctx context.Context, domainIDs []int64, filters repository.OfferFilters) ([]models.OfferDetail, error)
	BestPerDomain(ctx context.Context, domainIDs []int64) ([]models.OfferDetail, error)
}

// PreviewSource fetches homepage metadata for a domain.
type PreviewSource interface {
	Extract(ctx context.Context, domain string) (*metadata.Preview, error)
}

type DomainHandler struct {
	domains DomainReader
	offers  OfferReader
	preview PreviewSource
	logger  logger.Logger
}

func NewDomainHandler(domainReader DomainReader, offerReader OfferReader, preview PreviewSource, log logger.Logger) *DomainHandler {
	return &DomainHandler{
		domains: domainReader,
		offers:  offerReader,
		preview: preview,
		logger:  log,
	}
}

// Offers handles GET /api/v1/domains/:domain/offers.
func (h *DomainHandler) Offers(c *gin.Context) {
	key, err := domains.Normalize(c.Param("domain"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid domain"})
		return
	}

	resolved, err := h.domains.ResolveExisting(c.Request.Context(), []string{key})
	if err != nil {
		h.logger.Error("Failed to resolve domain",
			logger.String("domain", key),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve domain"})
		return
	}
	if len(resolved) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Domain not found"})
		return
	}

	var details []models.OfferDetail
	if c.Query("best") == "true" {
		details, err = h.offers.BestPerDomain(c.Request.Context(), []int64{resolved[0].ID})
	} else {
		details, err = h.offers.ForDomains(c.Request.Context(), []int64{resolved[0].ID}, repository.OfferFilters{})
	}
	if err != nil {
		h.logger.Error("Failed to load offers",
			logger.String("domain", key),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load offers"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"domain": resolved[0],
		"offers": details,
		"count":  len(details),
	})
}

// Preview handles GET /api/v1/domains/:domain/preview.
func (h *DomainHandler) Preview(c *gin.Context) {
	key, err := domains.Normalize(c.Param("domain"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid domain"})
		return
	}

	preview, err := h.preview.Extract(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Preview timed out"})
			return
		}
		h.logger.Debug("Preview extraction failed",
			logger.String("domain", key),
			logger.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not fetch preview"})
		return
	}

	c.JSON(http.StatusOK, preview)
}
