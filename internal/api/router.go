package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/gobacklinks/internal/handlers"
	"github.com/jonesrussell/gobacklinks/internal/logger"
	"github.com/jonesrussell/gobacklinks/internal/lookup"
	"github.com/jonesrussell/gobacklinks/internal/metadata"
	"github.com/jonesrussell/gobacklinks/internal/quota"
	"github.com/jonesrussell/gobacklinks/internal/repository"
)

const (
	corsMaxAgeHours = 12
)

// Deps carries everything the router needs.
type Deps struct {
	Store        *repository.Store
	Aggregator   *lookup.Aggregator
	Quota        quota.Service
	Preview      *metadata.Extractor
	AllowOrigins []string
	Logger       logger.Logger
}

func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()

	// CORS middleware - must be first
	router.Use(cors.New(cors.Config{
		AllowOrigins: deps.AllowOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Content-Length", "Accept-Encoding",
			"X-CSRF-Token", "Authorization", "accept", "origin",
			"Cache-Control", "X-Requested-With", "X-User-ID", "X-User-Plan",
		},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           corsMaxAgeHours * time.Hour,
	}))

	// Middleware
	router.Use(ginLogger(deps.Logger))
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1
	v1 := router.Group("/api/v1")

	lookupHandler := handlers.NewLookupHandler(deps.Aggregator, deps.Store.Offers, deps.Quota, deps.Logger)
	v1.POST("/lookup", lookupHandler.Search)
	v1.GET("/lookup/stats", lookupHandler.Stats)

	marketplaceHandler := handlers.NewMarketplaceHandler(deps.Store.Marketplaces, deps.Logger)
	marketplaces := v1.Group("/marketplaces")
	marketplaces.GET("", marketplaceHandler.List)
	marketplaces.GET("/:slug", marketplaceHandler.GetBySlug)
	marketplaces.GET("/:slug/stats", marketplaceHandler.Stats)

	domainHandler := handlers.NewDomainHandler(deps.Store.Domains, deps.Store.Offers, deps.Preview, deps.Logger)
	domainsGroup := v1.Group("/domains")
	domainsGroup.GET("/:domain/offers", domainHandler.Offers)
	domainsGroup.GET("/:domain/preview", domainHandler.Preview)

	return router
}

func ginLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		log.Info("HTTP request",
			logger.String("method", method),
			logger.String("path", path),
			logger.Int("status_code", statusCode),
			logger.String("client_ip", c.ClientIP()),
			logger.Duration("duration", duration),
		)
	}
}
