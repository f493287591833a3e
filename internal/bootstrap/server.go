package bootstrap

import (
	"fmt"
	"net/http"

	"github.com/jonesrussell/gobacklinks/internal/api"
	"github.com/jonesrussell/gobacklinks/internal/config"
	"github.com/jonesrussell/gobacklinks/internal/database"
	"github.com/jonesrussell/gobacklinks/internal/logger"
	"github.com/jonesrussell/gobacklinks/internal/lookup"
	"github.com/jonesrussell/gobacklinks/internal/metadata"
	"github.com/jonesrussell/gobacklinks/internal/quota"
	"github.com/jonesrussell/gobacklinks/internal/repository"
)

// SetupHTTPServer wires the repositories, aggregator, and handlers into an
// HTTP server.
func SetupHTTPServer(
	cfg *config.Config,
	db *database.DB,
	quotaService quota.Service,
	log logger.Logger,
) *http.Server {
	store := repository.NewStore(db.DB(), log)
	aggregator := lookup.NewAggregator(store.Domains, store.Offers, log)
	preview := metadata.NewExtractor(log)

	router := api.NewRouter(api.Deps{
		Store:        store,
		Aggregator:   aggregator,
		Quota:        quotaService,
		Preview:      preview,
		AllowOrigins: cfg.Server.CORSOrigins,
		Logger:       log,
	})

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
