// Command import ingests a marketplace offer dump (CSV or XLSX) into the
// offer inventory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/jonesrussell/gobacklinks/internal/bootstrap"
	"github.com/jonesrussell/gobacklinks/internal/config"
	"github.com/jonesrussell/gobacklinks/internal/database"
	"github.com/jonesrussell/gobacklinks/internal/events"
	"github.com/jonesrussell/gobacklinks/internal/fx"
	"github.com/jonesrussell/gobacklinks/internal/importer"
	"github.com/jonesrussell/gobacklinks/internal/ingest"
	"github.com/jonesrussell/gobacklinks/internal/logger"
	"github.com/jonesrussell/gobacklinks/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "config.yml", "Path to configuration file")
		filePath    = flag.String("file", "", "Offer file to import (.csv or .xlsx)")
		name        = flag.String("marketplace", "", "Marketplace display name")
		slug        = flag.String("slug", "", "Marketplace slug")
		region      = flag.String("region", "", "Marketplace region (optional)")
		domainCol   = flag.String("domain-column", "domain", "Column holding the domain")
		priceCol    = flag.String("price-column", "price", "Column holding the price")
		currencyCol = flag.String("currency-column", "", "Column holding the currency (optional)")
		urlCol      = flag.String("url-column", "", "Column holding the listing URL (optional)")
		contentCol  = flag.String("content-column", "", "Column holding the content-included flag (optional)")
		dofollowCol = flag.String("dofollow-column", "", "Column holding the dofollow flag (optional)")
		currency    = flag.String("currency", "", "Default currency when no currency column is mapped")
		dofollow    = flag.Bool("dofollow", true, "Default dofollow flag")
		content     = flag.Bool("content", false, "Default content-included flag")
	)
	flag.Parse()

	if *filePath == "" || *name == "" || *slug == "" {
		flag.Usage()
		return fmt.Errorf("-file, -marketplace, and -slug are required")
	}

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Debug)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.New(cfg, log)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() { _ = db.Close() }()

	f, err := os.Open(*filePath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	table, err := importer.ReadFile(*filePath, f)
	if err != nil {
		return fmt.Errorf("parse file: %w", err)
	}

	var sink ingest.Publisher
	if redisClient := bootstrap.SetupRedis(cfg, log); redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		pub := events.NewPublisher(redisClient, log)
		// Flush in-flight events before the process exits.
		defer func() { _ = pub.Close() }()
		sink = pub
	}

	store := repository.NewStore(db.DB(), log)
	resolver := fx.NewResolver(store.FXRates, fx.NewClient(cfg.FX.APIBaseURL, cfg.FX.Timeout), log)
	pipeline := ingest.NewPipeline(store, store.Marketplaces, resolver, sink, log)

	ingestCfg := ingest.Config{
		MarketplaceName: *name,
		MarketplaceSlug: *slug,
		Columns: ingest.ColumnMapping{
			Domain:   *domainCol,
			Price:    *priceCol,
			Currency: *currencyCol,
			URL:      *urlCol,
			Content:  *contentCol,
			Dofollow: *dofollowCol,
		},
		Defaults: ingest.Defaults{
			Currency: defaultCurrency(*currency, cfg),
			Content:  *content,
			Dofollow: *dofollow,
		},
		BatchSize: cfg.Ingest.BatchSize,
	}
	if *region != "" {
		ingestCfg.MarketplaceRegion = region
	}

	result, err := pipeline.Run(context.Background(), table, ingestCfg)
	printResult(result)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	return nil
}

func defaultCurrency(flagValue string, cfg *config.Config) string {
	if flagValue != "" {
		return flagValue
	}
	return cfg.Ingest.CurrencyDefault
}

func printResult(result *ingest.Result) {
	if result == nil {
		return
	}
	fmt.Printf("Processed %d rows in %s\n", result.TotalRows, result.ProcessingTime.Round(0))
	fmt.Printf("  successful: %d\n", result.Successful)
	fmt.Printf("  failed:     %d\n", result.Failed)
	fmt.Printf("  skipped:    %d\n", result.Skipped)
	fmt.Printf("  new domains: %d, new offers: %d, updated offers: %d\n",
		result.NewDomains, result.NewOffers, result.UpdatedOffers)
	for _, msg := range result.Errors {
		fmt.Printf("  error: %s\n", msg)
	}
}
