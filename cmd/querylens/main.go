// QueryLens slow-query analyzer
// Groups profiled MongoDB operations by structural shape and requests
// optimization advice once per group
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nainya/querylens/internal/advisor"
	"github.com/nainya/querylens/internal/analyzer"
	"github.com/nainya/querylens/internal/config"
	"github.com/nainya/querylens/internal/logger"
	"github.com/nainya/querylens/internal/metafetch"
	"github.com/nainya/querylens/internal/metrics"
	"github.com/nainya/querylens/internal/profiler"
	"github.com/nainya/querylens/internal/server"
	"github.com/nainya/querylens/pkg/metacache"
)

var (
	mongoURI    = flag.String("uri", "", "MongoDB connection URI (overrides MONGO_URI)")
	database    = flag.String("db", "", "Database to analyze (overrides MONGO_DB_NAME)")
	minDuration = flag.Duration("min-duration", 0, "Minimum operation duration (overrides MIN_DURATION_MS)")
	maxGroups   = flag.Int("max-groups", -1, "Cap on analyzed groups, 0 = unlimited (overrides MAX_GROUPS)")
	concurrency = flag.Int("concurrency", 0, "Concurrent recommendation requests")
	sampleSize  = flag.Int("sample-size", 0, "Documents sampled per collection schema")
	obsPort     = flag.Int("obs-port", 0, "Observability HTTP port")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	logPretty   = flag.Bool("pretty", false, "Pretty-print logs")
)

func main() {
	flag.Parse()

	cfg := config.FromEnv()
	applyFlags(&cfg)

	log.Printf("QueryLens Slow Query Analyzer v1.0.0")
	log.Printf("Database: %s", cfg.Database)
	log.Printf("Minimum duration: %s", cfg.MinDuration)

	logger.InitGlobalLogger(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	appLog := logger.GetGlobalLogger()
	m := metrics.NewMetrics()

	// Observability endpoints live for the process lifetime
	obs := server.NewObservabilityServer(cfg.ObservabilityPort, appLog)
	go func() {
		if err := obs.Start(); err != nil {
			appLog.Error("Observability server stopped").Err(err).Send()
		}
	}()

	ctx := context.Background()
	client, err := connect(ctx, cfg.MongoURI)
	if err != nil {
		appLog.Fatal("Failed to connect to MongoDB").Str("uri", cfg.MongoURI).Err(err).Send()
	}
	defer func() {
		if err := client.Disconnect(ctx); err != nil {
			appLog.Warn("Disconnect failed").Err(err).Send()
		}
	}()
	appLog.Info("Connected to MongoDB").Str("database", cfg.Database).Send()

	db := client.Database(cfg.Database)

	reader := profiler.NewReader(db, appLog)
	records, unparsed, err := reader.SlowQueries(ctx, cfg.MinDuration)
	if err != nil {
		appLog.Fatal("Failed to read slow queries").Err(err).Send()
	}
	if len(records) == 0 {
		fmt.Println("No slow queries found in system.profile. Ensure profiling is enabled.")
		return
	}

	cache := metacache.New(metafetch.NewSampler(db, cfg.SampleSize, appLog, m))
	rec := advisor.NewClient(advisor.Config{
		Endpoint: cfg.AdvisorEndpoint,
		APIKey:   cfg.AdvisorAPIKey,
		Model:    cfg.AdvisorModel,
		Timeout:  cfg.AdvisorTimeout,
	}, appLog, m)

	a := analyzer.New(cache, rec, metafetch.NewExplainer(db, appLog), analyzer.Options{
		MaxGroups:   cfg.MaxGroups,
		Concurrency: cfg.Concurrency,
	}, appLog, m)

	report, err := a.Run(ctx, records)
	if err != nil {
		appLog.Fatal("Analysis run failed").Err(err).Send()
	}

	printReport(report, unparsed)

	if err := obs.Shutdown(ctx); err != nil {
		appLog.Warn("Observability shutdown failed").Err(err).Send()
	}
}

func applyFlags(cfg *config.Config) {
	if *mongoURI != "" {
		cfg.MongoURI = *mongoURI
	}
	if *database != "" {
		cfg.Database = *database
	}
	if *minDuration > 0 {
		cfg.MinDuration = *minDuration
	}
	if *maxGroups >= 0 {
		cfg.MaxGroups = *maxGroups
	}
	if *concurrency > 0 {
		cfg.Concurrency = *concurrency
	}
	if *sampleSize > 0 {
		cfg.SampleSize = *sampleSize
	}
	if *obsPort > 0 {
		cfg.ObservabilityPort = *obsPort
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logPretty {
		cfg.LogPretty = true
	}
}

func connect(ctx context.Context, uri string) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return client, nil
}

func printReport(report *analyzer.Report, unparsed int) {
	fmt.Printf("\nRun %s: %d records in %d groups (%d skipped, %d unparsable), %s\n",
		report.RunID, report.TotalRecords, report.GroupCount,
		report.SkippedRecords, unparsed, report.Elapsed.Round(time.Millisecond))
	fmt.Printf("Metadata cache: %d hits, %d misses\n\n",
		report.CacheStats.Hits, report.CacheStats.Misses)

	for i, r := range report.Results {
		g := r.Group
		fmt.Printf("%s Group %d/%d %s\n", strings.Repeat("=", 10), i+1, len(report.Results), strings.Repeat("=", 10))
		fmt.Printf("Namespace:  %s\n", g.Representative.Namespace)
		fmt.Printf("Operation:  %s\n", g.Representative.Kind)
		fmt.Printf("Signature:  %s\n", g.Signature)
		fmt.Printf("Impact:     %d queries, min %dms max %dms avg %.1fms\n",
			g.Count, g.MinMS, g.MaxMS, g.AvgMS())

		if r.Err != nil {
			fmt.Printf("\nRecommendation unavailable: %v\n\n", r.Err)
			continue
		}
		fmt.Printf("\n--- Optimization Recommendations ---\n%s\n\n", r.Recommendation)
	}

	fmt.Println("QueryLens analysis finished.")
}
