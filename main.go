package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"dealmatch/api"
	"dealmatch/classifier"
	"dealmatch/config"
	"dealmatch/logging"
	"dealmatch/metrics"
	"dealmatch/normalizer"
	"dealmatch/scheduler"
	"dealmatch/services"
	"dealmatch/storage"
	"dealmatch/workers"
)

var (
	digestNow  = flag.Bool("digest", false, "Build and dispatch digests once and exit")
	ingestFile = flag.String("ingest", "", "Normalize a scraped results page and score it for all dealers")
	source     = flag.String("source", "auction_house_a", "Source id used with -ingest")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, logFile, err := logging.Setup(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	log.Info().Str("env", cfg.AppEnv).Int("plans", len(cfg.Plans)).Msg("starting dealmatch")

	metrics.Register(prometheus.DefaultRegisterer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgStore, err := storage.NewPostgresStore(ctx, cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Postgres")
	}
	defer pgStore.Close()

	redisStore, err := storage.NewRedisStore(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer redisStore.Close()

	journal, err := storage.NewSQLiteJournal(cfg.JournalDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open interaction journal")
	}
	defer journal.Close()

	var viewCounter services.ViewCounterStore = redisStore
	if cfg.QuotaBackend == "postgres" {
		viewCounter = pgStore
	}

	learner := services.NewLearner(pgStore, log)
	matchService := services.NewMatchService(pgStore, learner, journal, log)
	quotaGuard := services.NewQuotaGuard(viewCounter, cfg.Timezone, log)
	digestService := services.NewDigestService(pgStore, redisStore, &services.LogDispatcher{Log: log}, cfg.Digest.MaxItems, log)

	log.Info().Msg("services initialized")

	// One-shot commands
	if *ingestFile != "" {
		if err := ingest(ctx, matchService, pgStore, *ingestFile, *source, log); err != nil {
			log.Fatal().Err(err).Msg("ingest failed")
		}
		return
	}
	if *digestNow {
		if err := digestService.RunDaily(ctx, time.Now().In(cfg.Timezone)); err != nil {
			log.Fatal().Err(err).Msg("digest run failed")
		}
		return
	}

	// Daemon mode
	sched := scheduler.New(cfg, digestService, log)
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	journalWorker := workers.NewJournalWorker(journal, matchService, log)
	go journalWorker.Run(ctx, cfg.Journal.BatchSize, cfg.Journal.Interval)
	log.Info().Msg("journal worker started")

	server := api.NewServer(cfg, pgStore, matchService, quotaGuard, classifier.NewSimple(), log)
	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.HTTPPort)); err != nil {
			log.Error().Err(err).Msg("api server stopped")
			cancel()
		}
	}()

	log.Info().Msg("daemon running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sched.Stop()
}

// ingest parses a scraped results page, persists the listings, and fans
// each one out to every dealer with saved preferences.
func ingest(ctx context.Context, matches *services.MatchService, store *storage.PostgresStore, path, source string, log zerolog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	raws, err := normalizer.ParseLotPage(f)
	if err != nil {
		return fmt.Errorf("failed to parse lot page: %w", err)
	}
	log.Info().Int("count", len(raws)).Str("source", source).Msg("parsed listings")

	for _, raw := range raws {
		listing, err := normalizer.Normalize(&raw, source)
		if err != nil {
			log.Warn().Err(err).Str("source_id", raw.SourceID).Msg("skipping unparseable listing")
			continue
		}

		// Re-scrapes of a known lot keep their listing id so existing matches
		// stay attached.
		existing, err := store.GetListingBySource(ctx, source, listing.SourceID)
		if err != nil {
			return fmt.Errorf("failed to look up listing %s: %w", listing.SourceID, err)
		}
		if existing != nil {
			listing.ID = existing.ID
			listing.CreatedAt = existing.CreatedAt
		}

		if err := store.UpsertListing(ctx, listing); err != nil {
			return fmt.Errorf("failed to store listing %s: %w", listing.ID, err)
		}
		scored, err := matches.ProcessListingForAllDealers(ctx, listing)
		if err != nil {
			log.Error().Err(err).Str("listing_id", listing.ID.String()).Msg("failed to score listing")
			continue
		}
		log.Debug().Str("listing_id", listing.ID.String()).Int("dealers", scored).Msg("listing scored")
	}
	return nil
}
