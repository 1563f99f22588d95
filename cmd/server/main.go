package main

import (
	"bufio"
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"groupwarden/internal/database/boltstore"
	"groupwarden/internal/database/sqlitestore"
	"groupwarden/internal/dedup"
	"groupwarden/internal/events"
	"groupwarden/internal/guard"
	"groupwarden/internal/handlers"
	"groupwarden/internal/metrics"
	"groupwarden/internal/platform"
	"groupwarden/internal/policy"
	"groupwarden/internal/routing"
	"groupwarden/internal/tracing"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const registryCapacity = 10000

func main() {
	// Configure zerolog
	// Set log level from environment (default: info)
	logLevel := os.Getenv("LOG_LEVEL")
	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Use pretty console logging in development, JSON in production
	if os.Getenv("LOG_FORMAT") == "json" {
		// Production: JSON logs
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		// Development: pretty console logs
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	log.Info().Msg("Starting Groupwarden")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize tracing (no-op exporter errors are fatal; unset endpoint
	// falls back to the local collector default)
	tp, err := tracing.Init(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to shut down tracer provider")
		}
	}()

	// Get port from env or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "18910"
	}

	// Resolve the data directory for both databases
	dataDir := os.Getenv("GW_DATA_DIR")
	if dataDir == "" {
		base := os.Getenv("XDG_DATA_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to get home directory")
			}
			base = filepath.Join(home, ".local", "share")
		}
		dataDir = filepath.Join(base, "groupwarden")
	}

	// BoltDB holds group configs, the dedup registry, and closed instances
	store, err := boltstore.Open(boltstore.Options{
		Path: filepath.Join(dataDir, "groupwarden.db"),
	})
	if err != nil {
		log.Fatal().Err(err).Str("dir", dataDir).Msg("Failed to open database")
	}
	defer store.Close()

	// SQLite holds the append-only enforcement audit trail
	auditDB, err := sqlitestore.Open(filepath.Join(dataDir, "audit.db"))
	if err != nil {
		log.Fatal().Err(err).Str("dir", dataDir).Msg("Failed to open audit database")
	}
	defer auditDB.Close()
	auditStore := sqlitestore.NewAuditStore(auditDB)

	log.Info().Str("dir", dataDir).Msg("Databases opened")

	// Platform API client
	baseURL := os.Getenv("GW_API_BASE_URL")
	if baseURL == "" {
		log.Fatal().Msg("GW_API_BASE_URL is required")
	}
	authToken := os.Getenv("GW_AUTH_TOKEN")
	if authToken == "" {
		log.Fatal().Msg("GW_AUTH_TOKEN is required")
	}
	client := platform.NewClient(platform.ClientOptions{
		BaseURL:   baseURL,
		AuthToken: authToken,
	})

	// Authorized groups come from GW_GROUP_IDS (comma separated) or a file
	groupIDs := splitGroupIDs(os.Getenv("GW_GROUP_IDS"))
	if file := os.Getenv("GW_GROUPS_FILE"); file != "" {
		fromFile, err := loadAuthorizedGroups(file)
		if err != nil {
			log.Fatal().Err(err).Str("file", file).Msg("Failed to load authorized groups file")
		}
		groupIDs = append(groupIDs, fromFile...)
		log.Info().
			Int("count", len(fromFile)).
			Str("file", file).
			Strs("group_ids", fromFile).
			Msg("Loaded authorized groups from file")
	}
	if len(groupIDs) == 0 {
		log.Fatal().Msg("No authorized groups configured (set GW_GROUP_IDS or GW_GROUPS_FILE)")
	}
	log.Info().Strs("group_ids", groupIDs).Msg("Authorized groups configured")

	guardStore := store.GuardStore()
	registry := dedup.NewRegistry(guardStore, registryCapacity)
	rateLimit := guard.NewRateLimitState()
	bus := events.NewBus()

	// Rule evaluation engine, exposed through the scan and whitelist API
	engine := policy.NewEngine(store.ConfigStore(), client, policy.EngineOptions{})

	loop := guard.NewLoop(guard.LoopOptions{
		Groups:     guard.StaticGroups(groupIDs),
		Configs:    store.ConfigStore(),
		AuditLogs:  client,
		Roles:      client,
		Members:    client,
		Closer:     client,
		GuardState: guardStore,
		Registry:   registry,
		Trail:      auditStore,
		Bus:        bus,
		RateLimit:  rateLimit,
	})

	// Periodic metrics collection
	metrics.StartCollector(ctx, metrics.StatsSource{
		ProcessedEventCount: registry.Len,
		AuthorizedGroups:    func() int { return len(groupIDs) },
		AuditRecordCount: func() int {
			count, err := auditStore.Count(ctx)
			if err != nil {
				return 0
			}
			return count
		},
		GuardPaused: func() bool {
			paused, _ := loop.Paused()
			return paused
		},
	}, 30*time.Second)

	// Schedule enforcement passes
	schedule := os.Getenv("GW_GUARD_SCHEDULE")
	if schedule == "" {
		schedule = "@every 1m"
	}
	scheduler := cron.New()
	_, err = scheduler.AddFunc(schedule, func() {
		result, err := loop.RunPass(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Enforcement pass failed")
			return
		}
		if result.TotalClosed > 0 {
			bus.Publish("guard.pass_complete", result)
		}
	})
	if err != nil {
		log.Fatal().Err(err).Str("schedule", schedule).Msg("Invalid guard schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()
	log.Info().Str("schedule", schedule).Msg("Enforcement loop scheduled")

	// Initialize handlers with all dependencies via constructor injection
	h := handlers.NewHandler(engine, auditStore, rateLimit, guardStore, bus)

	// Setup router with middleware
	handler := routing.SetupRouter(routing.Config{
		Handlers: h,
		Logger:   log.Logger,
	})

	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: handler,
	}

	log.Info().
		Str("address", srv.Addr).
		Str("url", "http://localhost:"+port).
		Msg("Starting HTTP server")

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Shutdown complete")
}

// splitGroupIDs parses a comma separated group id list, dropping blanks.
func splitGroupIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// loadAuthorizedGroups reads group ids from a file, one per line.
// Blank lines and lines starting with # are skipped; entries without the
// grp_ prefix are ignored.
func loadAuthorizedGroups(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "grp_") {
			continue
		}
		ids = append(ids, line)
	}
	return ids, scanner.Err()
}
