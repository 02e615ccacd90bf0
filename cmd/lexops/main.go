// Command lexops runs the notification-processing service: deadline
// calculation, plan derivation, review workflow and execution.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vento-labs/lexops/pkg/api"
	"github.com/vento-labs/lexops/pkg/audit"
	"github.com/vento-labs/lexops/pkg/config"
	"github.com/vento-labs/lexops/pkg/deadline"
	"github.com/vento-labs/lexops/pkg/docstore"
	"github.com/vento-labs/lexops/pkg/executor"
	"github.com/vento-labs/lexops/pkg/holiday"
	"github.com/vento-labs/lexops/pkg/observability"
	"github.com/vento-labs/lexops/pkg/plan"
	"github.com/vento-labs/lexops/pkg/policy"
	"github.com/vento-labs/lexops/pkg/service"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServer(stderr)
	}

	switch args[1] {
	case "server", "serve":
		return runServer(stderr)
	case "health":
		return runHealthCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: lexops <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  server   Run the HTTP service (default)")
	fmt.Fprintln(w, "  health   Check a running server over HTTP")
	fmt.Fprintln(w, "  help     Show this help")
}

func runServer(stderr io.Writer) int {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:  "lexops",
		Environment:  "production",
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   1.0,
		BatchTimeout: 5 * time.Second,
		Enabled:      cfg.OTelEnabled,
		Insecure:     true,
	})
	if err != nil {
		fmt.Fprintf(stderr, "observability init failed: %v\n", err)
		return 1
	}
	defer func() { _ = obs.Shutdown(context.Background()) }()

	store, db, err := openPlanStore(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "plan store init failed: %v\n", err)
		return 1
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}

	provider, err := buildHolidayProvider(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "holiday provider init failed: %v\n", err)
		return 1
	}

	calc := deadline.NewCalculator(provider, nil)
	builder := plan.NewBuilder(calc)

	docs, err := buildDocStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "document store init failed: %v\n", err)
		return 1
	}

	registry := executor.NewRegistry()
	registry.Register(plan.ActionUploadDocument, docstore.NewUploadHandler(docs))
	registry.Register(plan.ActionDownloadLink, docstore.NewDownloadLinkHandler(docs))
	registerOutboundHandlers(registry, logger)

	eng, err := buildPolicyEngine(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "review policy init failed: %v\n", err)
		return 1
	}

	svc := service.New(calc, builder, store, executor.New(store, registry, nil),
		service.WithPolicy(eng),
		service.WithAudit(audit.NewLog(nil)),
		service.WithObservability(obs),
	)

	limiter := api.NewGlobalRateLimiter(cfg.RateLimitRPS, int(cfg.RateLimitRPS)*2)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           limiter.Middleware(api.NewServer(svc).Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Port, "store", cfg.StoreDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
			return 1
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			return 1
		}
	}
	return 0
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func openPlanStore(cfg *config.Config) (plan.Store, *sql.DB, error) {
	switch cfg.StoreDriver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		store, err := plan.NewPostgresStore(db)
		if err != nil {
			return nil, nil, err
		}
		return store, db, nil
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		store, err := plan.NewSQLiteStore(db)
		if err != nil {
			return nil, nil, err
		}
		return store, db, nil
	case "memory":
		return plan.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// buildHolidayProvider layers the configured providers: the YAML rule
// table as the base, the remote calendar on top when configured, a
// shared Redis cache when available, and per-process memoization last.
func buildHolidayProvider(cfg *config.Config, logger *slog.Logger) (holiday.Provider, error) {
	var provider holiday.Provider
	if cfg.HolidayAPIURL != "" {
		provider = holiday.NewHTTPProvider(cfg.HolidayAPIURL)
		logger.Info("using remote holiday calendar", "url", cfg.HolidayAPIURL)
	} else {
		table, err := holiday.LoadRuleTable(cfg.HolidayRules)
		if err != nil {
			return nil, fmt.Errorf("load holiday rules: %w", err)
		}
		provider = table
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		provider = holiday.NewRedisProvider(provider, client, 0)
		logger.Info("holiday cache enabled", "redis", cfg.RedisAddr)
	}
	return holiday.NewCachedProvider(provider), nil
}

func buildDocStore(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
	if cfg.S3Bucket == "" {
		return docstore.NewMemoryStore(), nil
	}
	return docstore.NewS3Store(ctx, docstore.S3Config{
		Bucket:   cfg.S3Bucket,
		Region:   cfg.S3Region,
		Endpoint: cfg.S3Endpoint,
	})
}

func buildPolicyEngine(cfg *config.Config) (*policy.Engine, error) {
	var extra []policy.Rule
	if cfg.ReviewRules != "" {
		raw, err := os.ReadFile(cfg.ReviewRules)
		if err != nil {
			return nil, fmt.Errorf("read review rules: %w", err)
		}
		rs, err := policy.ParseRuleSet(raw)
		if err != nil {
			return nil, err
		}
		extra = rs.Rules
	}
	return policy.NewEngine(extra...)
}

// registerOutboundHandlers binds the action types whose side effects
// live in external systems (practice-management calendar, mail, power
// of attorney). Until those integrations land, outcomes are recorded
// for dispatch by the outbound worker.
func registerOutboundHandlers(registry *executor.Registry, logger *slog.Logger) {
	queued := func(kind string) executor.Handler {
		return executor.HandlerFunc(func(ctx context.Context, a plan.ActionSpec) (json.RawMessage, error) {
			logger.InfoContext(ctx, "outbound action queued", "kind", kind, "order", a.Order, "title", a.Title)
			return json.Marshal(map[string]string{"status": "queued", "kind": kind})
		})
	}
	registry.Register(plan.ActionCreateNote, queued("note"))
	registry.Register(plan.ActionCreateEvent, queued("event"))
	registry.Register(plan.ActionSendEmailLawyer, queued("email"))
	registry.Register(plan.ActionSendEmailClient, queued("email"))
	registry.Register(plan.ActionRequestPower, queued("power_request"))
	registry.Register(plan.ActionDetectCollision, queued("collision_check"))
}

func runHealthCmd(out, errOut io.Writer) int {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	resp, err := http.Get("http://localhost:" + port + "/healthz")
	if err != nil {
		fmt.Fprintf(errOut, "Health check failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(errOut, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(out, "OK")
	return 0
}
