package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/samsavage/railgun-mcp/internal/chain"
	"github.com/samsavage/railgun-mcp/internal/config"
	"github.com/samsavage/railgun-mcp/internal/database"
	"github.com/samsavage/railgun-mcp/internal/engine"
	"github.com/samsavage/railgun-mcp/internal/health"
	"github.com/samsavage/railgun-mcp/internal/metrics"
	"github.com/samsavage/railgun-mcp/internal/network"
	"github.com/samsavage/railgun-mcp/internal/pricing"
	"github.com/samsavage/railgun-mcp/internal/railgun"
	"github.com/samsavage/railgun-mcp/internal/ratelimit"
	"github.com/samsavage/railgun-mcp/internal/recipe"
	"github.com/samsavage/railgun-mcp/internal/traces"
	"github.com/samsavage/railgun-mcp/internal/txn"
	"github.com/samsavage/railgun-mcp/internal/wallet"
)

// app owns every long-lived component of a serve run.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *sql.DB
	engine  *engine.Client
	pool    *chain.Pool
	tracker *txn.Tracker
	rail    *railgun.Service
	prices  *pricing.Oracle
	health  *health.Registry
	limiter *ratelimit.Limiter
	ops     *http.Server

	shutdownTracing func(context.Context) error
	stopStats       context.CancelFunc
}

type stores struct {
	wallets wallet.Store
	txns    txn.Store
	recipes recipe.Store
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, health: health.NewRegistry()}

	shutdown, err := traces.Init(ctx, cfg.OTLPEndpoint, Version, logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.shutdownTracing = shutdown

	st, err := a.openStores(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	registry := network.NewRegistry(cfg)
	a.engine = engine.New(engine.Config{BaseURL: cfg.APIURL, APIKey: cfg.APIKey})
	a.pool = chain.NewPool(cfg)
	registry.WithDecimalsReader(a.pool)

	wallets := wallet.NewManager(st.wallets, registry, a.engine, cfg.WalletPassword)
	if cfg.PrivateKey != "" {
		a.importSigner(ctx, wallets)
	}
	a.tracker = txn.NewTracker(st.txns, a.pool, txn.DefaultTrackerConfig(), logger)
	a.rail = railgun.NewService(wallets, registry, a.pool, a.engine, st.txns).
		WithRecipeStore(st.recipes).
		WithTracker(a.tracker)
	a.prices = pricing.NewOracle(cfg.FallbackETHPriceUSD, pricing.DefaultTTL)
	if cfg.SendRateLimit > 0 {
		a.limiter = ratelimit.New(ratelimit.PerMinute(cfg.SendRateLimit))
	}

	if cfg.EngineConfigured() {
		a.health.RegisterFunc("engine", a.engine.Ping)
	}
	if a.db != nil {
		a.health.RegisterFunc("postgres", a.db.PingContext)
	}

	a.tracker.Start(ctx)

	statsCtx, cancel := context.WithCancel(ctx)
	a.stopStats = cancel
	go metrics.StartStatsCollector(statsCtx, a.db, 30*time.Second)

	if cfg.MetricsAddr != "" {
		a.startOps()
	}
	return a, nil
}

// importSigner stores RAILGUN_PRIVATE_KEY as the "default" wallet. A failure
// only disables that wallet.
func (a *app) importSigner(ctx context.Context, wallets *wallet.Manager) {
	w, err := wallets.ImportDefault(ctx, a.cfg.PrivateKey, a.cfg.DefaultNetwork)
	if err != nil {
		a.logger.Warn("could not import RAILGUN_PRIVATE_KEY", "error", err)
		return
	}
	a.logger.Info("default signer wallet ready", "wallet_id", w.ID, "address", w.Address0x)
}

// openStores uses PostgreSQL when DATABASE_URL is set and JSON files under
// the home directory otherwise.
func (a *app) openStores(ctx context.Context) (stores, error) {
	if a.cfg.DatabaseURL != "" {
		db, err := database.Open(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return stores{}, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return stores{}, err
		}
		a.db = db
		a.logger.Info("using postgres storage")
		return stores{
			wallets: wallet.NewPostgresStore(db),
			txns:    txn.NewPostgresStore(db),
			recipes: recipe.NewPostgresStore(db),
		}, nil
	}

	home := a.cfg.HomeDir
	ws, err := wallet.NewFileStore(filepath.Join(home, "wallets"))
	if err != nil {
		return stores{}, fmt.Errorf("open wallet store: %w", err)
	}
	ts, err := txn.NewFileStore(filepath.Join(home, "transactions"))
	if err != nil {
		return stores{}, fmt.Errorf("open transaction store: %w", err)
	}
	rs, err := recipe.NewFileStore(filepath.Join(home, "recipes"))
	if err != nil {
		return stores{}, fmt.Errorf("open recipe store: %w", err)
	}
	a.logger.Info("using file storage", "dir", home)
	return stores{wallets: ws, txns: ts, recipes: rs}, nil
}

// startOps serves health and Prometheus endpoints on MetricsAddr.
func (a *app) startOps() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), metrics.Middleware())
	r.GET("/healthz", health.LiveHandler())
	r.GET("/readyz", a.health.ReadyHandler())
	r.GET("/metrics", metrics.Handler())

	a.ops = &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		a.logger.Info("ops server listening", "addr", a.cfg.MetricsAddr)
		if err := a.ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("ops server failed", "error", err)
		}
	}()
}

// close releases components in reverse start order.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.ops != nil {
		if err := a.ops.Shutdown(ctx); err != nil {
			a.logger.Warn("ops server shutdown", "error", err)
		}
	}
	if a.stopStats != nil {
		a.stopStats()
	}
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.tracker != nil {
		a.tracker.Stop()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", "error", err)
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.logger.Warn("tracing shutdown", "error", err)
		}
	}
}
