// cmd/web/main.go
//
// Control-panel daemon – HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Load env vars (jail-wide file → .env fallback).
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Load typed config; resolve `vault:` secret references when a Vault
//     server is configured.
//
//  4. Open the control-plane DB, apply settings-table overrides for the
//     panel endpoint, and wire repositories, panel client, audit sink,
//     reconciliation service, and checkout.
//
//  5. Expose Prometheus /metrics, a liveness probe, and the /api subtree;
//     wrap the root with security headers and (optionally) ForceHTTPS.
//
//  6. Start the expiry sweep scheduler, then serve until SIGINT/SIGTERM
//     and shut down gracefully.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yanizio/gamehost/internal/audit"
	"github.com/yanizio/gamehost/internal/checkout"
	"github.com/yanizio/gamehost/internal/config"
	"github.com/yanizio/gamehost/internal/database"
	"github.com/yanizio/gamehost/internal/gameserver"
	"github.com/yanizio/gamehost/internal/httpapi"
	"github.com/yanizio/gamehost/internal/logger"
	"github.com/yanizio/gamehost/internal/middleware"
	"github.com/yanizio/gamehost/internal/panel"
	"github.com/yanizio/gamehost/internal/product"
	"github.com/yanizio/gamehost/internal/reconcile"
	"github.com/yanizio/gamehost/internal/requestinfo"
	"github.com/yanizio/gamehost/internal/server"
	"github.com/yanizio/gamehost/internal/settings"
	"github.com/yanizio/gamehost/internal/sweep"
	"github.com/yanizio/gamehost/internal/vault"
	"github.com/yanizio/gamehost/internal/voucher"
)

const serverEnvPath = "/usr/local/etc/gamehost/global.env"

// loadEnv prefers the jail-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	rootDir, _ := os.Getwd()
	logOut, err := logger.New(rootDir, runningInTTY(), os.Getenv("GAMEHOST_LOG_LEVEL"))
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	//
	// ── 1.  Config + secrets ────────────────────────────────────────────
	//
	cfg, err := config.Load()
	if err != nil {
		logOut.Fatalw("load config", "err", err)
	}

	if os.Getenv("VAULT_ADDR") != "" {
		vc, err := vault.New(ctx, logOut)
		if err != nil {
			logOut.Fatalw("connect vault", "err", err)
		}
		if err := config.ResolveSecrets(ctx, cfg, vc); err != nil {
			logOut.Fatalw("resolve secrets", "err", err)
		}
	}

	//
	// ── 2.  Control-plane DB ────────────────────────────────────────────
	//
	logOut.Infow("connecting to control-plane DB")
	db, err := database.Open(ctx, cfg.Database.DSN)
	if err != nil {
		logOut.Fatalw("connect DB", "err", err)
	}
	defer db.Close()

	// Early sanity check: count the live fleet.
	var active int
	_ = db.GetContext(ctx, &active, `
	    SELECT COUNT(*) FROM server
	    WHERE deleted_at IS NULL`)
	logOut.Infow("control-plane DB online", "active_servers", active)

	//
	// ── 3.  Settings-table overrides ────────────────────────────────────
	//
	st := settings.New(db)
	panelURL, err := settings.GetDefault(ctx, st, "panel.base_url", cfg.Panel.BaseURL)
	if err != nil {
		logOut.Warnw("settings lookup failed, using config value", "err", err)
		panelURL = cfg.Panel.BaseURL
	}

	//
	// ── 4.  Services ────────────────────────────────────────────────────
	//
	if cfg.Geo.DBPath != "" {
		if err := requestinfo.InitGeo(cfg.Geo.DBPath); err != nil {
			logOut.Warnw("geo lookup disabled", "err", err)
		}
	}

	panelClient := panel.New(panelURL, cfg.Panel.ApplicationKey, cfg.Panel.ClientKey)
	servers := gameserver.NewRepository(db)
	products := product.NewRepository(db)
	vouchers := voucher.NewRepository(db)
	auditLog := audit.NewLog(db)

	recSvc := reconcile.New(servers, panelClient, products, auditLog, logOut)

	provider := checkout.NewHTTPProvider(
		cfg.Payment.BaseURL, cfg.Payment.ShopID,
		cfg.Payment.SecretKey, cfg.Payment.ReturnURL)
	checkoutSvc := checkout.New(products, vouchers, provider, logOut)

	//
	// ── 5.  HTTP surface ────────────────────────────────────────────────
	//
	api := httpapi.New(recSvc, checkoutSvc, httpapi.ProxyHeaderResolver(), logOut)

	root := chi.NewRouter()
	root.Handle("/metrics", promhttp.Handler())
	root.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	root.Mount("/api", api.Router())

	var handler http.Handler = middleware.Security(root)
	if cfg.HTTP.ForceHTTPS {
		handler = middleware.ForceHTTPS(handler)
	}

	srv := server.New(cfg.HTTP.ListenAddr, handler)

	//
	// ── 6.  Expiry sweep + serve ────────────────────────────────────────
	//
	sweeper := sweep.New(servers, recSvc, logOut)
	if err := sweeper.Start(cfg.Sweep.Schedule); err != nil {
		logOut.Fatalw("start expiry sweep", "err", err)
	}

	go func() {
		logOut.Infow("listening", "addr", cfg.HTTP.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logOut.Fatalw("http server", "err", err)
		}
	}()

	<-ctx.Done()
	logOut.Infow("shutting down")

	sweeper.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logOut.Errorw("shutdown", "err", err)
	}
}
