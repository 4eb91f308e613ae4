package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warrant-ledgerv1/config"
	"warrant-ledgerv1/internal/auth"
	"warrant-ledgerv1/internal/gateway"
	"warrant-ledgerv1/internal/ledger"
	"warrant-ledgerv1/internal/logger"
	"warrant-ledgerv1/internal/metrics"
	"warrant-ledgerv1/internal/mirror"
	"warrant-ledgerv1/internal/model"
	"warrant-ledgerv1/internal/notification"
	"warrant-ledgerv1/internal/resolve"
	"warrant-ledgerv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Init("warrant-ledger", logger.ParseLevel(os.Getenv("LOG_LEVEL")))
	log.Println("[server] starting...")

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Durable store ----
	db, err := sqlite.New(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[server] sqlite open failed: %v", err)
	}
	defer db.Close()

	snap, err := db.LoadLatest()
	if err != nil {
		log.Fatalf("[server] ledger load failed: %v", err)
	}
	if snap == nil {
		// First run on this database: pick up a legacy data.json if one
		// is lying around from the pre-SQLite deployment.
		snap, err = sqlite.ImportLegacy(cfg.LegacyDataPath)
		if err != nil {
			log.Printf("[server] WARNING: legacy import failed: %v", err)
		}
	}
	slog.Info("ledger loaded", slog.Int("warrants", len(snap)))

	// ---- Metrics / alerting ----
	m := metrics.NewMetrics()
	var notifier notification.Notifier = notification.NewLogNotifier()
	if cfg.WebhookURL != "" {
		notifier = notification.NewWebhookNotifier(cfg.WebhookURL)
	}

	// ---- Ledger store ----
	store := ledger.NewStore(snap, db)
	store.OnPersist = func(took time.Duration, err error) {
		m.PersistDur.Observe(took.Seconds())
		if err != nil {
			m.PersistErrors.Inc()
			alertCtx, alertCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer alertCancel()
			notifier.Send(alertCtx, notification.Alert{
				Level:   notification.AlertCritical,
				Title:   "ledger persist failed",
				Message: err.Error(),
			})
		}
	}
	m.WarrantsTracked.Set(float64(store.WarrantCount()))

	// ---- Resolution pipeline ----
	fetcher := resolve.NewHTTPFetcher(cfg.FetchTimeout)
	pipeline := resolve.New(fetcher, cfg.PrimaryBaseURL, cfg.FallbackBaseURL)

	// ---- Optional Redis snapshot mirror ----
	var snapMirror gateway.SnapshotMirror
	if cfg.RedisAddr != "" {
		mir, err := mirror.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Printf("[server] WARNING: redis mirror disabled: %v", err)
		} else {
			defer mir.Close()
			snapMirror = mir
		}
	}

	// ---- Gateway ----
	creds := auth.New(auth.ParseUsers(cfg.Users), cfg.AdminTOTPSecret)
	hub := gateway.NewHub(store, pipeline, creds, snapMirror, notifier, m)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub)
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	// ---- Metrics / health server ----
	health := metrics.NewHealthStatus()
	health.ClientCount = hub.ClientCount
	health.WarrantCount = store.WarrantCount
	health.StartLivenessChecker(ctx, db.DB(), 15*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Background identity sweep ----
	sweeper := resolve.NewSweeper(pipeline, store, cfg.SweepDelay)
	sweeper.OnResolved = func(snap model.Snapshot) {
		hub.Broadcaster.BroadcastSnapshot(gateway.EvDataUpdated, snap)
	}
	sweeper.OnOutcome = func(outcome string, took time.Duration) {
		m.Resolutions.WithLabelValues(outcome).Inc()
		m.ResolutionDur.Observe(took.Seconds())
	}
	go sweeper.Run(ctx)

	// ---- Serve ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[server] serving at http://localhost%s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[server] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[server] shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
}
