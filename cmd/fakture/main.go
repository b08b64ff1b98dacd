// Package main runs the embedded Fakture sync server for desktop
// platforms. Desktop clients communicate via REST/WebSocket on
// localhost:8090.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nordqvist/fakture/cmd/fakture/handlers"
	"github.com/nordqvist/fakture/internal/config"
	"github.com/nordqvist/fakture/internal/crypto"
	"github.com/nordqvist/fakture/internal/db"
	"github.com/nordqvist/fakture/internal/export"
	"github.com/nordqvist/fakture/internal/export/offsite"
	"github.com/nordqvist/fakture/internal/logging"
	"github.com/nordqvist/fakture/internal/models"
	"github.com/nordqvist/fakture/internal/remote"
	syncpkg "github.com/nordqvist/fakture/internal/sync"
	"github.com/nordqvist/fakture/internal/sync/conflict"
	"github.com/nordqvist/fakture/internal/sync/monitor"
	"github.com/nordqvist/fakture/internal/sync/queue"
	"github.com/nordqvist/fakture/internal/sync/scheduler"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	configPath := flag.String("config", "fakture.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.Init(os.Stdout, logging.LogLevel(cfg.LogLevel))

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	if err := migrator.Up(); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	store := db.NewStore(database.DB)

	// The per-user session token lives encrypted on disk, not in the
	// config file. A token in the config is taken as a fresh sign-in
	// and stored for subsequent runs.
	credentials := crypto.NewCredentialStore(cfg.DataDir)
	userToken := cfg.Remote.UserToken
	if userToken != "" {
		if err := credentials.Store("user_token", userToken); err != nil {
			logging.Error("Failed to store session token", err)
		}
	} else if credentials.Has("user_token") {
		if stored, err := credentials.Get("user_token"); err == nil {
			userToken = stored
		} else {
			logging.Error("Failed to read stored session token", err)
		}
	}

	backend := remote.NewSupabaseClient(&remote.SupabaseConfig{
		ProjectURL: cfg.Remote.ProjectURL,
		AnonKey:    cfg.Remote.AnonKey,
		UserToken:  userToken,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	probe := monitor.NewProbe(backend, cfg.Sync.ProbeInterval)
	go probe.Run(ctx)

	// The WebSocket hub doubles as the notification sink so every
	// connected client sees sync and conflict events as they happen.
	hub := NewWSHub()

	q := queue.NewLog(store)
	conflictLog := conflict.NewLog(store, hub)
	resolver := conflict.NewResolver(store, backend, hub)
	engine := syncpkg.NewEngine(store, q, backend, probe, conflictLog, hub)

	sched := scheduler.New(engine, probe, &scheduler.Config{
		DrainInterval: cfg.Sync.DrainInterval,
		DrainTimeout:  5 * time.Minute,
	})
	sched.Start(ctx)
	defer sched.Stop()

	userID := models.UUID(cfg.Remote.UserID)

	backupSvc := export.NewService(store)
	backupSched := export.NewScheduler(backupSvc, userID, &export.SchedulerConfig{
		Interval:       cfg.Backup.Interval,
		RetentionCount: cfg.Backup.RetentionCount,
		BackupDir:      filepath.Join(cfg.DataDir, cfg.Backup.Dir),
		Replicator:     newReplicator(&cfg.Backup.Offsite),
	})
	backupSched.Start(ctx)
	defer backupSched.Stop()

	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"fakture"}`))
	})

	mux.Handle("/records/", handlers.NewRecordsHandler(store, engine))

	syncH := handlers.NewSyncHandler(engine, sched, userID)
	mux.HandleFunc("/sync/status", syncH.Status)
	mux.HandleFunc("/sync/now", syncH.SyncNow)
	mux.HandleFunc("/sync/reconcile", syncH.Reconcile)
	mux.HandleFunc("/sync/failed", syncH.Failed)
	mux.HandleFunc("/sync/failed/requeue", syncH.Requeue)

	conflictsH := handlers.NewConflictsHandler(conflictLog, resolver)
	mux.HandleFunc("/conflicts", conflictsH.List)
	mux.HandleFunc("/conflicts/resolve", conflictsH.Resolve)
	mux.HandleFunc("/conflicts/auto-resolve", conflictsH.AutoResolve)
	mux.HandleFunc("/conflicts/purge", conflictsH.Purge)
	mux.HandleFunc("/conflicts/review/open", conflictsH.ReviewOpen)
	mux.HandleFunc("/conflicts/review/current", conflictsH.ReviewCurrent)
	mux.HandleFunc("/conflicts/review/resolve", conflictsH.ReviewResolve)
	mux.HandleFunc("/conflicts/review/skip", conflictsH.ReviewSkip)
	mux.HandleFunc("/conflicts/review/close", conflictsH.ReviewClose)

	backupH := handlers.NewBackupHandler(backupSvc, userID)
	mux.HandleFunc("/backup/export", backupH.Export)
	mux.HandleFunc("/backup/import", backupH.Import)

	mux.HandleFunc("/metrics", handlers.NewMetricsHandler().Metrics)

	mux.HandleFunc("/ws", hub.HandleWS)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("Fakture v%s starting on %s...", Version, cfg.Server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

// newReplicator builds the offsite backup replicator from config, or
// nil when replication is not configured.
func newReplicator(cfg *config.OffsiteConfig) *offsite.Replicator {
	var client *offsite.Client
	switch cfg.Provider {
	case "aws":
		client = offsite.NewAWSClient(&offsite.AWSConfig{
			Bucket:    cfg.Bucket,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
		})
	case "r2":
		client = offsite.NewR2Client(&offsite.R2Config{
			AccountID: cfg.AccountID,
			Bucket:    cfg.Bucket,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
	case "minio":
		client = offsite.NewMinIOClient(&offsite.MinIOConfig{
			Endpoint:  cfg.Endpoint,
			Bucket:    cfg.Bucket,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
		})
	default:
		return nil
	}

	return offsite.NewReplicator(client, &offsite.ReplicatorConfig{
		RetentionCount: cfg.RetentionCount,
	})
}
