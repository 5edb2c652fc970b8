// fieldsyncd is the local sync daemon. It owns the durable offline
// queue and the background sync loop, and exposes a localhost REST and
// WebSocket API for UI clients.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agrihub/fieldsync/cmd/fieldsyncd/handlers"
	"github.com/agrihub/fieldsync/internal/config"
	"github.com/agrihub/fieldsync/internal/engine"
	"github.com/agrihub/fieldsync/internal/logging"
	"github.com/agrihub/fieldsync/internal/network"
	"github.com/agrihub/fieldsync/internal/queue"
	"github.com/agrihub/fieldsync/internal/remote"
	"github.com/agrihub/fieldsync/internal/scheduler"
	"github.com/agrihub/fieldsync/internal/store"
	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error("Invalid configuration", err, nil)
		os.Exit(1)
	}

	logging.Init(os.Stdout, logging.ParseLevel(cfg.Logging.Level))
	logger := logging.Get().WithComponent("main")

	db, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		logger.Error("Failed to open store", err, map[string]interface{}{
			"data_dir": cfg.Store.DataDir,
		})
		os.Exit(1)
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		logger.Error("Failed to migrate store", err, nil)
		os.Exit(1)
	}

	repo := store.NewRepository(db.DB)
	q := queue.New(repo)

	remoteOpts := []remote.HTTPOption{
		remote.WithHTTPClient(&http.Client{Timeout: cfg.Remote.Timeout}),
	}
	if cfg.Remote.AuthToken != "" {
		remoteOpts = append(remoteOpts, remote.WithToken(cfg.Remote.AuthToken))
	}
	rem := remote.NewHTTPRemote(cfg.Remote.BaseURL, remoteOpts...)

	monitor := network.NewMonitor(network.NewHTTPProber(cfg.Network.ProbeURL), cfg.Network.ProbeInterval)

	eng := engine.New(q, repo, rem,
		engine.WithEntityTypes(cfg.Sync.EntityTypes...),
		engine.WithOnlineCheck(monitor.IsOnline),
	)

	hub := NewWSHub()
	eng.SetEventHandler(hub)

	sched := scheduler.New(eng, monitor, &scheduler.Config{
		SyncInterval: cfg.Sync.Interval,
		SyncTimeout:  cfg.Sync.Timeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor.Subscribe(hub.BroadcastNetworkStatus)
	monitor.Start(ctx)
	defer monitor.Stop()

	sched.Start(ctx)
	defer sched.Stop()

	syncHandler := handlers.NewSyncHandler(sched, repo)
	actionHandler := handlers.NewActionHandler(eng)
	snapshotHandler := handlers.NewSnapshotHandler(repo)

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", syncHandler.Health).Methods(http.MethodGet)
	api.HandleFunc("/sync", syncHandler.TriggerSync).Methods(http.MethodPost)
	api.HandleFunc("/sync/status", syncHandler.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/queue", syncHandler.ListQueue).Methods(http.MethodGet)
	api.HandleFunc("/conflicts", syncHandler.ListConflicts).Methods(http.MethodGet)
	api.HandleFunc("/actions", actionHandler.Enqueue).Methods(http.MethodPost)
	api.HandleFunc("/entities/{type}", snapshotHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/entities/{type}/{id}", snapshotHandler.Get).Methods(http.MethodGet)
	router.HandleFunc("/ws", HandleWebSocket(hub))

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // sync passes can outlive any fixed write window
	}

	go func() {
		logger.Info("FieldSync daemon listening", map[string]interface{}{
			"addr":   server.Addr,
			"remote": cfg.Remote.BaseURL,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", err, nil)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown incomplete", err, nil)
	}
}
