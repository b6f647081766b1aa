package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"embedpool/internal/adminapi"
	"embedpool/internal/config"
	"embedpool/internal/logging"
	"embedpool/internal/metrics"
	"embedpool/internal/pool"
	"embedpool/internal/version"
)

func main() {
	configPath := flag.String("config", "embedpool.yaml", "path to the registry document")
	listenAddr := flag.String("listen", ":9310", "HTTP listen address")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	baseLogger, err := logging.NewLogger()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	sugar := baseLogger.Sugar()
	sugar.Infow("starting", "build", version.BuildInfo())

	manager := config.NewManager()
	if err := ensureDevConfig(*configPath); err != nil {
		sugar.Fatalw("failed to ensure dev config", "path", *configPath, "error", err)
	}
	if err := manager.LoadFromFile(*configPath); err != nil {
		sugar.Fatalw("failed to load config", "path", *configPath, "error", err)
	}
	sugar.Infow("configuration loaded", "path", *configPath)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	selections := logging.NewSelectionLogStore(1000)
	poolMgr := pool.NewManager(manager, pool.Options{
		Logger:     baseLogger.Named("pool"),
		Selections: selections,
	})
	manager.OnSwap(func() {
		poolMgr.Refresh()
	})
	report := poolMgr.Refresh()
	sugar.Infow("initial endpoint sync", "endpoints", report.EndpointCount)

	prober := pool.NewProber(manager, poolMgr, nil, baseLogger.Named("prober"))
	go prober.Run(rootCtx)

	configLogger := baseLogger.Named("config").Sugar()
	if err := config.WatchFile(rootCtx, manager, *configPath, configLogger.Infof); err != nil {
		configLogger.Fatalw("failed to start config watcher", "error", err)
	}

	adminToken := os.Getenv("EMBEDPOOL_ADMIN_TOKEN")
	if adminToken == "" {
		sugar.Infow("admin api disabled (EMBEDPOOL_ADMIN_TOKEN not set)")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())

	if adminToken != "" {
		adminLogger := baseLogger.Named("admin")
		adminHandler := adminapi.NewHandler(manager, poolMgr, prober, selections, adminToken, adminLogger)
		mux.Handle("/admin/api/", adminapi.RequestIDMiddleware(http.StripPrefix("/admin/api", adminHandler)))
	}

	srv := &http.Server{
		Addr:         *listenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("embedpool listening", "addr", *listenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		sugar.Infow("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		sugar.Fatalw("server error", "error", err)
	}

	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		sugar.Fatalw("graceful shutdown failed", "error", err)
	}
	sugar.Infow("shutdown complete")
}

func ensureDevConfig(path string) error {
	_, err := os.Stat(path)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if filepath.Base(path) != "embedpool.dev.yaml" {
		return nil
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return mkErr
		}
	}

	defaultConfig := []byte("pool:\n  enabled: false\nproviders: []\n")
	if writeErr := os.WriteFile(path, defaultConfig, 0o600); writeErr != nil {
		return writeErr
	}

	return nil
}
