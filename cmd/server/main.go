// localcache 伺服器進入點。
// 載入設定、組裝快取與事件中心，啟動 HTTP 服務並處理優雅關機。
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koopa0/localcache/internal/cache"
	"github.com/koopa0/localcache/internal/config"
	"github.com/koopa0/localcache/internal/server"
	"github.com/koopa0/localcache/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "設定檔路徑")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.AddSource)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	// 事件中心先於快取建立，移除回呼要引用它
	hub := server.NewEventHub(log.With("component", "events"))

	c, err := cache.NewWithEvict[string, json.RawMessage](
		cfg.Cache.Capacity,
		cfg.EffectiveDefaultTTL(),
		func(key string, _ json.RawMessage, reason cache.EvictReason) {
			hub.Publish(server.Event{Type: reason.String(), Key: key, OccurredAt: time.Now()})
		},
	)
	if err != nil {
		log.Error("failed to create cache", "error", err)
		os.Exit(1)
	}

	if cfg.Cache.SnapshotPath != "" {
		restored, err := c.LoadFile(cfg.Cache.SnapshotPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Info("no snapshot to restore", "path", cfg.Cache.SnapshotPath)
		case err != nil:
			log.Warn("failed to restore snapshot", "path", cfg.Cache.SnapshotPath, "error", err)
		default:
			log.Info("snapshot restored", "path", cfg.Cache.SnapshotPath, "entries", restored)
		}
	}

	var janitor *cache.Janitor[string, json.RawMessage]
	if cfg.Cache.CleanupInterval > 0 {
		janitor = cache.NewJanitor(c, cfg.Cache.CleanupInterval, log.With("component", "janitor"))
	}

	handler := server.NewHandler(c, log)

	mux := http.NewServeMux()
	mux.Handle("/", handler.Routes())
	mux.HandleFunc("GET /ws/events", hub.ServeWS)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("starting server",
			"addr", srv.Addr,
			"capacity", cfg.Cache.Capacity,
			"default_ttl", cfg.Cache.DefaultTTL,
		)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}

	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("forced close failed", "error", closeErr)
			}
		}

		if janitor != nil {
			janitor.Stop()
		}
		hub.Stop()

		if cfg.Cache.SnapshotPath != "" {
			if err := c.SaveFile(cfg.Cache.SnapshotPath); err != nil {
				log.Error("failed to save snapshot", "path", cfg.Cache.SnapshotPath, "error", err)
			} else {
				log.Info("snapshot saved", "path", cfg.Cache.SnapshotPath, "entries", c.Len())
			}
		}
	}

	log.Info("server stopped")
}
