package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gramsync/pkg/apiclient"
	"gramsync/pkg/cache"
	"gramsync/pkg/config"
	"gramsync/pkg/logger"
	"gramsync/pkg/push"
	"gramsync/pkg/refresh"
	"gramsync/pkg/session"
	"gramsync/pkg/storage"
	"gramsync/pkg/transport"
)

func main() {
	_ = godotenv.Load(".env")
	hostVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// explicit flags win over config/env
	if setFlags["host"] {
		cfg.API.Host = hostVal
	}
	dbPath := cfg.Storage.Path
	if setFlags["db"] || dbPath == "" {
		dbPath = dbVal
	}

	logger.InitWithLevel(cfg.Logging.Level)
	logger.Info("starting", "env", cfg.Environment())

	cacheBytes, err := cfg.MaxCacheBytes()
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	kv, err := storage.OpenPebble(dbPath, cacheBytes)
	if err != nil {
		log.Fatalf("failed to open local store: %v", err)
	}

	replica := cache.New()

	// Logout cascade: cached data is scoped to the previous identity and
	// must not survive an account switch on the same device.
	store := session.NewStore(kv, func() {
		replica.Clear()
		logger.Info("cache_cleared_on_logout")
	})

	ctx := context.Background()
	store.Restore(ctx)

	client, err := transport.NewClient(cfg, kv, store)
	if err != nil {
		log.Fatalf("failed to build api client: %v", err)
	}
	api := apiclient.New(client)

	wsURL, err := cfg.WSURL()
	if err != nil {
		log.Fatalf("failed to derive push endpoint: %v", err)
	}
	engine := push.NewEngine(wsURL, kv, replica)
	if store.State().Authenticated {
		if err := engine.Connect(ctx); err != nil {
			logger.Warn("push_connect_failed", "error", err)
		}
	}

	cancelRefresh, err := refresh.Start(ctx, cfg, refresh.Runner{
		Store: store,
		API:   api,
		Cache: replica,
		KV:    kv,
	})
	if err != nil {
		log.Fatalf("failed to start refresh scheduler: %v", err)
	}

	srv := startDebugServer(cfg, store, engine)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting_down")

	cancelRefresh()
	engine.Disconnect()
	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(sctx)
		cancel()
	}
	if err := kv.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
	logger.Info("stopped")
}

// startDebugServer exposes the local ops surface: health, prometheus
// metrics, and a redacted session snapshot. Disabled when no address is
// configured.
func startDebugServer(cfg *config.Config, store *session.Store, engine *push.Engine) *http.Server {
	addr := cfg.Debug.Addr
	if addr == "" {
		return nil
	}
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/debug/session", func(w http.ResponseWriter, _ *http.Request) {
		st := store.State()
		w.Header().Set("Content-Type", "application/json")
		// never echo the raw token
		_ = json.NewEncoder(w).Encode(map[string]any{
			"authenticated": st.Authenticated,
			"loading":       st.Loading,
			"hasToken":      st.Token != "",
			"pushConnected": engine.Connected(),
		})
	}).Methods(http.MethodGet)

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		logger.Info("debug_listener_started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("debug_listener_failed", "error", err)
		}
	}()
	return srv
}
