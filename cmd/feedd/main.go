package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-eventfeed/internal/api"
	"github.com/technosupport/ts-eventfeed/internal/config"
	"github.com/technosupport/ts-eventfeed/internal/facets"
	"github.com/technosupport/ts-eventfeed/internal/feed"
	"github.com/technosupport/ts-eventfeed/internal/frigate"
	"github.com/technosupport/ts-eventfeed/internal/middleware"
	"github.com/technosupport/ts-eventfeed/internal/ratelimit"
	"github.com/technosupport/ts-eventfeed/internal/settings"
)

const serviceName = "ts-eventfeed"

func main() {
	configPath := flag.String("config", "config/feedd.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config load error: %v", err)
	}

	// Redis (settings, facets, rate limiting)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("Redis unavailable at %s: %v", cfg.RedisAddr, err)
	}
	cancel()

	store := settings.NewStore(rdb)
	serverURL := resolveServerURL(store, cfg.ServerURL)
	if serverURL == "" {
		log.Fatal("No server address configured. Set server_url in config or SERVER_URL env.")
	}

	client, err := frigate.NewClient(serverURL)
	if err != nil {
		log.Fatalf("Invalid server address %q: %v", serverURL, err)
	}

	tracker := facets.NewTracker(store)
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := tracker.Load(ctx); err != nil {
		log.Printf("Warning: loading persisted facets failed: %v", err)
	}
	cancel()

	// NATS (optional; finished events go unpublished without it)
	var publisher feed.Publisher
	natsURL := cfg.NatsURL
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}
	nc, err := nats.Connect(natsURL, nats.Name(serviceName))
	if err != nil {
		log.Printf("Warning: NATS Connect Failed: %v. Finished-event publishing disabled.", err)
	} else {
		defer nc.Close()
		publisher = feed.NewNATSPublisher(nc, feed.SubjectFinished, 3)
		log.Println("Connected to NATS")
	}

	hub := feed.NewHub()
	coordinator := feed.NewCoordinator(client, tracker, store, publisher, hub, feed.Config{
		CompletedInterval:  cfg.CompletedInterval(),
		InProgressInterval: cfg.InProgressInterval(),
		Limit:              cfg.Feed.Limit,
	})
	coordinator.Start()

	// Config file changes to the server address take effect without restart.
	watcherCtx, stopWatcher := context.WithCancel(context.Background())
	defer stopWatcher()
	watcher := config.NewWatcher(*configPath, func(next *config.Config) {
		if next.ServerURL == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.SetServerURL(ctx, next.ServerURL); err != nil {
			log.Printf("[ERROR] Persisting new server address: %v", err)
			return
		}
		if err := client.SetBaseURL(next.ServerURL); err != nil {
			log.Printf("[ERROR] Applying new server address: %v", err)
		}
	})
	watcher.Start(watcherCtx)

	limiter := ratelimit.NewLimiter(rdb, cfg.Refresh.HashSalt)
	refreshLimit := middleware.NewRateLimitMiddleware(limiter, "refresh", ratelimit.LimitConfig{
		Rate:   cfg.Refresh.Rate,
		Window: cfg.Refresh.Window,
	})

	router := api.NewRouter(api.RouterDeps{
		Events:  api.NewEventHandler(coordinator, client, store),
		Facets:  api.NewFacetHandler(tracker),
		Media:   api.NewMediaHandler(client, cfg.Media.ThumbnailCacheSize),
		Ws:      api.NewFeedWsHandler(coordinator, hub),
		Refresh: refreshLimit,
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		log.Printf("%s listening on %s (server: %s)", serviceName, cfg.ListenAddr, serverURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutting down...")

	coordinator.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// resolveServerURL prefers the persisted address; the config value seeds it
// on first launch.
func resolveServerURL(store *settings.Store, fromConfig string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stored, err := store.ServerURL(ctx)
	if err != nil {
		log.Printf("Warning: reading persisted server address: %v", err)
	}
	if stored != "" {
		return stored
	}
	if fromConfig == "" {
		return ""
	}

	if err := store.SetServerURL(ctx, fromConfig); err != nil {
		log.Printf("Warning: persisting server address: %v", err)
	}
	if err := store.MarkLaunched(ctx); err != nil {
		log.Printf("Warning: marking first launch: %v", err)
	}
	return fromConfig
}
