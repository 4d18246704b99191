// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/auctionarena/internal/auction"
	"github.com/jason-s-yu/auctionarena/internal/auth"
	"github.com/jason-s-yu/auctionarena/internal/broadcast"
	"github.com/jason-s-yu/auctionarena/internal/cache"
	"github.com/jason-s-yu/auctionarena/internal/config"
	"github.com/jason-s-yu/auctionarena/internal/database"
	"github.com/jason-s-yu/auctionarena/internal/database/sqlite"
	"github.com/jason-s-yu/auctionarena/internal/handlers"
	"github.com/jason-s-yu/auctionarena/internal/lobby"
	"github.com/jason-s-yu/auctionarena/internal/metrics"
	"github.com/jason-s-yu/auctionarena/internal/store"
	"github.com/jason-s-yu/auctionarena/internal/store/memory"
)

func main() {
	logger := logrus.New()
	if err := run(logger); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}

func run(logger *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.Level())
	if cfg.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	m := metrics.New()
	hub := broadcast.NewHub(logger)
	hub.OnDrop = func(broadcast.Event) { m.EventDropped("subscriber") }

	var pub broadcast.Publisher = hub
	if cfg.RedisAddr != "" {
		rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		queue := cache.NewActionQueue(rdb, cfg.HistorianQueueName, logger)
		queue.OnDrop = func(broadcast.Event) { m.EventDropped("queue") }
		go queue.Run(ctx)
		pub = broadcast.Fanout{hub, queue}
		logger.Infof("queueing auction actions on redis list %s", cfg.HistorianQueueName)
	}

	registry := auction.NewRegistry(auction.Options{
		Store:     s,
		Publisher: pub,
		Logger:    logger,
		Metrics:   m,
		Buffer:    cfg.EventBuffer,
	})
	registry.OnRetire = hub.CloseLobby
	defer registry.Close()
	go reapLoop(ctx, registry, cfg.LobbyReapInterval, logger)

	signer, err := auth.NewSigner(cfg.TokenExpireTime)
	if err != nil {
		return fmt.Errorf("create token signer: %w", err)
	}

	srv := &handlers.Server{
		Coordinator:    lobby.NewCoordinator(s, registry, signer, logger),
		Hub:            hub,
		Metrics:        m,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		Production:     cfg.IsProduction(),
	}
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", cfg.Addr())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown did not finish cleanly")
	}
	return nil
}

// reapLoop retires engines of lobbies the historian deactivated, which also
// closes their websocket streams.
func reapLoop(ctx context.Context, registry *auction.Registry, every time.Duration, logger *logrus.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := registry.Reap(ctx)
			if err != nil {
				logger.WithError(err).Warn("lobby reap failed")
			}
			if n > 0 {
				logger.Infof("retired %d inactive lobbies", n)
			}
		}
	}
}

// openStore picks the entity store named by STORE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := database.ConnectDB(ctx, cfg.PostgresURL(), logger)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return database.NewStore(pool), nil
	case config.DriverSQLite:
		logger.Infof("using sqlite store at %s", cfg.SQLitePath)
		return sqlite.New(cfg.SQLitePath)
	default:
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.New(), nil
	}
}
