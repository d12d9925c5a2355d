package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"organizer/api"
	"organizer/config"
	"organizer/domain"
	"organizer/storage"
	"organizer/subscription"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer closeStore()

	hub := subscription.NewHub(cfg.StreamBuffer)
	var publisher domain.Publisher = hub
	if cfg.RedisConnectionString != "" {
		redisOpts, err := config.RedisOptions(cfg.RedisConnectionString)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rc := redis.NewClient(redisOpts)
		defer rc.Close()

		store = storage.NewCache(store, rc, cfg.SnapshotCacheTTL)
		relay := subscription.NewRelay(rc, cfg.BroadcastChannel, hub)
		go relay.Run(ctx)
		select {
		case <-relay.Ready():
			log.WithField("channel", cfg.BroadcastChannel).Info("broadcast relay subscribed")
		case <-time.After(10 * time.Second):
			log.Warn("broadcast relay not ready yet, continuing")
		case <-ctx.Done():
			return
		}
		publisher = relay
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.CORSOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderContentEncoding},
	}))
	if cfg.PprofEnabled {
		pprof.Register(e)
	}

	logger := log.StandardLogger()
	api.Register(e, domain.NewOrganizerService(store, publisher), hub, logger, api.Options{
		BodyLimit:    cfg.RequestBodyLimit,
		StoreTimeout: cfg.RequestTimeout,
		KeepAlive:    cfg.StreamKeepAlive,
	})

	go func() {
		log.WithFields(log.Fields{"addr": cfg.Addr, "backend": cfg.Backend}).Info("organizer api listening")
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
}

// openStore selects the entity store backend. The returned func releases it.
func openStore(ctx context.Context, cfg config.Config) (domain.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendTables:
		st, err := storage.NewTables(cfg.StorageConnectionString, cfg.ItemsTable, cfg.FoldersTable)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	case config.BackendPostgres:
		db, err := storage.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := storage.ApplyMigrations(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return storage.NewPostgres(db), closer(db), nil
	default:
		log.Warn("using in-memory store, state is lost on restart")
		return storage.NewMemory(), func() {}, nil
	}
}

func closer(db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("close database")
		}
	}
}
