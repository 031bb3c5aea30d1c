package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/neiandria/clinic-scheduling/internal/api"
	"github.com/neiandria/clinic-scheduling/internal/appointment"
	"github.com/neiandria/clinic-scheduling/internal/config"
	"github.com/neiandria/clinic-scheduling/internal/db"
	"github.com/neiandria/clinic-scheduling/internal/logging"
	"github.com/neiandria/clinic-scheduling/internal/records"
	redisclient "github.com/neiandria/clinic-scheduling/internal/redis"
	"github.com/neiandria/clinic-scheduling/internal/session"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.New(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.Bool("postgres", cfg.UsePostgres()),
		zap.Bool("redis", cfg.UseRedis()))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("invalid timezone", zap.Error(err))
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		logger.Fatal("invalid clinic hours", zap.Error(err))
	}

	var (
		pgPool    *pgxpool.Pool
		rdb       *redis.Client
		store     appointment.Store
		events    appointment.EventSink
		directory records.Directory
		locker    redisclient.Locker
		ids       records.IdentityStore
	)

	if cfg.UsePostgres() {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
		cancelPg()
		if err != nil {
			logger.Fatal("postgres connection error", zap.Error(err))
		}
		defer pgPool.Close()
		logger.Info("connected to Postgres")

		migrator, err := db.NewMigrator(pgPool, logger)
		if err != nil {
			logger.Fatal("migrator", zap.Error(err))
		}
		if err := migrator.Up(rootCtx); err != nil {
			logger.Fatal("migrations", zap.Error(err))
		}
		_ = migrator.Close()

		pgStore := appointment.NewPgStore(pgPool, loc)
		store, events = pgStore, pgStore
		directory = records.NewPgDirectory(pgPool)
	} else {
		logger.Info("POSTGRES_DSN not set, using in-memory demo data")
		store = appointment.NewMemoryStore(appointment.DemoAppointments(loc)...)
		directory = records.NewDemoDirectory()
	}

	if cfg.UseRedis() {
		rdb, err = redisclient.NewRedisClient(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			logger.Fatal("redis connection error", zap.Error(err))
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		logger.Info("connected to Redis")

		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		ids = redisclient.NewIdentityStore(rdb, cfg.SessionTTL)
	} else {
		locker = redisclient.NewLocalLocker()
		ids = records.NewMemoryIdentityStore()
	}

	mgr := appointment.NewManager(store, records.Lookup{Dir: directory}, catalog, locker, events, logger.Named("appointments"))

	unsubscribe := mgr.Subscribe(func(snap appointment.Snapshot) {
		logger.Debug("appointment snapshot",
			zap.Uint64("version", snap.Version),
			zap.Int("appointments", len(snap.Appointments)))
	})
	defer unsubscribe()

	unwatch := directory.Subscribe(func(c records.Change) {
		logger.Info("directory record added",
			zap.String("kind", string(c.Kind)),
			zap.Int64("id", c.ID))
	})
	defer unwatch()

	wizards := session.NewRegistry(mgr, directory, session.Config{
		WeekStart: cfg.WeekStart,
		Location:  loc,
	}, cfg.SessionTTL, logger.Named("wizards"))
	go wizards.Run(rootCtx, time.Minute)

	router := api.NewRouter(api.RouterConfig{
		Manager:    mgr,
		Directory:  directory,
		Identities: ids,
		Wizards:    wizards,
		WeekStart:  cfg.WeekStart,
		Location:   loc,
		PgPool:     pgPool,
		Redis:      rdb,
		Logger:     logger.Named("http"),
		Env:        cfg.Env,
		Version:    version,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return rootCtx },
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
