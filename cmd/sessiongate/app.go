package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/MrEthical07/sessiongate"
	"github.com/MrEthical07/sessiongate/internal/httpapi"
	"github.com/MrEthical07/sessiongate/internal/httputil"
	"github.com/MrEthical07/sessiongate/internal/serverconfig"
	promexport "github.com/MrEthical07/sessiongate/metrics/export/prometheus"
	"github.com/MrEthical07/sessiongate/realtime"
	"github.com/MrEthical07/sessiongate/store"
	"github.com/MrEthical07/sessiongate/transport"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
)

const healthTimeout = 2 * time.Second

// app holds every long-lived component of the server.
type app struct {
	engine    *sessiongate.Engine
	router    *realtime.Router
	gateway   *transport.Gateway
	directory store.Directory
	handler   http.Handler
	health    func(ctx context.Context) error
	closers   []func() error
	logger    *slog.Logger
}

func newApp(ctx context.Context, cfg *serverconfig.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger, health: func(context.Context) error { return nil }}

	directory, rdb, err := a.openDirectory(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	if cfg.Store.CacheSize > 0 {
		directory = store.NewCached(directory, cfg.Store.CacheSize, cfg.Store.CacheTTL)
	}
	a.directory = directory

	builder := sessiongate.New().
		WithConfig(cfg.Engine()).
		WithIdentityProvider(directory).
		WithLogger(logger)
	if cfg.Audit {
		builder = builder.WithAuditSink(sessiongate.NewJSONWriterSink(os.Stdout))
	}
	if cfg.Throttle.Enabled {
		if rdb == nil {
			rdb = redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
			a.closers = append(a.closers, rdb.Close)
		}
		builder = builder.WithRedis(rdb)
	}

	engine, err := builder.Build()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	a.engine = engine
	a.closers = append(a.closers, func() error { engine.Close(); return nil })

	a.router = realtime.NewRouter(engine, realtime.Options{
		Metrics: engine.Metrics(),
		Logger:  logger,
	})
	a.gateway = transport.NewGateway(a.router, transport.Config{AllowedOrigins: cfg.AllowedOrigins}, logger)
	a.closers = append(a.closers, func() error { a.gateway.Close(); return nil })

	exporter := promexport.NewExporter(engine)
	exporter.AddGauge("sessiongate_rooms", "Rooms currently held by the registry.", func() float64 {
		return float64(len(a.router.Registry().Rooms()))
	})
	exporter.AddGauge("sessiongate_mentors_connections", "Connections in the mentors room.", func() float64 {
		return float64(a.router.Registry().Connections(realtime.MentorsRoom))
	})

	r := mux.NewRouter()
	httpapi.NewUsers(engine, directory, logger).RegisterRoutes(r)
	r.PathPrefix("/socket/").Handler(a.gateway)
	r.Handle("/metrics", promexport.Handler(promexport.NewRegistry(exporter))).Methods(http.MethodGet)
	r.HandleFunc("/health", a.serveHealth).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteNotFound(w, "Not found")
	})

	a.handler = httputil.Recovery(logger)(httputil.Logging(logger)(r))
	return a, nil
}

func (a *app) openDirectory(ctx context.Context, cfg *serverconfig.Config) (store.Directory, redis.UniversalClient, error) {
	switch cfg.Store.Backend {
	case serverconfig.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		a.closers = append(a.closers, rdb.Close)
		pingCtx, cancel := context.WithTimeout(ctx, store.DefaultPingTimeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		a.health = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		a.logger.Info("redis directory connected", "addr", cfg.Store.RedisAddr)
		return store.NewRedisStore(rdb, cfg.Store.RedisPrefix), rdb, nil

	case serverconfig.BackendPostgres:
		db, err := store.OpenPostgres(cfg.Store.DatabaseURL, a.logger)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		a.health = db.Health
		a.logger.Info("postgres directory connected")
		return store.NewPostgresStore(db), nil, nil

	default:
		a.logger.Warn("using in-memory directory; users are lost on restart")
		return store.NewMemoryStore(), nil, nil
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (a *app) serveHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := a.health(ctx); err != nil {
		a.logger.Warn("health check failed", "error", err)
		_ = httputil.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// close releases components in reverse order of creation.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
