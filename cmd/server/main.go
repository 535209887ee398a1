// Command server runs the HTTP surface (§6): it loads process
// configuration, wires the agent graph and a session store, and serves
// /event/* and /health over chi. Grounded on
// example/cmd/assistant/main.go's flag-parse, clue-log-context,
// signal-channel, graceful-wait shape, trimmed to one HTTP listener since
// this surface has no gRPC counterpart.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/log"

	"goa.design/apron-incident/internal/bootstrap"
	"goa.design/apron-incident/internal/config"
	"goa.design/apron-incident/httpapi"
	"goa.design/apron-incident/runtime/auditlog"
	"goa.design/apron-incident/runtime/auditlog/mongo"
	"goa.design/apron-incident/runtime/session"
	"goa.design/apron-incident/runtime/session/memstore"
	"goa.design/apron-incident/runtime/session/redisstore"
	"goa.design/apron-incident/runtime/session/sqlstore"
	"goa.design/apron-incident/runtime/stream"
	"goa.design/apron-incident/runtime/stream/pulsesink"
	"goa.design/apron-incident/runtime/telemetry"
)

func main() {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal(ctx, err)
	}
	if cfg.LogLevel == "debug" {
		ctx = log.Context(ctx, log.WithDebug())
	}
	switch cfg.LogFormat {
	case "json":
		ctx = log.Context(ctx, log.WithFormat(log.FormatJSON))
	case "text":
		ctx = log.Context(ctx, log.WithFormat(log.FormatText))
	}

	tel := telemetry.NewClueProvider()

	eng, err := bootstrap.BuildEngine(cfg, tel)
	if err != nil {
		log.Fatal(ctx, err)
	}

	store, closeStore, err := buildSessionStore(cfg)
	if err != nil {
		log.Fatal(ctx, err)
	}
	defer closeStore()

	audit, closeAudit, err := buildAuditStore(ctx, cfg)
	if err != nil {
		log.Fatal(ctx, err)
	}
	defer closeAudit()

	sink, closeSink, err := buildSink(cfg)
	if err != nil {
		log.Fatal(ctx, err)
	}
	defer closeSink()

	srv, err := httpapi.New(httpapi.Options{
		Scenarios: eng.Scenarios,
		Store:     store,
		Graph:     eng.Graph,
		Parser:    eng.Parser,
		Audit:     audit,
		Sink:      sink,
	})
	if err != nil {
		log.Fatal(ctx, err)
	}

	router := httpapi.NewRouter(srv, httpapi.RouterOptions{
		APIKey:             cfg.APIKey,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	errc := make(chan error, 1)
	go func() {
		log.Printf(ctx, "listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		log.Fatal(ctx, err)
	case sig := <-stop:
		log.Printf(ctx, "received %v, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Print(ctx, log.KV{K: "shutdown_error", V: err.Error()})
	}
}

// buildSessionStore selects the session.Store backend named by
// cfg.SessionStoreBackend (§5, §6 "SESSION_STORE_BACKEND").
func buildSessionStore(cfg config.Config) (session.Store, func(), error) {
	switch cfg.SessionStoreBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return redisstore.New(rdb, "apron:session:"), func() { _ = rdb.Close() }, nil
	case "sql":
		pool, err := pgxpool.New(context.Background(), cfg.SQLDSN)
		if err != nil {
			return nil, func() {}, fmt.Errorf("server: connect sql session store: %w", err)
		}
		return sqlstore.New(pool), pool.Close, nil
	default:
		return memstore.New(), func() {}, nil
	}
}

// buildAuditStore selects the optional durable auditlog.Store named by
// cfg.AuditLogBackend, returning a nil Store (disabling durable audit
// persistence) when unconfigured.
func buildAuditStore(ctx context.Context, cfg config.Config) (auditlog.Store, func(), error) {
	if cfg.AuditLogBackend != "mongo" {
		return nil, func() {}, nil
	}
	client, err := mongodriver.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, func() {}, fmt.Errorf("server: connect mongo audit log: %w", err)
	}
	store, err := mongo.New(mongo.Options{Client: client, Database: cfg.MongoDatabase})
	if err != nil {
		return nil, func() {}, fmt.Errorf("server: build mongo audit log: %w", err)
	}
	return store, func() { _ = client.Disconnect(ctx) }, nil
}

// buildSink selects the optional secondary stream.Sink so other engine
// replicas' SSE subscribers observe the same turn (§6 streaming).
func buildSink(cfg config.Config) (stream.Sink, func(), error) {
	if !cfg.PulseEnabled {
		return nil, func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	client, err := pulsesink.NewClient(pulsesink.Options{Redis: rdb})
	if err != nil {
		return nil, func() {}, fmt.Errorf("server: build pulse sink: %w", err)
	}
	return pulsesink.NewSink(client), func() { _ = rdb.Close() }, nil
}
