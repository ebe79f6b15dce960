package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/org-import/modules/orgimport/infrastructure/persistence"
	"github.com/iota-uz/org-import/modules/orgimport/infrastructure/progressstore"
	"github.com/iota-uz/org-import/modules/orgimport/presentation/controllers"
	"github.com/iota-uz/org-import/modules/orgimport/services"
	"github.com/iota-uz/org-import/pkg/application"
	"github.com/iota-uz/org-import/pkg/composables"
	"github.com/iota-uz/org-import/pkg/configuration"
	"github.com/iota-uz/org-import/pkg/metrics"
	"github.com/iota-uz/org-import/pkg/middleware"
	"github.com/iota-uz/org-import/pkg/server"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}
	if err := persistence.EnsureSchema(composables.WithPool(ctx, pool)); err != nil {
		log.Fatalf("failed to apply org import schema: %v", err)
	}

	app := application.New(&application.ApplicationOptions{
		Pool:   pool,
		Logger: logger,
	})
	app.RegisterMiddleware(
		middleware.WithLogger(logger, conf.RequestIDHeader),
		middleware.WithPool(pool),
	)
	if conf.Prometheus.Enabled {
		app.RegisterMiddleware(metrics.Instrument())
	}

	svc := services.NewImportService(persistence.NewImportRepository(), logger, services.Options{
		MaxRowsPerSheet:       conf.Import.MaxRowsPerSheet,
		MaxWavePasses:         conf.Import.MaxWavePasses,
		WaveConcurrency:       conf.Import.WaveConcurrency,
		AllowPartial:          conf.Import.AllowPartial,
		AutoResolveDuplicates: conf.Import.AutoResolveDuplicates,
	})
	app.RegisterControllers(controllers.NewImportController(controllers.ImportControllerOptions{
		Service:       svc,
		Runs:          services.NewRunRegistry(conf.Import.ProgressTTL),
		Progress:      progressStore(ctx, conf, logger),
		Logger:        logger,
		MaxUploadSize: conf.MaxUploadSize,
		ProgressTick:  conf.Import.ProgressTick,
		Middleware:    []mux.MiddlewareFunc{middleware.ProvideIdentity()},
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}))
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	serverInstance := server.NewHTTPServer(app, nil, nil)
	log.Printf("Listening on: %s\n", conf.SocketAddress)
	if err := serverInstance.Start(conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

// progressStore prefers Redis so progress survives restarts and is shared by
// replicas, and falls back to process memory when Redis is unreachable.
func progressStore(ctx context.Context, conf *configuration.Configuration, logger *logrus.Logger) progressstore.Store {
	client := redis.NewClient(&redis.Options{Addr: conf.RedisURL})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).WithField("addr", conf.RedisURL).Warn("redis unavailable, keeping import progress in memory")
		_ = client.Close()
		return progressstore.NewMemoryStore()
	}
	return progressstore.NewRedisStore(client, conf.Import.ProgressTTL)
}
