package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	controlhandler "attest/internal/control/handler"
	controlservice "attest/internal/control/service"
	controlmemory "attest/internal/control/store/memory"
	controlpostgres "attest/internal/control/store/postgres"
	"attest/internal/grc/catalog"
	"attest/internal/platform/config"
	"attest/internal/platform/database"
	"attest/internal/platform/httpserver"
	"attest/internal/platform/logger"
	"attest/internal/platform/middleware"
	platformredis "attest/internal/platform/redis"
	trailhandler "attest/internal/trail/handler"
	trailmetrics "attest/internal/trail/metrics"
	"attest/internal/trail/outbox"
	"attest/internal/trail/registry"
	trailservice "attest/internal/trail/service"
	trailmemory "attest/internal/trail/store/memory"
	trailpostgres "attest/internal/trail/store/postgres"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New()
	catalog.Register(reg, catalog.StaticDirectory{
		Users:      map[string]string{},
		Frameworks: map[string]string{},
	})
	log.Info("attribute registry ready", "entity_types", reg.EntityTypes())

	m := trailmetrics.New()

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err.Error())
		os.Exit(1)
	}
	var feed *outbox.RedisFeed
	if redisClient != nil {
		defer redisClient.Close()
		feed = outbox.NewRedisFeed(redisClient)
	}

	var (
		trailStore   trailservice.Store
		controlStore controlservice.Store
		runner       controlservice.TxRunner
		relay        *outbox.Relay
	)

	if cfg.DatabaseURL != "" {
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("database connection failed", "error", err.Error())
			os.Exit(1)
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			log.Error("schema migration failed", "error", err.Error())
			os.Exit(1)
		}

		trailStore = trailpostgres.New(db)
		controlStore = controlpostgres.New(db)
		runner = newPostgresTx(db)

		if len(cfg.KafkaBrokers) > 0 {
			publisher, err := outbox.NewKafkaPublisher(ctx, cfg.KafkaBrokers, cfg.AuditTopic)
			if err != nil {
				log.Error("kafka connection failed", "error", err.Error())
				os.Exit(1)
			}
			defer publisher.Close()

			relayOpts := []outbox.RelayOption{
				outbox.WithLogger(log),
				outbox.WithMetrics(m),
			}
			if feed != nil {
				relayOpts = append(relayOpts, outbox.WithFeed(feed))
			}
			relay = outbox.NewRelay(db, publisher, config.RelayInterval, relayOpts...)
		}
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		trailStore = trailmemory.New()
		controlStore = controlmemory.New()
		runner = passthroughTx{}
	}

	queryOpts := []trailservice.Option{
		trailservice.WithLogger(log),
		trailservice.WithMetrics(m),
	}
	if feed != nil {
		queryOpts = append(queryOpts, trailservice.WithActivityFeed(feed))
	}

	capturer := trailservice.NewCapturer(trailStore, reg,
		trailservice.WithLogger(log), trailservice.WithMetrics(m))
	query := trailservice.NewQuery(trailStore, queryOpts...)
	controls := controlservice.New(controlStore, capturer, runner,
		controlservice.WithLogger(log))

	jwtValidator := middleware.NewHMACValidator(cfg.JWTSigningKey)

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())
	trailhandler.New(query, log, jwtValidator).Register(router)
	controlhandler.New(controls, log, jwtValidator).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting attest server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if relay != nil {
		group.Go(func() error {
			err := relay.Run(groupCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", "error", err.Error())
		os.Exit(1)
	}
	log.Info("server stopped")
}
