package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"kickstarter/internal/custody"
	"kickstarter/internal/handlers"
	"kickstarter/internal/kickstarter"
	"kickstarter/internal/metadata"
	"kickstarter/internal/middleware"
	"kickstarter/internal/relay"
	"kickstarter/internal/routes"
	"kickstarter/pkg/config"
	"kickstarter/pkg/metrics"
	"kickstarter/pkg/rollup"
	"kickstarter/schedule"

	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	// Initialize database
	config.InitDB(cfg)

	var svc rollup.Service
	if cfg.RollupEndpoint != "" {
		svc = rollup.NewClient(cfg.RollupEndpoint, cfg.RollupToken)
		log.WithField("endpoint", cfg.RollupEndpoint).Info("using rollup service")
	} else {
		svc = rollup.NewSimulator()
		log.Warn("ROLLUP_ENDPOINT not set, using the in-process rollup simulator")
	}

	hub := handlers.NewEventHub()
	emitters := kickstarter.MultiEmitter{
		hub,
		kickstarter.EmitterFunc(func(ev kickstarter.Event) { metrics.Kickstarter().ObserveEvent(ev.Type) }),
	}

	// Initialize RabbitMQ (optional)
	config.InitRabbitMQ(cfg)
	if config.RabbitMQ != nil {
		defer config.RabbitMQ.Close()
		publisher, err := config.NewPublisher(config.RabbitMQ)
		if err != nil {
			log.Fatal("Failed to open publisher: ", err)
		}
		defer publisher.Close()
		emitters = append(emitters, relay.New(publisher, cfg.EventsQueue, cfg.ConfirmationQueue))
	}

	engine := kickstarter.NewEngine(config.DB, custody.NewLedger(config.DB), metadata.NewRegistry(config.DB), svc,
		kickstarter.WithEmitter(emitters),
	)

	signatures := middleware.NewSignatureLedger(config.DB)
	r := routes.SetupRouter(handlers.NewHandler(engine, hub), routes.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit: middleware.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimitPerSecond,
			Burst:             cfg.RateLimitBurst,
		},
		HealthEndpoints: cfg.HealthEndpoints,
		Signatures: middleware.SignatureConfig{
			Store:   signatures,
			MaxSkew: cfg.SignatureMaxSkew,
		},
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pruning, err := schedule.StartPruning(ctx, signatures, cfg.SignatureMaxSkew, cfg.SignaturePruneSchedule)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { <-pruning.Stop().Done() }()

	go func() {
		log.WithField("port", cfg.Port).Info("kickstarter api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown: %v", err)
	}
	log.Info("kickstarter api stopped")
}
