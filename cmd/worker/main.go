package main

import (
	"context"
	"os/signal"
	"syscall"

	"kickstarter/internal/custody"
	"kickstarter/internal/kickstarter"
	"kickstarter/internal/metadata"
	"kickstarter/internal/relay"
	"kickstarter/pkg/config"
	"kickstarter/pkg/metrics"
	"kickstarter/pkg/rollup"
	"kickstarter/schedule"

	log "github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	if cfg.RollupEndpoint == "" {
		log.Fatal("ROLLUP_ENDPOINT is required by the confirmation worker")
	}

	config.InitDB(cfg)
	config.InitRabbitMQ(cfg)
	if config.RabbitMQ == nil {
		log.Fatal("RABBITMQ_HOST is required by the confirmation worker")
	}
	defer config.RabbitMQ.Close()

	publisher, err := config.NewPublisher(config.RabbitMQ)
	if err != nil {
		log.Fatal("Failed to open publisher: ", err)
	}
	defer publisher.Close()

	engine := kickstarter.NewEngine(config.DB, custody.NewLedger(config.DB), metadata.NewRegistry(config.DB),
		rollup.NewClient(cfg.RollupEndpoint, cfg.RollupToken),
		kickstarter.WithEmitter(kickstarter.MultiEmitter{
			relay.New(publisher, cfg.EventsQueue, cfg.ConfirmationQueue),
			kickstarter.EmitterFunc(func(ev kickstarter.Event) { metrics.Kickstarter().ObserveEvent(ev.Type) }),
		}),
	)
	confirmer := schedule.NewConfirmer(engine, cfg.ConfirmAttempts, cfg.ConfirmInitialDelay)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler, err := confirmer.StartSweeps(ctx, cfg.SweepSchedule)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { <-scheduler.Stop().Done() }()

	msgConsumer, err := config.NewConsumer(config.RabbitMQ, cfg.ConfirmationQueue)
	if err != nil {
		log.Fatal("Failed to create consumer: ", err)
	}
	defer msgConsumer.Close()

	log.WithFields(log.Fields{
		"queue":    cfg.ConfirmationQueue,
		"schedule": cfg.SweepSchedule,
	}).Info("confirmation worker started, waiting for messages...")

	if err := msgConsumer.Consume(ctx, confirmer.HandleMessage); err != nil {
		log.Errorf("consumer stopped: %v", err)
	}
	log.Info("confirmation worker stopped")
}
