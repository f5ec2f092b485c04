package config

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

var RabbitMQ *amqp.Connection

const (
	dialAttempts = 10
	dialDelay    = 3 * time.Second
)

// DialRabbitMQ connects to the broker, retrying while it starts up
func DialRabbitMQ(url string) (*amqp.Connection, error) {
	var err error
	for i := 0; i < dialAttempts; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		if i < dialAttempts-1 {
			log.Warnf("failed to connect to RabbitMQ (attempt %d/%d): %v, retrying in %v", i+1, dialAttempts, err, dialDelay)
			time.Sleep(dialDelay)
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", dialAttempts, err)
}

// InitRabbitMQ connects RabbitMQ when a broker is configured
func InitRabbitMQ(cfg *Config) {
	url := cfg.RabbitMQURL()
	if url == "" {
		log.Info("RabbitMQ not configured, skipping initialization")
		return
	}
	conn, err := DialRabbitMQ(url)
	if err != nil {
		log.Fatal(err)
	}
	RabbitMQ = conn
	log.WithField("host", cfg.RabbitMQHost).Info("connected to RabbitMQ")
}

func declareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
}
