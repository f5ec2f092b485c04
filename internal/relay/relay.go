// Package relay forwards committed engine events to the message broker.
package relay

import (
	"time"

	"kickstarter/internal/kickstarter"

	log "github.com/sirupsen/logrus"
)

type Publisher interface {
	Publish(queueName string, message interface{}) error
}

// ConfirmationRequest asks the worker to poll the rollup service for a
// campaign until its pending permission or delegation settles.
type ConfirmationRequest struct {
	Campaign    string    `json:"campaign"`
	EventType   string    `json:"event_type"`
	RequestedAt time.Time `json:"requested_at"`
}

// Relay is a kickstarter.Emitter. Every event goes to the events queue and
// requests that need confirmation also go to the confirmation queue.
type Relay struct {
	publisher         Publisher
	eventsQueue       string
	confirmationQueue string
}

func New(publisher Publisher, eventsQueue string, confirmationQueue string) *Relay {
	return &Relay{
		publisher:         publisher,
		eventsQueue:       eventsQueue,
		confirmationQueue: confirmationQueue,
	}
}

// Emit never fails the caller. The state change is already committed and the
// worker sweep picks up confirmations that were not delivered.
func (r *Relay) Emit(ev kickstarter.Event) {
	if err := r.publisher.Publish(r.eventsQueue, ev); err != nil {
		log.WithFields(log.Fields{"type": ev.Type, "campaign": ev.Campaign}).Errorf("failed to publish event: %v", err)
	}
	if !ev.NeedsConfirmation() {
		return
	}
	req := ConfirmationRequest{
		Campaign:    ev.Campaign,
		EventType:   ev.Type,
		RequestedAt: ev.Timestamp,
	}
	if err := r.publisher.Publish(r.confirmationQueue, req); err != nil {
		log.WithField("campaign", ev.Campaign).Errorf("failed to request confirmation: %v", err)
	}
}
