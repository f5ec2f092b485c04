package kickstarter

import (
	"strconv"
	"time"

	"kickstarter/internal/models"

	"github.com/google/uuid"
)

const (
	EventTypeCampaignInitialized   = "kickstarter.campaign.initialized"
	EventTypePublicRoundStarted    = "kickstarter.public_round.started"
	EventTypePrivateRoundStarted   = "kickstarter.private_round.started"
	EventTypePrivateRoundEnded     = "kickstarter.private_round.ended"
	EventTypeMinimumRaiseUpdated   = "kickstarter.minimum_raise.updated"
	EventTypeFunded                = "kickstarter.funded"
	EventTypePrivateCommitment     = "kickstarter.private.commitment"
	EventTypePrivateRoundFinalized = "kickstarter.private_round.finalized"
	EventTypePermissionRequested   = "kickstarter.permission.requested"
	EventTypePermissionActivated   = "kickstarter.permission.activated"
	EventTypePermissionRevoked     = "kickstarter.permission.revoked"
	EventTypeDelegationRequested   = "kickstarter.delegation.requested"
	EventTypeDelegationConfirmed   = "kickstarter.delegation.confirmed"
	EventTypeUndelegationRequested = "kickstarter.undelegation.requested"
	EventTypeUndelegationConfirmed = "kickstarter.undelegation.confirmed"
)

const EventTypePerformancePackageConfigured = "kickstarter.performance_package.configured"

// Event is a committed state change. Private commitment events never carry
// the funder or the amount.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Campaign   string            `json:"campaign"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  time.Time         `json:"timestamp"`
}

// NeedsConfirmation reports whether the event starts an asynchronous request
// the worker has to poll.
func (e Event) NeedsConfirmation() bool {
	switch e.Type {
	case EventTypePermissionRequested, EventTypeDelegationRequested, EventTypeUndelegationRequested:
		return true
	}
	return false
}

// Emitter receives events after their unit of work committed
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards events
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// MultiEmitter forwards every event to each emitter in order
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ev Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(ev)
		}
	}
}

// EmitterFunc adapts a function to an Emitter
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(ev Event) { f(ev) }

func newEvent(eventType string, campaign *models.Campaign, now time.Time, attrs map[string]string) Event {
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs["status"] = string(campaign.Status)
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Campaign:   campaign.Address,
		Attributes: attrs,
		Timestamp:  now,
	}
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}
