package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"kickstarter/internal/kickstarter"
	"kickstarter/pkg/rollup"

	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{kickstarter.ErrCampaignNotFound, http.StatusNotFound},
		{kickstarter.ErrPositionNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: amount", kickstarter.ErrInvalidParameters), http.StatusBadRequest},
		{kickstarter.ErrUnauthorized, http.StatusForbidden},
		{kickstarter.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{kickstarter.ErrInvalidCampaignState, http.StatusConflict},
		{kickstarter.ErrDuplicateCommitment, http.StatusConflict},
		{kickstarter.ErrRaiseCapExceeded, http.StatusConflict},
		{kickstarter.ErrPackageConfigured, http.StatusConflict},
		{kickstarter.ErrPerformancePoolExceeded, http.StatusConflict},
		{fmt.Errorf("create permission: %w", rollup.ErrUnavailable), http.StatusServiceUnavailable},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.status, statusOf(tc.err))
		})
	}
}

func TestEventHub(t *testing.T) {
	hub := NewEventHub()

	t.Run("Campaign Filter", func(t *testing.T) {
		all := hub.subscribe("")
		one := hub.subscribe("campaign-a")
		defer hub.unsubscribe(all)
		defer hub.unsubscribe(one)

		hub.Emit(kickstarter.Event{Type: kickstarter.EventTypeFunded, Campaign: "campaign-a"})
		hub.Emit(kickstarter.Event{Type: kickstarter.EventTypeFunded, Campaign: "campaign-b"})

		assert.Len(t, all.send, 2)
		assert.Len(t, one.send, 1)
		ev := <-one.send
		assert.Equal(t, "campaign-a", ev.Campaign)
	})

	t.Run("Slow Subscriber Dropped", func(t *testing.T) {
		slow := hub.subscribe("")
		for i := 0; i < subscriberBuffer+1; i++ {
			hub.Emit(kickstarter.Event{Type: kickstarter.EventTypeFunded, Campaign: "campaign-a"})
		}
		assert.Equal(t, 0, hub.Subscribers())

		drained := 0
		for range slow.send {
			drained++
		}
		assert.Equal(t, subscriberBuffer, drained)
		hub.unsubscribe(slow)
	})
}
