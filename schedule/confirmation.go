// Package schedule drives the asynchronous rollup confirmations from outside
// the engine: a queue handler with backoff and a periodic sweep.
package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kickstarter/internal/kickstarter"
	"kickstarter/internal/models"
	"kickstarter/internal/relay"
	"kickstarter/pkg/metrics"

	"github.com/gagliardetto/solana-go"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

var ErrStillPending = errors.New("confirmation still pending")

// Refresher is the part of the engine the confirmer polls through
type Refresher interface {
	RefreshPermissionStatus(ctx context.Context, campaign solana.PublicKey) (*models.PermissionRecord, error)
	RefreshDelegationStatus(ctx context.Context, campaign solana.PublicKey) (*models.DelegationRecord, error)
	PendingConfirmations(ctx context.Context) ([]solana.PublicKey, error)
}

type Confirmer struct {
	engine       Refresher
	attempts     int
	initialDelay time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewConfirmer(engine Refresher, attempts int, initialDelay time.Duration) *Confirmer {
	return &Confirmer{
		engine:       engine,
		attempts:     attempts,
		initialDelay: initialDelay,
		sleep:        sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// refresh polls both records of a campaign once and reports whether anything
// is still waiting on the rollup service.
func (c *Confirmer) refresh(ctx context.Context, campaign solana.PublicKey) (bool, error) {
	pending := false

	permission, err := c.engine.RefreshPermissionStatus(ctx, campaign)
	switch {
	case errors.Is(err, kickstarter.ErrPermissionNotActive):
	case err != nil:
		return false, err
	case permission.Status == models.PermissionStatusPending:
		pending = true
	}

	delegation, err := c.engine.RefreshDelegationStatus(ctx, campaign)
	switch {
	case errors.Is(err, kickstarter.ErrDelegationNotActive):
	case err != nil:
		return false, err
	case delegation.Status == models.DelegationStatusDelegating, delegation.Status == models.DelegationStatusUndelegating:
		pending = true
	}
	return pending, nil
}

// Confirm polls a campaign with exponential backoff until nothing is pending
// or the attempts run out.
func (c *Confirmer) Confirm(ctx context.Context, campaign solana.PublicKey) error {
	delay := c.initialDelay
	for attempt := 1; attempt <= c.attempts; attempt++ {
		pending, err := c.refresh(ctx, campaign)
		if err != nil {
			metrics.Kickstarter().ObserveConfirmation("failed")
			log.WithFields(log.Fields{"campaign": campaign.String(), "attempt": attempt}).Warnf("confirmation poll failed: %v", err)
		} else if !pending {
			metrics.Kickstarter().ObserveConfirmation("confirmed")
			return nil
		} else {
			metrics.Kickstarter().ObserveConfirmation("pending")
		}

		if attempt == c.attempts {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}
	return fmt.Errorf("%w: %s after %d attempts", ErrStillPending, campaign, c.attempts)
}

// HandleMessage is the consumer handler of the confirmation queue. Returning
// an error requeues the request.
func (c *Confirmer) HandleMessage(ctx context.Context, body []byte) error {
	var req relay.ConfirmationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		// a malformed message would be redelivered forever
		log.Errorf("dropping malformed confirmation request: %v", err)
		return nil
	}
	campaign, err := solana.PublicKeyFromBase58(req.Campaign)
	if err != nil {
		log.WithField("campaign", req.Campaign).Errorf("dropping confirmation request: %v", err)
		return nil
	}
	log.WithFields(log.Fields{"campaign": req.Campaign, "event": req.EventType}).Info("confirming request")
	return c.Confirm(ctx, campaign)
}

// Sweep polls every pending campaign once.
func (c *Confirmer) Sweep(ctx context.Context) error {
	campaigns, err := c.engine.PendingConfirmations(ctx)
	if err != nil {
		return err
	}
	for _, campaign := range campaigns {
		if _, err := c.refresh(ctx, campaign); err != nil {
			log.WithField("campaign", campaign.String()).Warnf("sweep refresh failed: %v", err)
		}
	}
	if len(campaigns) > 0 {
		log.Infof("swept %d pending campaigns", len(campaigns))
	}
	return nil
}

// StartSweeps runs Sweep on spec, a seconds-resolution cron expression. Stop
// the returned cron to end the sweeps.
func (c *Confirmer) StartSweeps(ctx context.Context, spec string) (*cron.Cron, error) {
	scheduler := cron.New(cron.WithSeconds())
	_, err := scheduler.AddFunc(spec, func() {
		if err := c.Sweep(ctx); err != nil {
			log.Errorf("confirmation sweep failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	scheduler.Start()
	return scheduler, nil
}
