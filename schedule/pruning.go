package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Pruner forgets consumed request signatures older than a cutoff
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// PruneSignatures drops signatures that fall outside the accepted request
// window, since those requests are refused on their timestamp alone.
func PruneSignatures(ctx context.Context, pruner Pruner, window time.Duration, now time.Time) (int64, error) {
	pruned, err := pruner.Prune(ctx, now.Add(-window))
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		log.Infof("pruned %d consumed signatures", pruned)
	}
	return pruned, nil
}

// StartPruning runs PruneSignatures on spec, a seconds-resolution cron
// expression.
func StartPruning(ctx context.Context, pruner Pruner, window time.Duration, spec string) (*cron.Cron, error) {
	scheduler := cron.New(cron.WithSeconds())
	_, err := scheduler.AddFunc(spec, func() {
		if _, err := PruneSignatures(ctx, pruner, window, time.Now()); err != nil {
			log.Error(err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", spec, err)
	}
	scheduler.Start()
	return scheduler, nil
}
