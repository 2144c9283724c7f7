package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type Job struct {
	purger    stalePurger
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

type stalePurger interface {
	PurgeStaleUnverified(ctx context.Context, cutoff time.Time) (int64, error)
}

func New(purger stalePurger, retention time.Duration, logger *zap.Logger) *Job {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		purger:    purger,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

// Run drops verification rows that never completed and have aged past the
// retention window. Verified rows are kept so members are not re-gated.
func (j *Job) Run(ctx context.Context) error {
	if j.purger == nil {
		return nil
	}

	cutoff := j.now().Add(-j.retention)
	rows, err := j.purger.PurgeStaleUnverified(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge stale unverified rows: %w", err)
	}
	if rows > 0 {
		j.logger.Info("verification cleanup completed", zap.Int64("purged", rows))
	}

	return nil
}
