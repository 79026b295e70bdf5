package hitcount

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/hitcount/models"
)

// DefaultSweepBatch is the number of hits deleted per statement.
const DefaultSweepBatch = 1000

// Sweeper purges hits older than the retention window. It deletes rows directly and
// never touches counters, so historical totals survive the cleanup.
type Sweeper struct {
	db    *gorm.DB
	batch int
	now   Clock
	log   *zap.Logger
}

// NewSweeper creates a Sweeper. batch <= 0 selects DefaultSweepBatch.
func NewSweeper(db *gorm.DB, batch int, clock Clock, logger *zap.Logger) *Sweeper {
	if batch <= 0 {
		batch = DefaultSweepBatch
	}
	if clock == nil {
		clock = systemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{db: db, batch: batch, now: clock, log: logger.Named("sweeper")}
}

// Sweep deletes every hit created before now-retention and returns how many rows were
// removed. Each batch commits on its own; a cancelled context stops between batches
// and the next run picks up where this one left off.
func (s *Sweeper) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("sweep: retention %s: %w", retention, ErrConfiguration)
	}
	cutoff := s.now().Add(-retention)
	var removed int64
	for {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		var ids []uint
		err := s.db.WithContext(ctx).Model(&models.Hit{}).
			Where("created_at < ?", cutoff).
			Order("id").Limit(s.batch).
			Pluck("id", &ids).Error
		if err != nil {
			return removed, storeErr("sweep: select batch", err)
		}
		if len(ids) == 0 {
			break
		}
		res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Hit{})
		if res.Error != nil {
			return removed, storeErr("sweep: delete batch", res.Error)
		}
		removed += res.RowsAffected
		sweptTotal.Add(float64(res.RowsAffected))
		if len(ids) < s.batch {
			break
		}
	}
	s.log.Info("sweep finished", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
	return removed, nil
}

// SweepSpan is Sweep with the retention given as a Span.
func (s *Sweeper) SweepSpan(ctx context.Context, retention Span) (int64, error) {
	d, err := retention.Duration()
	if err != nil {
		return 0, err
	}
	return s.Sweep(ctx, d)
}

// Pending reports how many hits Sweep would remove for retention right now.
func (s *Sweeper) Pending(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("sweep: retention %s: %w", retention, ErrConfiguration)
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Hit{}).
		Where("created_at < ?", s.now().Add(-retention)).
		Count(&n).Error
	if err != nil {
		return 0, storeErr("sweep: count pending", err)
	}
	return n, nil
}
