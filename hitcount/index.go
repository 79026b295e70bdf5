package hitcount

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/hitcount/models"
)

// Dimension is the visitor attribute an active-hit lookup filters on.
type Dimension string

const (
	DimensionAddress Dimension = "address"
	DimensionSession Dimension = "session"
	DimensionUser    Dimension = "user"
)

// ActiveHitIndex queries hits created inside the active window.
type ActiveHitIndex struct {
	db     *gorm.DB
	window time.Duration
	now    Clock
}

// NewActiveHitIndex builds the index from cfg.KeepHitActive. A span without units is
// rejected rather than defaulted.
func NewActiveHitIndex(db *gorm.DB, cfg Config, clock Clock) (*ActiveHitIndex, error) {
	window, err := cfg.KeepHitActive.Duration()
	if err != nil {
		return nil, fmt.Errorf("active window: %w", err)
	}
	if clock == nil {
		clock = systemClock
	}
	return &ActiveHitIndex{db: db, window: window, now: clock}, nil
}

// Window returns the active window length.
func (x *ActiveHitIndex) Window() time.Duration {
	return x.window
}

func (x *ActiveHitIndex) active(ctx context.Context) *gorm.DB {
	return x.db.WithContext(ctx).Model(&models.Hit{}).Where("created_at >= ?", x.now().Add(-x.window))
}

// IsActive reports whether counterID has an active hit whose dim equals value.
// For DimensionUser, value is the decimal user id.
func (x *ActiveHitIndex) IsActive(ctx context.Context, dim Dimension, value string, counterID uint) (bool, error) {
	if value == "" {
		return false, nil
	}
	q := x.active(ctx).Where("hit_count_id = ?", counterID)
	switch dim {
	case DimensionAddress:
		q = q.Where("ip = ?", value)
	case DimensionSession:
		q = q.Where("session = ?", value)
	case DimensionUser:
		uid, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return false, fmt.Errorf("user id %q: %w", value, ErrValidation)
		}
		q = q.Where("user_id = ?", uid)
	default:
		return false, fmt.Errorf("unknown dimension %q: %w", dim, ErrValidation)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, storeErr("check active hit", err)
	}
	return n > 0, nil
}

// CountByAddress counts active hits from ip across every counter.
func (x *ActiveHitIndex) CountByAddress(ctx context.Context, ip string) (int64, error) {
	var n int64
	if err := x.active(ctx).Where("ip = ?", ip).Count(&n).Error; err != nil {
		return 0, storeErr("count active hits by ip", err)
	}
	return n, nil
}

// CountBySession counts active hits from session on one counter.
func (x *ActiveHitIndex) CountBySession(ctx context.Context, session string, counterID uint) (int64, error) {
	var n int64
	err := x.active(ctx).Where("session = ? AND hit_count_id = ?", session, counterID).Count(&n).Error
	if err != nil {
		return 0, storeErr("count active hits by session", err)
	}
	return n, nil
}

// HitsInLast counts hits on a counter during the trailing span. Results are only
// accurate up to the retention window, since older hits have been swept.
func (x *ActiveHitIndex) HitsInLast(ctx context.Context, counterID uint, span Span) (int64, error) {
	d, err := span.Duration()
	if err != nil {
		return 0, err
	}
	var n int64
	err = x.db.WithContext(ctx).Model(&models.Hit{}).
		Where("hit_count_id = ? AND created_at >= ?", counterID, x.now().Add(-d)).
		Count(&n).Error
	if err != nil {
		return 0, storeErr("count recent hits", err)
	}
	return n, nil
}
