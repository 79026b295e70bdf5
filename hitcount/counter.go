package hitcount

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/hitcount/models"
)

// Target identifies a content object by type name and primary key.
type Target struct {
	ContentType string
	ObjectPK    uint
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.ContentType, t.ObjectPK)
}

// CounterStore owns HitCount rows. All changes to Hits are single atomic UPDATEs
// ("hits = hits + 1"), never read-modify-write.
type CounterStore struct {
	db  *gorm.DB
	now Clock
}

// NewCounterStore creates a CounterStore on db. A nil clock means UTC wall time.
func NewCounterStore(db *gorm.DB, clock Clock) *CounterStore {
	if clock == nil {
		clock = systemClock
	}
	return &CounterStore{db: db, now: clock}
}

// GetOrCreate returns the counter for t, inserting it on first use. Concurrent first
// lookups race on the unique (content_type, object_pk) index; the loser's insert is a
// no-op and both read the same row.
func (s *CounterStore) GetOrCreate(ctx context.Context, t Target) (*models.HitCount, error) {
	if t.ContentType == "" {
		return nil, fmt.Errorf("get counter %s: empty content type: %w", t, ErrValidation)
	}
	db := s.db.WithContext(ctx)
	fresh := models.HitCount{ContentType: t.ContentType, ObjectPK: t.ObjectPK}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
		return nil, storeErr("create counter "+t.String(), err)
	}
	return s.Find(ctx, t)
}

// Find returns the counter for t without creating it.
func (s *CounterStore) Find(ctx context.Context, t Target) (*models.HitCount, error) {
	var hc models.HitCount
	err := s.db.WithContext(ctx).
		Where("content_type = ? AND object_pk = ?", t.ContentType, t.ObjectPK).
		First(&hc).Error
	if err != nil {
		return nil, storeErr("find counter "+t.String(), err)
	}
	return &hc, nil
}

// Get loads a counter by primary key.
func (s *CounterStore) Get(ctx context.Context, id uint) (*models.HitCount, error) {
	var hc models.HitCount
	if err := s.db.WithContext(ctx).First(&hc, id).Error; err != nil {
		return nil, storeErr(fmt.Sprintf("get counter %d", id), err)
	}
	return &hc, nil
}

// Increment adds one hit to the counter.
func (s *CounterStore) Increment(ctx context.Context, id uint) error {
	return s.add(s.db.WithContext(ctx), id, 1)
}

// Decrement removes one hit from the counter. Callers only use it on controlled
// deletion paths; it does not guard against going below zero.
func (s *CounterStore) Decrement(ctx context.Context, id uint) error {
	return s.add(s.db.WithContext(ctx), id, -1)
}

func (s *CounterStore) add(tx *gorm.DB, id uint, delta int) error {
	res := tx.Model(&models.HitCount{}).Where("id = ?", id).Updates(map[string]interface{}{
		"hits":       gorm.Expr("hits + ?", delta),
		"updated_at": s.now(),
	})
	if res.Error != nil {
		return storeErr(fmt.Sprintf("adjust counter %d", id), res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("adjust counter %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteTarget removes the counter for t together with all of its hits and returns the
// number of hits removed.
func (s *CounterStore) DeleteTarget(ctx context.Context, t Target) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var hc models.HitCount
		if err := tx.Where("content_type = ? AND object_pk = ?", t.ContentType, t.ObjectPK).First(&hc).Error; err != nil {
			return storeErr("delete counter "+t.String(), err)
		}
		res := tx.Where("hit_count_id = ?", hc.ID).Delete(&models.Hit{})
		if res.Error != nil {
			return storeErr("delete hits of "+t.String(), res.Error)
		}
		removed = res.RowsAffected
		if err := tx.Delete(&hc).Error; err != nil {
			return storeErr("delete counter "+t.String(), err)
		}
		return nil
	})
	return removed, err
}

// List pages through counters, most hits first.
func (s *CounterStore) List(ctx context.Context, page, size int) ([]models.HitCount, int64, error) {
	var (
		items []models.HitCount
		total int64
	)
	if err := s.db.WithContext(ctx).Model(&models.HitCount{}).Count(&total).Error; err != nil {
		return nil, 0, storeErr("count counters", err)
	}
	if err := s.db.WithContext(ctx).Order("hits DESC").Order("id").Offset((page - 1) * size).Limit(size).Find(&items).Error; err != nil {
		return nil, 0, storeErr("list counters", err)
	}
	return items, total, nil
}
