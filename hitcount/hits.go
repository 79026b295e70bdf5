package hitcount

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/cppla/hitcount/models"
)

// HitStore persists admitted hits and handles their removal.
type HitStore struct {
	db       *gorm.DB
	counters *CounterStore
	now      Clock
}

// NewHitStore creates a HitStore. A nil clock means UTC wall time.
func NewHitStore(db *gorm.DB, counters *CounterStore, clock Clock) *HitStore {
	if clock == nil {
		clock = systemClock
	}
	return &HitStore{db: db, counters: counters, now: clock}
}

// Record inserts a hit for the fingerprint. The insert and the counter increment
// commit together; an unknown counter rolls both back with ErrNotFound.
func (s *HitStore) Record(ctx context.Context, fp Fingerprint, counterID uint) (*models.Hit, error) {
	hit := models.Hit{
		CreatedAt:  s.now(),
		Session:    fp.Session,
		UserAgent:  TruncateUserAgent(fp.UserAgent),
		UserID:     fp.UserID,
		HitCountID: counterID,
	}
	if fp.IP != "" {
		ip := fp.IP
		hit.IP = &ip
	}
	op := fmt.Sprintf("record hit on counter %d", counterID)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner models.HitCount
		if err := tx.Select("id").First(&owner, counterID).Error; err != nil {
			return storeErr(op, err)
		}
		if err := tx.Create(&hit).Error; err != nil {
			return storeErr(op, err)
		}
		return s.counters.add(tx, counterID, 1)
	})
	if err != nil {
		return nil, err
	}
	return &hit, nil
}

// Get loads a hit by id.
func (s *HitStore) Get(ctx context.Context, id uint) (*models.Hit, error) {
	var h models.Hit
	if err := s.db.WithContext(ctx).First(&h, id).Error; err != nil {
		return nil, storeErr(fmt.Sprintf("get hit %d", id), err)
	}
	return &h, nil
}

// Delete removes one hit. Unless preserveCounter is set the owning counter loses
// one hit in the same transaction.
func (s *HitStore) Delete(ctx context.Context, id uint, preserveCounter bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var h models.Hit
		if err := tx.First(&h, id).Error; err != nil {
			return storeErr(fmt.Sprintf("delete hit %d", id), err)
		}
		return s.deleteOne(tx, &h, preserveCounter)
	})
}

func (s *HitStore) deleteOne(tx *gorm.DB, h *models.Hit, preserveCounter bool) error {
	if err := tx.Delete(h).Error; err != nil {
		return storeErr(fmt.Sprintf("delete hit %d", h.ID), err)
	}
	if preserveCounter {
		return nil
	}
	return s.counters.add(tx, h.HitCountID, -1)
}

// DeleteSelected is the administrative bulk delete. It deletes hit by hit so every
// removal decrements its counter (unless preserveCounter), all in one transaction.
// Callers without the admin privilege get ErrPermission and nothing is removed.
func (s *HitStore) DeleteSelected(ctx context.Context, admin bool, ids []uint, preserveCounter bool) (int, error) {
	if !admin {
		return 0, fmt.Errorf("delete hits: %w", ErrPermission)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var hits []models.Hit
		if err := tx.Where("id IN ?", ids).Order("id").Find(&hits).Error; err != nil {
			return storeErr("load hits", err)
		}
		for i := range hits {
			if err := s.deleteOne(tx, &hits[i], preserveCounter); err != nil {
				return err
			}
		}
		deleted = len(hits)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// HitFilter narrows List. Zero fields are ignored.
type HitFilter struct {
	CounterID uint
	// Search matches ip or user agent substrings.
	Search string
}

// List pages through hits, newest first.
func (s *HitStore) List(ctx context.Context, f HitFilter, page, size int) ([]models.Hit, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		if f.CounterID != 0 {
			db = db.Where("hit_count_id = ?", f.CounterID)
		}
		if q := strings.TrimSpace(f.Search); q != "" {
			db = db.Where("ip LIKE ? OR user_agent LIKE ?", "%"+q+"%", "%"+q+"%")
		}
		return db
	}
	var (
		items []models.Hit
		total int64
	)
	if err := s.db.WithContext(ctx).Model(&models.Hit{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, storeErr("count hits", err)
	}
	err := s.db.WithContext(ctx).Scopes(scope).
		Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&items).Error
	if err != nil {
		return nil, 0, storeErr("list hits", err)
	}
	return items, total, nil
}
