package hitcount

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/hitcount/models"
)

// BlockList answers whether an address or user agent is denylisted. Lookups are exact,
// case-sensitive and served by the unique index on each table.
type BlockList struct {
	db *gorm.DB
}

// NewBlockList creates a BlockList on db.
func NewBlockList(db *gorm.DB) *BlockList {
	return &BlockList{db: db}
}

// IsAddressBlocked returns false for an empty address.
func (b *BlockList) IsAddressBlocked(ctx context.Context, ip string) (bool, error) {
	if ip == "" {
		return false, nil
	}
	var n int64
	err := b.db.WithContext(ctx).Model(&models.BlockedIP{}).Where("ip = ?", ip).Count(&n).Error
	if err != nil {
		return false, storeErr("check blocked ip", err)
	}
	return n > 0, nil
}

// IsAgentBlocked returns false for an empty user agent.
func (b *BlockList) IsAgentBlocked(ctx context.Context, ua string) (bool, error) {
	if ua == "" {
		return false, nil
	}
	var n int64
	err := b.db.WithContext(ctx).Model(&models.BlockedUserAgent{}).Where("user_agent = ?", ua).Count(&n).Error
	if err != nil {
		return false, storeErr("check blocked user agent", err)
	}
	return n > 0, nil
}

// BlockAddress adds ip to the denylist. Blocking an already blocked address is a no-op.
func (b *BlockList) BlockAddress(ctx context.Context, ip string) (*models.BlockedIP, error) {
	return blockAddress(b.db.WithContext(ctx), ip)
}

// BlockAgent adds ua to the denylist. Blocking an already blocked agent is a no-op.
func (b *BlockList) BlockAgent(ctx context.Context, ua string) (*models.BlockedUserAgent, error) {
	return blockAgent(b.db.WithContext(ctx), ua)
}

func blockAddress(tx *gorm.DB, ip string) (*models.BlockedIP, error) {
	if ip == "" {
		return nil, storeErr("block ip", ErrValidation)
	}
	entry := models.BlockedIP{IP: ip}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error; err != nil {
		return nil, storeErr("block ip", err)
	}
	var out models.BlockedIP
	if err := tx.Where("ip = ?", ip).First(&out).Error; err != nil {
		return nil, storeErr("block ip", err)
	}
	return &out, nil
}

func blockAgent(tx *gorm.DB, ua string) (*models.BlockedUserAgent, error) {
	ua = TruncateUserAgent(ua)
	entry := models.BlockedUserAgent{UserAgent: ua}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error; err != nil {
		return nil, storeErr("block user agent", err)
	}
	var out models.BlockedUserAgent
	if err := tx.Where("user_agent = ?", ua).First(&out).Error; err != nil {
		return nil, storeErr("block user agent", err)
	}
	return &out, nil
}

// UnblockAddress removes a blocked address by id.
func (b *BlockList) UnblockAddress(ctx context.Context, id uint) error {
	res := b.db.WithContext(ctx).Delete(&models.BlockedIP{}, id)
	if res.Error != nil {
		return storeErr("unblock ip", res.Error)
	}
	if res.RowsAffected == 0 {
		return storeErr("unblock ip", ErrNotFound)
	}
	return nil
}

// UnblockAgent removes a blocked user agent by id.
func (b *BlockList) UnblockAgent(ctx context.Context, id uint) error {
	res := b.db.WithContext(ctx).Delete(&models.BlockedUserAgent{}, id)
	if res.Error != nil {
		return storeErr("unblock user agent", res.Error)
	}
	if res.RowsAffected == 0 {
		return storeErr("unblock user agent", ErrNotFound)
	}
	return nil
}

// Addresses lists blocked addresses in insertion order.
func (b *BlockList) Addresses(ctx context.Context) ([]models.BlockedIP, error) {
	var out []models.BlockedIP
	if err := b.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, storeErr("list blocked ips", err)
	}
	return out, nil
}

// Agents lists blocked user agents in insertion order.
func (b *BlockList) Agents(ctx context.Context) ([]models.BlockedUserAgent, error) {
	var out []models.BlockedUserAgent
	if err := b.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, storeErr("list blocked user agents", err)
	}
	return out, nil
}

// BlockAddressesOfHits blocks the address of every selected hit and returns how many
// hits were selected. Hits without an address are skipped.
func (b *BlockList) BlockAddressesOfHits(ctx context.Context, hitIDs []uint) (int, error) {
	var hits []models.Hit
	if err := b.db.WithContext(ctx).Where("id IN ?", hitIDs).Find(&hits).Error; err != nil {
		return 0, storeErr("load hits", err)
	}
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, h := range hits {
			if h.IP == nil || *h.IP == "" {
				continue
			}
			if _, err := blockAddress(tx, *h.IP); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(hits), nil
}

// BlockAgentsOfHits blocks the user agent of every selected hit.
func (b *BlockList) BlockAgentsOfHits(ctx context.Context, hitIDs []uint) (int, error) {
	var hits []models.Hit
	if err := b.db.WithContext(ctx).Where("id IN ?", hitIDs).Find(&hits).Error; err != nil {
		return 0, storeErr("load hits", err)
	}
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, h := range hits {
			if _, err := blockAgent(tx, h.UserAgent); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(hits), nil
}
