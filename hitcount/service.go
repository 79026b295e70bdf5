package hitcount

import (
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service bundles the stores and the engine built over one database.
type Service struct {
	Config   Config
	Resolver *IdentityResolver
	Counters *CounterStore
	Hits     *HitStore
	Blocks   *BlockList
	Index    *ActiveHitIndex
	Engine   *Engine
	Sweeper  *Sweeper
}

// Options tunes NewService. The zero value is fine for production.
type Options struct {
	Clock      Clock
	Logger     *zap.Logger
	SweepBatch int
	Groups     GroupMembership
}

// NewService validates cfg and builds every component on db.
func NewService(db *gorm.DB, cfg Config, opts Options) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	index, err := NewActiveHitIndex(db, cfg, opts.Clock)
	if err != nil {
		return nil, err
	}
	groups := opts.Groups
	if groups == nil {
		groups = NewUserGroups(db)
	}
	counters := NewCounterStore(db, opts.Clock)
	hits := NewHitStore(db, counters, opts.Clock)
	blocks := NewBlockList(db)
	return &Service{
		Config:   cfg,
		Resolver: NewIdentityResolver(cfg),
		Counters: counters,
		Hits:     hits,
		Blocks:   blocks,
		Index:    index,
		Engine:   NewEngine(cfg, blocks, index, hits, groups, opts.Logger),
		Sweeper:  NewSweeper(db, opts.SweepBatch, opts.Clock, opts.Logger),
	}, nil
}
