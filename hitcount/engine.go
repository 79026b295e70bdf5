package hitcount

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Engine decides whether a visitor's request counts as a new hit.
type Engine struct {
	cfg    Config
	blocks *BlockList
	index  *ActiveHitIndex
	hits   *HitStore
	groups GroupMembership
	log    *zap.Logger
}

// NewEngine wires the admission pipeline. groups may be nil when no groups are
// excluded; logger may be nil.
func NewEngine(cfg Config, blocks *BlockList, index *ActiveHitIndex, hits *HitStore, groups GroupMembership, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:    cfg,
		blocks: blocks,
		index:  index,
		hits:   hits,
		groups: groups,
		log:    logger.Named("hitcount"),
	}
}

// Evaluate runs the admission rules for fp against counterID and records the hit when
// admitted. Rejections are returned as verdicts and write nothing; only storage
// failures come back as errors.
func (e *Engine) Evaluate(ctx context.Context, fp Fingerprint, counterID uint) (Verdict, error) {
	start := time.Now()
	v, err := e.evaluate(ctx, fp, counterID)
	evaluateSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		e.log.Warn("hit evaluation failed",
			zap.Uint("counter_id", counterID),
			zap.String("session", fp.Session),
			zap.Error(err))
		return Verdict{}, err
	}
	verdictsTotal.WithLabelValues(string(v.Reason)).Inc()
	e.log.Debug("hit evaluated",
		zap.Uint("counter_id", counterID),
		zap.String("ip", fp.IP),
		zap.String("session", fp.Session),
		zap.String("reason", string(v.Reason)))
	return v, nil
}

// The order of the checks below is part of the contract: block lists first, then the
// group exclusion, then the global per-address limit, then the per-session limit.
func (e *Engine) evaluate(ctx context.Context, fp Fingerprint, counterID uint) (Verdict, error) {
	if e.cfg.UseIP && fp.IP != "" {
		blocked, err := e.blocks.IsAddressBlocked(ctx, fp.IP)
		if err != nil {
			return Verdict{}, err
		}
		if blocked {
			return newVerdict(ReasonAddressBlocked), nil
		}
	}

	blocked, err := e.blocks.IsAgentBlocked(ctx, fp.UserAgent)
	if err != nil {
		return Verdict{}, err
	}
	if blocked {
		return newVerdict(ReasonAgentBlocked), nil
	}

	if len(e.cfg.ExcludeUserGroups) > 0 && fp.UserID != nil && e.groups != nil {
		excluded, err := e.groups.MemberOfAny(ctx, *fp.UserID, e.cfg.ExcludeUserGroups)
		if err != nil {
			return Verdict{}, err
		}
		if excluded {
			return newVerdict(ReasonGroupExcluded), nil
		}
	}

	if e.cfg.HitsPerIPLimit > 0 && fp.IP != "" {
		n, err := e.index.CountByAddress(ctx, fp.IP)
		if err != nil {
			return Verdict{}, err
		}
		if n >= int64(e.cfg.HitsPerIPLimit) {
			return newVerdict(ReasonAddressLimitReached), nil
		}
	}

	if e.cfg.HitsPerSessionLimit > 0 {
		n, err := e.index.CountBySession(ctx, fp.Session, counterID)
		if err != nil {
			return Verdict{}, err
		}
		if n >= int64(e.cfg.HitsPerSessionLimit) {
			return newVerdict(ReasonSessionLimitReached), nil
		}
	}

	hit, err := e.hits.Record(ctx, fp, counterID)
	if err != nil {
		return Verdict{}, err
	}
	reason := ReasonAdmittedBySession
	if fp.Authenticated() {
		reason = ReasonAdmittedByAuth
	}
	v := newVerdict(reason)
	v.HitID = hit.ID
	return v, nil
}

// UserKey formats a user id for ActiveHitIndex.IsActive.
func UserKey(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func (e *Engine) String() string {
	return fmt.Sprintf("hitcount.Engine(use_ip=%t, ip_limit=%d, session_limit=%d, window=%s)",
		e.cfg.UseIP, e.cfg.HitsPerIPLimit, e.cfg.HitsPerSessionLimit, e.index.Window())
}
