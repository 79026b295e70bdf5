package hitcount

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/cppla/hitcount/models"
)

func TestEvaluate_FirstAnonymousHitCounted(t *testing.T) {
	svc, _, db := newTestService(t, DefaultConfig())
	hc := newCounter(t, svc, 1)

	v, err := svc.Engine.Evaluate(context.Background(), anon("s1"), hc.ID)
	require.NoError(t, err)
	assert.True(t, v.Admitted)
	assert.Equal(t, ReasonAdmittedBySession, v.Reason)
	assert.Equal(t, "Hit counted: session key", v.Message)
	assert.NotZero(t, v.HitID)
	assert.EqualValues(t, 1, hitsOf(t, svc, hc.ID))
	assert.EqualValues(t, 1, countRows(t, db))
}

func TestEvaluate_SessionLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HitsPerSessionLimit = 1
	svc, _, _ := newTestService(t, cfg)
	hc := newCounter(t, svc, 1)
	ctx := context.Background()

	_, err := svc.Engine.Evaluate(ctx, anon("s1"), hc.ID)
	require.NoError(t, err)

	v, err := svc.Engine.Evaluate(ctx, anon("s1"), hc.ID)
	require.NoError(t, err)
	assert.False(t, v.Admitted)
	assert.Equal(t, ReasonSessionLimitReached, v.Reason)
	assert.Equal(t, "Not counted: hits per session limit reached.", v.Message)
	assert.Zero(t, v.HitID)
	assert.EqualValues(t, 1, hitsOf(t, svc, hc.ID))

	// the limit is per counter
	other := newCounter(t, svc, 2)
	v, err = svc.Engine.Evaluate(ctx, anon("s1"), other.ID)
	require.NoError(t, err)
	assert.True(t, v.Admitted)
}

func TestEvaluate_ActiveWindowExpires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HitsPerSessionLimit = 1
	svc, clock, _ := newTestService(t, cfg)
	hc := newCounter(t, svc, 1)
	ctx := context.Background()

	_, err := svc.Engine.Evaluate(ctx, anon("s1"), hc.ID)
	require.NoError(t, err)

	clock.Advance(10 * 24 * time.Hour)
	v, err := svc.Engine.Evaluate(ctx, anon("s1"), hc.ID)
	require.NoError(t, err)
	assert.True(t, v.Admitted)
	assert.EqualValues(t, 2, hitsOf(t, svc, hc.ID))
}

func TestEvaluate_BlockedAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseIP = true
	svc, _, db := newTestService(t, cfg)
	hc := newCounter(t, svc, 1)
	ctx := context.Background()

	_, err := svc.Blocks.BlockAddress(ctx, "127.0.0.1")
	require.NoError(t, err)

	v, err := svc.Engine.Evaluate(ctx, anon("s1"), hc.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonAddressBlocked, v.Reason)
	assert.Equal(t, "Not counted: user IP has been blocked", v.Message)
	assert.Zero(t, hitsOf(t, svc, hc.ID))
	assert.Zero(t, countRows(t, db))
}

func TestEvaluate_BlockedAddressIgnoredWithoutUseIP(t *testing.T) {
	svc, _, db := newTestService(t, DefaultConfig())
	hc := newCounter(t, svc, 1)
	ctx := context.Background()

	_, err := svc.Blocks.BlockAddress(ctx, "127.0.0.1")
	require.NoError(t, err)

	fp := anon("s1")
	fp.IP = ""
	v, err := svc.Engine.Evaluate(ctx, fp, hc.ID)
	require.NoError(t, err)
	assert.True(t, v.Admitted)

	var hit models.Hit
	require.NoError(t, db.First(&hit, v.HitID).Error)
	assert.Nil(t, hit.IP)
}

func TestEvaluate_BlockTakesPrecedenceOverLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseIP = true
	cfg.HitsPerIPLimit = 1
	svc, _, _ := newTestService(t, cfg)
	hc := newCounter(t, svc, 1)
	ctx := context.Background()

	_, err := svc.Engine.Evaluate(ctx, anon("s1"), hc.ID)
	require.NoError(t, err)
	_, err = svc.Blocks.BlockAddress(ctx, "127.0.0.1")
	require.NoError(t, err)

	v, err := svc.Engine.Evaluate(ctx, anon("s2"), hc.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonAddressBlocked, v.Reason)
}

func TestEvaluate_BlockedAgent(t *testing.T) {
	svc, _, _ := newTestService(t, DefaultConfig())
	hc := newCounter(t, svc, 1)
	ctx := context.Background()

	_, err := svc.Blocks.BlockAgent(ctx, "my_clever_agent")
	require.NoError(t, err)

	v, err := svc.Engine.Evaluate(ctx, anon("s1"), hc.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonAgentBlocked, v.Reason)
	assert.Equal(t, "Not counted: user agent has been blocked", v.Message)

	// exact match only
	fp := anon("s2")
	fp.UserAgent = "My_Clever_Agent"
	v, err = svc.Engine.Evaluate(ctx, fp, hc.ID)
	require.NoError(t, err)
	assert.True(t, v.Admitted)
}

func TestEvaluate_ExcludedGroup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExcludeUserGroups = []string{"Admin"}
	svc, _, db := newTestService(t, cfg)
	hc := newCounter(t, svc, 1)
	ctx := context.Background()

	admin := models.User{Username: "john", Groups: []models.Group{{Name: "Admin"}}}
	require.NoError(t, db.Create(&admin).Error)
	reader := models.User{Username: "jane", Groups: []models.Group{{Name: "Readers"}}}
	require.NoError(t, db.Create(&reader).Error)

	fp := anon("s1")
	fp.UserID = uintPtr(admin.ID)
	v, err := svc.Engine.Evaluate(ctx, fp, hc.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonGroupExcluded, v.Reason)
	assert.Equal(t, "Not counted: user group has been excluded", v.Message)

	fp = anon("s2")
	fp.UserID = uintPtr(reader.ID)
	v, err = svc.Engine.Evaluate(ctx, fp, hc.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonAdmittedByAuth, v.Reason)
	assert.Equal(t, "Hit counted: user authentication", v.Message)

	var hit models.Hit
	require.NoError(t, db.First(&hit, v.HitID).Error)
	require.NotNil(t, hit.UserID)
	assert.Equal(t, reader.ID, *hit.UserID)
}

func TestEvaluate_AddressLimitAcrossSessions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseIP = true
	cfg.HitsPerIPLimit = 2
	svc, _, _ := newTestService(t, cfg)
	first := newCounter(t, svc, 1)
	second := newCounter(t, svc, 2)
	ctx := context.Background()

	v, err := svc.Engine.Evaluate(ctx, anon("s1"), first.ID)
	require.NoError(t, err)
	assert.True(t, v.Admitted)
	v, err = svc.Engine.Evaluate(ctx, anon("s2"), second.ID)
	require.NoError(t, err)
	assert.True(t, v.Admitted)

	// the address limit spans every counter
	v, err = svc.Engine.Evaluate(ctx, anon("s3"), first.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonAddressLimitReached, v.Reason)
	assert.Equal(t, "Not counted: hits per IP address limit reached", v.Message)

	assert.EqualValues(t, 1, hitsOf(t, svc, first.ID))
	assert.EqualValues(t, 1, hitsOf(t, svc, second.ID))
}

func TestEvaluate_CountsEveryAdmission(t *testing.T) {
	svc, _, db := newTestService(t, DefaultConfig())
	hc := newCounter(t, svc, 1)
	ctx := context.Background()

	const n = 12
	for i := 0; i < n; i++ {
		v, err := svc.Engine.Evaluate(ctx, anon("s1"), hc.ID)
		require.NoError(t, err)
		require.True(t, v.Admitted)
	}
	assert.EqualValues(t, n, hitsOf(t, svc, hc.ID))
	assert.EqualValues(t, n, countRows(t, db))
}

func TestEvaluate_ConcurrentAdmissions(t *testing.T) {
	svc, clock, db := newTestService(t, DefaultConfig())
	hc := newCounter(t, svc, 1)
	clock.Advance(time.Hour)

	const n = 25
	var g errgroup.Group
	for i := 0; i < n; i++ {
		session := fmt.Sprintf("s%d", i)
		g.Go(func() error {
			v, err := svc.Engine.Evaluate(context.Background(), anon(session), hc.ID)
			if err != nil {
				return err
			}
			if !v.Admitted {
				return fmt.Errorf("session %s rejected: %s", session, v.Reason)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, n, hitsOf(t, svc, hc.ID))
	assert.EqualValues(t, n, countRows(t, db))

	var stored models.HitCount
	require.NoError(t, db.First(&stored, hc.ID).Error)
	assert.True(t, stored.UpdatedAt.Equal(clock.Now()), "updated_at %s", stored.UpdatedAt)
}

func TestEvaluate_RejectionsWriteNothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HitsPerSessionLimit = 1
	svc, _, db := newTestService(t, cfg)
	hc := newCounter(t, svc, 1)
	ctx := context.Background()

	_, err := svc.Engine.Evaluate(ctx, anon("s1"), hc.ID)
	require.NoError(t, err)
	before, err := svc.Counters.Get(ctx, hc.ID)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		v, err := svc.Engine.Evaluate(ctx, anon("s1"), hc.ID)
		require.NoError(t, err)
		require.False(t, v.Admitted)
	}
	after, err := svc.Counters.Get(ctx, hc.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Hits, after.Hits)
	assert.EqualValues(t, 1, countRows(t, db))
}

func TestEvaluate_UnknownCounter(t *testing.T) {
	svc, _, db := newTestService(t, DefaultConfig())

	_, err := svc.Engine.Evaluate(context.Background(), anon("s1"), 4242)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, countRows(t, db))
}

func TestNewService_RejectsEmptySpan(t *testing.T) {
	db := newTestDB(t)
	cfg := DefaultConfig()
	cfg.KeepHitActive = Span{}
	_, err := NewService(db, cfg, Options{})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNewService_RejectsNegativeSpan(t *testing.T) {
	db := newTestDB(t)
	cfg := DefaultConfig()
	cfg.KeepHitInDatabase = Span{Days: 1, Hours: -48}
	_, err := NewService(db, cfg, Options{})
	assert.ErrorIs(t, err, ErrConfiguration)
}
