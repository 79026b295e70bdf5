package hitcount

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAgedHits(t *testing.T, svc *Service, clock *fakeClock, counterID uint) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 9; i++ {
		_, err := svc.Hits.Record(ctx, anon("old"), counterID)
		require.NoError(t, err)
	}
	clock.Advance(31 * 24 * time.Hour)
	_, err := svc.Hits.Record(ctx, anon("new"), counterID)
	require.NoError(t, err)
}

func TestSweep_RemovesExpiredHitsOnly(t *testing.T) {
	svc, clock, db := newTestService(t, DefaultConfig())
	hc := newCounter(t, svc, 1)
	seedAgedHits(t, svc, clock, hc.ID)

	removed, err := svc.Sweeper.SweepSpan(context.Background(), svc.Config.KeepHitInDatabase)
	require.NoError(t, err)
	assert.EqualValues(t, 9, removed)
	assert.EqualValues(t, 1, countRows(t, db))
	// totals survive the sweep
	assert.EqualValues(t, 10, hitsOf(t, svc, hc.ID))

	removed, err = svc.Sweeper.SweepSpan(context.Background(), svc.Config.KeepHitInDatabase)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.EqualValues(t, 1, countRows(t, db))
}

func TestSweep_SmallBatches(t *testing.T) {
	svc, clock, db := newTestService(t, DefaultConfig())
	hc := newCounter(t, svc, 1)
	seedAgedHits(t, svc, clock, hc.ID)

	sw := NewSweeper(db, 2, clock.Now, nil)
	removed, err := sw.Sweep(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 9, removed)
	assert.EqualValues(t, 1, countRows(t, db))
}

func TestSweep_CancelledContext(t *testing.T) {
	svc, clock, db := newTestService(t, DefaultConfig())
	hc := newCounter(t, svc, 1)
	seedAgedHits(t, svc, clock, hc.ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	removed, err := svc.Sweeper.Sweep(ctx, 30*24*time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, removed)
	assert.EqualValues(t, 10, countRows(t, db))
}

func TestSweep_RejectsEmptyRetention(t *testing.T) {
	svc, _, _ := newTestService(t, DefaultConfig())
	_, err := svc.Sweeper.Sweep(context.Background(), 0)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = svc.Sweeper.SweepSpan(context.Background(), Span{})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSweep_PendingMatchesSweep(t *testing.T) {
	svc, clock, db := newTestService(t, DefaultConfig())
	hc := newCounter(t, svc, 1)
	seedAgedHits(t, svc, clock, hc.ID)

	n, err := svc.Sweeper.Pending(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 9, n)
	assert.EqualValues(t, 10, countRows(t, db))

	_, err = svc.Sweeper.Pending(context.Background(), 0)
	assert.ErrorIs(t, err, ErrConfiguration)
}
