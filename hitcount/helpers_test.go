package hitcount

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/hitcount/models"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type memSession struct {
	key   string
	saves int
}

func (s *memSession) Key() string { return s.key }

func (s *memSession) Save(context.Context) error {
	s.saves++
	if s.key == "" {
		s.key = "generated-session"
	}
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hitcount.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newTestService(t *testing.T, cfg Config) (*Service, *fakeClock, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	clock := newFakeClock()
	svc, err := NewService(db, cfg, Options{Clock: clock.Now})
	require.NoError(t, err)
	return svc, clock, db
}

func newCounter(t *testing.T, svc *Service, pk uint) *models.HitCount {
	t.Helper()
	hc, err := svc.Counters.GetOrCreate(context.Background(), Target{ContentType: "blog.post", ObjectPK: pk})
	require.NoError(t, err)
	return hc
}

func hitsOf(t *testing.T, svc *Service, id uint) int64 {
	t.Helper()
	hc, err := svc.Counters.Get(context.Background(), id)
	require.NoError(t, err)
	return hc.Hits
}

func countRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Hit{}).Count(&n).Error)
	return n
}

func anon(session string) Fingerprint {
	return Fingerprint{IP: "127.0.0.1", Session: session, UserAgent: "my_clever_agent"}
}

func uintPtr(v uint) *uint { return &v }
