package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/hitcount/config"
	"github.com/cppla/hitcount/hitcount"
	"github.com/cppla/hitcount/models"
	"github.com/cppla/hitcount/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t       *testing.T
	router  *gin.Engine
	db      *gorm.DB
	now     time.Time
	cookies []*http.Cookie
	admin   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.AppConfig{
		JWTSecret:           "router-test-secret",
		GinMode:             "test",
		RateLimitPerMinute:  100000,
		AllowedOrigins:      []string{"*"},
		AdminUsernames:      []string{"admin"},
		SessionCookie:       "hitcount_session",
		SessionTTLHours:     1,
		UseIP:               true,
		KeepHitActive:       hitcount.Span{Days: 7},
		KeepHitInDatabase:   hitcount.Span{Days: 30},
		HitsPerSessionLimit: 1,
	}
	config.Set(cfg)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "hitcount.db")+"?_busy_timeout=5000"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	ts := &testServer{t: t, db: db, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := hitcount.NewService(db, cfg.HitCount(), hitcount.Options{Clock: func() time.Time { return ts.now }})
	require.NoError(t, err)

	ts.router = SetupRouter(Deps{
		Config:   cfg,
		DB:       db,
		Service:  svc,
		Sessions: utils.NewMemorySessionStore(),
	})
	ts.admin, err = utils.GenerateToken(1, "admin", time.Hour)
	require.NoError(t, err)
	return ts
}

func (ts *testServer) do(req *http.Request) (*httptest.ResponseRecorder, envelope) {
	ts.t.Helper()
	for _, c := range ts.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	if cs := w.Result().Cookies(); len(cs) > 0 {
		ts.cookies = cs
	}
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func (ts *testServer) postHit(pk uint) (*httptest.ResponseRecorder, envelope) {
	form := url.Values{"hitcountPK": {strconv.FormatUint(uint64(pk), 10)}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hits", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("User-Agent", "my_clever_agent")
	return ts.do(req)
}

func (ts *testServer) adminJSON(method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ts.admin)
	return ts.do(req)
}

func (ts *testServer) counterPK(objectPK int) uint {
	ts.t.Helper()
	w, env := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/objects/blog.post/"+strconv.Itoa(objectPK)+"/hitcount", nil))
	require.Equal(ts.t, http.StatusOK, w.Code)
	var data struct {
		PK        uint  `json:"pk"`
		TotalHits int64 `json:"total_hits"`
	}
	require.NoError(ts.t, json.Unmarshal(env.Data, &data))
	require.NotZero(ts.t, data.PK)
	return data.PK
}

type hitData struct {
	HitCounted bool   `json:"hit_counted"`
	HitMessage string `json:"hit_message"`
	Reason     string `json:"reason"`
	TotalHits  int64  `json:"total_hits"`
}

func TestHits_PostCountsOncePerSession(t *testing.T) {
	ts := newTestServer(t)
	pk := ts.counterPK(1)

	w, env := ts.postHit(pk)
	require.Equal(t, http.StatusOK, w.Code)
	var got hitData
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.True(t, got.HitCounted)
	assert.Equal(t, "Hit counted: session key", got.HitMessage)
	assert.EqualValues(t, 1, got.TotalHits)
	require.NotEmpty(t, ts.cookies)

	w, env = ts.postHit(pk)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.False(t, got.HitCounted)
	assert.Equal(t, "Not counted: hits per session limit reached.", got.HitMessage)
	assert.EqualValues(t, 1, got.TotalHits)

	// a fresh session counts again
	ts.cookies = nil
	_, env = ts.postHit(pk)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.True(t, got.HitCounted)
	assert.EqualValues(t, 2, got.TotalHits)
}

func TestHits_RequestValidation(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hits", nil)
	w, _ := ts.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/hits", nil)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	w, _ = ts.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":false,"error_message":"Hits counted via POST only."}`, w.Body.String())

	w, env := ts.postHit(999)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "HitCount object_pk not present.", env.Message)
}

func TestObjectHitCount_CountParam(t *testing.T) {
	ts := newTestServer(t)

	w, env := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/objects/blog.post/5/hitcount?count=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got hitData
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.True(t, got.HitCounted)
	assert.EqualValues(t, 1, got.TotalHits)

	w, env = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/objects/blog.post/5/hitcount", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.False(t, got.HitCounted)
	assert.EqualValues(t, 1, got.TotalHits)

	w, _ = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/objects/blog.post/abc/hitcount", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecentHits(t *testing.T) {
	ts := newTestServer(t)
	pk := ts.counterPK(1)
	_, _ = ts.postHit(pk)
	path := "/api/v1/hitcounts/" + strconv.FormatUint(uint64(pk), 10) + "/recent"

	w, _ := ts.do(httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := ts.do(httptest.NewRequest(http.MethodGet, path+"?days=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Hits int64 `json:"hits"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.EqualValues(t, 1, data.Hits)

	w, _ = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/hitcounts/9999/recent?days=1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecentHits_UnitValues(t *testing.T) {
	ts := newTestServer(t)
	pk := ts.counterPK(1)
	_, _ = ts.postHit(pk)
	path := "/api/v1/hitcounts/" + strconv.FormatUint(uint64(pk), 10) + "/recent"

	w, env := ts.do(httptest.NewRequest(http.MethodGet, path+"?days=0&hours=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Hits int64 `json:"hits"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.EqualValues(t, 1, data.Hits)

	for _, query := range []string{
		"days=0",
		"days=-1",
		"hours=abc",
		"weeks=100001",
		"days=99999999999999999999",
	} {
		w, _ := ts.do(httptest.NewRequest(http.MethodGet, path+"?"+query, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
}

func TestAdmin_RequiresAdminToken(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/hits", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	userToken, err := utils.GenerateToken(2, "reader", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/hits", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	w, _ = ts.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdmin_BlockAndDeleteFlow(t *testing.T) {
	ts := newTestServer(t)
	pk := ts.counterPK(1)
	_, _ = ts.postHit(pk)

	w, env := ts.adminJSON(http.MethodGet, "/api/v1/admin/hits?hitcount_id="+strconv.FormatUint(uint64(pk), 10), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Items []models.Hit `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Items, 1)
	hitID := list.Items[0].ID
	require.NotNil(t, list.Items[0].IP)
	blockedIP := *list.Items[0].IP

	w, _ = ts.adminJSON(http.MethodPost, "/api/v1/admin/hits/block-ips", gin.H{"ids": []uint{hitID}, "delete": true})
	require.Equal(t, http.StatusOK, w.Code)

	var n int64
	require.NoError(t, ts.db.Model(&models.Hit{}).Count(&n).Error)
	assert.Zero(t, n)
	var hc models.HitCount
	require.NoError(t, ts.db.First(&hc, pk).Error)
	assert.Zero(t, hc.Hits)

	// the address is now blocked for new sessions
	ts.cookies = nil
	_, env = ts.postHit(pk)
	var got hitData
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.False(t, got.HitCounted)
	assert.Equal(t, "Not counted: user IP has been blocked", got.HitMessage)

	w, env = ts.adminJSON(http.MethodGet, "/api/v1/admin/blocked-ips", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var blocked struct {
		Items []models.BlockedIP `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &blocked))
	require.Len(t, blocked.Items, 1)
	assert.Equal(t, blockedIP, blocked.Items[0].IP)

	w, _ = ts.adminJSON(http.MethodDelete, "/api/v1/admin/blocked-ips/"+strconv.FormatUint(uint64(blocked.Items[0].ID), 10), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.adminJSON(http.MethodDelete, "/api/v1/admin/blocked-ips/"+strconv.FormatUint(uint64(blocked.Items[0].ID), 10), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_DeleteHitsPreserveCounter(t *testing.T) {
	ts := newTestServer(t)
	pk := ts.counterPK(1)
	_, _ = ts.postHit(pk)
	var hit models.Hit
	require.NoError(t, ts.db.First(&hit).Error)

	w, env := ts.adminJSON(http.MethodPost, "/api/v1/admin/hits/delete", gin.H{"ids": []uint{hit.ID, hit.ID}, "preserve_counter": true})
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Deleted int    `json:"deleted"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 1, data.Deleted)
	assert.Equal(t, "1 hit was successfully deleted.", data.Message)

	var hc models.HitCount
	require.NoError(t, ts.db.First(&hc, pk).Error)
	assert.EqualValues(t, 1, hc.Hits)

	w, _ = ts.adminJSON(http.MethodPost, "/api/v1/admin/hits/delete", gin.H{"ids": []uint{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_SweepAndCascade(t *testing.T) {
	ts := newTestServer(t)
	pk := ts.counterPK(1)
	_, _ = ts.postHit(pk)

	ts.now = ts.now.Add(31 * 24 * time.Hour)
	w, env := ts.adminJSON(http.MethodPost, "/api/v1/admin/sweep", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var swept struct {
		Removed int64  `json:"removed"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &swept))
	assert.EqualValues(t, 1, swept.Removed)
	assert.Equal(t, "Successfully removed 1 Hits", swept.Message)

	w, env = ts.adminJSON(http.MethodGet, "/api/v1/admin/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]int64
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.EqualValues(t, 1, stats["total_hits"])
	assert.EqualValues(t, 0, stats["stored_hit_count"])

	w, _ = ts.adminJSON(http.MethodDelete, "/api/v1/admin/objects/blog.post/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.adminJSON(http.MethodDelete, "/api/v1/admin/objects/blog.post/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = ts.adminJSON(http.MethodGet, "/api/v1/admin/hitcounts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var counters struct {
		Items []models.HitCount `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &counters))
	assert.Empty(t, counters.Items)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	w, env := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", env.Message)

	w, _ = ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
