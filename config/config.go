package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cppla/hitcount/hitcount"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	RateLimitPerMinute int
	AllowedOrigins     []string
	// Database
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Redis backs visitor sessions
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Admins
	AdminUsernames []string
	// Hit counting
	UseIP                bool
	KeepHitActive        hitcount.Span
	KeepHitInDatabase    hitcount.Span
	HitsPerIPLimit       int
	HitsPerSessionLimit  int
	ExcludeUserGroups    []string
	SweepIntervalMinutes int
	SweepBatchSize       int
	SessionStore         string
	SessionCookie        string
	SessionTTLHours      int
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	c, err := build(filepath.Join("config", "config.json"))
	if err != nil {
		// a broken time window must never be replaced by a default
		log.Fatalf("config: %v", err)
	}
	if c.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	cfg = c
	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Set replaces the cached configuration. Used by tools and tests that build their own.
func Set(c AppConfig) {
	cfg = c
	loaded = true
}

// LoadFile builds a configuration from path without caching it or requiring a JWT
// secret. Maintenance commands use it.
func LoadFile(path string) (AppConfig, error) {
	return build(path)
}

// build applies the precedence config.json -> defaults -> environment. Defaults only
// fill settings that were absent; a setting that is present but invalid fails the
// whole build and nothing is returned.
func build(path string) (AppConfig, error) {
	var c AppConfig
	if err := loadJSONConfig(path, &c); err != nil {
		return AppConfig{}, err
	}
	applyDefaults(&c)
	if err := applyEnvOverrides(&c); err != nil {
		return AppConfig{}, err
	}
	if err := c.HitCount().Validate(); err != nil {
		return AppConfig{}, fmt.Errorf("hitcount: %w", err)
	}
	return c, nil
}

// HitCount returns the settings consumed by the hit counting core.
func (c AppConfig) HitCount() hitcount.Config {
	return hitcount.Config{
		UseIP:               c.UseIP,
		KeepHitActive:       c.KeepHitActive,
		KeepHitInDatabase:   c.KeepHitInDatabase,
		HitsPerIPLimit:      c.HitsPerIPLimit,
		HitsPerSessionLimit: c.HitsPerSessionLimit,
		ExcludeUserGroups:   append([]string(nil), c.ExcludeUserGroups...),
	}
}

// IsAdmin reports whether username is listed in AdminUsernames.
func (c AppConfig) IsAdmin(username string) bool {
	for _, u := range c.AdminUsernames {
		if strings.EqualFold(u, username) {
			return true
		}
	}
	return false
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into cfg if present. Returns error only for invalid content.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	getString := func(m map[string]any, key string) string {
		if s, ok := m[key].(string); ok {
			return s
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if f, ok := m[key].(float64); ok {
			return int(f)
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		b, _ := m[key].(bool)
		return b
	}
	getStringSlice := func(m map[string]any, key string) []string {
		arr, ok := m[key].([]any)
		if !ok {
			return nil
		}
		res := make([]string, 0, len(arr))
		for _, it := range arr {
			if s, ok := it.(string); ok {
				res = append(res, s)
			}
		}
		return res
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		out.AllowedOrigins = getStringSlice(app, "AllowedOrigins")
		if list := getStringSlice(app, "AdminUsernames"); len(list) > 0 {
			out.AdminUsernames = list
		}
	}

	if g, ok := raw["gin"].(map[string]any); ok {
		out.GinMode = getString(g, "Mode")
		out.GinPath = getString(g, "LogPath")
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DBDriver = getString(dbs, "DBDriver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	if adm, ok := raw["admin"].(map[string]any); ok {
		if list := getStringSlice(adm, "Usernames"); len(list) > 0 {
			out.AdminUsernames = list
		}
	}

	if hc, ok := raw["hitcount"].(map[string]any); ok {
		out.UseIP = getBool(hc, "UseIP")
		out.HitsPerIPLimit = getInt(hc, "HitsPerIPLimit")
		out.HitsPerSessionLimit = getInt(hc, "HitsPerSessionLimit")
		out.ExcludeUserGroups = getStringSlice(hc, "ExcludeUserGroups")
		out.SweepIntervalMinutes = getInt(hc, "SweepIntervalMinutes")
		out.SweepBatchSize = getInt(hc, "SweepBatchSize")
		out.SessionStore = getString(hc, "SessionStore")
		out.SessionCookie = getString(hc, "SessionCookie")
		out.SessionTTLHours = getInt(hc, "SessionTTLHours")
		var err error
		if out.KeepHitActive, err = spanValue(hc["KeepHitActive"]); err != nil {
			return fmt.Errorf("hitcount.KeepHitActive: %w", err)
		}
		if out.KeepHitInDatabase, err = spanValue(hc["KeepHitInDatabase"]); err != nil {
			return fmt.Errorf("hitcount.KeepHitInDatabase: %w", err)
		}
	}

	// flat keys for backward compatibility
	if s, ok := raw["AppPort"].(string); ok && out.AppPort == "" {
		out.AppPort = s
	}
	if s, ok := raw["JWTSecret"].(string); ok && out.JWTSecret == "" {
		out.JWTSecret = s
	}
	if s, ok := raw["GinMode"].(string); ok && out.GinMode == "" {
		out.GinMode = s
	}
	if s, ok := raw["DatabaseURI"].(string); ok && out.DatabaseURI == "" {
		out.DatabaseURI = s
	}
	if s, ok := raw["LogLevel"].(string); ok && out.LogLevel == "" {
		out.LogLevel = s
	}
	if list := getStringSlice(raw, "AdminUsernames"); len(list) > 0 && len(out.AdminUsernames) == 0 {
		out.AdminUsernames = list
	}

	return nil
}

// spanValue accepts {"days": 7, "minutes": 30} or "days=7,minutes=30". Only a missing
// value yields the zero span that defaults fill in; a present but empty span is an error.
func spanValue(v any) (hitcount.Span, error) {
	switch t := v.(type) {
	case nil:
		return hitcount.Span{}, nil
	case string:
		return hitcount.ParseSpan(t)
	case map[string]any:
		var s hitcount.Span
		for unit, n := range t {
			f, ok := n.(float64)
			if !ok {
				return hitcount.Span{}, fmt.Errorf("unit %s is not a number: %w", unit, hitcount.ErrConfiguration)
			}
			if err := s.Set(unit, int(f)); err != nil {
				return hitcount.Span{}, err
			}
		}
		if s.IsZero() {
			return hitcount.Span{}, fmt.Errorf("span has no non-zero unit: %w", hitcount.ErrConfiguration)
		}
		return s, nil
	default:
		return hitcount.Span{}, fmt.Errorf("unsupported span %v: %w", v, hitcount.ErrConfiguration)
	}
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 120
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "hitcount"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.KeepHitActive.IsZero() {
		c.KeepHitActive = hitcount.Span{Days: 7}
	}
	if c.KeepHitInDatabase.IsZero() {
		c.KeepHitInDatabase = hitcount.Span{Days: 30}
	}
	// negative disables the in-process sweeper
	if c.SweepIntervalMinutes == 0 {
		c.SweepIntervalMinutes = 60
	}
	if c.SweepBatchSize == 0 {
		c.SweepBatchSize = hitcount.DefaultSweepBatch
	}
	if c.SessionStore == "" {
		c.SessionStore = "redis"
	}
	if c.SessionCookie == "" {
		c.SessionCookie = "hitcount_session"
	}
	if c.SessionTTLHours == 0 {
		c.SessionTTLHours = 24 * 14
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) error {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	if v := getEnv("ADMIN_USERNAMES", ""); v != "" {
		c.AdminUsernames = splitAndTrim(v)
	}
	if v := getEnv("DB_DRIVER", ""); v != "" {
		c.DBDriver = strings.ToLower(v)
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	// Hit counting
	if v := getEnv("HITCOUNT_USE_IP", ""); v != "" {
		c.UseIP = v == "true"
	}
	if v := getEnv("HITCOUNT_HITS_PER_IP_LIMIT", ""); v != "" {
		c.HitsPerIPLimit = mustParseInt(v)
	}
	if v := getEnv("HITCOUNT_HITS_PER_SESSION_LIMIT", ""); v != "" {
		c.HitsPerSessionLimit = mustParseInt(v)
	}
	if v := getEnv("HITCOUNT_EXCLUDE_USER_GROUPS", ""); v != "" {
		c.ExcludeUserGroups = splitAndTrim(v)
	}
	if v := getEnv("HITCOUNT_SWEEP_INTERVAL_MINUTES", ""); v != "" {
		c.SweepIntervalMinutes = mustParseInt(v)
	}
	if v := getEnv("HITCOUNT_SWEEP_BATCH_SIZE", ""); v != "" {
		c.SweepBatchSize = mustParseInt(v)
	}
	if v := getEnv("HITCOUNT_SESSION_STORE", ""); v != "" {
		c.SessionStore = strings.ToLower(v)
	}
	if v := getEnv("HITCOUNT_SESSION_COOKIE", ""); v != "" {
		c.SessionCookie = v
	}
	if v := getEnv("HITCOUNT_SESSION_TTL_HOURS", ""); v != "" {
		c.SessionTTLHours = mustParseInt(v)
	}
	if v := getEnv("HITCOUNT_KEEP_HIT_ACTIVE", ""); v != "" {
		s, err := hitcount.ParseSpan(v)
		if err != nil {
			return fmt.Errorf("HITCOUNT_KEEP_HIT_ACTIVE: %w", err)
		}
		c.KeepHitActive = s
	}
	if v := getEnv("HITCOUNT_KEEP_HIT_IN_DATABASE", ""); v != "" {
		s, err := hitcount.ParseSpan(v)
		if err != nil {
			return fmt.Errorf("HITCOUNT_KEEP_HIT_IN_DATABASE: %w", err)
		}
		c.KeepHitInDatabase = s
	}
	return nil
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
