package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/hitcount/config"
	"github.com/cppla/hitcount/controllers"
	"github.com/cppla/hitcount/hitcount"
	"github.com/cppla/hitcount/middleware"
	"github.com/cppla/hitcount/utils"
)

// Deps are the collaborators the HTTP layer is built on.
type Deps struct {
	Config   config.AppConfig
	DB       *gorm.DB
	Service  *hitcount.Service
	Sessions utils.SessionStore
	Logger   *zap.Logger
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(d Deps) *gin.Engine {
	cfg := d.Config
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	// access log goes to its own rolling file when configured
	accessLog := logger
	if cfg.GinPath != "" {
		if gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress); err == nil {
			accessLog = gl
		} else {
			logger.Warn("gin access log unavailable, using application log", zap.Error(err))
		}
	}
	r.Use(middleware.RequestLogger(accessLog))
	r.Use(middleware.Recovery(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		// credentials (the session cookie) need an echoed origin rather than "*"
		corsCfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	hitController := controllers.NewHitController(d.Service, logger)
	adminController := controllers.NewAdminController(d.Service, cfg.IsAdmin, logger)
	statsController := controllers.NewStatsController(d.DB)

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(cfg.RateLimitPerMinute))

	sessionTTL := time.Duration(cfg.SessionTTLHours) * time.Hour
	visitor := api.Group("")
	visitor.Use(middleware.Sessions(d.Sessions, cfg.SessionCookie, sessionTTL), middleware.OptionalAuth())
	visitor.POST("/hits", middleware.AJAXRequired(), hitController.CountHit)
	visitor.GET("/hits", middleware.AJAXRequired(), hitController.CountHitGet)
	visitor.GET("/objects/:type/:id/hitcount", hitController.ObjectHitCount)

	api.GET("/hitcounts/:id/recent", hitController.RecentHits)

	admin := api.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.AdminRequired(cfg.IsAdmin))
	admin.GET("/stats", statsController.GetStats)
	admin.GET("/blocked-ips", adminController.ListBlockedIPs)
	admin.POST("/blocked-ips", adminController.BlockIP)
	admin.DELETE("/blocked-ips/:id", adminController.UnblockIP)
	admin.GET("/blocked-agents", adminController.ListBlockedAgents)
	admin.POST("/blocked-agents", adminController.BlockAgent)
	admin.DELETE("/blocked-agents/:id", adminController.UnblockAgent)
	admin.GET("/hits", adminController.ListHits)
	admin.POST("/hits/delete", adminController.DeleteHits)
	admin.POST("/hits/block-ips", adminController.BlockHitIPs)
	admin.POST("/hits/block-agents", adminController.BlockHitAgents)
	admin.GET("/hitcounts", adminController.ListHitCounts)
	admin.DELETE("/objects/:type/:id", adminController.DeleteObject)
	admin.POST("/sweep", adminController.Sweep)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
