package controllers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/hitcount/models"
	"github.com/cppla/hitcount/utils"
)

// StatsController reports aggregate figures over the hit tables.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// GetStats returns counter, hit and block list totals. A failing count reports 0
// instead of failing the whole endpoint.
func (s *StatsController) GetStats(ctx *gin.Context) {
	db := s.db.WithContext(ctx.Request.Context())
	var counterCount, hitRows, totalHits, blockedIPs, blockedAgents int64

	if err := db.Model(&models.HitCount{}).Count(&counterCount).Error; err != nil {
		counterCount = 0
	}
	if err := db.Model(&models.Hit{}).Count(&hitRows).Error; err != nil {
		hitRows = 0
	}
	// totals survive the sweeper, so they exceed the stored hit rows over time
	if err := db.Model(&models.HitCount{}).Select("COALESCE(SUM(hits),0)").Scan(&totalHits).Error; err != nil {
		totalHits = 0
	}
	if err := db.Model(&models.BlockedIP{}).Count(&blockedIPs).Error; err != nil {
		blockedIPs = 0
	}
	if err := db.Model(&models.BlockedUserAgent{}).Count(&blockedAgents).Error; err != nil {
		blockedAgents = 0
	}

	utils.Success(ctx, gin.H{
		"hitcount_count":      counterCount,
		"stored_hit_count":    hitRows,
		"total_hits":          totalHits,
		"blocked_ip_count":    blockedIPs,
		"blocked_agent_count": blockedAgents,
	})
}
