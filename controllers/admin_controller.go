package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/hitcount/hitcount"
	"github.com/cppla/hitcount/middleware"
	"github.com/cppla/hitcount/utils"
)

// AdminController exposes moderation of hits, counters and block lists.
type AdminController struct {
	svc     *hitcount.Service
	isAdmin func(string) bool
	log     *zap.Logger
}

// NewAdminController creates a new AdminController instance.
func NewAdminController(svc *hitcount.Service, isAdmin func(string) bool, logger *zap.Logger) *AdminController {
	return &AdminController{svc: svc, isAdmin: isAdmin, log: logger}
}

type hitSelection struct {
	IDs             []uint `json:"ids" binding:"required,min=1"`
	PreserveCounter bool   `json:"preserve_counter"`
	Delete          bool   `json:"delete"`
}

func (a *AdminController) bindSelection(ctx *gin.Context) (hitSelection, bool) {
	var req hitSelection
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return req, false
	}
	req.IDs = utils.Unique(req.IDs)
	return req, true
}

// ListBlockedIPs returns every blocked address.
func (a *AdminController) ListBlockedIPs(ctx *gin.Context) {
	items, err := a.svc.Blocks.Addresses(ctx.Request.Context())
	if err != nil {
		respondError(ctx, a.log, 50020, err)
		return
	}
	utils.Success(ctx, gin.H{"items": items})
}

// BlockIP adds {"ip": "..."} to the block list.
func (a *AdminController) BlockIP(ctx *gin.Context) {
	var req struct {
		IP string `json:"ip" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	entry, err := a.svc.Blocks.BlockAddress(ctx.Request.Context(), strings.TrimSpace(req.IP))
	if err != nil {
		respondError(ctx, a.log, 50021, err)
		return
	}
	utils.Success(ctx, entry)
}

// UnblockIP removes a blocked address by id.
func (a *AdminController) UnblockIP(ctx *gin.Context) {
	id, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid id")
		return
	}
	if err := a.svc.Blocks.UnblockAddress(ctx.Request.Context(), id); err != nil {
		respondError(ctx, a.log, 50022, err)
		return
	}
	utils.Success(ctx, gin.H{"id": id})
}

// ListBlockedAgents returns every blocked user agent.
func (a *AdminController) ListBlockedAgents(ctx *gin.Context) {
	items, err := a.svc.Blocks.Agents(ctx.Request.Context())
	if err != nil {
		respondError(ctx, a.log, 50020, err)
		return
	}
	utils.Success(ctx, gin.H{"items": items})
}

// BlockAgent adds {"user_agent": "..."} to the block list. The string is stored as is.
func (a *AdminController) BlockAgent(ctx *gin.Context) {
	var req struct {
		UserAgent string `json:"user_agent" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	entry, err := a.svc.Blocks.BlockAgent(ctx.Request.Context(), req.UserAgent)
	if err != nil {
		respondError(ctx, a.log, 50021, err)
		return
	}
	utils.Success(ctx, entry)
}

// UnblockAgent removes a blocked user agent by id.
func (a *AdminController) UnblockAgent(ctx *gin.Context) {
	id, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid id")
		return
	}
	if err := a.svc.Blocks.UnblockAgent(ctx.Request.Context(), id); err != nil {
		respondError(ctx, a.log, 50022, err)
		return
	}
	utils.Success(ctx, gin.H{"id": id})
}

// ListHits pages through hits, newest first, optionally filtered by hitcount_id and a
// search term matched against ip and user agent.
func (a *AdminController) ListHits(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	filter := hitcount.HitFilter{Search: ctx.Query("search")}
	if raw := ctx.Query("hitcount_id"); raw != "" {
		id, ok := parseID(raw)
		if !ok {
			utils.Error(ctx, http.StatusBadRequest, 40021, "invalid hitcount_id")
			return
		}
		filter.CounterID = id
	}
	items, total, err := a.svc.Hits.List(ctx.Request.Context(), filter, page, pageSize)
	if err != nil {
		respondError(ctx, a.log, 50023, err)
		return
	}
	utils.Success(ctx, gin.H{"items": items, "pagination": utils.NewPagination(page, pageSize, total)})
}

// DeleteHits deletes the selected hits one by one, decrementing their counters unless
// preserve_counter is set.
func (a *AdminController) DeleteHits(ctx *gin.Context) {
	req, ok := a.bindSelection(ctx)
	if !ok {
		return
	}
	n, err := a.svc.Hits.DeleteSelected(ctx.Request.Context(), middleware.IsAdmin(ctx, a.isAdmin), req.IDs, req.PreserveCounter)
	if err != nil {
		respondError(ctx, a.log, 50024, err)
		return
	}
	utils.Success(ctx, gin.H{"deleted": n, "message": deletedMessage(n)})
}

// BlockHitIPs blocks the addresses of the selected hits; with "delete" the hits are
// removed afterwards.
func (a *AdminController) BlockHitIPs(ctx *gin.Context) {
	a.blockFromHits(ctx, "IPs", a.svc.Blocks.BlockAddressesOfHits)
}

// BlockHitAgents blocks the user agents of the selected hits; with "delete" the hits
// are removed afterwards.
func (a *AdminController) BlockHitAgents(ctx *gin.Context) {
	a.blockFromHits(ctx, "User Agents", a.svc.Blocks.BlockAgentsOfHits)
}

func (a *AdminController) blockFromHits(ctx *gin.Context, what string, block func(context.Context, []uint) (int, error)) {
	req, ok := a.bindSelection(ctx)
	if !ok {
		return
	}
	c := ctx.Request.Context()
	n, err := block(c, req.IDs)
	if err != nil {
		respondError(ctx, a.log, 50025, err)
		return
	}
	data := gin.H{"blocked": n, "message": fmt.Sprintf("Successfully blocked %d %s", n, what)}
	if req.Delete {
		deleted, err := a.svc.Hits.DeleteSelected(c, middleware.IsAdmin(ctx, a.isAdmin), req.IDs, false)
		if err != nil {
			respondError(ctx, a.log, 50024, err)
			return
		}
		data["deleted"] = deleted
	}
	utils.Success(ctx, data)
}

// ListHitCounts pages through counters, most hits first.
func (a *AdminController) ListHitCounts(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	items, total, err := a.svc.Counters.List(ctx.Request.Context(), page, pageSize)
	if err != nil {
		respondError(ctx, a.log, 50026, err)
		return
	}
	utils.Success(ctx, gin.H{"items": items, "pagination": utils.NewPagination(page, pageSize, total)})
}

// DeleteObject removes a content object's counter together with all of its hits.
func (a *AdminController) DeleteObject(ctx *gin.Context) {
	objectPK, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid object id")
		return
	}
	target := hitcount.Target{ContentType: ctx.Param("type"), ObjectPK: objectPK}
	removed, err := a.svc.Counters.DeleteTarget(ctx.Request.Context(), target)
	if err != nil {
		respondError(ctx, a.log, 50027, err)
		return
	}
	a.log.Info("counter deleted", zap.Stringer("target", target), zap.Int64("hits_removed", removed))
	utils.Success(ctx, gin.H{"hits_removed": removed})
}

// Sweep runs the retention sweep now and reports how many hits were removed.
func (a *AdminController) Sweep(ctx *gin.Context) {
	start := time.Now()
	removed, err := a.svc.Sweeper.SweepSpan(ctx.Request.Context(), a.svc.Config.KeepHitInDatabase)
	if err != nil {
		respondError(ctx, a.log, 50028, err)
		return
	}
	utils.Success(ctx, gin.H{
		"removed":  removed,
		"message":  fmt.Sprintf("Successfully removed %d Hits", removed),
		"duration": time.Since(start).String(),
	})
}

func deletedMessage(n int) string {
	if n == 1 {
		return "1 hit was successfully deleted."
	}
	return fmt.Sprintf("%d hits were successfully deleted.", n)
}
