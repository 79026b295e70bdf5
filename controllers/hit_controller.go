package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/hitcount/hitcount"
	"github.com/cppla/hitcount/middleware"
	"github.com/cppla/hitcount/utils"
)

const msgMissingCounter = "HitCount object_pk not present."

// maxRecentUnit bounds each unit of a recent-hits span so the sum stays well inside
// time.Duration.
const maxRecentUnit = 100000

// HitController serves the public counting endpoints.
type HitController struct {
	svc *hitcount.Service
	log *zap.Logger
}

// NewHitController creates a new HitController instance.
func NewHitController(svc *hitcount.Service, logger *zap.Logger) *HitController {
	return &HitController{svc: svc, log: logger}
}

type hitResponse struct {
	PK         uint            `json:"pk"`
	HitCounted bool            `json:"hit_counted"`
	HitMessage string          `json:"hit_message"`
	Reason     hitcount.Reason `json:"reason"`
	TotalHits  int64           `json:"total_hits"`
}

// fingerprint resolves the visitor behind ctx.
func (h *HitController) fingerprint(ctx *gin.Context) (hitcount.Fingerprint, error) {
	req := hitcount.Request{
		ForwardedFor: ctx.GetHeader("X-Forwarded-For"),
		RemoteAddr:   ctx.Request.RemoteAddr,
		UserAgent:    ctx.Request.UserAgent(),
	}
	if sess, ok := middleware.SessionFrom(ctx); ok {
		req.Session = sess
	}
	if id, ok := middleware.UserID(ctx); ok {
		req.UserID = &id
	}
	return h.svc.Resolver.Resolve(ctx.Request.Context(), req)
}

// CountHit evaluates a hit for the counter named by hitcountPK (form or JSON body).
func (h *HitController) CountHit(ctx *gin.Context) {
	var req struct {
		HitCountPK uint `form:"hitcountPK" json:"hitcountPK"`
	}
	if err := ctx.ShouldBind(&req); err != nil || req.HitCountPK == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40002, msgMissingCounter)
		return
	}

	c := ctx.Request.Context()
	if _, err := h.svc.Counters.Get(c, req.HitCountPK); err != nil {
		if errors.Is(err, hitcount.ErrNotFound) {
			utils.Error(ctx, http.StatusBadRequest, 40002, msgMissingCounter)
			return
		}
		respondError(ctx, h.log, 50010, err)
		return
	}

	fp, err := h.fingerprint(ctx)
	if err != nil {
		respondError(ctx, h.log, 50011, err)
		return
	}
	verdict, err := h.svc.Engine.Evaluate(c, fp, req.HitCountPK)
	if err != nil {
		respondError(ctx, h.log, 50012, err)
		return
	}
	hc, err := h.svc.Counters.Get(c, req.HitCountPK)
	if err != nil {
		respondError(ctx, h.log, 50010, err)
		return
	}
	utils.Success(ctx, hitResponse{
		PK:         hc.ID,
		HitCounted: verdict.Admitted,
		HitMessage: verdict.Message,
		Reason:     verdict.Reason,
		TotalHits:  hc.Hits,
	})
}

// CountHitGet answers GET on the counting endpoint; hits are never counted from GET.
func (h *HitController) CountHitGet(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"success": false, "error_message": "Hits counted via POST only."})
}

// ObjectHitCount returns the counter for a content object, creating it on first use.
// With ?count=1 the request itself is evaluated as a hit and total_hits includes it.
func (h *HitController) ObjectHitCount(ctx *gin.Context) {
	objectPK, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid object id")
		return
	}
	c := ctx.Request.Context()
	hc, err := h.svc.Counters.GetOrCreate(c, hitcount.Target{ContentType: ctx.Param("type"), ObjectPK: objectPK})
	if err != nil {
		respondError(ctx, h.log, 50013, err)
		return
	}

	data := gin.H{"pk": hc.ID}
	total := hc.Hits
	if ctx.Query("count") == "1" {
		fp, err := h.fingerprint(ctx)
		if err != nil {
			respondError(ctx, h.log, 50011, err)
			return
		}
		verdict, err := h.svc.Engine.Evaluate(c, fp, hc.ID)
		if err != nil {
			respondError(ctx, h.log, 50012, err)
			return
		}
		if verdict.Admitted {
			total++
		}
		data["hit_counted"] = verdict.Admitted
		data["hit_message"] = verdict.Message
		data["reason"] = verdict.Reason
	}
	data["total_hits"] = total
	utils.Success(ctx, data)
}

// RecentHits counts hits recorded on a counter during the span given by the weeks,
// days, hours, minutes and seconds query parameters. At least one unit is required.
func (h *HitController) RecentHits(ctx *gin.Context) {
	id, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40004, "invalid hitcount id")
		return
	}
	var span hitcount.Span
	for _, unit := range []string{"weeks", "days", "hours", "minutes", "seconds"} {
		raw := ctx.Query(unit)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxRecentUnit {
			utils.Error(ctx, http.StatusBadRequest, 40005, "invalid "+unit)
			return
		}
		if err := span.Set(unit, n); err != nil {
			respondError(ctx, h.log, 50014, err)
			return
		}
	}

	c := ctx.Request.Context()
	if _, err := h.svc.Counters.Get(c, id); err != nil {
		respondError(ctx, h.log, 50010, err)
		return
	}
	n, err := h.svc.Index.HitsInLast(c, id, span)
	if err != nil {
		respondError(ctx, h.log, 50014, err)
		return
	}
	utils.Success(ctx, gin.H{"pk": id, "span": span, "hits": n})
}
