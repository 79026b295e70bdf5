package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/hitcount/hitcount"
	"github.com/cppla/hitcount/utils"
)

// respondError maps core errors onto the API envelope. Unexpected errors are logged
// and reported as 500 with code.
func respondError(ctx *gin.Context, log *zap.Logger, code int, err error) {
	switch {
	case errors.Is(err, hitcount.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40401, "not found")
	case errors.Is(err, hitcount.ErrPermission):
		utils.Error(ctx, http.StatusForbidden, 40302, "permission denied")
	case errors.Is(err, hitcount.ErrConfiguration), errors.Is(err, hitcount.ErrValidation):
		utils.Error(ctx, http.StatusBadRequest, 40010, err.Error())
	default:
		log.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, code, "internal error")
	}
}

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 20
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func parseID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
