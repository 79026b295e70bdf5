package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/hitcount/utils"
)

// AJAXRequired rejects requests that do not carry X-Requested-With: XMLHttpRequest.
// Hits are only counted from the page's own script, not from plain link fetches.
func AJAXRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.GetHeader("X-Requested-With") != "XMLHttpRequest" {
			utils.Error(ctx, http.StatusBadRequest, 40001, "XMLHttpRequest required")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}
