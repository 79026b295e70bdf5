package middleware

import (
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/hitcount/utils"
)

// RequestLogger writes one structured line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		path := ctx.Request.URL.Path
		query := ctx.Request.URL.RawQuery

		ctx.Next()

		fields := []zap.Field{
			zap.Int("status", ctx.Writer.Status()),
			zap.String("method", ctx.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", ctx.ClientIP()),
			zap.String("user_agent", ctx.Request.UserAgent()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(ctx.Errors) > 0 {
			logger.Error(ctx.Errors.String(), fields...)
			return
		}
		logger.Info(path, fields...)
	}
}

// Recovery turns panics into a 500 envelope and logs them with the stack.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			// a broken client connection is not worth a stack trace
			var brokenPipe bool
			if ne, ok := rec.(*net.OpError); ok {
				var se *os.SyscallError
				if errors.As(ne.Err, &se) {
					msg := strings.ToLower(se.Error())
					brokenPipe = strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
				}
			}
			dump, _ := httputil.DumpRequest(ctx.Request, false)
			if brokenPipe {
				logger.Error(ctx.Request.URL.Path, zap.Any("error", rec), zap.ByteString("request", dump))
				ctx.Abort()
				return
			}
			logger.Error("panic recovered",
				zap.Any("error", rec),
				zap.ByteString("request", dump),
				zap.ByteString("stack", debug.Stack()))
			utils.Error(ctx, http.StatusInternalServerError, 50000, "internal server error")
			ctx.Abort()
		}()
		ctx.Next()
	}
}
