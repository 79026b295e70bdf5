package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/hitcount/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = "username"
)

// bearerToken extracts the token from the Authorization header. code is the API error
// code to report when the header is present but malformed.
func bearerToken(ctx *gin.Context) (token string, present bool, code int, msg string) {
	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		return "", false, 40101, "authorization header missing"
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", true, 40102, "invalid authorization header format"
	}
	token = strings.TrimSpace(parts[1])
	if token == "" {
		return "", true, 40103, "empty bearer token"
	}
	return token, true, 0, ""
}

// AuthRequired ensures the request is authenticated via JWT.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, _, code, msg := bearerToken(ctx)
		if code != 0 {
			utils.Error(ctx, http.StatusUnauthorized, code, msg)
			ctx.Abort()
			return
		}

		claims, err := utils.ParseToken(token)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
			ctx.Abort()
			return
		}

		ctx.Set(ContextUserIDKey, claims.UserID)
		ctx.Set(ContextUsernameKey, claims.Username)
		ctx.Next()
	}
}

// OptionalAuth attaches the user identity when a valid bearer token is sent and lets
// anonymous requests through untouched. A bad token is treated as anonymous.
func OptionalAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, present, code, _ := bearerToken(ctx)
		if present && code == 0 {
			if claims, err := utils.ParseToken(token); err == nil {
				ctx.Set(ContextUserIDKey, claims.UserID)
				ctx.Set(ContextUsernameKey, claims.Username)
			}
		}
		ctx.Next()
	}
}

// AdminRequired must follow AuthRequired. isAdmin decides on the username.
func AdminRequired(isAdmin func(username string) bool) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !IsAdmin(ctx, isAdmin) {
			utils.Error(ctx, http.StatusForbidden, 40301, "admin privilege required")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// IsAdmin reports whether the authenticated user passes isAdmin.
func IsAdmin(ctx *gin.Context, isAdmin func(username string) bool) bool {
	name, ok := ctx.Get(ContextUsernameKey)
	if !ok {
		return false
	}
	username, _ := name.(string)
	return username != "" && isAdmin(username)
}

// UserID returns the authenticated user id, if any.
func UserID(ctx *gin.Context) (uint, bool) {
	v, ok := ctx.Get(ContextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}
