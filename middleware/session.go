package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cppla/hitcount/utils"
)

// ContextSessionKey stores the *VisitorSession inside Gin context.
const ContextSessionKey = "visitor_session"

// VisitorSession is the anonymous visitor handle. A key is only issued on Save, so
// requests that never count a hit do not create sessions.
type VisitorSession struct {
	key    string
	store  utils.SessionStore
	ttl    time.Duration
	cookie string
	ctx    *gin.Context
}

// Key returns the session key, or "" before the first Save.
func (s *VisitorSession) Key() string {
	return s.key
}

// Save issues a key if needed, registers it in the store and (re)sets the cookie.
func (s *VisitorSession) Save(ctx context.Context) error {
	if s.key == "" {
		s.key = uuid.NewString()
	}
	if err := s.store.Touch(ctx, s.key, s.ttl); err != nil {
		return err
	}
	secure := s.ctx.Request.TLS != nil
	s.ctx.SetSameSite(http.SameSiteLaxMode)
	s.ctx.SetCookie(s.cookie, s.key, int(s.ttl/time.Second), "/", "", secure, true)
	return nil
}

// Sessions attaches a VisitorSession to every request. A cookie whose key is unknown
// to the store is ignored, so clients cannot choose their own session keys.
func Sessions(store utils.SessionStore, cookieName string, ttl time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		sess := &VisitorSession{store: store, ttl: ttl, cookie: cookieName, ctx: ctx}
		if raw, err := ctx.Cookie(cookieName); err == nil && raw != "" {
			if _, perr := uuid.Parse(raw); perr == nil {
				ok, err := store.Exists(ctx.Request.Context(), raw)
				if err != nil {
					utils.Sugar.Warnf("session lookup failed: %v", err)
				}
				if ok {
					sess.key = raw
				}
			}
		}
		ctx.Set(ContextSessionKey, sess)
		ctx.Next()
	}
}

// SessionFrom returns the request's VisitorSession.
func SessionFrom(ctx *gin.Context) (*VisitorSession, bool) {
	v, ok := ctx.Get(ContextSessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*VisitorSession)
	return sess, ok
}
