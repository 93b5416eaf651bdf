package server

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey  = "request_id"
	sessionKey    = "session"
	requestHeader = "X-Request-ID"
	roleHeader    = "X-Role"
)

// Role is what the caller claims to be.
type Role string

const (
	RoleOrganizer  Role = "organizer"
	RoleBoothStaff Role = "booth_staff"
)

// Session is the caller identity carried through a request.
type Session struct {
	Token string
	Role  Role
}

// RequestID reuses the incoming X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(requestIDKey, requestID)
		c.Header(requestHeader, requestID)
		c.Next()
	}
}

// AccessLog writes one line per request.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

// Recovery turns panics into a 500 response.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error().
			Str("request_id", c.GetString(requestIDKey)).
			Str("path", c.Request.URL.Path).
			Interface("panic", recovered).
			Msg("panic recovered")
		writeError(c, fmt.Errorf("%w: panic", errInternal))
	})
}

// SessionMiddleware reads the bearer token and role into the request's Session.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var session Session
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			session.Token = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
		session.Role = Role(strings.TrimSpace(c.GetHeader(roleHeader)))

		c.Set(sessionKey, session)
		c.Next()
	}
}

// RequireRole rejects callers without a token or with a role not in roles.
func RequireRole(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := CurrentSession(c)
		if session.Token == "" {
			writeError(c, errUnauthenticated)
			return
		}
		if !slices.Contains(roles, session.Role) {
			writeError(c, fmt.Errorf("%w: %q", errForbidden, session.Role))
			return
		}
		c.Next()
	}
}

// CurrentSession returns the Session stored by SessionMiddleware.
func CurrentSession(c *gin.Context) Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(Session); ok {
			return s
		}
	}
	return Session{}
}
