package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yapper-space/core/internal/pkg/apperr"
	"github.com/yapper-space/core/internal/pkg/response"
	"github.com/yapper-space/core/internal/session"
)

const (
	ContextKeyUserID   = "user_id"
	ContextKeyIdentity = "identity"
	ContextKeyToken    = "session_token"
)

// ErrAuthRequired is returned when no bearer credential is presented at all.
var ErrAuthRequired = apperr.Auth("Authentication required")

// Auth returns a middleware that requires a valid session bearer token.
func Auth(m *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.Error(c, err)
			return
		}
		id, err := m.Validate(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Set(ContextKeyUserID, id.UserID)
		c.Set(ContextKeyIdentity, id)
		c.Set(ContextKeyToken, token)
		c.Next()
	}
}

// BearerToken extracts the token from an Authorization header value. A
// missing or non-Bearer header and an empty token are reported differently.
func BearerToken(header string) (string, error) {
	if header == "Bearer" {
		return "", session.ErrTokenRequired
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrAuthRequired
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	if token == "" {
		return "", session.ErrTokenRequired
	}
	return token, nil
}

// CurrentUserID extracts the authenticated user ID from context.
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(string)
	return id
}

// CurrentIdentity returns the identity set by Auth, or nil.
func CurrentIdentity(c *gin.Context) *session.Identity {
	v, _ := c.Get(ContextKeyIdentity)
	id, _ := v.(*session.Identity)
	return id
}

// CurrentToken returns the raw bearer token accepted by Auth.
func CurrentToken(c *gin.Context) string {
	v, _ := c.Get(ContextKeyToken)
	token, _ := v.(string)
	return token
}

// IsAuthenticated returns true if the request has a valid auth token.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentUserID(c) != ""
}

// RequestMeta is the client description recorded with sessions and activity.
// The first X-Forwarded-For hop wins over the socket address, matching what
// the extension's proxy sends.
func RequestMeta(c *gin.Context) session.Meta {
	ip := c.ClientIP()
	if fwd := strings.TrimSpace(strings.Split(c.GetHeader("X-Forwarded-For"), ",")[0]); fwd != "" {
		ip = fwd
	}
	return session.Meta{UserAgent: c.Request.UserAgent(), IP: ip}
}
