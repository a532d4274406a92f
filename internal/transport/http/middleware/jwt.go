package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"cloudpdf/internal/pkg/jwtutil"
	"cloudpdf/internal/transport/http/response"
)

const (
	ContextUserIDKey = "user_id"
	ContextClaimsKey = "claims"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*jwtutil.Claims, error)
}

// OptionalAuth resolves the caller when a valid bearer token is present and
// otherwise lets the request through as a guest.
func OptionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if ok {
			if claims, err := auth.Authenticate(c.Request.Context(), token); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Error(c, 401, "Unauthenticated.")
			c.Abort()
			return
		}

		claims, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.Error(c, 401, "Unauthenticated.")
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// CurrentUserID returns the authenticated caller, nil for guests.
func CurrentUserID(c *gin.Context) *uint {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return nil
	}
	id, ok := v.(uint)
	if !ok || id == 0 {
		return nil
	}
	return &id
}

func CurrentClaims(c *gin.Context) *jwtutil.Claims {
	v, ok := c.Get(ContextClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*jwtutil.Claims)
	return claims
}

func setClaims(c *gin.Context, claims *jwtutil.Claims) {
	c.Set(ContextUserIDKey, claims.UserID)
	c.Set(ContextClaimsKey, claims)
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
	return token, token != ""
}
