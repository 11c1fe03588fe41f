package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/ncastellanos/vecino/internal/auth"
	"github.com/ncastellanos/vecino/pkg/errors"
	"github.com/ncastellanos/vecino/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
	CtxNameKey   = "userName"
	CtxEmailKey  = "userEmail"
)

// Auth enforces JWT authentication using the supplied JWT service. The token
// may arrive as a Bearer header or, for websocket upgrades from browsers, as
// an access_token query parameter.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		// Propagate identity into request context
		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		if claims.Name != "" {
			c.Set(CtxNameKey, claims.Name)
		}
		if claims.Email != "" {
			c.Set(CtxEmailKey, claims.Email)
		}

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) >= 8 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return strings.TrimSpace(c.Query("access_token"))
}
