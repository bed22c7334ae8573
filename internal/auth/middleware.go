package auth

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ginIdentityKey = "identity"

// Middleware rejects requests without a valid token. The token comes from
// the Authorization header, or from the "token" query parameter for
// WebSocket upgrades where browsers cannot set headers.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
			return
		}

		id, err := s.Verify(c.Request.Context(), token)
		if err != nil {
			if !IsUnauthenticated(err) {
				log.Printf("ERROR: Token verification failed: %v", err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Authentication unavailable"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
			return
		}

		c.Set(ginIdentityKey, id)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// Caller returns the identity the middleware attached to c.
func Caller(c *gin.Context) (*Identity, error) {
	if id, ok := c.Get(ginIdentityKey); ok {
		if id, ok := id.(*Identity); ok {
			return id, nil
		}
	}
	return FromContext(c.Request.Context())
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return c.Query("token")
}
