package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yansimam/backend/internal/auth"
	"github.com/yansimam/backend/pkg/response"
)

// TokenValidator checks a bearer token. *auth.JWTService implements it.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// JWT authenticates session owners. It rejects the request with 401 unless a valid
// bearer token is present, and stores the caller under auth.ContextUserID.
func JWT(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Unauthorized(c, "missing or malformed bearer token")
			return
		}
		claims, err := v.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}
		c.Set(auth.ContextUserID, claims.UserID)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
