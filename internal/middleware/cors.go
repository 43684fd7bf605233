package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// visitorHeader carries the browser fingerprint on cross-origin vote submissions.
const visitorHeader = "X-Visitor-ID"

// corsPolicy is the parsed CORS_ALLOWED_ORIGINS setting.
type corsPolicy struct {
	any     bool
	origins map[string]struct{}
}

func parseCORSPolicy(s string) corsPolicy {
	p := corsPolicy{origins: make(map[string]struct{})}
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			p.any = true
		default:
			p.origins[o] = struct{}{}
		}
	}
	if len(p.origins) == 0 {
		p.any = true
	}
	return p
}

// allow returns the Access-Control-Allow-Origin value for origin, or "" to omit it.
func (p corsPolicy) allow(origin string) string {
	if p.any {
		return "*"
	}
	if _, ok := p.origins[origin]; ok {
		return origin
	}
	return ""
}

// CORS lets the owner dashboard and embedded voting widgets call the API from other origins.
// allowedOrigins is "*" or a comma-separated list; an empty list allows every origin.
func CORS(allowedOrigins string) gin.HandlerFunc {
	policy := parseCORSPolicy(allowedOrigins)
	return func(c *gin.Context) {
		if !policy.any {
			c.Header("Vary", "Origin")
		}
		if allow := policy.allow(c.GetHeader("Origin")); allow != "" {
			c.Header("Access-Control-Allow-Origin", allow)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+visitorHeader)
			c.Header("Access-Control-Expose-Headers", "Location")
			c.Header("Access-Control-Max-Age", "86400")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
