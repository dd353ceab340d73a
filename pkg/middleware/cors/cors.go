package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Policy holds the set of origins allowed to call the API and open realtime sockets.
type Policy struct {
	allowAll bool
	origins  map[string]struct{}
}

// NewPolicy builds a policy; an empty list allows every origin.
func NewPolicy(allowedOrigins []string) *Policy {
	p := &Policy{
		allowAll: len(allowedOrigins) == 0,
		origins:  make(map[string]struct{}, len(allowedOrigins)),
	}
	for _, origin := range allowedOrigins {
		p.origins[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return p
}

// Allows reports whether the origin may access the API. Requests without an Origin header pass.
func (p *Policy) Allows(origin string) bool {
	if origin == "" || p.allowAll {
		return true
	}
	_, ok := p.origins[strings.TrimRight(origin, "/")]
	return ok
}

// CheckOrigin adapts the policy to websocket upgraders.
func (p *Policy) CheckOrigin(r *http.Request) bool {
	return p.Allows(r.Header.Get("Origin"))
}

// New returns a CORS middleware that honors a list of allowed origins.
func New(allowedOrigins []string) gin.HandlerFunc {
	return NewPolicy(allowedOrigins).Middleware()
}

// Middleware writes CORS headers and short-circuits preflight requests.
func (p *Policy) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if p.Allows(origin) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			}
		} else if p.allowAll {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Vary", "Origin")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
