package middleware

import (
	"github.com/gin-gonic/gin"
)

const ContextBypassKey = "modr_bypass"

// Bypass marks the current request so it is never captured.
func Bypass(c *gin.Context) {
	c.Set(ContextBypassKey, true)
}

func IsBypassed(c *gin.Context) bool {
	return c.GetBool(ContextBypassKey)
}

// BypassGate marks requests under any of the given path prefixes (the
// monitoring API itself, health and metrics endpoints, admin paths). It must
// run before Capture.
func BypassGate(prefixes ...string) gin.HandlerFunc {
	kept := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return func(c *gin.Context) {
		uri := c.Request.URL.RequestURI()
		for _, p := range kept {
			if MatchPath(uri, p) {
				Bypass(c)
				break
			}
		}
		c.Next()
	}
}
