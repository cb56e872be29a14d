package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Miguel-Alzate/modr/internal/pkg/apperrors"
)

// ReadOnlyMiddleware rejects every mutating dashboard call (manual ingestion,
// deletes, cleanups) when enabled.
func ReadOnlyMiddleware(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		default:
			_ = c.Error(apperrors.New(apperrors.ErrReadOnly, "read-only mode enabled", nil))
			c.Abort()
			return
		}
	}
}
