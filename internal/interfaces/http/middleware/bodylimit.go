package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adrecon/backend/internal/interfaces/http/dto"
)

// BodyLimit caps request bodies at maxBytes. Trigger and cancel requests carry
// at most a small JSON document, so anything declared larger is refused up front
// and chunked bodies are cut off by the reader.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			abortWithError(c, dto.ErrCodeRequestTooLarge, "request body too large")
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
