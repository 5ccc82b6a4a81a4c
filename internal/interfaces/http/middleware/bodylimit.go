package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulseboard/backend/internal/interfaces/http/dto"
)

// BodyLimit returns a middleware that limits request body size.
// Webhook payloads from providers are the main reason this exists; a
// misbehaving sender should not be able to stream an unbounded body.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				dto.NewErrorResponse(dto.ErrCodePayloadTooLarge, "Request body exceeds maximum allowed size"))
			return
		}

		// Wrap the body with a limited reader for streaming requests
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
