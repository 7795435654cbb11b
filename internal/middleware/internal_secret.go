package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/mtb-case-api/pkg/errors"
	"github.com/noah-isme/mtb-case-api/pkg/response"
)

// ProcessingSecretHeader carries the shared secret of service callbacks.
const ProcessingSecretHeader = "X-Processing-Secret"

// SharedSecret admits requests presenting secret in ProcessingSecretHeader.
// An empty secret closes the route entirely.
func SharedSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(ProcessingSecretHeader)
		if secret == "" || presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid processing secret"))
			c.Abort()
			return
		}
		c.Next()
	}
}
