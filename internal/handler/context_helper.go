package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mtb-case-api/internal/middleware"
	"github.com/noah-isme/mtb-case-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// currentUserID returns the authenticated user id, or "" so services answer
// with UNAUTHORIZED.
func currentUserID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}
