package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/station-tasks-api/internal/middleware"
	"github.com/noah-isme/station-tasks-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}
