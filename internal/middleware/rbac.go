package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/station-tasks-api/internal/models"
	appErrors "github.com/noah-isme/station-tasks-api/pkg/errors"
	"github.com/noah-isme/station-tasks-api/pkg/response"
)

// RequireRoles admits only operators holding one of the given roles.
// Station ownership is checked later, per request, by the services.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := CurrentUser(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role not permitted"))
			c.Abort()
			return
		}
		c.Next()
	}
}
