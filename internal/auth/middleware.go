package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/askdb/askdb/internal/errors"
)

// Middleware returns a Gin middleware for authentication. Requests carry
// either a bearer JWT or an X-API-Key header.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if shouldSkipAuth(c.Request.URL.Path) {
			c.Next()
			return
		}

		user, err := m.authenticateRequest(c)
		if err != nil {
			if m.config.AllowAnonymous {
				c.Next()
				return
			}

			authErr := apperrors.NewNotAuthenticatedError()
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":       authErr.Code,
					"message":    authErr.Message,
					"suggestion": authErr.Suggestion,
				},
			})
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Set("username", user.Username)
		c.Set("roles", user.Roles)

		c.Next()
	}
}

// RequireRole returns a middleware that checks if the user has any of the
// required roles.
func (m *Manager) RequireRole(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, exists := GetCurrentUser(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": apperrors.ErrCodeNotAuthenticated, "message": "Authentication required"},
			})
			c.Abort()
			return
		}

		hasRole := false
		for _, required := range requiredRoles {
			for _, userRole := range user.Roles {
				if userRole == required {
					hasRole = true
					break
				}
			}
			if hasRole {
				break
			}
		}

		if !hasRole {
			c.JSON(http.StatusForbidden, gin.H{
				"error": gin.H{"code": "INSUFFICIENT_PERMISSIONS", "message": "Insufficient permissions"},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// authenticateRequest tries JWT first, then API key
func (m *Manager) authenticateRequest(c *gin.Context) (*User, error) {
	if user, err := m.authenticateJWT(c); err == nil {
		return user, nil
	}

	if user, err := m.authenticateAPIKey(c); err == nil {
		return user, nil
	}

	return nil, http.ErrAbortHandler
}

func (m *Manager) authenticateJWT(c *gin.Context) (*User, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, http.ErrAbortHandler
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, http.ErrAbortHandler
	}

	claims, err := m.ValidateJWTToken(parts[1])
	if err != nil {
		return nil, err
	}

	return m.GetUser(claims.UserID)
}

func (m *Manager) authenticateAPIKey(c *gin.Context) (*User, error) {
	apiKey := c.GetHeader("X-API-Key")
	if apiKey == "" {
		apiKey = c.Query("api_key")
	}

	if apiKey == "" {
		return nil, http.ErrAbortHandler
	}

	return m.ValidateAPIKey(apiKey)
}

// shouldSkipAuth checks if a path should skip authentication
func shouldSkipAuth(path string) bool {
	skipPaths := []string{
		"/health",
		"/api/v1/auth/login",
	}

	for _, skipPath := range skipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}

	return false
}

// GetCurrentUser returns the current authenticated user from context
func GetCurrentUser(c *gin.Context) (*User, bool) {
	value, exists := c.Get("user")
	if !exists {
		return nil, false
	}

	user, ok := value.(*User)
	return user, ok
}

// GetCurrentUserID returns the current user ID from context
func GetCurrentUserID(c *gin.Context) (string, bool) {
	value, exists := c.Get("user_id")
	if !exists {
		return "", false
	}

	userID, ok := value.(string)
	return userID, ok
}
