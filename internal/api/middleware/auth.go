package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bazaar/leadhub/internal/apperr"
	"bazaar/leadhub/internal/auth"
	"bazaar/leadhub/internal/models"
	"bazaar/leadhub/internal/utils"
)

const (
	// ContextKeyUserID holds the authenticated utils.SixID.
	ContextKeyUserID = "userID"
	// ContextKeyUser holds the loaded *models.User.
	ContextKeyUser = "user"
)

// UserFinder loads the account behind a token.
type UserFinder interface {
	FindUser(ctx context.Context, id utils.SixID) (*models.User, error)
}

// StaffChecker reports whether an individual currently works for a vendor.
type StaffChecker interface {
	IsActiveStaff(ctx context.Context, userID utils.SixID) (bool, error)
}

func abort(c *gin.Context, status int, kind apperr.Kind, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": kind, "message": message})
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware validates the bearer JWT and requires the user to exist and be active.
func AuthMiddleware(jwtSecret string, users UserFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, http.StatusUnauthorized, "unauthorized", "Authorization header required")
			return
		}
		token, ok := BearerToken(header)
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthorized", "Authorization header format must be Bearer {token}")
			return
		}

		claims, err := auth.ValidateJWT(token, jwtSecret)
		if err != nil {
			abort(c, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}
		userID, err := claims.ID()
		if err != nil {
			abort(c, http.StatusUnauthorized, "unauthorized", "Invalid token subject")
			return
		}

		user, err := users.FindUser(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				abort(c, http.StatusForbidden, apperr.KindForbidden, "User not found or inactive")
				return
			}
			log.Printf("Auth: failed to load user %s: %v", userID, err)
			abort(c, http.StatusInternalServerError, "internal_error", "Failed to authenticate")
			return
		}
		if !user.Active {
			abort(c, http.StatusForbidden, apperr.KindForbidden, "User not found or inactive")
			return
		}

		c.Set(ContextKeyUserID, user.ID)
		c.Set(ContextKeyUser, user)
		c.Next()
	}
}

// CurrentUser returns the user set by AuthMiddleware, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(ContextKeyUser)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// CurrentActor is CurrentUser reduced to what recipient operations need.
func CurrentActor(c *gin.Context) models.Actor {
	user := CurrentUser(c)
	if user == nil {
		return models.Actor{}
	}
	return models.Actor{ID: user.ID, Name: user.Name, Role: user.Role}
}

// RequireRole lets through only the listed roles. Assumes AuthMiddleware runs first.
func RequireRole(message string, roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user != nil {
			for _, r := range roles {
				if user.Role == r {
					c.Next()
					return
				}
			}
		}
		abort(c, http.StatusForbidden, apperr.KindForbidden, message)
	}
}

// VendorMiddleware restricts a group to vendors.
func VendorMiddleware() gin.HandlerFunc {
	return RequireRole("Only vendors can access vendor inquiries", models.RoleVendor)
}

// AdminMiddleware creates a Gin middleware to check for admin privileges.
func AdminMiddleware() gin.HandlerFunc {
	return RequireRole("Administrator privileges required", models.RoleAdmin, models.RoleSuperAdmin)
}

// IndividualMiddleware admits individuals who are not currently staff of a vendor.
func IndividualMiddleware(staff StaffChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || user.Role == models.RoleVendor || user.Role.IsAdmin() {
			abort(c, http.StatusForbidden, apperr.KindForbidden, "Only individuals can view their inquiries")
			return
		}
		isStaff, err := staff.IsActiveStaff(c.Request.Context(), user.ID)
		if err != nil {
			log.Printf("Auth: staff lookup failed for %s: %v", user.ID, err)
			abort(c, http.StatusInternalServerError, "internal_error", "Failed to authenticate")
			return
		}
		if isStaff {
			abort(c, http.StatusForbidden, apperr.KindForbidden, "Staff members cannot view individual inquiries")
			return
		}
		c.Next()
	}
}
