package adminapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/citadelhq/citadel/internal/domain"
	"github.com/citadelhq/citadel/internal/webserver"
)

func registerUserRoutes() {
	webserver.ApiGET("/users", listUsers)
	webserver.ApiPUT("/users", updateUserRole)
	webserver.ApiPOST("/admin/create", createAdmin)
	webserver.ApiGET("/profile", getProfile)
	webserver.ApiPUT("/profile", updateProfile)
}

// listUsers returns all accounts, newest first. Password hashes never leave
// the model (json:"-").
func listUsers(c echo.Context) error {
	var users []domain.SysUser
	if err := GetDB(c).Order("created_at DESC").Find(&users).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query users", nil)
	}
	return ok(c, map[string]interface{}{"users": users})
}

type rolePayload struct {
	UserID int64  `json:"userId,string" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=admin user"`
}

// updateUserRole grants or revokes the admin role. Operators cannot change
// their own role.
func updateUserRole(c echo.Context) error {
	var payload rolePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse role parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	session := webserver.CurrentSession(c)
	if session != nil && session.UserID == payload.UserID {
		return fail(c, http.StatusBadRequest, "SELF_ROLE_CHANGE", "Cannot change your own role", nil)
	}

	db := GetDB(c)
	var user domain.SysUser
	if err := db.Where("id = ?", payload.UserID).First(&user).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "USER_NOT_FOUND", "User not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query user", nil)
	}

	if err := db.Model(&domain.SysUser{}).Where("id = ?", user.ID).
		Updates(map[string]interface{}{"role": payload.Role, "updated_at": time.Now()}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update user role", nil)
	}
	user.Role = payload.Role

	audit(c, "role_change", "account "+user.Email+" role set to "+payload.Role)
	return ok(c, map[string]interface{}{
		"message": "User role updated to " + payload.Role,
		"user":    user,
	})
}

// createAdmin creates another admin account.
func createAdmin(c echo.Context) error {
	var payload credentialPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse account parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	user, err := createAccount(GetDB(c), payload, domain.RoleAdmin)
	if err != nil {
		if errors.Is(err, errEmailTaken) {
			return fail(c, http.StatusBadRequest, "EMAIL_TAKEN", "User with this email already exists", nil)
		}
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create admin account", nil)
	}

	audit(c, "admin_create", "created admin "+user.Email)
	return created(c, map[string]interface{}{
		"message": "Admin created successfully",
		"admin":   userView(*user),
	})
}

func getProfile(c echo.Context) error {
	session := webserver.CurrentSession(c)
	if session == nil {
		return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
	}

	var user domain.SysUser
	if err := GetDB(c).Where("id = ?", session.UserID).First(&user).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "USER_NOT_FOUND", "User not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query user", nil)
	}
	return ok(c, map[string]interface{}{"user": user})
}

type profilePayload struct {
	Name            string `json:"name"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// updateProfile changes the caller's display name and, when both password
// fields are present, the credential after verifying the current one.
func updateProfile(c echo.Context) error {
	session := webserver.CurrentSession(c)
	if session == nil {
		return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
	}

	var payload profilePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse profile parameters", nil)
	}

	db := GetDB(c)
	var user domain.SysUser
	if err := db.Where("id = ?", session.UserID).First(&user).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "USER_NOT_FOUND", "User not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query user", nil)
	}

	updates := map[string]interface{}{"updated_at": time.Now()}

	if payload.CurrentPassword != "" && payload.NewPassword != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(payload.CurrentPassword)); err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_PASSWORD", "Current password is incorrect", nil)
		}
		if len(payload.NewPassword) < minPasswdLen {
			return fail(c, http.StatusBadRequest, "WEAK_PASSWORD", "New password must be at least 6 characters", nil)
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(payload.NewPassword), bcryptCost)
		if err != nil {
			return fail(c, http.StatusInternalServerError, "HASH_ERROR", "Failed to update password", nil)
		}
		updates["password"] = string(hashed)
	}

	if name := strings.TrimSpace(payload.Name); name != "" {
		updates["name"] = name
		user.Name = name
	}

	if err := db.Model(&domain.SysUser{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update profile", nil)
	}

	audit(c, "profile_update", "account "+user.Email+" updated profile")
	return ok(c, map[string]interface{}{
		"message": "Profile updated successfully",
		"user":    userView(user),
	})
}
