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
	"github.com/citadelhq/citadel/pkg/common"
)

const (
	bcryptCost   = 12
	sessionTTL   = 24 * time.Hour
	minPasswdLen = 6
)

func registerAuthRoutes() {
	webserver.ApiGET("/setup", setupStatus)
	webserver.ApiPOST("/setup", setupCreate)
	webserver.ApiPOST("/auth/register", register)
	webserver.ApiPOST("/auth/login", login)
}

type credentialPayload struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func userView(u domain.SysUser) map[string]interface{} {
	return map[string]interface{}{
		"id":    u.ID,
		"name":  u.Name,
		"email": u.Email,
		"role":  u.Role,
	}
}

// setupStatus reports whether first-run setup is still required.
func setupStatus(c echo.Context) error {
	var adminCount int64
	if err := GetDB(c).Model(&domain.SysUser{}).
		Where("role = ?", domain.RoleAdmin).Count(&adminCount).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Database connection failed", nil)
	}
	return ok(c, map[string]interface{}{
		"needsSetup": adminCount == 0,
	})
}

// setupCreate creates the first admin account. Refused once any admin exists.
func setupCreate(c echo.Context) error {
	db := GetDB(c)

	var adminCount int64
	if err := db.Model(&domain.SysUser{}).
		Where("role = ?", domain.RoleAdmin).Count(&adminCount).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Database connection failed", nil)
	}
	if adminCount > 0 {
		return fail(c, http.StatusBadRequest, "SETUP_COMPLETE", "Setup already complete. Admin account exists.", nil)
	}

	var payload credentialPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse account parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	user, err := createAccount(db, payload, domain.RoleAdmin)
	if err != nil {
		if errors.Is(err, errEmailTaken) {
			return fail(c, http.StatusBadRequest, "EMAIL_TAKEN", "Email already in use", nil)
		}
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create admin account", nil)
	}

	audit(c, "setup", "created first admin "+user.Email)
	return created(c, map[string]interface{}{
		"message": "Admin account created successfully! You can now log in.",
		"user":    userView(*user),
	})
}

// register creates a plain user account.
func register(c echo.Context) error {
	var payload credentialPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse account parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	user, err := createAccount(GetDB(c), payload, domain.RoleUser)
	if err != nil {
		if errors.Is(err, errEmailTaken) {
			return fail(c, http.StatusBadRequest, "EMAIL_TAKEN", "User already exists", nil)
		}
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to register account", nil)
	}

	return created(c, map[string]interface{}{
		"message": "User registered successfully",
		"user":    userView(*user),
	})
}

var errEmailTaken = errors.New("email already in use")

// createAccount hashes the credential and inserts the account. Email is
// globally unique.
func createAccount(db *gorm.DB, payload credentialPayload, role string) (*domain.SysUser, error) {
	email := strings.ToLower(strings.TrimSpace(payload.Email))

	var exists int64
	if err := db.Model(&domain.SysUser{}).Where("email = ?", email).Count(&exists).Error; err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, errEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcryptCost)
	if err != nil {
		return nil, err
	}

	user := domain.SysUser{
		ID:        common.UUIDint64(),
		Name:      strings.TrimSpace(payload.Name),
		Email:     email,
		Password:  string(hashed),
		Role:      role,
		Status:    common.ENABLED,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// login verifies the credential and issues the session token. The token is
// returned in the body and set as the session cookie for browser clients.
func login(c echo.Context) error {
	var payload loginPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse credentials", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	db := GetDB(c)
	email := strings.ToLower(strings.TrimSpace(payload.Email))

	var user domain.SysUser
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		// Same response for unknown account and bad password.
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(payload.Password)); err != nil {
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}

	token, err := webserver.IssueToken(GetApp(c).Config().Web.Secret, user, sessionTTL)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "TOKEN_ERROR", "Failed to issue session token", nil)
	}

	db.Model(&domain.SysUser{}).Where("id = ?", user.ID).Update("last_login", time.Now())

	c.SetCookie(&http.Cookie{
		Name:     webserver.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(sessionTTL),
	})

	audit(c, "login", "account "+user.Email+" signed in")
	return ok(c, map[string]interface{}{
		"token": token,
		"user":  userView(user),
	})
}
