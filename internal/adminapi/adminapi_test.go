package adminapi

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/citadelhq/citadel/config"
	"github.com/citadelhq/citadel/internal/app"
	"github.com/citadelhq/citadel/internal/domain"
	"github.com/citadelhq/citadel/internal/ratelimit"
	"github.com/citadelhq/citadel/internal/webserver"
)

func TestMain(m *testing.M) {
	cfg := *config.DefaultAppConfig
	cfg.RateLimit.Auth = config.RateLimitClassConfig{MaxRequests: 1000, WindowSecs: 60}
	cfg.RateLimit.Default = config.RateLimitClassConfig{MaxRequests: 10000, WindowSecs: 60}

	a := app.NewApplication(&cfg)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		panic(err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(domain.Tables...); err != nil {
		panic(err)
	}

	a.OverrideDB(db)
	a.OverrideLimiter(ratelimit.NewMemoryStore())

	webserver.Init(a)
	InitRouter()

	os.Exit(m.Run())
}

func doJSON(t *testing.T, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := jsoniter.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	webserver.Instance().Echo().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), out))
}

type loginResp struct {
	Token string `json:"token"`
	User  struct {
		ID   int64  `json:"id"`
		Role string `json:"role"`
	} `json:"user"`
}

func loginAs(t *testing.T, email, password string) loginResp {
	t.Helper()
	rec := doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp loginResp
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.Token)
	return resp
}

func validProductBody(sku string) map[string]interface{} {
	return map[string]interface{}{
		"name":        "Mechanical Keyboard",
		"description": "A sturdy keyboard for daily typing work",
		"category":    "peripherals",
		"price":       79.90,
		"stock":       25,
		"images":      []string{"https://img.example.com/kb.jpg"},
		"sku":         sku,
	}
}

func TestAdminWorkflow(t *testing.T) {
	// First-run setup.
	rec := doJSON(t, http.MethodGet, "/api/setup", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"needsSetup":true`)

	rec = doJSON(t, http.MethodPost, "/api/setup", "", map[string]string{
		"name": "Root Admin", "email": "admin@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, http.MethodGet, "/api/setup", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"needsSetup":false`)

	rec = doJSON(t, http.MethodPost, "/api/setup", "", map[string]string{
		"name": "Another", "email": "other@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "SETUP_COMPLETE")

	// Wrong password is indistinguishable from an unknown account.
	rec = doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "admin@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_CREDENTIALS")

	admin := loginAs(t, "admin@example.com", "secret123")

	// Catalog management.
	rec = doJSON(t, http.MethodPost, "/api/products", admin.Token, validProductBody("KB-100"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var createResp struct {
		Product domain.Product `json:"product"`
	}
	decode(t, rec, &createResp)
	require.NotZero(t, createResp.Product.ID)

	// Duplicate SKU is rejected and the original row stays intact.
	dup := validProductBody("KB-100")
	dup["name"] = "Impostor Keyboard"
	rec = doJSON(t, http.MethodPost, "/api/products", admin.Token, dup)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "DUPLICATE_SKU")

	rec = doJSON(t, http.MethodGet, fmt.Sprintf("/api/products/%d", createResp.Product.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Mechanical Keyboard")

	rec = doJSON(t, http.MethodPost, "/api/products", admin.Token, validProductBody("kb-101"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_SKU")

	// Public read needs no credential.
	rec = doJSON(t, http.MethodGet, "/api/products?search=keyboard", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "KB-100")
	assert.Contains(t, rec.Body.String(), `"pagination"`)

	// Partial update leaves untouched fields alone.
	rec = doJSON(t, http.MethodPut, fmt.Sprintf("/api/products/%d", createResp.Product.ID),
		admin.Token, map[string]interface{}{"stock": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updateResp struct {
		Product domain.Product `json:"product"`
	}
	decode(t, rec, &updateResp)
	assert.Equal(t, 5, updateResp.Product.Stock)
	assert.Equal(t, "Mechanical Keyboard", updateResp.Product.Name)

	rec = doJSON(t, http.MethodPut, "/api/products/999999", admin.Token,
		map[string]interface{}{"stock": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Plain users can read but not mutate the catalog.
	rec = doJSON(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Shopper", "email": "shopper@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var regResp struct {
		User struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	decode(t, rec, &regResp)

	shopper := loginAs(t, "shopper@example.com", "secret123")
	rec = doJSON(t, http.MethodPost, "/api/products", shopper.Token, validProductBody("KB-200"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = doJSON(t, http.MethodGet, "/api/dashboard", shopper.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Role management.
	rec = doJSON(t, http.MethodPut, "/api/users", admin.Token, map[string]string{
		"userId": fmt.Sprintf("%d", admin.User.ID), "role": "user",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "SELF_ROLE_CHANGE")

	rec = doJSON(t, http.MethodPut, "/api/users", admin.Token, map[string]string{
		"userId": fmt.Sprintf("%d", regResp.User.ID), "role": "admin",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, http.MethodGet, "/api/users", admin.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"password"`)

	// Sales ledger.
	rec = doJSON(t, http.MethodPost, "/api/sales", admin.Token, map[string]interface{}{
		"productId": fmt.Sprintf("%d", createResp.Product.ID),
		"quantity":  2, "totalAmount": 159.80,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, http.MethodPost, "/api/sales", admin.Token, map[string]interface{}{
		"productId": "999999", "quantity": 1, "totalAmount": 1.00,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "PRODUCT_NOT_FOUND")

	rec = doJSON(t, http.MethodGet, "/api/sales", admin.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	// Dashboard aggregate reflects the ledger.
	rec = doJSON(t, http.MethodGet, "/api/dashboard", admin.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"totalProducts":1`)
	assert.Contains(t, rec.Body.String(), `"lowStockProducts":1`)
	assert.Contains(t, rec.Body.String(), "Mechanical Keyboard")

	// CSV export.
	rec = doJSON(t, http.MethodGet, "/api/products/export", admin.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "products.csv")
	assert.Contains(t, rec.Body.String(), "KB-100")
}

func TestValidationDetails(t *testing.T) {
	rec := doJSON(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "X", "email": "not-an-email", "password": "123",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_FAILED")
	assert.Contains(t, rec.Body.String(), `"field"`)
}

func TestProfileUpdate(t *testing.T) {
	rec := doJSON(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Profile User", "email": "profile@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	session := loginAs(t, "profile@example.com", "secret123")

	rec = doJSON(t, http.MethodGet, "/api/profile", session.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "profile@example.com")

	// Password change requires the current credential.
	rec = doJSON(t, http.MethodPut, "/api/profile", session.Token, map[string]string{
		"currentPassword": "wrong", "newPassword": "newsecret123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_PASSWORD")

	rec = doJSON(t, http.MethodPut, "/api/profile", session.Token, map[string]string{
		"name":            "Renamed User",
		"currentPassword": "secret123",
		"newPassword":     "newsecret123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	loginAs(t, "profile@example.com", "newsecret123")
}
