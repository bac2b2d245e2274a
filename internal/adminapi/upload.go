package adminapi

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/guonaihong/gout"
	"github.com/labstack/echo/v4"

	"github.com/citadelhq/citadel/config"
	"github.com/citadelhq/citadel/internal/webserver"
)

const maxUploadBytes = 5 * 1024 * 1024

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

func registerUploadRoutes() {
	webserver.ApiPOST("/upload", uploadImage)
	webserver.ApiDELETE("/upload", deleteImage)
}

// cloudinarySign builds the SHA-1 request signature over the sorted
// parameter string plus the API secret.
func cloudinarySign(params string, secret string) string {
	sum := sha1.Sum([]byte(params + secret))
	return hex.EncodeToString(sum[:])
}

func cloudinaryReady(cfg config.CloudinaryConfig) bool {
	return cfg.CloudName != "" && cfg.ApiKey != "" && cfg.ApiSecret != ""
}

type cloudinaryUploadResp struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

// uploadImage pushes a product image to the hosting service and returns the
// public URL plus the id needed to delete it later.
func uploadImage(c echo.Context) error {
	cfg := GetApp(c).Config().Cloudinary
	if !cloudinaryReady(cfg) {
		return fail(c, http.StatusInternalServerError, "UPLOAD_NOT_CONFIGURED",
			"Image hosting is not configured. Set the Cloudinary credentials.", nil)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Missing file field", nil)
	}
	if fileHeader.Size > maxUploadBytes {
		return fail(c, http.StatusBadRequest, "FILE_TOO_LARGE", "File exceeds the 5MB limit", nil)
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !allowedImageTypes[contentType] {
		return fail(c, http.StatusBadRequest, "INVALID_FILE_TYPE", "Only JPEG, PNG, WebP and GIF images are accepted", nil)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return fail(c, http.StatusInternalServerError, "UPLOAD_ERROR", "Failed to read uploaded file", nil)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		return fail(c, http.StatusInternalServerError, "UPLOAD_ERROR", "Failed to read uploaded file", nil)
	}
	if len(data) > maxUploadBytes {
		return fail(c, http.StatusBadRequest, "FILE_TOO_LARGE", "File exceeds the 5MB limit", nil)
	}

	dataURI := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)

	timestamp := time.Now().Unix()
	signature := cloudinarySign(
		fmt.Sprintf("folder=%s&timestamp=%d", cfg.Folder, timestamp), cfg.ApiSecret)

	var resp cloudinaryUploadResp
	var code int
	err = gout.POST(fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/upload", cfg.CloudName)).
		SetWWWForm(gout.H{
			"file":      dataURI,
			"api_key":   cfg.ApiKey,
			"timestamp": timestamp,
			"signature": signature,
			"folder":    cfg.Folder,
		}).
		BindJSON(&resp).
		Code(&code).
		Do()
	if err != nil {
		return fail(c, http.StatusInternalServerError, "UPLOAD_ERROR", "Image hosting request failed", nil)
	}
	if code != http.StatusOK || resp.SecureURL == "" {
		msg := resp.Error.Message
		if msg == "" {
			msg = "Image hosting rejected the upload"
		}
		return fail(c, http.StatusInternalServerError, "UPLOAD_ERROR", msg, nil)
	}

	audit(c, "image_upload", "uploaded image "+resp.PublicID)
	return ok(c, map[string]interface{}{
		"url":      resp.SecureURL,
		"publicId": resp.PublicID,
	})
}

type cloudinaryDestroyResp struct {
	Result string `json:"result"`
}

// deleteImage removes a previously uploaded image by its public id.
func deleteImage(c echo.Context) error {
	cfg := GetApp(c).Config().Cloudinary
	if !cloudinaryReady(cfg) {
		return fail(c, http.StatusInternalServerError, "UPLOAD_NOT_CONFIGURED",
			"Image hosting is not configured. Set the Cloudinary credentials.", nil)
	}

	publicID := strings.TrimSpace(c.QueryParam("publicId"))
	if publicID == "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Missing publicId parameter", nil)
	}

	timestamp := time.Now().Unix()
	signature := cloudinarySign(
		fmt.Sprintf("public_id=%s&timestamp=%d", publicID, timestamp), cfg.ApiSecret)

	var resp cloudinaryDestroyResp
	var code int
	err := gout.POST(fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/destroy", cfg.CloudName)).
		SetWWWForm(gout.H{
			"public_id": publicID,
			"api_key":   cfg.ApiKey,
			"timestamp": timestamp,
			"signature": signature,
		}).
		BindJSON(&resp).
		Code(&code).
		Do()
	if err != nil {
		return fail(c, http.StatusInternalServerError, "UPLOAD_ERROR", "Image hosting request failed", nil)
	}
	if code != http.StatusOK || resp.Result != "ok" {
		return fail(c, http.StatusInternalServerError, "UPLOAD_ERROR", "Failed to delete image", nil)
	}

	audit(c, "image_delete", "deleted image "+publicID)
	return ok(c, map[string]interface{}{
		"message": "Image deleted successfully",
	})
}
