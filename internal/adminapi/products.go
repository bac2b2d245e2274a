package adminapi

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/citadelhq/citadel/internal/domain"
	"github.com/citadelhq/citadel/internal/webserver"
	"github.com/citadelhq/citadel/pkg/common"
)

var skuPattern = regexp.MustCompile(`^[A-Z0-9-]+$`)

func registerProductRoutes() {
	webserver.ApiGET("/products", listProducts)
	webserver.ApiGET("/products/export", exportProducts)
	webserver.ApiGET("/products/:id", getProduct)
	webserver.ApiPOST("/products", createProduct)
	webserver.ApiPUT("/products/:id", updateProduct)
	webserver.ApiDELETE("/products/:id", deleteProduct)
}

// sortable columns exposed on the public listing. Anything else falls back to
// newest first.
var productSortColumns = map[string]string{
	"name":       "name",
	"price":      "price",
	"stock":      "stock",
	"created_at": "created_at",
}

// searchClause builds a case-insensitive match for the active dialect.
func searchClause(db *gorm.DB, keyword string) *gorm.DB {
	like := "%" + keyword + "%"
	if db.Dialector.Name() == "postgres" {
		return db.Where("name ILIKE ? OR description ILIKE ? OR sku ILIKE ?", like, like, like)
	}
	like = "%" + strings.ToLower(keyword) + "%"
	return db.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ? OR LOWER(sku) LIKE ?", like, like, like)
}

func productQuery(c echo.Context) *gorm.DB {
	query := GetDB(c).Model(&domain.Product{})
	if category := c.QueryParam("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if search := strings.TrimSpace(c.QueryParam("search")); search != "" {
		query = searchClause(query, search)
	}
	return query
}

// listProducts is the public catalog listing with filtering, search and
// pagination.
func listProducts(c echo.Context) error {
	page, pageSize := parsePagination(c)
	query := productQuery(c)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", nil)
	}

	order := "created_at DESC"
	if col, ok := productSortColumns[c.QueryParam("sort")]; ok {
		order = col
		if c.QueryParam("dir") == "desc" {
			order += " DESC"
		}
	}

	var products []domain.Product
	if err := query.Order(order).
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&products).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", nil)
	}
	return paged(c, products, total, page, pageSize)
}

func getProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid product id", nil)
	}

	var product domain.Product
	if err := GetDB(c).Where("id = ?", id).First(&product).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "PRODUCT_NOT_FOUND", "Product not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query product", nil)
	}
	return ok(c, map[string]interface{}{"product": product})
}

type productPayload struct {
	Name           string                 `json:"name" validate:"required,min=3,max=200"`
	Description    string                 `json:"description" validate:"required,min=10,max=2000"`
	Category       string                 `json:"category" validate:"required,max=100"`
	Price          float64                `json:"price" validate:"gte=0"`
	Stock          int                    `json:"stock" validate:"gte=0"`
	Images         []string               `json:"images" validate:"required,min=1,max=10,dive,url"`
	Sku            string                 `json:"sku" validate:"required,min=3,max=64"`
	Status         string                 `json:"status" validate:"omitempty,oneof=active inactive out_of_stock"`
	Tags           []string               `json:"tags"`
	Specifications []domain.Specification `json:"specifications"`
}

// createProduct adds a catalog item. SKU must be upper alphanumeric with
// dashes and unique across the catalog.
func createProduct(c echo.Context) error {
	var payload productPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	if !skuPattern.MatchString(payload.Sku) {
		return fail(c, http.StatusBadRequest, "INVALID_SKU", "SKU must contain only uppercase letters, numbers and dashes", nil)
	}

	db := GetDB(c)
	var exists int64
	if err := db.Model(&domain.Product{}).Where("sku = ?", payload.Sku).Count(&exists).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", nil)
	}
	if exists > 0 {
		return fail(c, http.StatusBadRequest, "DUPLICATE_SKU", "A product with this SKU already exists", nil)
	}

	status := payload.Status
	if status == "" {
		status = domain.ProductActive
	}

	var createdBy int64
	if session := webserver.CurrentSession(c); session != nil {
		createdBy = session.UserID
	}

	product := domain.Product{
		ID:             common.UUIDint64(),
		Name:           payload.Name,
		Description:    payload.Description,
		Category:       payload.Category,
		Price:          payload.Price,
		Stock:          payload.Stock,
		Images:         payload.Images,
		Sku:            payload.Sku,
		Status:         status,
		Tags:           payload.Tags,
		Specifications: payload.Specifications,
		CreatedBy:      createdBy,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := db.Create(&product).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create product", nil)
	}

	audit(c, "product_create", fmt.Sprintf("created product %s (%s)", product.Name, product.Sku))
	return created(c, map[string]interface{}{
		"message": "Product created successfully",
		"product": product,
	})
}

type productUpdatePayload struct {
	Name           *string                 `json:"name" validate:"omitempty,min=3,max=200"`
	Description    *string                 `json:"description" validate:"omitempty,min=10,max=2000"`
	Category       *string                 `json:"category" validate:"omitempty,max=100"`
	Price          *float64                `json:"price" validate:"omitempty,gte=0"`
	Stock          *int                    `json:"stock" validate:"omitempty,gte=0"`
	Images         *[]string               `json:"images" validate:"omitempty,min=1,max=10,dive,url"`
	Sku            *string                 `json:"sku" validate:"omitempty,min=3,max=64"`
	Status         *string                 `json:"status" validate:"omitempty,oneof=active inactive out_of_stock"`
	Tags           *[]string               `json:"tags"`
	Specifications *[]domain.Specification `json:"specifications"`
}

// updateProduct applies a partial update. Only the fields present in the
// request body change.
func updateProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid product id", nil)
	}

	var payload productUpdatePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	db := GetDB(c)
	var product domain.Product
	if err := db.Where("id = ?", id).First(&product).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "PRODUCT_NOT_FOUND", "Product not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query product", nil)
	}

	if payload.Sku != nil && *payload.Sku != product.Sku {
		if !skuPattern.MatchString(*payload.Sku) {
			return fail(c, http.StatusBadRequest, "INVALID_SKU", "SKU must contain only uppercase letters, numbers and dashes", nil)
		}
		var exists int64
		if err := db.Model(&domain.Product{}).
			Where("sku = ? AND id <> ?", *payload.Sku, product.ID).
			Count(&exists).Error; err != nil {
			return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", nil)
		}
		if exists > 0 {
			return fail(c, http.StatusBadRequest, "DUPLICATE_SKU", "A product with this SKU already exists", nil)
		}
		product.Sku = *payload.Sku
	}

	if payload.Name != nil {
		product.Name = *payload.Name
	}
	if payload.Description != nil {
		product.Description = *payload.Description
	}
	if payload.Category != nil {
		product.Category = *payload.Category
	}
	if payload.Price != nil {
		product.Price = *payload.Price
	}
	if payload.Stock != nil {
		product.Stock = *payload.Stock
	}
	if payload.Images != nil {
		product.Images = *payload.Images
	}
	if payload.Status != nil {
		product.Status = *payload.Status
	}
	if payload.Tags != nil {
		product.Tags = *payload.Tags
	}
	if payload.Specifications != nil {
		product.Specifications = *payload.Specifications
	}
	product.UpdatedAt = time.Now()

	if err := db.Save(&product).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update product", nil)
	}

	audit(c, "product_update", fmt.Sprintf("updated product %s (%s)", product.Name, product.Sku))
	return ok(c, map[string]interface{}{
		"message": "Product updated successfully",
		"product": product,
	})
}

func deleteProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid product id", nil)
	}

	db := GetDB(c)
	var product domain.Product
	if err := db.Where("id = ?", id).First(&product).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "PRODUCT_NOT_FOUND", "Product not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query product", nil)
	}

	if err := db.Delete(&domain.Product{}, product.ID).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete product", nil)
	}

	audit(c, "product_delete", fmt.Sprintf("deleted product %s (%s)", product.Name, product.Sku))
	return ok(c, map[string]interface{}{
		"message": "Product deleted successfully",
	})
}

type productCsvRow struct {
	Sku      string  `csv:"sku"`
	Name     string  `csv:"name"`
	Category string  `csv:"category"`
	Price    float64 `csv:"price"`
	Stock    int     `csv:"stock"`
	Status   string  `csv:"status"`
}

// exportProducts streams the catalog as CSV, honoring the same filters as the
// listing.
func exportProducts(c echo.Context) error {
	var products []domain.Product
	if err := productQuery(c).Order("sku").Find(&products).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", nil)
	}

	rows := make([]productCsvRow, 0, len(products))
	for _, p := range products {
		rows = append(rows, productCsvRow{
			Sku:      p.Sku,
			Name:     p.Name,
			Category: p.Category,
			Price:    p.Price,
			Stock:    p.Stock,
			Status:   p.Status,
		})
	}

	data, err := gocsv.MarshalString(&rows)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "EXPORT_ERROR", "Failed to export products", nil)
	}

	audit(c, "product_export", fmt.Sprintf("exported %d products", len(rows)))
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="products.csv"`)
	return c.Blob(http.StatusOK, "text/csv", []byte(data))
}
