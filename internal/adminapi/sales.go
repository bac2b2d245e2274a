package adminapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/araddon/dateparse"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/citadelhq/citadel/internal/domain"
	"github.com/citadelhq/citadel/internal/webserver"
	"github.com/citadelhq/citadel/pkg/common"
)

func registerSaleRoutes() {
	webserver.ApiGET("/sales", listSales)
	webserver.ApiPOST("/sales", recordSale)
}

type salePayload struct {
	ProductID   int64   `json:"productId,string" validate:"required"`
	Quantity    int     `json:"quantity" validate:"required,gte=1"`
	TotalAmount float64 `json:"totalAmount" validate:"gte=0"`
	SaleDate    string  `json:"saleDate"`
}

// recordSale appends a row to the sales ledger. Rows are never updated or
// deleted afterwards.
func recordSale(c echo.Context) error {
	var payload salePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse sale parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	db := GetDB(c)
	var product domain.Product
	if err := db.Where("id = ?", payload.ProductID).First(&product).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "PRODUCT_NOT_FOUND", "Product not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query product", nil)
	}

	saleDate := time.Now()
	if payload.SaleDate != "" {
		parsed, err := dateparse.ParseAny(payload.SaleDate)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse sale date", nil)
		}
		saleDate = parsed
	}

	sale := domain.Sale{
		ID:          common.UUIDint64(),
		ProductID:   product.ID,
		Quantity:    payload.Quantity,
		TotalAmount: payload.TotalAmount,
		SaleDate:    saleDate,
		CreatedAt:   time.Now(),
	}
	if err := db.Create(&sale).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to record sale", nil)
	}

	audit(c, "sale_record", fmt.Sprintf("recorded sale of %d x %s", sale.Quantity, product.Sku))
	return created(c, map[string]interface{}{
		"message": "Sale recorded successfully",
		"sale":    sale,
	})
}

// listSales returns ledger rows newest first, optionally bounded by the from
// and to query parameters. Dates are accepted in any common format.
func listSales(c echo.Context) error {
	page, pageSize := parsePagination(c)
	query := GetDB(c).Model(&domain.Sale{})

	if from := c.QueryParam("from"); from != "" {
		parsed, err := dateparse.ParseAny(from)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse from date", nil)
		}
		query = query.Where("sale_date >= ?", parsed)
	}
	if to := c.QueryParam("to"); to != "" {
		parsed, err := dateparse.ParseAny(to)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse to date", nil)
		}
		query = query.Where("sale_date <= ?", parsed)
	}
	if productID := c.QueryParam("productId"); productID != "" {
		query = query.Where("product_id = ?", productID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query sales", nil)
	}

	var sales []domain.Sale
	if err := query.Order("sale_date DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&sales).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query sales", nil)
	}
	return paged(c, sales, total, page, pageSize)
}
