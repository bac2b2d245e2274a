package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/citadelhq/citadel/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Product{}, &domain.Sale{}))
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, id int64, name, category string, stock int) {
	t.Helper()
	require.NoError(t, db.Create(&domain.Product{
		ID:          id,
		Name:        name,
		Description: "test product description",
		Category:    category,
		Price:       10,
		Stock:       stock,
		Images:      []string{"https://img.example.com/p.jpg"},
		Sku:         fmt.Sprintf("SKU-%d", id),
		Status:      domain.ProductActive,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}).Error)
}

func seedSale(t *testing.T, db *gorm.DB, productID int64, qty int, amount float64, when time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&domain.Sale{
		ProductID:   productID,
		Quantity:    qty,
		TotalAmount: amount,
		SaleDate:    when,
		CreatedAt:   when,
	}).Error)
}

func TestSummaryRequiresScope(t *testing.T) {
	g := NewAggregator(newTestDB(t))
	_, err := g.Summary(context.Background(), Scope{})
	assert.ErrorIs(t, err, ErrScopeRequired)
}

func TestSummaryAggregates(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	seedProduct(t, db, 1, "Widget", "tools", 50)
	seedProduct(t, db, 2, "Gadget", "tools", 9)
	seedProduct(t, db, 3, "Gizmo", "toys", 10)

	// Two sales on the same UTC day, one the day before, one outside the
	// 30 day window.
	seedSale(t, db, 1, 2, 20.00, now.AddDate(0, 0, -1))
	seedSale(t, db, 1, 1, 10.00, now.AddDate(0, 0, -1).Add(2*time.Hour))
	seedSale(t, db, 2, 1, 5.00, now.AddDate(0, 0, -2))
	seedSale(t, db, 1, 9, 999.00, now.AddDate(0, 0, -31))

	g := NewAggregator(db)
	g.now = func() time.Time { return now }

	sum, err := g.Summary(context.Background(), AdminScope(1))
	require.NoError(t, err)

	assert.EqualValues(t, 3, sum.TotalProducts)
	// Stock 9 is low, stock 10 is not.
	assert.EqualValues(t, 1, sum.LowStockProducts)
	assert.InDelta(t, 35.00, sum.TotalRevenue, 0.001)
	assert.EqualValues(t, 3, sum.RecentSales)

	require.Len(t, sum.SalesData, 2)
	assert.Equal(t, "2024-06-13", sum.SalesData[0].Date)
	assert.Equal(t, "2024-06-14", sum.SalesData[1].Date)
	assert.Equal(t, 1, sum.SalesData[0].Sales)
	assert.InDelta(t, 5.00, sum.SalesData[0].Revenue, 0.001)
	assert.Equal(t, 3, sum.SalesData[1].Sales)
	assert.InDelta(t, 30.00, sum.SalesData[1].Revenue, 0.001)
	assert.InDelta(t, 17.50, sum.AvgDailyRevenue, 0.001)

	require.Len(t, sum.CategoryDistribution, 2)
	assert.Equal(t, "tools", sum.CategoryDistribution[0].Category)
	assert.EqualValues(t, 2, sum.CategoryDistribution[0].Count)

	require.Len(t, sum.TopProducts, 2)
	assert.Equal(t, "Widget", sum.TopProducts[0].Name)
	assert.Equal(t, 3, sum.TopProducts[0].Sales)
	assert.InDelta(t, 30.00, sum.TopProducts[0].Revenue, 0.001)
	assert.Equal(t, "Gadget", sum.TopProducts[1].Name)
}

func TestSummaryDeletedProductPlaceholder(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	seedSale(t, db, 77, 1, 12.00, now.AddDate(0, 0, -3))

	g := NewAggregator(db)
	g.now = func() time.Time { return now }

	sum, err := g.Summary(context.Background(), AdminScope(1))
	require.NoError(t, err)
	require.Len(t, sum.TopProducts, 1)
	assert.Equal(t, "Unknown Product", sum.TopProducts[0].Name)
}

func TestSummaryIdempotent(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	seedProduct(t, db, 1, "Widget", "tools", 5)
	seedSale(t, db, 1, 2, 40.00, now.AddDate(0, 0, -1))

	g := NewAggregator(db)
	g.now = func() time.Time { return now }

	first, err := g.Summary(context.Background(), AdminScope(1))
	require.NoError(t, err)
	second, err := g.Summary(context.Background(), AdminScope(1))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
