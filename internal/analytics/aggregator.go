// Package analytics computes the dashboard summary: catalog counts, windowed
// revenue, per day sale buckets and top selling items.
package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/citadelhq/citadel/internal/domain"
)

// LowStockThreshold marks items with stock strictly below this value.
const LowStockThreshold = 10

// ErrScopeRequired is returned when Summary is called without an admin scope.
var ErrScopeRequired = errors.New("analytics: admin scope required")

// Scope proves the caller passed the admin authorization gate. Only the edge
// filter mints it, so the aggregator never re-derives authorization from
// transport state.
type Scope struct {
	granted bool
	UserID  int64
}

// AdminScope mints a scope for an authorized admin account.
func AdminScope(userID int64) Scope {
	return Scope{granted: true, UserID: userID}
}

// DayBucket is one calendar day of sales, keyed by the UTC date.
type DayBucket struct {
	Date    string  `json:"date"`
	Sales   int     `json:"sales"`
	Revenue float64 `json:"revenue"`
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

type TopProduct struct {
	Name    string  `json:"name"`
	Sales   int     `json:"sales"`
	Revenue float64 `json:"revenue"`
}

// Summary is the dashboard payload.
type Summary struct {
	TotalProducts        int64           `json:"totalProducts"`
	TotalRevenue         float64         `json:"totalRevenue"`
	LowStockProducts     int64           `json:"lowStockProducts"`
	RecentSales          int64           `json:"recentSales"`
	AvgDailyRevenue      float64         `json:"avgDailyRevenue"`
	SalesData            []DayBucket     `json:"salesData"`
	CategoryDistribution []CategoryCount `json:"categoryDistribution"`
	TopProducts          []TopProduct    `json:"topProducts"`
}

type Aggregator struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAggregator(db *gorm.DB) *Aggregator {
	return &Aggregator{db: db, now: time.Now}
}

// Summary computes the dashboard aggregate as of now. Reads only; repeated
// calls without data changes yield identical totals. Any persistence error
// aborts the whole aggregation.
func (g *Aggregator) Summary(ctx context.Context, scope Scope) (*Summary, error) {
	if !scope.granted {
		return nil, ErrScopeRequired
	}

	db := g.db.WithContext(ctx)
	now := g.now()
	out := &Summary{}

	if err := db.Model(&domain.Product{}).Count(&out.TotalProducts).Error; err != nil {
		return nil, errors.Wrap(err, "count products")
	}

	if err := db.Model(&domain.Product{}).
		Where("stock < ?", LowStockThreshold).
		Count(&out.LowStockProducts).Error; err != nil {
		return nil, errors.Wrap(err, "count low stock products")
	}

	thirtyDaysAgo := now.AddDate(0, 0, -30)
	var sales []domain.Sale
	if err := db.Where("sale_date >= ?", thirtyDaysAgo).Find(&sales).Error; err != nil {
		return nil, errors.Wrap(err, "query sale window")
	}

	sevenDaysAgo := now.AddDate(0, 0, -7)
	if err := db.Model(&domain.Sale{}).
		Where("sale_date >= ?", sevenDaysAgo).
		Count(&out.RecentSales).Error; err != nil {
		return nil, errors.Wrap(err, "count recent sales")
	}

	// Day buckets use UTC dates so charts are stable across server timezones.
	buckets := map[string]*DayBucket{}
	for _, sale := range sales {
		out.TotalRevenue += sale.TotalAmount
		day := sale.SaleDate.UTC().Format("2006-01-02")
		b, ok := buckets[day]
		if !ok {
			b = &DayBucket{Date: day}
			buckets[day] = b
		}
		b.Sales += sale.Quantity
		b.Revenue += sale.TotalAmount
	}
	out.SalesData = make([]DayBucket, 0, len(buckets))
	for _, b := range buckets {
		out.SalesData = append(out.SalesData, *b)
	}
	sort.Slice(out.SalesData, func(i, j int) bool {
		return out.SalesData[i].Date < out.SalesData[j].Date
	})

	if len(out.SalesData) > 0 {
		revenues := make([]float64, len(out.SalesData))
		for i, b := range out.SalesData {
			revenues[i] = b.Revenue
		}
		mean, err := stats.Mean(revenues)
		if err == nil {
			out.AvgDailyRevenue = mean
		}
	}

	if err := db.Model(&domain.Product{}).
		Select("category, count(*) as count").
		Group("category").
		Order("count DESC, category ASC").
		Scan(&out.CategoryDistribution).Error; err != nil {
		return nil, errors.Wrap(err, "category distribution")
	}

	top, err := g.topProducts(db, sales)
	if err != nil {
		return nil, err
	}
	out.TopProducts = top

	return out, nil
}

type productTotals struct {
	productID int64
	sales     int
	revenue   float64
}

// topProducts reduces the 30 day window to the five highest revenue items and
// resolves their display names one by one. A deleted product becomes a
// placeholder instead of failing the request.
func (g *Aggregator) topProducts(db *gorm.DB, sales []domain.Sale) ([]TopProduct, error) {
	byProduct := map[int64]*productTotals{}
	for _, sale := range sales {
		t, ok := byProduct[sale.ProductID]
		if !ok {
			t = &productTotals{productID: sale.ProductID}
			byProduct[sale.ProductID] = t
		}
		t.sales += sale.Quantity
		t.revenue += sale.TotalAmount
	}

	totals := make([]*productTotals, 0, len(byProduct))
	for _, t := range byProduct {
		totals = append(totals, t)
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].revenue != totals[j].revenue {
			return totals[i].revenue > totals[j].revenue
		}
		return totals[i].productID < totals[j].productID
	})
	if len(totals) > 5 {
		totals = totals[:5]
	}

	out := make([]TopProduct, 0, len(totals))
	for _, t := range totals {
		var product domain.Product
		name := "Unknown Product"
		err := db.Select("name").Where("id = ?", t.productID).First(&product).Error
		switch {
		case err == nil:
			name = product.Name
		case errors.Is(err, gorm.ErrRecordNotFound):
			// keep placeholder
		default:
			return nil, errors.Wrap(err, "resolve top product name")
		}
		out = append(out, TopProduct{Name: name, Sales: t.sales, Revenue: t.revenue})
	}
	return out, nil
}
