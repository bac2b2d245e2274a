package domain

import "time"

// Product statuses
const (
	ProductActive     = "active"
	ProductInactive   = "inactive"
	ProductOutOfStock = "out_of_stock"
)

// Specification is one key/value attribute pair of a product
type Specification struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Product is a sellable catalog item. SKU is unique across the catalog.
type Product struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id,string"`
	Name           string          `gorm:"index;size:200" json:"name"`
	Description    string          `gorm:"size:2000" json:"description"`
	Category       string          `gorm:"index;size:100" json:"category"`
	Price          float64         `json:"price"`
	Stock          int             `json:"stock"`
	Images         []string        `gorm:"serializer:json" json:"images"`
	Sku            string          `gorm:"uniqueIndex;size:64" json:"sku"`
	Status         string          `gorm:"index;size:32" json:"status"`
	Tags           []string        `gorm:"serializer:json" json:"tags"`
	Specifications []Specification `gorm:"serializer:json" json:"specifications"`
	CreatedBy      int64           `json:"created_by,string"`
	CreatedAt      time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName Specify table name
func (Product) TableName() string {
	return "product"
}
