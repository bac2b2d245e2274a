package domain

import "time"

// Sale is one immutable sale event. Rows are append only, there is no
// update or delete path.
type Sale struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id,string"`
	ProductID   int64     `gorm:"index" json:"product_id,string"`
	Quantity    int       `json:"quantity"`
	TotalAmount float64   `json:"total_amount"`
	SaleDate    time.Time `gorm:"index" json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName Specify table name
func (Sale) TableName() string {
	return "sale"
}
