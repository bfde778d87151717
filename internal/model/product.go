package model

import "time"

// Product 可售艺术品
type Product struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"-"`
	ProductID string `gorm:"size:64;uniqueIndex;not null" json:"product_id"`

	Title      string `gorm:"size:500" json:"title"`
	VendorName string `gorm:"size:255;index" json:"vendor_name"`

	// 限量数，NULL 表示开放版（不限量）
	EditionSize *int `json:"edition_size"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (*Product) TableName() string {
	return "products"
}

// IsOpenEdition 是否开放版
func (p *Product) IsOpenEdition() bool {
	return p.EditionSize == nil
}

// IsOversold 给定有效数量是否超出限量
func (p *Product) IsOversold(active int) bool {
	return p.EditionSize != nil && active > *p.EditionSize
}
