package model

import (
	"time"

	"gorm.io/datatypes"
)

// ==================== 订单状态常量 ====================

// FinancialStatus 支付状态
const (
	FinancialPending           = "pending"
	FinancialPaid              = "paid"
	FinancialPartiallyRefunded = "partially_refunded"
	FinancialRefunded          = "refunded"
	FinancialVoided            = "voided"
)

// FulfillmentStatus 履约状态
const (
	FulfillmentUnfulfilled = "unfulfilled"
	FulfillmentFulfilled   = "fulfilled"
	FulfillmentCancelled   = "cancelled"
	FulfillmentRestocked   = "restocked"
)

// LineItemStatus 订单项状态
const (
	LineItemActive    = "active"
	LineItemRemoved   = "removed"
	LineItemRestocked = "restocked"
)

// 不参与版号分配的订单状态
var (
	ExcludedFulfillmentStatuses = []string{FulfillmentRestocked, FulfillmentCancelled}
	ExcludedFinancialStatuses   = []string{FinancialRefunded, FinancialVoided}
)

// 身份信息来源（后台展示"数据来源"标记）
const (
	SourceOrder      = "order"       // 订单原生字段
	SourceRawPayload = "raw_payload" // 订单原始报文
	SourceWarehouse  = "warehouse"   // 仓库/履约导出
	SourceCRM        = "crm"         // CRM 联系人
)

// ValidFinancialStatus 支付状态是否合法
func ValidFinancialStatus(s string) bool {
	switch s {
	case FinancialPending, FinancialPaid, FinancialPartiallyRefunded, FinancialRefunded, FinancialVoided:
		return true
	}
	return false
}

// ValidFulfillmentStatus 履约状态是否合法
func ValidFulfillmentStatus(s string) bool {
	switch s {
	case FulfillmentUnfulfilled, FulfillmentFulfilled, FulfillmentCancelled, FulfillmentRestocked:
		return true
	}
	return false
}

// ==================== Order 订单 ====================

// Order 订单
type Order struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"-"`
	OrderID   string `gorm:"size:64;uniqueIndex;not null" json:"order_id"`
	OrderName string `gorm:"size:64;index" json:"order_name"` // 如 #1001，仓库导出常用

	// 买家信息
	CustomerID    string `gorm:"size:64;index" json:"customer_id"`
	CustomerEmail string `gorm:"size:255;index" json:"customer_email"`
	CustomerName  string `gorm:"size:255" json:"customer_name"`
	EmailSource   string `gorm:"size:32" json:"email_source"`
	NameSource    string `gorm:"size:32" json:"name_source"`

	// 状态
	FinancialStatus   string `gorm:"size:32;index;default:pending" json:"financial_status"`
	FulfillmentStatus string `gorm:"size:32;index;default:unfulfilled" json:"fulfillment_status"`

	// 上游原始报文（PostgreSQL JSONB）
	RawPayload datatypes.JSON `gorm:"type:jsonb" json:"-"`

	// 最近一次批量补全尝试时间
	ReconcileAttemptedAt *time.Time `gorm:"index" json:"reconcile_attempted_at,omitempty"`

	ProcessedAt *time.Time `json:"processed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// 关联
	LineItems []LineItem `gorm:"foreignKey:OrderRef;references:OrderID" json:"line_items,omitempty"`
}

func (*Order) TableName() string {
	return "orders"
}

// IsEditionEligible 订单状态是否允许其订单项获得版号
func (o *Order) IsEditionEligible() bool {
	for _, s := range ExcludedFulfillmentStatuses {
		if o.FulfillmentStatus == s {
			return false
		}
	}
	for _, s := range ExcludedFinancialStatuses {
		if o.FinancialStatus == s {
			return false
		}
	}
	return true
}

// HasEmail 是否已有买家邮箱
func (o *Order) HasEmail() bool {
	return o.CustomerEmail != ""
}

// ==================== LineItem 订单项 ====================

// LineItem 订单中的一件商品
type LineItem struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"-"`
	LineItemID string `gorm:"size:64;uniqueIndex;not null" json:"line_item_id"`
	OrderRef   string `gorm:"size:64;index;not null" json:"order_id"`
	ProductRef string `gorm:"size:64;index;not null" json:"product_id"`

	Title    string `gorm:"size:500" json:"title"`
	Quantity int    `gorm:"default:1" json:"quantity"`
	Status   string `gorm:"size:16;index;default:active" json:"status"`

	// 版号
	EditionNumber *int `json:"edition_number"`
	EditionTotal  *int `json:"edition_total"`

	// 藏家（补全或认领后填充）
	OwnerEmail  string `gorm:"size:255;index" json:"owner_email"`
	OwnerName   string `gorm:"size:255" json:"owner_name"`
	OwnerSource string `gorm:"size:32" json:"owner_source"`

	// NFC
	NfcTagID     *int64     `gorm:"uniqueIndex" json:"nfc_tag_id"`
	NfcClaimedAt *time.Time `json:"nfc_claimed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (*LineItem) TableName() string {
	return "line_items"
}

// IsActive 是否有效
func (i *LineItem) IsActive() bool {
	return i.Status == LineItemActive
}

// IsClaimed 是否已绑定 NFC
func (i *LineItem) IsClaimed() bool {
	return i.NfcTagID != nil
}
