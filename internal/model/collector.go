package model

import "time"

// ==================== 外部数据源 ====================

// WarehouseOrder 仓库/履约导出记录，由独立同步程序写入
type WarehouseOrder struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	OrderRef  string `gorm:"size:64;index;not null"` // 订单号或订单名
	ShipEmail string `gorm:"size:255"`
	ShipName  string `gorm:"size:255"`
	SyncedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (*WarehouseOrder) TableName() string {
	return "warehouse_orders"
}

// CrmContact CRM 联系人
type CrmContact struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	CustomerRef string `gorm:"size:64;index"` // 上游客户 ID
	Email       string `gorm:"size:255;index"`
	FirstName   string `gorm:"size:255"`
	LastName    string `gorm:"size:255"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (*CrmContact) TableName() string {
	return "crm_contacts"
}

// ==================== CollectorProfile 藏家档案 ====================

// CollectorProfile 藏家身份视图
// 非权威数据，由补全流程刷新
type CollectorProfile struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"` // 归一化邮箱
	DisplayName  string    `gorm:"size:255" json:"display_name"`
	EmailSource  string    `gorm:"size:32" json:"email_source"`
	NameSource   string    `gorm:"size:32" json:"name_source"`
	LastOrderRef string    `gorm:"size:64" json:"last_order_id"`
	RefreshedAt  time.Time `json:"refreshed_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (*CollectorProfile) TableName() string {
	return "collector_profiles"
}
