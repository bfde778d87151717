package dto

import (
	"encoding/json"
	"time"
)

// ==================== 订单写入 ====================

// UpsertOrderRequest 订单写入请求（上游订单同步或后台手工录入）
type UpsertOrderRequest struct {
	OrderID           string            `json:"order_id" binding:"required,max=64"`
	OrderName         string            `json:"order_name" binding:"max=64"`
	CustomerID        string            `json:"customer_id" binding:"max=64"`
	CustomerEmail     string            `json:"customer_email" binding:"omitempty,email"`
	CustomerName      string            `json:"customer_name" binding:"max=255"`
	FinancialStatus   string            `json:"financial_status" binding:"omitempty,oneof=pending paid partially_refunded refunded voided"`
	FulfillmentStatus string            `json:"fulfillment_status" binding:"omitempty,oneof=unfulfilled fulfilled cancelled restocked"`
	ProcessedAt       *time.Time        `json:"processed_at"`
	LineItems         []LineItemRequest `json:"line_items" binding:"dive"`
	RawPayload        json.RawMessage   `json:"raw_payload"`
}

// LineItemRequest 订单项
type LineItemRequest struct {
	LineItemID string          `json:"line_item_id" binding:"required,max=64"`
	ProductID  string          `json:"product_id" binding:"required,max=64"`
	Title      string          `json:"title" binding:"max=500"`
	Quantity   int             `json:"quantity" binding:"omitempty,min=1"`
	Status     string          `json:"status" binding:"omitempty,oneof=active removed restocked"`
	Product    *ProductRequest `json:"product"`
}

// ProductRequest 订单项附带的商品信息，按 product_id 写入
type ProductRequest struct {
	Title       string `json:"title" binding:"max=500"`
	VendorName  string `json:"vendor_name" binding:"max=255"`
	EditionSize *int   `json:"edition_size" binding:"omitempty,min=1"`
}

// ==================== 状态同步 ====================

// UpdateOrderStatusRequest 订单状态同步请求，至少提供一项
type UpdateOrderStatusRequest struct {
	FinancialStatus   string `json:"financial_status" binding:"required_without=FulfillmentStatus,omitempty,oneof=pending paid partially_refunded refunded voided"`
	FulfillmentStatus string `json:"fulfillment_status" binding:"required_without=FinancialStatus,omitempty,oneof=unfulfilled fulfilled cancelled restocked"`
}

// UpdateLineItemStatusRequest 订单项状态变更请求
type UpdateLineItemStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active removed restocked"`
}
