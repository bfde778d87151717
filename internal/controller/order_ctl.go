package controller

import (
	"github.com/gin-gonic/gin"

	"github.com/chonibe/coa-service-sub020/internal/api/dto"
	"github.com/chonibe/coa-service-sub020/internal/service"
)

// OrderController 订单控制器
type OrderController struct {
	svc *service.OrderService
}

// NewOrderController 创建订单控制器
func NewOrderController(svc *service.OrderService) *OrderController {
	return &OrderController{svc: svc}
}

// Upsert 写入订单
// POST /api/admin/orders
func (ctl *OrderController) Upsert(c *gin.Context) {
	var req dto.UpsertOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := ctl.svc.UpsertOrder(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

// Get 订单详情
// GET /api/admin/orders/:order_id
func (ctl *OrderController) Get(c *gin.Context) {
	order, err := ctl.svc.GetOrder(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, order)
}

// UpdateStatus 同步订单状态并重新分配版号
// PATCH /api/admin/orders/:order_id/status
func (ctl *OrderController) UpdateStatus(c *gin.Context) {
	var req dto.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := ctl.svc.UpdateOrderStatus(c.Request.Context(), c.Param("order_id"), req.FinancialStatus, req.FulfillmentStatus)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

// UpdateLineItemStatus 订单项状态变更
// PATCH /api/admin/line-items/:line_item_id/status
func (ctl *OrderController) UpdateLineItemStatus(c *gin.Context) {
	var req dto.UpdateLineItemStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := ctl.svc.UpdateLineItemStatus(c.Request.Context(), c.Param("line_item_id"), req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}
