package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/chonibe/coa-service-sub020/internal/api/dto"
	"github.com/chonibe/coa-service-sub020/internal/model"
	"github.com/chonibe/coa-service-sub020/internal/repository"
	"github.com/chonibe/coa-service-sub020/pkg/errs"
	"github.com/chonibe/coa-service-sub020/pkg/utils"
)

// OrderSyncResult 订单写入/状态同步结果
type OrderSyncResult struct {
	Order    *model.Order    `json:"order"`
	Editions []EditionResult `json:"editions"`
}

// OrderService 订单写入与状态同步
// 状态变化后对涉及的商品重新分配版号
type OrderService struct {
	uow      *repository.UnitOfWork
	editions *EditionService
	log      *zap.Logger
}

// NewOrderService 创建订单服务
func NewOrderService(uow *repository.UnitOfWork, editions *EditionService, log *zap.Logger) *OrderService {
	return &OrderService{
		uow:      uow,
		editions: editions,
		log:      log.Named("order"),
	}
}

// UpsertOrder 按 order_id 写入订单、订单项及其商品
func (s *OrderService) UpsertOrder(ctx context.Context, req *dto.UpsertOrderRequest) (*OrderSyncResult, error) {
	order, products, items, err := buildOrder(req)
	if err != nil {
		return nil, err
	}

	err = s.uow.Transaction(ctx, func(tx *repository.UnitOfWork) error {
		for i := range products {
			if err := tx.Products.Upsert(ctx, &products[i]); err != nil {
				return err
			}
		}
		if err := tx.Orders.Upsert(ctx, order); err != nil {
			return err
		}
		return tx.LineItems.UpsertBatch(ctx, items)
	})
	if err != nil {
		return nil, errs.Storage("upsert order", err)
	}

	s.log.Info("订单已写入",
		zap.String("order_id", order.OrderID),
		zap.Int("line_items", len(items)),
	)
	return s.reassign(ctx, order.OrderID)
}

// UpdateOrderStatus 同步订单的支付/履约状态并重新分配版号
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID, financial, fulfillment string) (*OrderSyncResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errs.Validation("order_id is required")
	}
	if financial == "" && fulfillment == "" {
		return nil, errs.Validation("financial_status or fulfillment_status is required")
	}
	if financial != "" && !model.ValidFinancialStatus(financial) {
		return nil, errs.Validation("unknown financial_status %q", financial)
	}
	if fulfillment != "" && !model.ValidFulfillmentStatus(fulfillment) {
		return nil, errs.Validation("unknown fulfillment_status %q", fulfillment)
	}

	n, err := s.uow.Orders.UpdateStatus(ctx, orderID, financial, fulfillment)
	if err != nil {
		return nil, errs.Storage("update order status", err)
	}
	if n == 0 {
		return nil, errs.NotFound("order %s not found", orderID)
	}

	s.log.Info("订单状态已同步",
		zap.String("order_id", orderID),
		zap.String("financial_status", financial),
		zap.String("fulfillment_status", fulfillment),
	)
	return s.reassign(ctx, orderID)
}

// UpdateLineItemStatus 变更单个订单项状态（移除/退库），并重新分配该商品版号
func (s *OrderService) UpdateLineItemStatus(ctx context.Context, lineItemID, status string) (*EditionResult, error) {
	lineItemID = strings.TrimSpace(lineItemID)
	if lineItemID == "" {
		return nil, errs.Validation("line_item_id is required")
	}
	switch status {
	case model.LineItemActive, model.LineItemRemoved, model.LineItemRestocked:
	default:
		return nil, errs.Validation("unknown line item status %q", status)
	}

	item, err := s.uow.LineItems.GetByLineItemID(ctx, lineItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("line item %s not found", lineItemID)
		}
		return nil, errs.Storage("load line item", err)
	}

	if _, err := s.uow.LineItems.UpdateStatus(ctx, lineItemID, status); err != nil {
		return nil, errs.Storage("update line item status", err)
	}
	return s.editions.AssignEditions(ctx, item.ProductRef)
}

// GetOrder 订单详情（含订单项）
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errs.Validation("order_id is required")
	}
	order, err := s.uow.Orders.GetWithLineItems(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("order %s not found", orderID)
		}
		return nil, errs.Storage("load order", err)
	}
	return order, nil
}

func (s *OrderService) reassign(ctx context.Context, orderID string) (*OrderSyncResult, error) {
	editions, err := s.editions.AssignEditionsForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderSyncResult{Order: order, Editions: editions}, nil
}

// buildOrder 请求转换为模型，补齐默认值
func buildOrder(req *dto.UpsertOrderRequest) (*model.Order, []model.Product, []model.LineItem, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, nil, nil, errs.Validation("order_id is required")
	}

	order := &model.Order{
		OrderID:           strings.TrimSpace(req.OrderID),
		OrderName:         strings.TrimSpace(req.OrderName),
		CustomerID:        strings.TrimSpace(req.CustomerID),
		CustomerEmail:     utils.NormalizeEmail(req.CustomerEmail),
		CustomerName:      strings.TrimSpace(req.CustomerName),
		FinancialStatus:   utils.FirstNonEmpty(req.FinancialStatus, model.FinancialPending),
		FulfillmentStatus: utils.FirstNonEmpty(req.FulfillmentStatus, model.FulfillmentUnfulfilled),
		ProcessedAt:       req.ProcessedAt,
	}
	if !model.ValidFinancialStatus(order.FinancialStatus) {
		return nil, nil, nil, errs.Validation("unknown financial_status %q", order.FinancialStatus)
	}
	if !model.ValidFulfillmentStatus(order.FulfillmentStatus) {
		return nil, nil, nil, errs.Validation("unknown fulfillment_status %q", order.FulfillmentStatus)
	}
	if order.CustomerEmail != "" {
		order.EmailSource = model.SourceOrder
	}
	if order.CustomerName != "" {
		order.NameSource = model.SourceOrder
	}
	if len(req.RawPayload) > 0 {
		if !json.Valid(req.RawPayload) {
			return nil, nil, nil, errs.Validation("raw_payload is not valid JSON")
		}
		order.RawPayload = datatypes.JSON(req.RawPayload)
	}

	seen := make(map[string]bool, len(req.LineItems))
	products := make([]model.Product, 0)
	items := make([]model.LineItem, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		id := strings.TrimSpace(li.LineItemID)
		productID := strings.TrimSpace(li.ProductID)
		if id == "" || productID == "" {
			return nil, nil, nil, errs.Validation("line_item_id and product_id are required")
		}
		if seen[id] {
			return nil, nil, nil, errs.Validation("duplicate line_item_id %s", id)
		}
		seen[id] = true

		item := model.LineItem{
			LineItemID: id,
			OrderRef:   order.OrderID,
			ProductRef: productID,
			Title:      strings.TrimSpace(li.Title),
			Quantity:   li.Quantity,
			Status:     utils.FirstNonEmpty(li.Status, model.LineItemActive),
		}
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
		items = append(items, item)

		if li.Product != nil {
			products = append(products, model.Product{
				ProductID:   productID,
				Title:       utils.FirstNonEmpty(li.Product.Title, li.Title),
				VendorName:  strings.TrimSpace(li.Product.VendorName),
				EditionSize: li.Product.EditionSize,
			})
		}
	}
	return order, products, items, nil
}
