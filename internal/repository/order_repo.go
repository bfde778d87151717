package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chonibe/coa-service-sub020/internal/model"
)

// ==================== OrderRepository 订单仓库 ====================

// OrderRepository 订单仓库接口
type OrderRepository interface {
	GetByOrderID(ctx context.Context, orderID string) (*model.Order, error)
	GetWithLineItems(ctx context.Context, orderID string) (*model.Order, error)
	Upsert(ctx context.Context, order *model.Order) error
	UpdateStatus(ctx context.Context, orderID, financial, fulfillment string) (int64, error)

	// 补全相关
	ListUnenriched(ctx context.Context, limit int) ([]model.Order, error)
	SetEmailIfEmpty(ctx context.Context, orderID, email, source string) (int64, error)
	SetNameIfEmpty(ctx context.Context, orderID, name, source string) (int64, error)
	MarkReconcileAttempted(ctx context.Context, orderIDs []string, at time.Time) (int64, error)
}

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) GetByOrderID(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetWithLineItems(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB {
			return db.Order("line_items.created_at ASC, line_items.id ASC")
		}).
		Where("order_id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Upsert 按 order_id 插入或更新
// 买家邮箱/姓名、原始报文、处理时间仅在上游带值时覆盖，已有数据不会被空值冲掉
func (r *orderRepository) Upsert(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}},
		DoUpdates: append(clause.AssignmentColumns([]string{
			"order_name", "customer_id",
			"financial_status", "fulfillment_status", "updated_at",
		}),
			keepIfNull("orders", "raw_payload"),
			keepIfNull("orders", "processed_at"),
			keepIfEmpty("orders", "customer_email"),
			keepIfEmpty("orders", "customer_name"),
			keepIfEmpty("orders", "email_source"),
			keepIfEmpty("orders", "name_source"),
		),
	}).Create(order).Error
}

func (r *orderRepository) UpdateStatus(ctx context.Context, orderID, financial, fulfillment string) (int64, error) {
	fields := map[string]interface{}{"updated_at": time.Now()}
	if financial != "" {
		fields["financial_status"] = financial
	}
	if fulfillment != "" {
		fields["fulfillment_status"] = fulfillment
	}
	result := r.db.WithContext(ctx).Model(&model.Order{}).Where("order_id = ?", orderID).Updates(fields)
	return result.RowsAffected, result.Error
}

// ListUnenriched 缺少邮箱的订单：从未尝试补全的优先，其余按上次尝试时间升序
func (r *orderRepository) ListUnenriched(ctx context.Context, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("customer_email IS NULL OR customer_email = ''").
		Order("reconcile_attempted_at IS NOT NULL, reconcile_attempted_at ASC, id ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *orderRepository) SetEmailIfEmpty(ctx context.Context, orderID, email, source string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_id = ?", orderID).
		Where("customer_email IS NULL OR customer_email = ''").
		Updates(map[string]interface{}{
			"customer_email": email,
			"email_source":   source,
			"updated_at":     time.Now(),
		})
	return result.RowsAffected, result.Error
}

func (r *orderRepository) SetNameIfEmpty(ctx context.Context, orderID, name, source string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_id = ?", orderID).
		Where("customer_name IS NULL OR customer_name = ''").
		Updates(map[string]interface{}{
			"customer_name": name,
			"name_source":   source,
			"updated_at":    time.Now(),
		})
	return result.RowsAffected, result.Error
}

// MarkReconcileAttempted 记录补全尝试时间，不改动 updated_at
func (r *orderRepository) MarkReconcileAttempted(ctx context.Context, orderIDs []string, at time.Time) (int64, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_id IN ?", orderIDs).
		UpdateColumn("reconcile_attempted_at", at)
	return result.RowsAffected, result.Error
}

// keepIfEmpty upsert 时新值为空则保留原值
func keepIfEmpty(table, column string) clause.Assignment {
	return clause.Assignment{
		Column: clause.Column{Name: column},
		Value:  gorm.Expr("COALESCE(NULLIF(excluded." + column + ", ''), " + table + "." + column + ")"),
	}
}

// keepIfNull 用于非文本列（JSONB、时间），新值为 NULL 则保留原值
func keepIfNull(table, column string) clause.Assignment {
	return clause.Assignment{
		Column: clause.Column{Name: column},
		Value:  gorm.Expr("COALESCE(excluded." + column + ", " + table + "." + column + ")"),
	}
}

// ==================== LineItemRepository 订单项仓库 ====================

// LineItemRepository 订单项仓库接口
type LineItemRepository interface {
	GetByID(ctx context.Context, id int64) (*model.LineItem, error)
	GetByLineItemID(ctx context.Context, lineItemID string) (*model.LineItem, error)
	ListByOrder(ctx context.Context, orderRef string) ([]model.LineItem, error)
	ListByProduct(ctx context.Context, productRef string) ([]model.LineItem, error)
	ProductRefsByOrder(ctx context.Context, orderRef string) ([]string, error)
	UpsertBatch(ctx context.Context, items []model.LineItem) error
	UpdateStatus(ctx context.Context, lineItemID, status string) (int64, error)

	// 版号
	ListEditionEligibleIDs(ctx context.Context, productRef string) ([]int64, error)
	ClearEditionsExcept(ctx context.Context, productRef string, keep []int64) (int64, error)
	SetEdition(ctx context.Context, id int64, number int, total *int) (int64, error)

	// 藏家
	SetOwnerIfEmpty(ctx context.Context, orderRef, email, name, source string) (int64, error)

	// NFC
	ClaimTag(ctx context.Context, id, tagID int64, at time.Time) (int64, error)
	ReleaseTag(ctx context.Context, id, tagID int64) (int64, error)
}

type lineItemRepository struct {
	db *gorm.DB
}

// NewLineItemRepository 创建订单项仓库
func NewLineItemRepository(db *gorm.DB) LineItemRepository {
	return &lineItemRepository{db: db}
}

func (r *lineItemRepository) GetByID(ctx context.Context, id int64) (*model.LineItem, error) {
	var item model.LineItem
	if err := r.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *lineItemRepository) GetByLineItemID(ctx context.Context, lineItemID string) (*model.LineItem, error) {
	var item model.LineItem
	if err := r.db.WithContext(ctx).Where("line_item_id = ?", lineItemID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *lineItemRepository) ListByOrder(ctx context.Context, orderRef string) ([]model.LineItem, error) {
	var items []model.LineItem
	err := r.db.WithContext(ctx).
		Where("order_ref = ?", orderRef).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

func (r *lineItemRepository) ListByProduct(ctx context.Context, productRef string) ([]model.LineItem, error) {
	var items []model.LineItem
	err := r.db.WithContext(ctx).
		Where("product_ref = ?", productRef).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

func (r *lineItemRepository) ProductRefsByOrder(ctx context.Context, orderRef string) ([]string, error) {
	var refs []string
	err := r.db.WithContext(ctx).Model(&model.LineItem{}).
		Where("order_ref = ?", orderRef).
		Distinct("product_ref").
		Order("product_ref").
		Pluck("product_ref", &refs).Error
	return refs, err
}

func (r *lineItemRepository) UpsertBatch(ctx context.Context, items []model.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "line_item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"order_ref", "product_ref", "title", "quantity", "status", "updated_at",
		}),
	}).CreateInBatches(&items, 100).Error
}

func (r *lineItemRepository) UpdateStatus(ctx context.Context, lineItemID, status string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.LineItem{}).
		Where("line_item_id = ?", lineItemID).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()})
	return result.RowsAffected, result.Error
}

// ListEditionEligibleIDs 可获得版号的订单项，按创建时间 + 行 ID 排序
func (r *lineItemRepository) ListEditionEligibleIDs(ctx context.Context, productRef string) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&model.LineItem{}).
		Joins("JOIN orders ON orders.order_id = line_items.order_ref").
		Where("line_items.product_ref = ?", productRef).
		Where("line_items.status = ?", model.LineItemActive).
		Where("orders.fulfillment_status NOT IN ?", model.ExcludedFulfillmentStatuses).
		Where("orders.financial_status NOT IN ?", model.ExcludedFinancialStatuses).
		Order("line_items.created_at ASC, line_items.id ASC").
		Pluck("line_items.id", &ids).Error
	return ids, err
}

// ClearEditionsExcept 清空商品下不在 keep 中的版号及限量总数
func (r *lineItemRepository) ClearEditionsExcept(ctx context.Context, productRef string, keep []int64) (int64, error) {
	query := r.db.WithContext(ctx).Model(&model.LineItem{}).
		Where("product_ref = ?", productRef).
		Where("edition_number IS NOT NULL")
	if len(keep) > 0 {
		query = query.Where("id NOT IN ?", keep)
	}
	result := query.Updates(map[string]interface{}{
		"edition_number": nil,
		"edition_total":  nil,
		"updated_at":     time.Now(),
	})
	return result.RowsAffected, result.Error
}

func (r *lineItemRepository) SetEdition(ctx context.Context, id int64, number int, total *int) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.LineItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"edition_number": number,
			"edition_total":  total,
			"updated_at":     time.Now(),
		})
	return result.RowsAffected, result.Error
}

// SetOwnerIfEmpty 为订单下尚无藏家信息的订单项写入邮箱/姓名
func (r *lineItemRepository) SetOwnerIfEmpty(ctx context.Context, orderRef, email, name, source string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.LineItem{}).
		Where("order_ref = ?", orderRef).
		Where("owner_email IS NULL OR owner_email = ''").
		Updates(map[string]interface{}{
			"owner_email":  email,
			"owner_name":   name,
			"owner_source": source,
			"updated_at":   time.Now(),
		})
	return result.RowsAffected, result.Error
}

// ClaimTag 条件更新：仅当订单项有效且未绑定标签时成功
func (r *lineItemRepository) ClaimTag(ctx context.Context, id, tagID int64, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.LineItem{}).
		Where("id = ?", id).
		Where("nfc_tag_id IS NULL").
		Where("status = ?", model.LineItemActive).
		Updates(map[string]interface{}{
			"nfc_tag_id":     tagID,
			"nfc_claimed_at": at,
			"updated_at":     at,
		})
	return result.RowsAffected, result.Error
}

func (r *lineItemRepository) ReleaseTag(ctx context.Context, id, tagID int64) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.LineItem{}).
		Where("id = ? AND nfc_tag_id = ?", id, tagID).
		Updates(map[string]interface{}{
			"nfc_tag_id":     nil,
			"nfc_claimed_at": nil,
			"updated_at":     time.Now(),
		})
	return result.RowsAffected, result.Error
}
