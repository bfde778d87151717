package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chonibe/coa-service-sub020/internal/model"
	"github.com/chonibe/coa-service-sub020/internal/repository"
	"github.com/chonibe/coa-service-sub020/pkg/errs"
	"github.com/chonibe/coa-service-sub020/pkg/metrics"
	"github.com/chonibe/coa-service-sub020/pkg/utils"
)

// ==================== 结果结构 ====================

// IdentityFields 补全得到的身份字段
type IdentityFields struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// ReconcileResult 补全结果
type ReconcileResult struct {
	OrderID         string          `json:"order_id"`
	Matched         bool            `json:"matched"`
	Source          string          `json:"source,omitempty"`
	Fields          *IdentityFields `json:"fields,omitempty"`
	AlreadyEnriched bool            `json:"already_enriched"`
}

// SweepResult 批量补全结果
type SweepResult struct {
	Scanned  int            `json:"scanned"`
	Matched  int            `json:"matched"`
	Failed   int            `json:"failed"`
	BySource map[string]int `json:"by_source"`
}

// identity 某个数据源给出的候选身份
type identity struct {
	email  string
	name   string
	source string
}

// ==================== ReconcileService ====================

// ReconcileService 藏家身份补全服务
// 按优先级查找：订单原始报文 > 仓库导出 > CRM 联系人，首个命中即返回
type ReconcileService struct {
	uow     *repository.UnitOfWork
	metrics *metrics.Registry
	log     *zap.Logger
	now     func() time.Time

	// 定时任务与后台手动触发共用，同一时间只跑一轮批量补全
	sweeping atomic.Bool
}

// NewReconcileService 创建补全服务
func NewReconcileService(uow *repository.UnitOfWork, m *metrics.Registry, log *zap.Logger) *ReconcileService {
	return &ReconcileService{
		uow:     uow,
		metrics: m,
		log:     log.Named("reconcile"),
		now:     time.Now,
	}
}

// ReconcileIdentity 补全订单或订单项缺失的买家信息
// ref 可以是订单号，也可以是订单项 ID
// 未命中任何数据源不是错误，返回 Matched=false
func (s *ReconcileService) ReconcileIdentity(ctx context.Context, ref string) (*ReconcileResult, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errs.Validation("order or line item id is required")
	}

	order, ownerEmail, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{OrderID: order.OrderID}

	// 订单已有邮箱：订单本身不再写入，只为尚无藏家信息的订单项补齐
	if order.HasEmail() {
		source := order.EmailSource
		if source == "" {
			source = model.SourceOrder
		}
		known := &identity{email: order.CustomerEmail, name: order.CustomerName, source: source}
		if err := s.fillOwners(ctx, order, known); err != nil {
			return nil, err
		}
		result.Matched = true
		result.AlreadyEnriched = true
		result.Source = source
		result.Fields = &IdentityFields{Email: order.CustomerEmail, Name: order.CustomerName}
		return result, nil
	}

	found, err := s.search(ctx, order, ownerEmail)
	if err != nil {
		return nil, err
	}
	if found == nil {
		s.metrics.Reconcile.WithLabelValues("none").Inc()
		s.log.Debug("未找到可用的身份信息", zap.String("order_id", order.OrderID))
		return result, nil
	}

	if err := s.apply(ctx, order, found); err != nil {
		return nil, err
	}

	s.metrics.Reconcile.WithLabelValues(found.source).Inc()
	s.log.Info("身份信息已补全",
		zap.String("order_id", order.OrderID),
		zap.String("source", found.source),
	)

	result.Matched = true
	result.Source = found.source
	result.Fields = &IdentityFields{Email: found.email, Name: found.name}
	return result, nil
}

// ReconcilePending 批量补全缺少邮箱的订单（由定时任务和后台手动触发）
// 每轮扫描过的订单记录尝试时间，从未尝试过的订单优先，长期无法匹配的订单不会占满批次
func (s *ReconcileService) ReconcilePending(ctx context.Context, limit int) (*SweepResult, error) {
	if limit <= 0 {
		return nil, errs.Validation("limit must be positive")
	}
	if !s.sweeping.CompareAndSwap(false, true) {
		return nil, errs.Conflict("reconcile sweep is already running")
	}
	defer s.sweeping.Store(false)

	orders, err := s.uow.Orders.ListUnenriched(ctx, limit)
	if err != nil {
		return nil, errs.Storage("list unenriched orders", err)
	}

	sweep := &SweepResult{Scanned: len(orders), BySource: map[string]int{}}
	attempted := make([]string, 0, len(orders))
	for _, o := range orders {
		if err := ctx.Err(); err != nil {
			s.markAttempted(attempted)
			return sweep, err
		}
		attempted = append(attempted, o.OrderID)
		res, err := s.ReconcileIdentity(ctx, o.OrderID)
		if err != nil {
			sweep.Failed++
			s.log.Warn("订单补全失败", zap.String("order_id", o.OrderID), zap.Error(err))
			continue
		}
		if res.Matched {
			sweep.Matched++
			sweep.BySource[res.Source]++
		}
	}

	if _, err := s.uow.Orders.MarkReconcileAttempted(ctx, attempted, s.now()); err != nil {
		return sweep, errs.Storage("mark reconcile attempted", err)
	}

	s.log.Info("批量补全完成",
		zap.Int("scanned", sweep.Scanned),
		zap.Int("matched", sweep.Matched),
		zap.Int("failed", sweep.Failed),
	)
	return sweep, nil
}

// GetCollectorProfile 查询藏家档案
func (s *ReconcileService) GetCollectorProfile(ctx context.Context, email string) (*model.CollectorProfile, error) {
	normalized := utils.NormalizeEmail(email)
	if normalized == "" {
		return nil, errs.Validation("email is required")
	}
	profile, err := s.uow.Collectors.GetProfile(ctx, normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("collector profile %s not found", normalized)
		}
		return nil, errs.Storage("load collector profile", err)
	}
	return profile, nil
}

// ==================== 内部流程 ====================

// resolve 先按订单号查找，找不到再按订单项 ID 查找
// 返回订单及订单项上已有的藏家邮箱（用于 CRM 匹配）
func (s *ReconcileService) resolve(ctx context.Context, ref string) (*model.Order, string, error) {
	order, err := s.uow.Orders.GetByOrderID(ctx, ref)
	if err == nil {
		return order, "", nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", errs.Storage("load order", err)
	}

	item, err := s.uow.LineItems.GetByLineItemID(ctx, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", errs.NotFound("order or line item %s not found", ref)
		}
		return nil, "", errs.Storage("load line item", err)
	}

	order, err = s.uow.Orders.GetByOrderID(ctx, item.OrderRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", errs.NotFound("order %s of line item %s not found", item.OrderRef, ref)
		}
		return nil, "", errs.Storage("load order", err)
	}
	return order, item.OwnerEmail, nil
}

// search 按优先级依次查找
func (s *ReconcileService) search(ctx context.Context, order *model.Order, ownerEmail string) (*identity, error) {
	payload := parsePayload(order.RawPayload)

	if found := identityFromPayload(payload); found != nil {
		return found, nil
	}

	found, err := s.fromWarehouse(ctx, order)
	if err != nil || found != nil {
		return found, err
	}

	// CRM 按姓名匹配时，订单字段没有姓名则使用报文中的姓名
	name := utils.FirstNonEmpty(order.CustomerName, nameFromPayload(payload))
	return s.fromCRM(ctx, order.CustomerID, ownerEmail, name)
}

func (s *ReconcileService) fromWarehouse(ctx context.Context, order *model.Order) (*identity, error) {
	record, err := s.uow.Collectors.FindWarehouseOrder(ctx, []string{order.OrderID, order.OrderName})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errs.Storage("load warehouse order", err)
	}
	email := utils.NormalizeEmail(record.ShipEmail)
	if !looksLikeEmail(email) {
		return nil, nil
	}
	return &identity{email: email, name: strings.TrimSpace(record.ShipName), source: model.SourceWarehouse}, nil
}

// fromCRM 依次按客户 ID、归一化邮箱、归一化姓名匹配
// 邮箱和姓名匹配要求结果唯一，多条视为无法判定
func (s *ReconcileService) fromCRM(ctx context.Context, customerID, ownerEmail, name string) (*identity, error) {
	if customerID != "" {
		contacts, err := s.uow.Collectors.FindContactsByCustomerRef(ctx, customerID)
		if err != nil {
			return nil, errs.Storage("load crm contacts by customer", err)
		}
		for _, c := range contacts {
			if found := identityFromContact(c); found != nil {
				return found, nil
			}
		}
	}

	if email := utils.NormalizeEmail(ownerEmail); email != "" {
		contacts, err := s.uow.Collectors.FindContactsByEmail(ctx, email)
		if err != nil {
			return nil, errs.Storage("load crm contacts by email", err)
		}
		if len(contacts) == 1 {
			if found := identityFromContact(contacts[0]); found != nil {
				return found, nil
			}
		}
	}

	if normalized := utils.NormalizeName(name); normalized != "" {
		contacts, err := s.uow.Collectors.FindContactsByName(ctx, normalized)
		if err != nil {
			return nil, errs.Storage("load crm contacts by name", err)
		}
		if len(contacts) == 1 {
			return identityFromContact(contacts[0]), nil
		}
		if len(contacts) > 1 {
			s.log.Debug("CRM 姓名匹配不唯一", zap.String("name", normalized), zap.Int("count", len(contacts)))
		}
	}
	return nil, nil
}

// markAttempted 中途取消时记录已处理的订单，使用独立 context 保证写入
func (s *ReconcileService) markAttempted(orderIDs []string) {
	if len(orderIDs) == 0 {
		return
	}
	if _, err := s.uow.Orders.MarkReconcileAttempted(context.Background(), orderIDs, s.now()); err != nil {
		s.log.Warn("记录补全尝试时间失败", zap.Int("orders", len(orderIDs)), zap.Error(err))
	}
}

// apply 以"仅空值写入"方式更新订单、订单项并刷新藏家档案
// 并发重复执行结果一致
func (s *ReconcileService) apply(ctx context.Context, order *model.Order, found *identity) error {
	err := s.uow.Transaction(ctx, func(tx *repository.UnitOfWork) error {
		if _, err := tx.Orders.SetEmailIfEmpty(ctx, order.OrderID, found.email, found.source); err != nil {
			return err
		}
		if found.name != "" {
			if _, err := tx.Orders.SetNameIfEmpty(ctx, order.OrderID, found.name, found.source); err != nil {
				return err
			}
		}
		if _, err := tx.LineItems.SetOwnerIfEmpty(ctx, order.OrderID, found.email, found.name, found.source); err != nil {
			return err
		}
		return tx.Collectors.UpsertProfile(ctx, profileOf(order, found))
	})
	if err != nil {
		return errs.Storage("apply identity", err)
	}
	return nil
}

// fillOwners 订单已有邮箱时，为缺少藏家信息的订单项补齐
// 没有订单项需要补齐时不写入
func (s *ReconcileService) fillOwners(ctx context.Context, order *model.Order, known *identity) error {
	err := s.uow.Transaction(ctx, func(tx *repository.UnitOfWork) error {
		n, err := tx.LineItems.SetOwnerIfEmpty(ctx, order.OrderID, known.email, known.name, known.source)
		if err != nil || n == 0 {
			return err
		}
		s.log.Info("订单项藏家信息已补齐", zap.String("order_id", order.OrderID), zap.Int64("line_items", n))
		return tx.Collectors.UpsertProfile(ctx, profileOf(order, known))
	})
	if err != nil {
		return errs.Storage("fill line item owners", err)
	}
	return nil
}

func profileOf(order *model.Order, found *identity) *model.CollectorProfile {
	profile := &model.CollectorProfile{
		Email:        utils.NormalizeEmail(found.email),
		DisplayName:  found.name,
		EmailSource:  found.source,
		LastOrderRef: order.OrderID,
	}
	if found.name != "" {
		profile.NameSource = found.source
	}
	return profile
}

// ==================== 报文解析 ====================

// 报文中邮箱的候选路径，按优先级排列
var payloadEmailPaths = [][]string{
	{"email"},
	{"contact_email"},
	{"customer", "email"},
	{"billing_address", "email"},
	{"shipping_address", "email"},
}

func parsePayload(raw []byte) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	return payload
}

func identityFromPayload(payload map[string]interface{}) *identity {
	if payload == nil {
		return nil
	}
	for _, path := range payloadEmailPaths {
		email := utils.NormalizeEmail(lookupString(payload, path...))
		if looksLikeEmail(email) {
			return &identity{email: email, name: nameFromPayload(payload), source: model.SourceRawPayload}
		}
	}
	return nil
}

func nameFromPayload(payload map[string]interface{}) string {
	if payload == nil {
		return ""
	}
	return utils.FirstNonEmpty(
		utils.JoinName(lookupString(payload, "customer", "first_name"), lookupString(payload, "customer", "last_name")),
		lookupString(payload, "billing_address", "name"),
		lookupString(payload, "shipping_address", "name"),
	)
}

// lookupString 按路径读取嵌套字符串字段
func lookupString(m map[string]interface{}, path ...string) string {
	var cur interface{} = m
	for _, key := range path {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return ""
		}
		cur = obj[key]
	}
	s, _ := cur.(string)
	return strings.TrimSpace(s)
}

func identityFromContact(c model.CrmContact) *identity {
	email := utils.NormalizeEmail(c.Email)
	if !looksLikeEmail(email) {
		return nil
	}
	return &identity{email: email, name: utils.JoinName(c.FirstName, c.LastName), source: model.SourceCRM}
}

func looksLikeEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	return at > 0 && at < len(s)-1
}
