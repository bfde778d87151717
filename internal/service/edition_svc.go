package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chonibe/coa-service-sub020/internal/repository"
	"github.com/chonibe/coa-service-sub020/pkg/errs"
	"github.com/chonibe/coa-service-sub020/pkg/metrics"
)

// EditionResult 单个商品的版号分配结果
type EditionResult struct {
	ProductID    string `json:"product_id"`
	UpdatedCount int    `json:"updated_count"`
	ClearedCount int64  `json:"cleared_count"` // 存储过程路径不统计
	EditionSize  *int   `json:"edition_size"`
	Oversold     bool   `json:"oversold"`
}

// EditionService 版号分配服务
type EditionService struct {
	uow                *repository.UnitOfWork
	useStoredProcedure bool
	metrics            *metrics.Registry
	log                *zap.Logger
}

// NewEditionService 创建版号分配服务
func NewEditionService(uow *repository.UnitOfWork, useStoredProcedure bool, m *metrics.Registry, log *zap.Logger) *EditionService {
	return &EditionService{
		uow:                uow,
		useStoredProcedure: useStoredProcedure,
		metrics:            m,
		log:                log.Named("edition"),
	}
}

// AssignEditions 为商品的有效订单项分配连续版号 1..N
// 有效：订单项 status=active，且订单未取消/退库、未退款/作废
// 排序：订单项创建时间升序，同一时间按行 ID 升序
// 整个商品在一个事务内完成，失败整体回滚
func (s *EditionService) AssignEditions(ctx context.Context, productID string) (*EditionResult, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, errs.Validation("product_id is required")
	}

	var (
		result *EditionResult
		err    error
	)
	if s.useStoredProcedure && s.uow.Products.SupportsStoredProcedures() {
		result, err = s.assignViaProcedure(ctx, productID)
	} else {
		result, err = s.assignInTx(ctx, productID)
	}

	if err != nil {
		s.metrics.EditionRuns.WithLabelValues("error").Inc()
		s.log.Error("版号分配失败", zap.String("product_id", productID), zap.Error(err))
		return nil, err
	}

	s.metrics.EditionAssigned.Add(float64(result.UpdatedCount))
	if result.Oversold {
		s.metrics.EditionRuns.WithLabelValues("oversold").Inc()
		s.log.Warn("有效订单项超出限量",
			zap.String("product_id", productID),
			zap.Int("active", result.UpdatedCount),
			zap.Intp("edition_size", result.EditionSize),
		)
	} else {
		s.metrics.EditionRuns.WithLabelValues("ok").Inc()
	}

	s.log.Info("版号分配完成",
		zap.String("product_id", productID),
		zap.Int("updated", result.UpdatedCount),
		zap.Int64("cleared", result.ClearedCount),
	)
	return result, nil
}

func (s *EditionService) assignInTx(ctx context.Context, productID string) (*EditionResult, error) {
	var result *EditionResult

	err := s.uow.Transaction(ctx, func(tx *repository.UnitOfWork) error {
		// 锁定商品行，同一商品的并发分配串行执行
		product, err := tx.Products.GetForUpdate(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("product %s not found", productID)
			}
			return errs.Storage("load product", err)
		}

		ids, err := tx.LineItems.ListEditionEligibleIDs(ctx, productID)
		if err != nil {
			return errs.Storage("list eligible line items", err)
		}

		cleared, err := tx.LineItems.ClearEditionsExcept(ctx, productID, ids)
		if err != nil {
			return errs.Storage("clear edition numbers", err)
		}

		for i, id := range ids {
			if _, err := tx.LineItems.SetEdition(ctx, id, i+1, product.EditionSize); err != nil {
				return errs.Storage("set edition number", err)
			}
		}

		result = &EditionResult{
			ProductID:    productID,
			UpdatedCount: len(ids),
			ClearedCount: cleared,
			EditionSize:  product.EditionSize,
			Oversold:     product.IsOversold(len(ids)),
		}
		return nil
	})
	if err != nil {
		return nil, errs.Storage("assign editions", err)
	}
	return result, nil
}

// assignViaProcedure 调用 Postgres 存储过程，事务由存储过程保证
func (s *EditionService) assignViaProcedure(ctx context.Context, productID string) (*EditionResult, error) {
	product, err := s.uow.Products.GetByProductID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("product %s not found", productID)
		}
		return nil, errs.Storage("load product", err)
	}

	count, err := s.uow.Products.CallAssignEditionNumbers(ctx, productID)
	if err != nil {
		return nil, errs.Storage("assign_edition_numbers", err)
	}

	return &EditionResult{
		ProductID:    productID,
		UpdatedCount: count,
		EditionSize:  product.EditionSize,
		Oversold:     product.IsOversold(count),
	}, nil
}

// AssignEditionsForOrder 对订单涉及的每个商品重新分配版号
// 各商品独立事务，遇到错误立即返回已完成的结果
func (s *EditionService) AssignEditionsForOrder(ctx context.Context, orderID string) ([]EditionResult, error) {
	refs, err := s.uow.LineItems.ProductRefsByOrder(ctx, orderID)
	if err != nil {
		return nil, errs.Storage("list order products", err)
	}

	results := make([]EditionResult, 0, len(refs))
	for _, ref := range refs {
		res, err := s.AssignEditions(ctx, ref)
		if err != nil {
			// 订单项引用了尚未入库的商品：没有可分配的限量，跳过
			if errors.Is(err, errs.ErrNotFound) {
				s.log.Warn("订单项引用的商品不存在", zap.String("order_id", orderID), zap.String("product_id", ref))
				continue
			}
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}
