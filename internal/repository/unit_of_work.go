package repository

import (
	"context"

	"gorm.io/gorm"
)

// UnitOfWork 仓储集合 + 事务
type UnitOfWork struct {
	db         *gorm.DB
	Products   ProductRepository
	Orders     OrderRepository
	LineItems  LineItemRepository
	Tags       NfcTagRepository
	Collectors CollectorRepository
}

// NewUnitOfWork 创建工作单元
func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{
		db:         db,
		Products:   NewProductRepository(db),
		Orders:     NewOrderRepository(db),
		LineItems:  NewLineItemRepository(db),
		Tags:       NewNfcTagRepository(db),
		Collectors: NewCollectorRepository(db),
	}
}

// Transaction 执行事务，fn 返回错误时整体回滚
func (u *UnitOfWork) Transaction(ctx context.Context, fn func(tx *UnitOfWork) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewUnitOfWork(tx))
	})
}
