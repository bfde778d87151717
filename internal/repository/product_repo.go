package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chonibe/coa-service-sub020/internal/model"
	"github.com/chonibe/coa-service-sub020/pkg/database"
)

// ProductRepository 商品仓储接口
type ProductRepository interface {
	GetByProductID(ctx context.Context, productID string) (*model.Product, error)
	// GetForUpdate 读取并锁定商品行（Postgres: SELECT ... FOR UPDATE），需在事务内调用
	GetForUpdate(ctx context.Context, productID string) (*model.Product, error)
	GetByProductIDs(ctx context.Context, productIDs []string) ([]model.Product, error)
	Upsert(ctx context.Context, product *model.Product) error

	// CallAssignEditionNumbers 调用存储过程 assign_edition_numbers
	CallAssignEditionNumbers(ctx context.Context, productID string) (int, error)
	SupportsStoredProcedures() bool
}

type productRepo struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓储
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepo{db: db}
}

func (r *productRepo) GetByProductID(ctx context.Context, productID string) (*model.Product, error) {
	var product model.Product
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) GetForUpdate(ctx context.Context, productID string) (*model.Product, error) {
	var product model.Product
	query := r.db.WithContext(ctx)
	if database.IsPostgres(r.db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := query.Where("product_id = ?", productID).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) GetByProductIDs(ctx context.Context, productIDs []string) ([]model.Product, error) {
	var products []model.Product
	if len(productIDs) == 0 {
		return products, nil
	}
	err := r.db.WithContext(ctx).Where("product_id IN ?", productIDs).Find(&products).Error
	return products, err
}

func (r *productRepo) Upsert(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "vendor_name", "edition_size", "updated_at"}),
	}).Create(product).Error
}

func (r *productRepo) CallAssignEditionNumbers(ctx context.Context, productID string) (int, error) {
	var count int
	err := r.db.WithContext(ctx).Raw("SELECT assign_edition_numbers(?)", productID).Scan(&count).Error
	return count, err
}

func (r *productRepo) SupportsStoredProcedures() bool {
	return database.IsPostgres(r.db)
}
