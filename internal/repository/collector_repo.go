package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chonibe/coa-service-sub020/internal/model"
)

// CollectorRepository 藏家数据源仓储接口
// 覆盖仓库导出、CRM 联系人与藏家档案三张表
type CollectorRepository interface {
	// 仓库导出：按订单号/订单名查找最近一条带邮箱的记录
	FindWarehouseOrder(ctx context.Context, orderRefs []string) (*model.WarehouseOrder, error)

	// CRM
	FindContactsByCustomerRef(ctx context.Context, customerRef string) ([]model.CrmContact, error)
	FindContactsByEmail(ctx context.Context, normalizedEmail string) ([]model.CrmContact, error)
	FindContactsByName(ctx context.Context, normalizedName string) ([]model.CrmContact, error)

	// 藏家档案
	GetProfile(ctx context.Context, normalizedEmail string) (*model.CollectorProfile, error)
	UpsertProfile(ctx context.Context, profile *model.CollectorProfile) error
}

type collectorRepo struct {
	db *gorm.DB
}

// NewCollectorRepository 创建藏家仓储
func NewCollectorRepository(db *gorm.DB) CollectorRepository {
	return &collectorRepo{db: db}
}

func (r *collectorRepo) FindWarehouseOrder(ctx context.Context, orderRefs []string) (*model.WarehouseOrder, error) {
	refs := make([]string, 0, len(orderRefs))
	for _, ref := range orderRefs {
		if ref != "" {
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	var record model.WarehouseOrder
	err := r.db.WithContext(ctx).
		Where("order_ref IN ?", refs).
		Where("ship_email IS NOT NULL AND ship_email <> ''").
		Order("id DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *collectorRepo) FindContactsByCustomerRef(ctx context.Context, customerRef string) ([]model.CrmContact, error) {
	var contacts []model.CrmContact
	err := r.db.WithContext(ctx).
		Where("customer_ref = ?", customerRef).
		Order("id ASC").
		Find(&contacts).Error
	return contacts, err
}

func (r *collectorRepo) FindContactsByEmail(ctx context.Context, normalizedEmail string) ([]model.CrmContact, error) {
	var contacts []model.CrmContact
	err := r.db.WithContext(ctx).
		Where("LOWER(TRIM(email)) = ?", normalizedEmail).
		Order("id ASC").
		Find(&contacts).Error
	return contacts, err
}

func (r *collectorRepo) FindContactsByName(ctx context.Context, normalizedName string) ([]model.CrmContact, error) {
	var contacts []model.CrmContact
	err := r.db.WithContext(ctx).
		Where("LOWER(TRIM(TRIM(first_name) || ' ' || TRIM(last_name))) = ?", normalizedName).
		Order("id ASC").
		Find(&contacts).Error
	return contacts, err
}

func (r *collectorRepo) GetProfile(ctx context.Context, normalizedEmail string) (*model.CollectorProfile, error) {
	var profile model.CollectorProfile
	if err := r.db.WithContext(ctx).Where("email = ?", normalizedEmail).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpsertProfile 按邮箱刷新档案，空姓名不覆盖已有姓名
func (r *collectorRepo) UpsertProfile(ctx context.Context, profile *model.CollectorProfile) error {
	if profile.RefreshedAt.IsZero() {
		profile.RefreshedAt = time.Now()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "email"}},
		DoUpdates: append(clause.AssignmentColumns([]string{
			"email_source", "last_order_ref", "refreshed_at", "updated_at",
		}),
			keepIfEmpty("collector_profiles", "display_name"),
			keepIfEmpty("collector_profiles", "name_source"),
		),
	}).Create(profile).Error
}
