package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chonibe/coa-service-sub020/internal/model"
)

// NfcTagRepository NFC 标签仓储接口
type NfcTagRepository interface {
	GetBySerial(ctx context.Context, serial string) (*model.NfcTag, error)
	// EnsureExists 标签不存在时以 unpaired 状态插入，已存在则忽略
	EnsureExists(ctx context.Context, serial string) error
	// Claim 比较并设置：仅当标签仍为 unpaired 且未绑定时成功，返回受影响行数
	Claim(ctx context.Context, serial string, lineItemID int64, at time.Time) (int64, error)
	Release(ctx context.Context, id int64, releasedBy int64, at time.Time) (int64, error)
}

type nfcTagRepo struct {
	db *gorm.DB
}

// NewNfcTagRepository 创建 NFC 标签仓储
func NewNfcTagRepository(db *gorm.DB) NfcTagRepository {
	return &nfcTagRepo{db: db}
}

func (r *nfcTagRepo) GetBySerial(ctx context.Context, serial string) (*model.NfcTag, error) {
	var tag model.NfcTag
	if err := r.db.WithContext(ctx).Where("serial_number = ?", serial).First(&tag).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

func (r *nfcTagRepo) EnsureExists(ctx context.Context, serial string) error {
	tag := &model.NfcTag{SerialNumber: serial, Status: model.NfcTagUnpaired}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "serial_number"}},
		DoNothing: true,
	}).Create(tag).Error
}

func (r *nfcTagRepo) Claim(ctx context.Context, serial string, lineItemID int64, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.NfcTag{}).
		Where("serial_number = ?", serial).
		Where("status = ?", model.NfcTagUnpaired).
		Where("line_item_ref IS NULL").
		Updates(map[string]interface{}{
			"status":        model.NfcTagClaimed,
			"line_item_ref": lineItemID,
			"claimed_at":    at,
			"updated_at":    at,
		})
	return result.RowsAffected, result.Error
}

func (r *nfcTagRepo) Release(ctx context.Context, id int64, releasedBy int64, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.NfcTag{}).
		Where("id = ?", id).
		Where("status = ?", model.NfcTagClaimed).
		Updates(map[string]interface{}{
			"status":        model.NfcTagUnpaired,
			"line_item_ref": nil,
			"claimed_at":    nil,
			"released_at":   at,
			"released_by":   releasedBy,
			"updated_at":    at,
		})
	return result.RowsAffected, result.Error
}
