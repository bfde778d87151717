package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chonibe/coa-service-sub020/internal/repository"
	"github.com/chonibe/coa-service-sub020/pkg/errs"
	"github.com/chonibe/coa-service-sub020/pkg/metrics"
	"github.com/chonibe/coa-service-sub020/pkg/utils"
)

// ValidateTag 返回的标签状态
const (
	TagStateNew           = "new"            // 库中无记录
	TagStateAvailable     = "available"      // 有记录且未认领
	TagStateAlreadyPaired = "already_paired" // 已绑定证书
)

// TagValidation 标签校验结果
type TagValidation struct {
	State        string `json:"state"`
	TagID        int64  `json:"tag_id,omitempty"`
	SerialNumber string `json:"serial_number"`
}

// PairResult 绑定结果
type PairResult struct {
	Success      bool       `json:"success"`
	Conflict     bool       `json:"conflict"`
	TagID        int64      `json:"tag_id,omitempty"`
	SerialNumber string     `json:"serial_number"`
	LineItemID   string     `json:"line_item_id"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
}

// Certificate 标签对应的证书信息
type Certificate struct {
	LineItemID    string     `json:"line_item_id"`
	OrderID       string     `json:"order_id"`
	ProductID     string     `json:"product_id"`
	ProductTitle  string     `json:"product_title"`
	VendorName    string     `json:"vendor_name"`
	EditionNumber *int       `json:"edition_number"`
	EditionTotal  *int       `json:"edition_total"`
	OwnerName     string     `json:"owner_name"`
	ClaimedAt     *time.Time `json:"claimed_at"`
}

// TagVerification 验证结果
type TagVerification struct {
	SerialNumber string       `json:"serial_number"`
	Claimed      bool         `json:"claimed"`
	Certificate  *Certificate `json:"certificate,omitempty"`
}

// NfcService NFC 标签绑定与验证
type NfcService struct {
	uow     *repository.UnitOfWork
	metrics *metrics.Registry
	log     *zap.Logger
	now     func() time.Time
}

// NewNfcService 创建 NFC 服务
func NewNfcService(uow *repository.UnitOfWork, m *metrics.Registry, log *zap.Logger) *NfcService {
	return &NfcService{
		uow:     uow,
		metrics: m,
		log:     log.Named("nfc"),
		now:     time.Now,
	}
}

func normalizeSerial(serial string) (string, error) {
	s := utils.NormalizeSerial(serial)
	if s == "" {
		return "", errs.Validation("serial_number is required")
	}
	if !utils.IsValidSerial(s) {
		return "", errs.Validation("serial_number %q is malformed", s)
	}
	return s, nil
}

// ValidateTag 检查标签是否可绑定
func (s *NfcService) ValidateTag(ctx context.Context, serial string) (*TagValidation, error) {
	serial, err := normalizeSerial(serial)
	if err != nil {
		return nil, err
	}

	tag, err := s.uow.Tags.GetBySerial(ctx, serial)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &TagValidation{State: TagStateNew, SerialNumber: serial}, nil
		}
		return nil, errs.Storage("load nfc tag", err)
	}

	state := TagStateAvailable
	if tag.IsClaimed() {
		state = TagStateAlreadyPaired
	}
	return &TagValidation{State: state, TagID: tag.ID, SerialNumber: serial}, nil
}

// PairTag 绑定标签与订单项
// 两侧都通过条件更新完成比较并设置，任一侧不满足前置条件则整体回滚并返回 Conflict
func (s *NfcService) PairTag(ctx context.Context, serial, lineItemID string) (*PairResult, error) {
	serial, err := normalizeSerial(serial)
	if err != nil {
		return nil, err
	}
	if lineItemID == "" {
		return nil, errs.Validation("line_item_id is required")
	}

	result := &PairResult{SerialNumber: serial, LineItemID: lineItemID}
	now := s.now()

	err = s.uow.Transaction(ctx, func(tx *repository.UnitOfWork) error {
		item, err := tx.LineItems.GetByLineItemID(ctx, lineItemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("line item %s not found", lineItemID)
			}
			return errs.Storage("load line item", err)
		}

		if err := tx.Tags.EnsureExists(ctx, serial); err != nil {
			return errs.Storage("create nfc tag", err)
		}
		tag, err := tx.Tags.GetBySerial(ctx, serial)
		if err != nil {
			return errs.Storage("load nfc tag", err)
		}

		n, err := tx.Tags.Claim(ctx, serial, item.ID, now)
		if err != nil {
			return errs.Storage("claim nfc tag", err)
		}
		if n == 0 {
			return errs.Conflict("nfc tag %s is already paired", serial)
		}

		n, err = tx.LineItems.ClaimTag(ctx, item.ID, tag.ID, now)
		if err != nil {
			return errs.Storage("claim line item", err)
		}
		if n == 0 {
			return errs.Conflict("line item %s is already paired or not active", lineItemID)
		}

		result.TagID = tag.ID
		return nil
	})

	if err != nil {
		if errors.Is(err, errs.ErrConflict) {
			s.metrics.NfcPair.WithLabelValues("conflict").Inc()
			s.log.Info("标签绑定冲突", zap.String("serial", serial), zap.String("line_item_id", lineItemID))
			result.Conflict = true
			return result, err
		}
		s.metrics.NfcPair.WithLabelValues("error").Inc()
		return nil, errs.Storage("pair nfc tag", err)
	}

	s.metrics.NfcPair.WithLabelValues("success").Inc()
	s.log.Info("标签绑定成功", zap.String("serial", serial), zap.String("line_item_id", lineItemID))

	result.Success = true
	result.ClaimedAt = &now
	return result, nil
}

// VerifyTag 只读查询标签认领状态及证书信息
func (s *NfcService) VerifyTag(ctx context.Context, serial string) (*TagVerification, error) {
	serial, err := normalizeSerial(serial)
	if err != nil {
		return nil, err
	}

	tag, err := s.uow.Tags.GetBySerial(ctx, serial)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("nfc tag %s not found", serial)
		}
		return nil, errs.Storage("load nfc tag", err)
	}

	out := &TagVerification{SerialNumber: serial, Claimed: tag.IsClaimed()}
	if !out.Claimed || tag.LineItemRef == nil {
		return out, nil
	}

	item, err := s.uow.LineItems.GetByID(ctx, *tag.LineItemRef)
	if err != nil {
		return nil, errs.Storage("load paired line item", err)
	}

	cert := &Certificate{
		LineItemID:    item.LineItemID,
		OrderID:       item.OrderRef,
		ProductID:     item.ProductRef,
		ProductTitle:  item.Title,
		EditionNumber: item.EditionNumber,
		EditionTotal:  item.EditionTotal,
		OwnerName:     item.OwnerName,
		ClaimedAt:     tag.ClaimedAt,
	}

	product, err := s.uow.Products.GetByProductID(ctx, item.ProductRef)
	switch {
	case err == nil:
		cert.VendorName = product.VendorName
		cert.ProductTitle = utils.FirstNonEmpty(product.Title, item.Title)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, errs.Storage("load product", err)
	}

	out.Certificate = cert
	return out, nil
}

// ReleaseTag 管理员强制解绑，两侧恢复为未绑定状态
func (s *NfcService) ReleaseTag(ctx context.Context, serial string, adminID int64) error {
	serial, err := normalizeSerial(serial)
	if err != nil {
		return err
	}

	now := s.now()
	err = s.uow.Transaction(ctx, func(tx *repository.UnitOfWork) error {
		tag, err := tx.Tags.GetBySerial(ctx, serial)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("nfc tag %s not found", serial)
			}
			return errs.Storage("load nfc tag", err)
		}
		if !tag.IsClaimed() {
			return errs.Conflict("nfc tag %s is not paired", serial)
		}

		n, err := tx.Tags.Release(ctx, tag.ID, adminID, now)
		if err != nil {
			return errs.Storage("release nfc tag", err)
		}
		if n == 0 {
			return errs.Conflict("nfc tag %s changed concurrently", serial)
		}

		if tag.LineItemRef != nil {
			if _, err := tx.LineItems.ReleaseTag(ctx, *tag.LineItemRef, tag.ID); err != nil {
				return errs.Storage("release line item", err)
			}
		}
		return nil
	})
	if err != nil {
		return errs.Storage("release nfc tag", err)
	}

	s.log.Warn("标签已被管理员强制解绑", zap.String("serial", serial), zap.Int64("admin_id", adminID))
	return nil
}
