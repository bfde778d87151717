package model

import "time"

// NfcTag 状态
const (
	NfcTagUnpaired = "unpaired"
	NfcTagClaimed  = "claimed"
)

// NfcTag 实体 NFC 防伪标签
// unpaired -> claimed 为单向流转，仅管理员强制解绑可回到 unpaired
type NfcTag struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	SerialNumber string `gorm:"size:64;uniqueIndex;not null" json:"serial_number"`
	Status       string `gorm:"size:16;index;default:unpaired" json:"status"`

	// 绑定的订单项（line_items.id）
	LineItemRef *int64     `gorm:"uniqueIndex" json:"-"`
	ClaimedAt   *time.Time `json:"claimed_at"`

	// 强制解绑记录
	ReleasedAt *time.Time `json:"released_at,omitempty"`
	ReleasedBy int64      `json:"released_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (*NfcTag) TableName() string {
	return "nfc_tags"
}

// IsClaimed 是否已认领
func (t *NfcTag) IsClaimed() bool {
	return t.Status == NfcTagClaimed || t.LineItemRef != nil
}
