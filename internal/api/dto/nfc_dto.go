package dto

// ValidateTagRequest 标签校验请求
type ValidateTagRequest struct {
	SerialNumber string `json:"serial_number" binding:"required,nfcserial"`
}

// PairTagRequest 标签绑定请求
type PairTagRequest struct {
	SerialNumber string `json:"serial_number" binding:"required,nfcserial"`
	LineItemID   string `json:"line_item_id" binding:"required,max=64"`
}
