package dto

// ReconcileSweepRequest 手动触发批量补全
type ReconcileSweepRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}
