package controller

import (
	"github.com/gin-gonic/gin"

	"github.com/chonibe/coa-service-sub020/internal/api/dto"
	"github.com/chonibe/coa-service-sub020/internal/service"
)

// CollectorController 藏家身份补全
type CollectorController struct {
	svc          *service.ReconcileService
	defaultBatch int
}

// NewCollectorController 创建藏家控制器
func NewCollectorController(svc *service.ReconcileService, defaultBatch int) *CollectorController {
	return &CollectorController{svc: svc, defaultBatch: defaultBatch}
}

// Reconcile 补全单个订单/订单项
// POST /api/admin/collectors/reconcile/:ref
func (ctl *CollectorController) Reconcile(c *gin.Context) {
	res, err := ctl.svc.ReconcileIdentity(c.Request.Context(), c.Param("ref"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

// Sweep 手动触发批量补全
// POST /api/admin/collectors/reconcile-sweep?limit=
func (ctl *CollectorController) Sweep(c *gin.Context) {
	var req dto.ReconcileSweepRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = ctl.defaultBatch
	}

	res, err := ctl.svc.ReconcilePending(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

// Profile 藏家档案
// GET /api/admin/collectors/profiles/:email
func (ctl *CollectorController) Profile(c *gin.Context) {
	profile, err := ctl.svc.GetCollectorProfile(c.Request.Context(), c.Param("email"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, profile)
}
