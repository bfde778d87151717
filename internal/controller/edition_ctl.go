package controller

import (
	"github.com/gin-gonic/gin"

	"github.com/chonibe/coa-service-sub020/internal/service"
)

// EditionController 版号分配
type EditionController struct {
	svc *service.EditionService
}

// NewEditionController 创建版号控制器
func NewEditionController(svc *service.EditionService) *EditionController {
	return &EditionController{svc: svc}
}

// Assign 重新分配商品版号
// POST /api/admin/products/:product_id/editions/assign
func (ctl *EditionController) Assign(c *gin.Context) {
	res, err := ctl.svc.AssignEditions(c.Request.Context(), c.Param("product_id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}
