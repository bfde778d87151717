package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chonibe/coa-service-sub020/internal/api/dto"
	"github.com/chonibe/coa-service-sub020/internal/middleware"
	"github.com/chonibe/coa-service-sub020/internal/service"
	"github.com/chonibe/coa-service-sub020/pkg/errs"
)

// NfcController NFC 标签
type NfcController struct {
	svc *service.NfcService
}

// NewNfcController 创建 NFC 控制器
func NewNfcController(svc *service.NfcService) *NfcController {
	return &NfcController{svc: svc}
}

// Validate 校验标签状态
// POST /api/admin/nfc/validate
func (ctl *NfcController) Validate(c *gin.Context) {
	var req dto.ValidateTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := ctl.svc.ValidateTag(c.Request.Context(), req.SerialNumber)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

// Pair 绑定标签与订单项
// POST /api/admin/nfc/pair
func (ctl *NfcController) Pair(c *gin.Context) {
	var req dto.PairTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := ctl.svc.PairTag(c.Request.Context(), req.SerialNumber, req.LineItemID)
	if err != nil {
		if errors.Is(err, errs.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{
				"code":     http.StatusConflict,
				"error":    string(errs.KindConflict),
				"message":  errs.Message(err),
				"success":  false,
				"conflict": true,
			})
			return
		}
		fail(c, err)
		return
	}
	ok(c, res)
}

// Verify 公开验证入口（扫码）
// GET /api/nfc/verify/:serial
func (ctl *NfcController) Verify(c *gin.Context) {
	res, err := ctl.svc.VerifyTag(c.Request.Context(), c.Param("serial"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

// Release 管理员强制解绑
// DELETE /api/admin/nfc/:serial/claim
func (ctl *NfcController) Release(c *gin.Context) {
	adminID := middleware.GetAuditUserID(c.Request.Context())
	if err := ctl.svc.ReleaseTag(c.Request.Context(), c.Param("serial"), adminID); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"serial_number": c.Param("serial"), "released": true})
}
