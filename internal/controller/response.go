package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chonibe/coa-service-sub020/pkg/errs"
)

// ==================== 统一响应 ====================

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": data,
	})
}

// fail 按错误类别映射 HTTP 状态码
// 存储错误不向外暴露内部细节
func fail(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	_ = c.Error(err)
	c.JSON(status, gin.H{
		"code":    status,
		"error":   string(errs.KindOf(err)),
		"message": errs.Message(err),
	})
}

// badRequest 请求绑定/校验失败
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    http.StatusBadRequest,
		"error":   string(errs.KindValidation),
		"message": err.Error(),
	})
}
