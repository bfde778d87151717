package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chonibe/coa-service-sub020/internal/controller"
	"github.com/chonibe/coa-service-sub020/internal/middleware"
	"github.com/chonibe/coa-service-sub020/pkg/metrics"
)

// Controllers 路由依赖的控制器
type Controllers struct {
	Edition   *controller.EditionController
	Order     *controller.OrderController
	Collector *controller.CollectorController
	Nfc       *controller.NfcController
}

// Options 路由配置
type Options struct {
	JWT           *middleware.JWTManager
	Metrics       *metrics.Registry
	Logger        *zap.Logger
	SweepCooldown time.Duration
	// TaskStatus 健康检查展示的后台任务状态
	TaskStatus func() map[string]bool
}

// New 创建 gin 引擎并注册所有路由
func New(ctl Controllers, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(opts.Logger, opts.Metrics))

	r.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if opts.TaskStatus != nil {
			body["tasks"] = opts.TaskStatus()
		}
		c.JSON(http.StatusOK, body)
	})
	r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))

	api := r.Group("/api")
	{
		// 公开：扫码验证
		api.GET("/nfc/verify/:serial", ctl.Nfc.Verify)
	}

	admin := api.Group("/admin", opts.JWT.Middleware(), middleware.RequireRole(middleware.RoleAdmin), middleware.AuditContext())
	{
		// POST /api/admin/products/:product_id/editions/assign
		admin.POST("/products/:product_id/editions/assign", ctl.Edition.Assign)

		orders := admin.Group("/orders")
		{
			orders.POST("", ctl.Order.Upsert)
			orders.GET("/:order_id", ctl.Order.Get)
			orders.PATCH("/:order_id/status", ctl.Order.UpdateStatus)
		}
		admin.PATCH("/line-items/:line_item_id/status", ctl.Order.UpdateLineItemStatus)

		collectors := admin.Group("/collectors")
		{
			collectors.POST("/reconcile/:ref", ctl.Collector.Reconcile)
			collectors.POST("/reconcile-sweep",
				middleware.Cooldown(middleware.NewCooldownLimiter(), "reconcile_sweep", opts.SweepCooldown),
				ctl.Collector.Sweep,
			)
			collectors.GET("/profiles/:email", ctl.Collector.Profile)
		}

		nfc := admin.Group("/nfc")
		{
			nfc.POST("/validate", ctl.Nfc.Validate)
			nfc.POST("/pair", ctl.Nfc.Pair)
			nfc.DELETE("/:serial/claim", ctl.Nfc.Release)
		}
	}

	return r
}
