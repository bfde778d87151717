package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chonibe/coa-service-sub020/internal/model"
	"github.com/chonibe/coa-service-sub020/internal/repository"
	"github.com/chonibe/coa-service-sub020/pkg/metrics"
)

// ==================== 测试辅助 ====================

var testBase = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}

	// :memory: 每个连接是独立的库；单连接同时让并发事务串行执行
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}
	return db
}

type testServices struct {
	db        *gorm.DB
	uow       *repository.UnitOfWork
	metrics   *metrics.Registry
	editions  *EditionService
	reconcile *ReconcileService
	nfc       *NfcService
	orders    *OrderService
}

func newTestServices(t *testing.T) *testServices {
	db := setupServiceTestDB(t)
	uow := repository.NewUnitOfWork(db)
	m := metrics.NewRegistry()
	log := zap.NewNop()

	editions := NewEditionService(uow, false, m, log)
	return &testServices{
		db:        db,
		uow:       uow,
		metrics:   m,
		editions:  editions,
		reconcile: NewReconcileService(uow, m, log),
		nfc:       NewNfcService(uow, m, log),
		orders:    NewOrderService(uow, editions, log),
	}
}

func intPtr(v int) *int { return &v }

func seedProduct(t *testing.T, db *gorm.DB, productID string, editionSize *int) {
	t.Helper()
	require.NoError(t, db.Create(&model.Product{
		ProductID:   productID,
		Title:       "Artwork " + productID,
		VendorName:  "Studio North",
		EditionSize: editionSize,
	}).Error)
}

func seedOrder(t *testing.T, db *gorm.DB, order model.Order) *model.Order {
	t.Helper()
	if order.FinancialStatus == "" {
		order.FinancialStatus = model.FinancialPaid
	}
	if order.FulfillmentStatus == "" {
		order.FulfillmentStatus = model.FulfillmentUnfulfilled
	}
	require.NoError(t, db.Create(&order).Error)
	return &order
}

func seedLineItem(t *testing.T, db *gorm.DB, id, orderRef, productRef string, createdAt time.Time) *model.LineItem {
	t.Helper()
	item := &model.LineItem{
		LineItemID: id,
		OrderRef:   orderRef,
		ProductRef: productRef,
		Quantity:   1,
		Status:     model.LineItemActive,
		CreatedAt:  createdAt,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func loadLineItem(t *testing.T, db *gorm.DB, id string) *model.LineItem {
	t.Helper()
	var item model.LineItem
	require.NoError(t, db.Where("line_item_id = ?", id).First(&item).Error)
	return &item
}

func editionOf(t *testing.T, db *gorm.DB, id string) *int {
	t.Helper()
	return loadLineItem(t, db, id).EditionNumber
}
