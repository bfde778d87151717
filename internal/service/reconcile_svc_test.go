package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/chonibe/coa-service-sub020/internal/model"
	"github.com/chonibe/coa-service-sub020/pkg/errs"
)

func loadOrder(t *testing.T, s *testServices, orderID string) *model.Order {
	t.Helper()
	var order model.Order
	require.NoError(t, s.db.Where("order_id = ?", orderID).First(&order).Error)
	return &order
}

func TestReconcileService_RawPayloadWinsOverWarehouse(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	seedOrder(t, s.db, model.Order{
		OrderID:    "O1",
		OrderName:  "#1001",
		RawPayload: datatypes.JSON(`{"customer":{"email":" Jane@Example.com ","first_name":"Jane","last_name":"Doe"}}`),
	})
	seedLineItem(t, s.db, "L1", "O1", "P1", testBase)
	require.NoError(t, s.db.Create(&model.WarehouseOrder{OrderRef: "O1", ShipEmail: "other@example.com"}).Error)

	res, err := s.reconcile.ReconcileIdentity(ctx, "O1")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.False(t, res.AlreadyEnriched)
	assert.Equal(t, model.SourceRawPayload, res.Source)
	assert.Equal(t, "jane@example.com", res.Fields.Email)
	assert.Equal(t, "Jane Doe", res.Fields.Name)

	order := loadOrder(t, s, "O1")
	assert.Equal(t, "jane@example.com", order.CustomerEmail)
	assert.Equal(t, model.SourceRawPayload, order.EmailSource)
	assert.Equal(t, "Jane Doe", order.CustomerName)

	item := loadLineItem(t, s.db, "L1")
	assert.Equal(t, "jane@example.com", item.OwnerEmail)
	assert.Equal(t, model.SourceRawPayload, item.OwnerSource)

	profile, err := s.reconcile.GetCollectorProfile(ctx, "JANE@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", profile.DisplayName)
	assert.Equal(t, "O1", profile.LastOrderRef)
}

func TestReconcileService_PayloadEmailPaths(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		email   string
	}{
		{"top level", `{"email":"a@x.io"}`, "a@x.io"},
		{"contact", `{"contact_email":"b@x.io"}`, "b@x.io"},
		{"billing", `{"billing_address":{"email":"c@x.io","name":"C"}}`, "c@x.io"},
		{"shipping", `{"shipping_address":{"email":"d@x.io"}}`, "d@x.io"},
		{"first wins", `{"email":"e@x.io","customer":{"email":"f@x.io"}}`, "e@x.io"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServices(t)
			seedOrder(t, s.db, model.Order{OrderID: "O1", RawPayload: datatypes.JSON(tt.payload)})

			res, err := s.reconcile.ReconcileIdentity(context.Background(), "O1")
			require.NoError(t, err)
			require.True(t, res.Matched)
			assert.Equal(t, tt.email, res.Fields.Email)
		})
	}
}

func TestReconcileService_WarehouseByOrderName(t *testing.T) {
	s := newTestServices(t)
	seedOrder(t, s.db, model.Order{OrderID: "O1", OrderName: "#1001", RawPayload: datatypes.JSON(`{"note":"gift"}`)})
	require.NoError(t, s.db.Create(&model.WarehouseOrder{OrderRef: "#1001", ShipEmail: "Ship@Example.com", ShipName: "Sam Ship"}).Error)

	res, err := s.reconcile.ReconcileIdentity(context.Background(), "O1")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, model.SourceWarehouse, res.Source)
	assert.Equal(t, "ship@example.com", loadOrder(t, s, "O1").CustomerEmail)
}

func TestReconcileService_CRM(t *testing.T) {
	t.Run("by customer ref", func(t *testing.T) {
		s := newTestServices(t)
		seedOrder(t, s.db, model.Order{OrderID: "O1", CustomerID: "C-9"})
		require.NoError(t, s.db.Create(&model.CrmContact{CustomerRef: "C-9", Email: "crm@example.com", FirstName: "Cara"}).Error)

		res, err := s.reconcile.ReconcileIdentity(context.Background(), "O1")
		require.NoError(t, err)
		assert.True(t, res.Matched)
		assert.Equal(t, model.SourceCRM, res.Source)
		assert.Equal(t, "crm@example.com", res.Fields.Email)
	})

	t.Run("by unique name", func(t *testing.T) {
		s := newTestServices(t)
		seedOrder(t, s.db, model.Order{OrderID: "O1", CustomerName: "  ada LOVELACE "})
		require.NoError(t, s.db.Create(&model.CrmContact{Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace"}).Error)

		res, err := s.reconcile.ReconcileIdentity(context.Background(), "O1")
		require.NoError(t, err)
		assert.True(t, res.Matched)
		assert.Equal(t, "ada@example.com", res.Fields.Email)
	})

	t.Run("ambiguous name", func(t *testing.T) {
		s := newTestServices(t)
		seedOrder(t, s.db, model.Order{OrderID: "O1", CustomerName: "Ada Lovelace"})
		require.NoError(t, s.db.Create(&model.CrmContact{Email: "ada1@example.com", FirstName: "Ada", LastName: "Lovelace"}).Error)
		require.NoError(t, s.db.Create(&model.CrmContact{Email: "ada2@example.com", FirstName: "ada", LastName: "lovelace"}).Error)

		res, err := s.reconcile.ReconcileIdentity(context.Background(), "O1")
		require.NoError(t, err)
		assert.False(t, res.Matched)
		assert.Empty(t, loadOrder(t, s, "O1").CustomerEmail)
	})
}

func TestReconcileService_NoMatch(t *testing.T) {
	s := newTestServices(t)
	seedOrder(t, s.db, model.Order{OrderID: "O1"})
	seedLineItem(t, s.db, "L1", "O1", "P1", testBase)

	res, err := s.reconcile.ReconcileIdentity(context.Background(), "O1")
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Nil(t, res.Fields)
	assert.Empty(t, loadLineItem(t, s.db, "L1").OwnerEmail)
}

func TestReconcileService_AlreadyEnriched(t *testing.T) {
	s := newTestServices(t)
	seedOrder(t, s.db, model.Order{
		OrderID:       "O1",
		CustomerEmail: "kept@example.com",
		EmailSource:   model.SourceWarehouse,
		RawPayload:    datatypes.JSON(`{"email":"new@example.com"}`),
	})

	res, err := s.reconcile.ReconcileIdentity(context.Background(), "O1")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.True(t, res.AlreadyEnriched)
	assert.Equal(t, model.SourceWarehouse, res.Source)
	assert.Equal(t, "kept@example.com", loadOrder(t, s, "O1").CustomerEmail)
}

func TestReconcileService_LineItemRefAndRepeat(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seedOrder(t, s.db, model.Order{OrderID: "O1", RawPayload: datatypes.JSON(`{"email":"li@example.com"}`)})
	seedLineItem(t, s.db, "L1", "O1", "P1", testBase)

	res, err := s.reconcile.ReconcileIdentity(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, "O1", res.OrderID)
	assert.True(t, res.Matched)

	// 重复执行不改变结果
	again, err := s.reconcile.ReconcileIdentity(ctx, "L1")
	require.NoError(t, err)
	assert.True(t, again.AlreadyEnriched)
	assert.Equal(t, model.SourceRawPayload, again.Source)
	assert.Equal(t, "li@example.com", loadLineItem(t, s.db, "L1").OwnerEmail)
}

func TestReconcileService_Errors(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	_, err := s.reconcile.ReconcileIdentity(ctx, "")
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.reconcile.ReconcileIdentity(ctx, "nope")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = s.reconcile.GetCollectorProfile(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = s.reconcile.ReconcilePending(ctx, 0)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestReconcileService_ReconcilePending(t *testing.T) {
	s := newTestServices(t)
	seedOrder(t, s.db, model.Order{OrderID: "O1", RawPayload: datatypes.JSON(`{"email":"one@example.com"}`)})
	seedOrder(t, s.db, model.Order{OrderID: "O2", OrderName: "#2"})
	seedOrder(t, s.db, model.Order{OrderID: "O3"})
	seedOrder(t, s.db, model.Order{OrderID: "O4", CustomerEmail: "done@example.com"})
	require.NoError(t, s.db.Create(&model.WarehouseOrder{OrderRef: "#2", ShipEmail: "two@example.com"}).Error)

	sweep, err := s.reconcile.ReconcilePending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 3, sweep.Scanned)
	assert.Equal(t, 2, sweep.Matched)
	assert.Equal(t, 0, sweep.Failed)
	assert.Equal(t, 1, sweep.BySource[model.SourceRawPayload])
	assert.Equal(t, 1, sweep.BySource[model.SourceWarehouse])
}

func TestReconcileService_ReconcilePendingRotatesUnmatchable(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	clock := testBase
	s.reconcile.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	// 三个永远无法匹配的旧订单，占满一个批次
	for _, id := range []string{"OLD1", "OLD2", "OLD3"} {
		seedOrder(t, s.db, model.Order{OrderID: id})
	}
	seedOrder(t, s.db, model.Order{OrderID: "NEW", RawPayload: datatypes.JSON(`{"email":"new@example.com"}`)})

	first, err := s.reconcile.ReconcilePending(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Scanned)
	assert.Equal(t, 0, first.Matched)
	assert.Empty(t, loadOrder(t, s, "NEW").CustomerEmail)

	second, err := s.reconcile.ReconcilePending(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Matched)
	assert.Equal(t, "new@example.com", loadOrder(t, s, "NEW").CustomerEmail)

	// OLD3 上一轮没有排进批次，这一轮最先被重试
	third, err := s.reconcile.ReconcilePending(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Scanned)
	require.NotNil(t, loadOrder(t, s, "OLD3").ReconcileAttemptedAt)
	assert.True(t, loadOrder(t, s, "OLD3").ReconcileAttemptedAt.After(*loadOrder(t, s, "OLD1").ReconcileAttemptedAt))
}

func TestReconcileService_ReconcilePendingSingleRun(t *testing.T) {
	s := newTestServices(t)
	seedOrder(t, s.db, model.Order{OrderID: "O1"})

	s.reconcile.sweeping.Store(true)
	_, err := s.reconcile.ReconcilePending(context.Background(), 10)
	assert.ErrorIs(t, err, errs.ErrConflict)
	assert.Nil(t, loadOrder(t, s, "O1").ReconcileAttemptedAt)

	s.reconcile.sweeping.Store(false)
	sweep, err := s.reconcile.ReconcilePending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sweep.Scanned)
}

func TestReconcileService_AlreadyEnrichedFillsLineItemOwner(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seedOrder(t, s.db, model.Order{
		OrderID:       "O1",
		CustomerEmail: "jane@example.com",
		CustomerName:  "Jane Doe",
		EmailSource:   model.SourceWarehouse,
	})
	seedLineItem(t, s.db, "L1", "O1", "P1", testBase)

	res, err := s.reconcile.ReconcileIdentity(ctx, "L1")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.True(t, res.AlreadyEnriched)
	assert.Equal(t, model.SourceWarehouse, res.Source)

	item := loadLineItem(t, s.db, "L1")
	assert.Equal(t, "jane@example.com", item.OwnerEmail)
	assert.Equal(t, "Jane Doe", item.OwnerName)
	assert.Equal(t, model.SourceWarehouse, item.OwnerSource)

	profile, err := s.reconcile.GetCollectorProfile(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "O1", profile.LastOrderRef)
}
