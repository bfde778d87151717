package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chonibe/coa-service-sub020/internal/model"
	"github.com/chonibe/coa-service-sub020/pkg/errs"
)

func loadTag(t *testing.T, s *testServices, serial string) *model.NfcTag {
	t.Helper()
	var tag model.NfcTag
	require.NoError(t, s.db.Where("serial_number = ?", serial).First(&tag).Error)
	return &tag
}

func seedPairable(t *testing.T, s *testServices, lineItemIDs ...string) {
	t.Helper()
	seedProduct(t, s.db, "P1", intPtr(50))
	seedOrder(t, s.db, model.Order{OrderID: "O1", CustomerName: "Jane Doe"})
	for _, id := range lineItemIDs {
		seedLineItem(t, s.db, id, "O1", "P1", testBase)
	}
}

func TestNfcService_PairScenario(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seedPairable(t, s, "LI-42")
	require.NoError(t, s.db.Create(&model.NfcTag{SerialNumber: "TAG-001", Status: model.NfcTagUnpaired}).Error)

	v, err := s.nfc.ValidateTag(ctx, " TAG-001 ")
	require.NoError(t, err)
	assert.Equal(t, TagStateAvailable, v.State)

	res, err := s.nfc.PairTag(ctx, "TAG-001", "LI-42")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Conflict)

	v, err = s.nfc.ValidateTag(ctx, "TAG-001")
	require.NoError(t, err)
	assert.Equal(t, TagStateAlreadyPaired, v.State)
	assert.Equal(t, res.TagID, v.TagID)

	tag := loadTag(t, s, "TAG-001")
	item := loadLineItem(t, s.db, "LI-42")
	require.NotNil(t, tag.LineItemRef)
	require.NotNil(t, item.NfcTagID)
	assert.Equal(t, item.ID, *tag.LineItemRef)
	assert.Equal(t, tag.ID, *item.NfcTagID)
	assert.NotNil(t, tag.ClaimedAt)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.NfcPair.WithLabelValues("success")))
}

func TestNfcService_ValidateNewTag(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seedPairable(t, s, "L1")

	v, err := s.nfc.ValidateTag(ctx, "04:A2:3B")
	require.NoError(t, err)
	assert.Equal(t, TagStateNew, v.State)
	assert.Zero(t, v.TagID)

	// 首次绑定时自动建档
	res, err := s.nfc.PairTag(ctx, "04:A2:3B", "L1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, model.NfcTagClaimed, loadTag(t, s, "04:A2:3B").Status)
}

func TestNfcService_PairConflicts(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seedPairable(t, s, "L1", "L2")

	_, err := s.nfc.PairTag(ctx, "TAG-A", "L1")
	require.NoError(t, err)

	t.Run("tag already paired", func(t *testing.T) {
		res, err := s.nfc.PairTag(ctx, "TAG-A", "L2")
		assert.ErrorIs(t, err, errs.ErrConflict)
		require.NotNil(t, res)
		assert.True(t, res.Conflict)
		assert.False(t, res.Success)
		assert.Nil(t, loadLineItem(t, s.db, "L2").NfcTagID)
	})

	t.Run("line item already paired", func(t *testing.T) {
		_, err := s.nfc.PairTag(ctx, "TAG-B", "L1")
		assert.ErrorIs(t, err, errs.ErrConflict)

		// 回滚后 TAG-B 仍可用
		tag := loadTag(t, s, "TAG-B")
		assert.Equal(t, model.NfcTagUnpaired, tag.Status)
		assert.Nil(t, tag.LineItemRef)
	})

	t.Run("inactive line item", func(t *testing.T) {
		require.NoError(t, s.db.Model(&model.LineItem{}).Where("line_item_id = ?", "L2").
			Update("status", model.LineItemRemoved).Error)
		_, err := s.nfc.PairTag(ctx, "TAG-C", "L2")
		assert.ErrorIs(t, err, errs.ErrConflict)
	})

	assert.Equal(t, float64(3), testutil.ToFloat64(s.metrics.NfcPair.WithLabelValues("conflict")))
}

func TestNfcService_PairRace(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seedPairable(t, s, "L1", "L2")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, li := range []string{"L1", "L2"} {
		wg.Add(1)
		go func(lineItemID string) {
			defer wg.Done()
			_, err := s.nfc.PairTag(ctx, "TAG-RACE", lineItemID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, errs.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(li)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	var paired int64
	require.NoError(t, s.db.Model(&model.LineItem{}).Where("nfc_tag_id IS NOT NULL").Count(&paired).Error)
	assert.Equal(t, int64(1), paired)
}

func TestNfcService_PairValidation(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	_, err := s.nfc.PairTag(ctx, "", "L1")
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.nfc.PairTag(ctx, "bad serial!", "L1")
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.nfc.PairTag(ctx, "TAG-1", "")
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.nfc.PairTag(ctx, "TAG-1", "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	// 校验失败不落库
	var count int64
	s.db.Model(&model.NfcTag{}).Count(&count)
	assert.Zero(t, count)
}

func TestNfcService_VerifyTag(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seedPairable(t, s, "L1")

	_, err := s.nfc.VerifyTag(ctx, "TAG-X")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, s.db.Create(&model.NfcTag{SerialNumber: "TAG-X", Status: model.NfcTagUnpaired}).Error)
	v, err := s.nfc.VerifyTag(ctx, "TAG-X")
	require.NoError(t, err)
	assert.False(t, v.Claimed)
	assert.Nil(t, v.Certificate)

	_, err = s.editions.AssignEditions(ctx, "P1")
	require.NoError(t, err)
	require.NoError(t, s.db.Model(&model.LineItem{}).Where("line_item_id = ?", "L1").Update("owner_name", "Jane Doe").Error)
	_, err = s.nfc.PairTag(ctx, "TAG-X", "L1")
	require.NoError(t, err)

	v, err = s.nfc.VerifyTag(ctx, "TAG-X")
	require.NoError(t, err)
	assert.True(t, v.Claimed)
	require.NotNil(t, v.Certificate)
	assert.Equal(t, "L1", v.Certificate.LineItemID)
	assert.Equal(t, "O1", v.Certificate.OrderID)
	assert.Equal(t, "P1", v.Certificate.ProductID)
	assert.Equal(t, "Artwork P1", v.Certificate.ProductTitle)
	assert.Equal(t, "Studio North", v.Certificate.VendorName)
	assert.Equal(t, 1, *v.Certificate.EditionNumber)
	assert.Equal(t, 50, *v.Certificate.EditionTotal)
	assert.Equal(t, "Jane Doe", v.Certificate.OwnerName)
	assert.NotNil(t, v.Certificate.ClaimedAt)
}

func TestNfcService_ReleaseTag(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seedPairable(t, s, "L1")

	assert.ErrorIs(t, s.nfc.ReleaseTag(ctx, "TAG-R", 1), errs.ErrNotFound)

	_, err := s.nfc.PairTag(ctx, "TAG-R", "L1")
	require.NoError(t, err)

	require.NoError(t, s.nfc.ReleaseTag(ctx, "TAG-R", 7))

	tag := loadTag(t, s, "TAG-R")
	assert.Equal(t, model.NfcTagUnpaired, tag.Status)
	assert.Nil(t, tag.LineItemRef)
	assert.Equal(t, int64(7), tag.ReleasedBy)
	assert.NotNil(t, tag.ReleasedAt)
	assert.Nil(t, loadLineItem(t, s.db, "L1").NfcTagID)

	assert.ErrorIs(t, s.nfc.ReleaseTag(ctx, "TAG-R", 7), errs.ErrConflict)

	// 解绑后可重新绑定
	res, err := s.nfc.PairTag(ctx, "TAG-R", "L1")
	require.NoError(t, err)
	assert.True(t, res.Success)
}
