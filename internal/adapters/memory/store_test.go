package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func TestOrderRepo_VersionCheckedUpdate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	o := &core.Order{ID: "o1", BranchID: "main", Status: core.OrderStatusCreated, CreatedAt: now}
	require.NoError(t, s.Orders().Create(ctx, o))
	assert.Equal(t, int64(1), o.Version)

	a, err := s.Orders().GetByID(ctx, "o1")
	require.NoError(t, err)
	b, err := s.Orders().GetByID(ctx, "o1")
	require.NoError(t, err)

	a.Status = core.OrderStatusConfirmed
	require.NoError(t, s.Orders().Update(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	b.Status = core.OrderStatusCancelled
	assert.ErrorIs(t, s.Orders().Update(ctx, b), core.ErrVersionConflict)

	got, err := s.Orders().GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, core.OrderStatusConfirmed, got.Status)
}

func TestOrderRepo_ReturnsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Orders().Create(ctx, &core.Order{ID: "o1", Items: []core.OrderItem{{ID: "i1", Quantity: 1}}}))

	got, _ := s.Orders().GetByID(ctx, "o1")
	got.Items[0].Quantity = 99

	again, _ := s.Orders().GetByID(ctx, "o1")
	assert.Equal(t, 1, again.Items[0].Quantity)

	_, err := s.Orders().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrOrderNotFound)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Tables().Create(ctx, &core.Table{ID: "t1", Status: core.TableStatusAvailable}))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(r core.Repositories) error {
		require.NoError(t, r.Orders().Create(ctx, &core.Order{ID: "o1"}))
		tbl, err := r.Tables().GetForUpdate(ctx, "t1")
		require.NoError(t, err)
		tbl.AttachOrder("o1")
		require.NoError(t, r.Tables().Update(ctx, tbl))
		_, err = r.Stats().ApplyDelta(ctx, core.StatsKey{BranchID: "main", Date: "2026-03-01", Bucket: core.BucketAllDay}, core.StatsDelta{Orders: 1}, now)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Orders().GetByID(ctx, "o1")
	assert.ErrorIs(t, err, core.ErrOrderNotFound)
	tbl, _ := s.Tables().GetByID(ctx, "t1")
	assert.Empty(t, tbl.CurrentOrders)
	assert.Equal(t, int64(1), tbl.Version)
	rows, _ := s.Stats().ListByDate(ctx, "2026-03-01")
	assert.Empty(t, rows)
}

func TestWithTx_AbortsOnExpiredContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithTx(ctx, func(r core.Repositories) error {
		require.NoError(t, r.Orders().Create(ctx, &core.Order{ID: "o1"}))
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.Orders().GetByID(context.Background(), "o1")
	assert.ErrorIs(t, err, core.ErrOrderNotFound)
}

func TestStatsRepo_SeedsFromLedger(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Orders().Create(ctx, &core.Order{
		ID: "paid", BranchID: "main", StatsDate: "2026-03-01", StatsBucket: core.BucketMorning,
		StatsOrderCounted: true, StatsItemsCounted: 3, StatsRevenueCounted: decimal.NewFromInt(300),
	}))
	require.NoError(t, s.Orders().Create(ctx, &core.Order{
		ID: "evening", BranchID: "main", StatsDate: "2026-03-01", StatsBucket: core.BucketEvening,
		StatsOrderCounted: true, StatsItemsCounted: 1,
	}))

	morning := core.StatsKey{BranchID: "main", Date: "2026-03-01", Bucket: core.BucketMorning}
	row, err := s.Stats().ApplyDelta(ctx, morning, core.StatsDelta{Orders: 1, Items: 2}, now)
	require.NoError(t, err)

	assert.Equal(t, int64(2), row.Aggregates.TotalOrders)
	assert.Equal(t, int64(5), row.Aggregates.ItemsSold)
	assert.Equal(t, "300", row.Aggregates.TotalRevenue.String())
	assert.Equal(t, "150", row.Aggregates.AverageOrderValue.String())
	assert.Equal(t, int64(1), row.Delta.Applications)

	all, err := s.Stats().Aggregate(ctx, core.StatsKey{BranchID: "main", Date: "2026-03-01", Bucket: core.BucketAllDay})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.TotalOrders)
	assert.Equal(t, int64(4), all.ItemsSold)

	_, err = s.Stats().Get(ctx, core.StatsKey{BranchID: "main", Date: "2026-03-02", Bucket: core.BucketAllDay})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStatsRepo_ListRange(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for _, d := range []string{"2026-02-27", "2026-02-28", "2026-03-01", "2026-03-02"} {
		_, err := s.Stats().ApplyDelta(ctx, core.StatsKey{BranchID: "main", Date: d, Bucket: core.BucketAllDay}, core.StatsDelta{Orders: 1}, now)
		require.NoError(t, err)
	}

	rows, err := s.Stats().ListRange(ctx, "main", core.BucketAllDay, "2026-02-28", "2026-03-01")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2026-02-28", rows[0].Key.Date)
	assert.Equal(t, "2026-03-01", rows[1].Key.Date)
}
