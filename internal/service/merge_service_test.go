package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/adapters/memory"
	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_CombinesOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.createLattes(t, "T1")
	f.clock.Advance(time.Minute)
	second := f.createMuffins(t, "T2")

	res, err := f.merges.Commit(ctx, MergeInput{OrderIDs: []string{second.ID, first.ID}, Actor: "waiter-1"})
	require.NoError(t, err)

	merged := res.Order
	assert.Equal(t, first.ID, merged.ID, "the oldest order survives")
	assert.True(t, dec("350").Equal(merged.Subtotal))
	assert.True(t, dec("35").Equal(merged.Tax))
	assert.True(t, dec("385").Equal(merged.Total))
	assert.True(t, merged.IsMerged)
	assert.Equal(t, []string{first.OrderNumber, second.OrderNumber}, merged.OriginalOrderIDs)
	assert.Equal(t, 4, merged.ItemCount())

	require.Len(t, res.MergedOrders, 1)
	src, err := f.orders.GetOrder(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, core.OrderStatusMerged, src.Status)
	assert.Equal(t, first.ID, src.MergedInto)

	assert.Equal(t, core.TableStatusAvailable, f.table(t, "T2").Status)
	assert.Equal(t, []string{first.ID}, f.table(t, "T1").CurrentOrders)

	allDay := f.row(t, core.BucketAllDay)
	assert.Equal(t, int64(1), allDay.TotalOrders)
	assert.Equal(t, int64(4), allDay.ItemsSold)
	assert.Equal(t, 1, f.events.count(core.EventOrderMerged))

	paid := f.pay(t, merged, "cash-merge")
	assert.True(t, dec("385").Equal(paid.AmountPaid))
	assert.True(t, dec("385").Equal(f.row(t, core.BucketAllDay).TotalRevenue))
}

func TestMerge_PreviewMatchesCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.createLattes(t, "T1")
	f.clock.Advance(time.Minute)
	second := f.createMuffins(t, "T1")
	in := MergeInput{OrderIDs: []string{first.ID, second.ID}}

	preview, err := f.merges.Preview(ctx, in)
	require.NoError(t, err)

	stored, err := f.orders.GetOrder(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, core.OrderStatusCreated, stored.Status, "preview writes nothing")

	committed, err := f.merges.Commit(ctx, in)
	require.NoError(t, err)
	assert.True(t, preview.Order.Total.Equal(committed.Order.Total))
	assert.Equal(t, preview.Order.ItemCount(), committed.Order.ItemCount())
	assert.Equal(t, preview.Order.OriginalOrderIDs, committed.Order.OriginalOrderIDs)
	assert.Equal(t, core.TableStatusOccupied, f.table(t, "T1").Status)
}

func TestMerge_DropsCoupons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.createLattes(t, "T1")
	first, err := f.orders.ApplyCoupon(ctx, first.ID, "TENPCT", 0, "waiter-1")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second := f.createMuffins(t, "T2")

	res, err := f.merges.Commit(ctx, MergeInput{OrderIDs: []string{first.ID, second.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{"TENPCT"}, res.DroppedCoupons)
	assert.Empty(t, res.Order.CouponCode)
	assert.True(t, res.Order.Discount.IsZero())
	assert.True(t, dec("385").Equal(res.Order.Total))
}

func TestMerge_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	open := f.createLattes(t, "T1")
	paid := f.pay(t, f.createMuffins(t, "T2"), "cash-1")
	cancelled := f.createMuffins(t, "T3")
	_, err := f.orders.Cancel(ctx, cancelled.ID, "", 0, "waiter-1")
	require.NoError(t, err)

	_, err = f.merges.Commit(ctx, MergeInput{OrderIDs: []string{open.ID, paid.ID}})
	var me *core.MergeError
	require.ErrorAs(t, err, &me)
	assert.ErrorIs(t, err, core.ErrCannotMergePaidOrder)
	assert.Equal(t, paid.ID, me.OrderID)

	_, err = f.merges.Commit(ctx, MergeInput{OrderIDs: []string{open.ID, cancelled.ID}})
	assert.ErrorIs(t, err, core.ErrInvalidOrderState)

	_, err = f.merges.Commit(ctx, MergeInput{OrderIDs: []string{open.ID, open.ID, " "}})
	assert.ErrorIs(t, err, core.ErrInsufficientOrders)

	_, err = f.merges.Preview(ctx, MergeInput{OrderIDs: []string{open.ID}})
	assert.ErrorIs(t, err, core.ErrInsufficientOrders)

	_, err = f.merges.Commit(ctx, MergeInput{OrderIDs: []string{open.ID, "ghost"}})
	require.ErrorAs(t, err, &me)
	assert.ErrorIs(t, err, core.ErrOrderNotFound)
	assert.Equal(t, "ghost", me.OrderID)

	stored, err := f.orders.GetOrder(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, open.Version, stored.Version)
	assert.False(t, stored.IsMerged)
}

func TestMerge_IsAtomic(t *testing.T) {
	boom := errors.New("connection reset")
	var failTable string
	f := newFixtureWithStore(t, func(s *memory.Store) core.Store {
		return &faultyStore{Store: s, failTableUpdate: func(tb *core.Table) error {
			if tb.ID == failTable {
				return boom
			}
			return nil
		}}
	})
	ctx := context.Background()
	first := f.createLattes(t, "T1")
	f.clock.Advance(time.Minute)
	second := f.createMuffins(t, "T2")
	before := f.row(t, core.BucketAllDay)
	f.events.reset()

	failTable = "T2"
	_, err := f.merges.Commit(ctx, MergeInput{OrderIDs: []string{first.ID, second.ID}})
	require.ErrorIs(t, err, boom)

	for _, o := range []*core.Order{first, second} {
		stored, err := f.orders.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, core.OrderStatusCreated, stored.Status)
		assert.Equal(t, o.Version, stored.Version)
	}
	assert.Equal(t, []string{second.ID}, f.table(t, "T2").CurrentOrders)
	assert.Equal(t, before, f.row(t, core.BucketAllDay))
	assert.Empty(t, f.events.names())
}

func TestMerge_MovesToTargetTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.createLattes(t, "T1")
	f.clock.Advance(time.Minute)
	second := f.createMuffins(t, "T2")

	_, err := f.merges.Preview(ctx, MergeInput{OrderIDs: []string{first.ID, second.ID}, TargetTableID: "T9"})
	assert.ErrorIs(t, err, core.ErrTableNotFound)

	res, err := f.merges.Commit(ctx, MergeInput{OrderIDs: []string{first.ID, second.ID}, TargetTableID: "T3"})
	require.NoError(t, err)
	assert.Equal(t, "T3", res.Order.TableID)

	assert.Equal(t, core.TableStatusAvailable, f.table(t, "T1").Status)
	assert.Equal(t, core.TableStatusAvailable, f.table(t, "T2").Status)
	t3 := f.table(t, "T3")
	assert.Equal(t, core.TableStatusOccupied, t3.Status)
	assert.Equal(t, []string{first.ID}, t3.CurrentOrders)
}

func TestMerge_CancelledContext(t *testing.T) {
	f := newFixture(t)
	first := f.createLattes(t, "T1")
	second := f.createMuffins(t, "T2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.merges.Commit(ctx, MergeInput{OrderIDs: []string{first.ID, second.ID}})
	assert.ErrorIs(t, err, context.Canceled)

	stored, err := f.orders.GetOrder(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, core.OrderStatusCreated, stored.Status)
}

func TestMerge_LockOrder(t *testing.T) {
	var fs *faultyStore
	f := newFixtureWithStore(t, func(s *memory.Store) core.Store {
		fs = &faultyStore{Store: s}
		return fs
	})
	ctx := context.Background()
	first := f.createLattes(t, "T1")
	f.clock.Advance(time.Minute)
	second := f.createMuffins(t, "T2")

	ids := []string{first.ID, second.ID}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	fs.trace = nil

	_, err := f.merges.Commit(ctx, MergeInput{OrderIDs: ids, TargetTableID: "T3"})
	require.NoError(t, err)

	var orderLocks []string
	lastTable, firstStats := -1, -1
	for i, step := range fs.trace {
		switch {
		case strings.HasPrefix(step, "order:"):
			orderLocks = append(orderLocks, strings.TrimPrefix(step, "order:"))
		case strings.HasPrefix(step, "table:"):
			lastTable = i
		case strings.HasPrefix(step, "stats:") && firstStats < 0:
			firstStats = i
		}
	}
	assert.True(t, sort.StringsAreSorted(orderLocks), "orders are locked in id order: %v", orderLocks)
	require.GreaterOrEqual(t, lastTable, 0)
	require.GreaterOrEqual(t, firstStats, 0)
	assert.Less(t, lastTable, firstStats, "tables are locked before stats rows: %v", fs.trace)
}

func TestMerge_RejectsOrdersFromAnotherBranch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	local := f.createLattes(t, "T1")

	foreign := local.Clone()
	foreign.ID = "order-other-branch"
	foreign.OrderNumber = "OTHER-1"
	foreign.BranchID = "other"
	foreign.TableID = ""
	require.NoError(t, f.store.Orders().Create(ctx, foreign))
	before := f.row(t, core.BucketAllDay)

	_, err := f.merges.Preview(ctx, MergeInput{OrderIDs: []string{local.ID, foreign.ID}})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = f.merges.Commit(ctx, MergeInput{OrderIDs: []string{local.ID, foreign.ID}})
	var me *core.MergeError
	require.ErrorAs(t, err, &me)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	stored, err := f.orders.GetOrder(ctx, local.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsMerged)
	assert.Equal(t, []string{local.ID}, f.table(t, "T1").CurrentOrders)
	assert.Equal(t, before, f.row(t, core.BucketAllDay))
}

func TestMerge_PreviewChecksTargetTableLikeCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Tables().Create(ctx, &core.Table{
		ID: "X1", BranchID: "other", Number: "X1", Capacity: 4, Status: core.TableStatusAvailable,
	}))
	require.NoError(t, f.store.Tables().Create(ctx, &core.Table{
		ID: "M1", BranchID: testBranch, Number: "M1", Capacity: 4, Status: core.TableStatusMaintenance,
	}))
	first := f.createLattes(t, "T1")
	f.clock.Advance(time.Minute)
	second := f.createMuffins(t, "T2")
	ids := []string{first.ID, second.ID}

	tests := []struct {
		table string
		want  error
	}{
		{"X1", core.ErrInvalidInput},
		{"M1", core.ErrTableUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			_, err := f.merges.Preview(ctx, MergeInput{OrderIDs: ids, TargetTableID: tt.table})
			assert.ErrorIs(t, err, tt.want)

			_, err = f.merges.Commit(ctx, MergeInput{OrderIDs: ids, TargetTableID: tt.table})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	stored, err := f.orders.GetOrder(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, core.OrderStatusCreated, stored.Status)
}
