package lifecycle

import (
	"testing"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func item(catalogID string, qty int, price string) core.OrderItem {
	return core.OrderItem{
		ID:            catalogID + "-line",
		CatalogItemID: catalogID,
		Name:          catalogID,
		Quantity:      qty,
		UnitPrice:     decimal.RequireFromString(price),
		Status:        core.ItemStatusPending,
	}
}

func order(id, number, table string, created time.Time, items ...core.OrderItem) *core.Order {
	return &core.Order{
		ID:            id,
		OrderNumber:   number,
		TableID:       table,
		Items:         items,
		Status:        core.OrderStatusConfirmed,
		PaymentStatus: core.PaymentStatusUnpaid,
		CreatedAt:     created,
	}
}

func TestCombine_UnionsItemsAndRecomputesTotals(t *testing.T) {
	first := order("a", "MAIN-1", "t1", base, item("A", 2, "100"), item("B", 1, "50"))
	second := order("b", "MAIN-2", "t1", base.Add(time.Minute), item("A", 1, "100"), item("C", 3, "20"))

	plan, err := Combine([]*core.Order{second, first}, base.Add(time.Hour), "mgr", "")
	require.NoError(t, err)

	assert.Equal(t, "a", plan.Target.ID)
	require.Len(t, plan.Target.Items, 3)
	assert.Equal(t, "A", plan.Target.Items[0].CatalogItemID)
	assert.Equal(t, 3, plan.Target.Items[0].Quantity)
	assert.Equal(t, "B", plan.Target.Items[1].CatalogItemID)
	assert.Equal(t, 1, plan.Target.Items[1].Quantity)
	assert.Equal(t, "C", plan.Target.Items[2].CatalogItemID)
	assert.Equal(t, 3, plan.Target.Items[2].Quantity)

	assert.Equal(t, "410.00", plan.Totals.Subtotal.StringFixed(2))
	assert.Equal(t, "41.00", plan.Totals.Tax.StringFixed(2))
	assert.Equal(t, "451.00", plan.Totals.Total.StringFixed(2))
	assert.True(t, plan.Target.Total.Equal(plan.Totals.Total))
}

func TestCombine_StampsTargetAndSources(t *testing.T) {
	at := base.Add(time.Hour)
	first := order("a", "MAIN-1", "t1", base, item("A", 1, "100"))
	second := order("b", "MAIN-2", "t2", base.Add(time.Minute), item("B", 1, "10"))

	plan, err := Combine([]*core.Order{first, second}, at, "mgr", "")
	require.NoError(t, err)

	assert.True(t, plan.Target.IsMerged)
	require.NotNil(t, plan.Target.MergedAt)
	assert.Equal(t, at, *plan.Target.MergedAt)
	assert.Equal(t, []string{"MAIN-1", "MAIN-2"}, plan.Target.OriginalOrderIDs)
	assert.Contains(t, plan.Target.MergeNote, "MAIN-1, MAIN-2")

	require.Len(t, plan.Sources, 1)
	src := plan.Sources[0]
	assert.Equal(t, core.OrderStatusMerged, src.Status)
	assert.Equal(t, "a", src.MergedInto)
	assert.Contains(t, src.Note, "MAIN-1")
	assert.Empty(t, plan.PreviousTableID)
}

func TestCombine_DoesNotModifyInputs(t *testing.T) {
	first := order("a", "MAIN-1", "t1", base, item("A", 1, "100"))
	second := order("b", "MAIN-2", "t1", base.Add(time.Minute), item("A", 4, "100"))

	_, err := Combine([]*core.Order{first, second}, base, "", "")
	require.NoError(t, err)

	assert.Equal(t, 1, first.Items[0].Quantity)
	assert.False(t, first.IsMerged)
	assert.Equal(t, core.OrderStatusConfirmed, second.Status)
	assert.Empty(t, second.StatusHistory)
}

func TestCombine_SamePriceOnlyMatches(t *testing.T) {
	first := order("a", "MAIN-1", "", base, item("A", 1, "100"))
	second := order("b", "MAIN-2", "", base.Add(time.Minute), item("A", 1, "120"))

	plan, err := Combine([]*core.Order{first, second}, base, "", "")
	require.NoError(t, err)

	assert.Len(t, plan.Target.Items, 2)
	assert.Equal(t, "220.00", plan.Totals.Subtotal.StringFixed(2))
}

func TestCombine_DropsCouponsAndMovesTable(t *testing.T) {
	first := order("a", "MAIN-1", "t1", base, item("A", 1, "100"))
	first.CouponCode = "TENOFF"
	first.Discount = decimal.NewFromInt(10)
	second := order("b", "MAIN-2", "t2", base.Add(time.Minute), item("B", 1, "10"))

	plan, err := Combine([]*core.Order{first, second}, base, "", "t9")
	require.NoError(t, err)

	assert.Empty(t, plan.Target.CouponCode)
	assert.True(t, plan.Target.Discount.IsZero())
	assert.Equal(t, []string{"TENOFF"}, plan.DroppedCoupons)
	assert.Contains(t, plan.Target.MergeNote, "coupons dropped: TENOFF")
	assert.Equal(t, "t9", plan.Target.TableID)
	assert.Equal(t, "t1", plan.PreviousTableID)
}

func TestCombine_TieBreaksOnID(t *testing.T) {
	x := order("x", "MAIN-X", "", base, item("A", 1, "1"))
	w := order("w", "MAIN-W", "", base, item("A", 1, "1"))

	plan, err := Combine([]*core.Order{x, w}, base, "", "")
	require.NoError(t, err)

	assert.Equal(t, "w", plan.Target.ID)
}

func TestCombine_Preconditions(t *testing.T) {
	ok := order("a", "MAIN-1", "", base, item("A", 1, "1"))

	t.Run("single order", func(t *testing.T) {
		_, err := Combine([]*core.Order{ok}, base, "", "")
		assert.ErrorIs(t, err, core.ErrInsufficientOrders)
	})

	t.Run("duplicate ids", func(t *testing.T) {
		_, err := Combine([]*core.Order{ok, ok.Clone()}, base, "", "")
		assert.ErrorIs(t, err, core.ErrInsufficientOrders)
	})

	t.Run("paid order", func(t *testing.T) {
		paid := order("p", "MAIN-P", "", base, item("A", 1, "1"))
		paid.Status = core.OrderStatusPaid
		paid.PaymentStatus = core.PaymentStatusPaid
		cancelled := order("c", "MAIN-C", "", base, item("A", 1, "1"))
		cancelled.Status = core.OrderStatusCancelled

		_, err := Combine([]*core.Order{ok, cancelled, paid}, base, "", "")
		assert.ErrorIs(t, err, core.ErrCannotMergePaidOrder)
	})

	t.Run("inactive order", func(t *testing.T) {
		merged := order("m", "MAIN-M", "", base, item("A", 1, "1"))
		merged.Status = core.OrderStatusMerged

		_, err := Combine([]*core.Order{ok, merged}, base, "", "")
		assert.ErrorIs(t, err, core.ErrInvalidOrderState)
	})
}

func TestUnionItems_JoinsInstructions(t *testing.T) {
	a := item("A", 1, "5")
	a.Instructions = "no sugar"
	b := item("A", 1, "5")
	b.Instructions = "extra hot"
	c := item("A", 1, "5")
	c.Instructions = "no sugar"

	out := UnionItems([]*core.Order{{Items: []core.OrderItem{a}}, {Items: []core.OrderItem{b, c}}})

	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0].Quantity)
	assert.Equal(t, "no sugar; extra hot", out[0].Instructions)
}

func TestCombine_RejectsMixedBranches(t *testing.T) {
	hq := order("a", "HQ-1", "hq-t1", base, item("A", 1, "100"))
	hq.BranchID = "hq"
	mall := order("b", "MALL-1", "mall-t1", base.Add(time.Minute), item("B", 1, "50"))
	mall.BranchID = "mall"

	_, err := Combine([]*core.Order{hq, mall}, base, "", "")
	require.ErrorIs(t, err, core.ErrInvalidInput)

	var mergeErr *core.MergeError
	require.ErrorAs(t, err, &mergeErr)
	assert.Equal(t, "b", mergeErr.OrderID)
}

func TestUnionItems_KeepsKitchenStatusApart(t *testing.T) {
	served := item("latte", 2, "125")
	served.Status = core.ItemStatusServed
	pending := item("latte", 1, "125")
	morePending := item("latte", 2, "125")

	out := UnionItems([]*core.Order{
		{Items: []core.OrderItem{served}},
		{Items: []core.OrderItem{pending}},
		{Items: []core.OrderItem{morePending}},
	})

	require.Len(t, out, 2)
	assert.Equal(t, core.ItemStatusServed, out[0].Status)
	assert.Equal(t, 2, out[0].Quantity)
	assert.Equal(t, core.ItemStatusPending, out[1].Status)
	assert.Equal(t, 3, out[1].Quantity)
}
