package pricing

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

type stubCatalog map[string]*core.CatalogItem

func (s stubCatalog) GetItem(_ context.Context, id string) (*core.CatalogItem, error) {
	if it, ok := s[id]; ok {
		cp := *it
		return &cp, nil
	}
	return nil, core.ErrNotFound
}

type stubCoupons map[string]*core.Coupon

func (s stubCoupons) GetByCode(_ context.Context, code string) (*core.Coupon, error) {
	if c, ok := s[code]; ok {
		return c, nil
	}
	return nil, core.ErrNotFound
}

func (s stubCoupons) ListActive(context.Context, string) ([]*core.Coupon, error) { return nil, nil }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var testCatalog = stubCatalog{
	"latte":   {ID: "latte", Name: "Latte", Category: "coffee", Price: dec("100"), IsAvailable: true},
	"muffin":  {ID: "muffin", Name: "Muffin", Category: "bakery", Price: dec("50"), IsAvailable: true},
	"special": {ID: "special", Name: "Special", Category: "coffee", Price: dec("300"), IsAvailable: false},
}

func fixedNow() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

func TestComputeTotals_Scenario(t *testing.T) {
	items := []core.OrderItem{
		{CatalogItemID: "latte", Quantity: 2, UnitPrice: dec("100")},
		{CatalogItemID: "muffin", Quantity: 1, UnitPrice: dec("50")},
	}

	got := ComputeTotals(items, decimal.Zero)

	assert.Equal(t, "250.00", got.Subtotal.StringFixed(2))
	assert.Equal(t, "25.00", got.Tax.StringFixed(2))
	assert.Equal(t, "0.00", got.Discount.StringFixed(2))
	assert.Equal(t, "275.00", got.Total.StringFixed(2))
}

func TestComputeTotals_ClampsDiscount(t *testing.T) {
	items := []core.OrderItem{{Quantity: 1, UnitPrice: dec("40")}}

	got := ComputeTotals(items, dec("100"))
	assert.Equal(t, "40.00", got.Discount.StringFixed(2))
	assert.Equal(t, "4.00", got.Total.StringFixed(2))

	got = ComputeTotals(items, dec("-5"))
	assert.True(t, got.Discount.IsZero())
}

func TestComputeTotals_SkipsCancelledLines(t *testing.T) {
	items := []core.OrderItem{
		{Quantity: 1, UnitPrice: dec("10")},
		{Quantity: 3, UnitPrice: dec("10"), Status: core.ItemStatusCancelled},
	}

	assert.Equal(t, "10.00", ComputeTotals(items, decimal.Zero).Subtotal.StringFixed(2))
}

func TestQuote_SnapshotsCatalogPrice(t *testing.T) {
	calc := NewCalculator(testCatalog, nil, fixedNow)

	q, err := calc.Quote(context.Background(), QuoteInput{
		Add: []ItemInput{{CatalogItemID: "latte", Quantity: 2}, {CatalogItemID: "muffin", Quantity: 1}},
	})
	require.NoError(t, err)

	require.Len(t, q.Items, 2)
	assert.Equal(t, "100", q.Items[0].UnitPrice.String())
	assert.Equal(t, "Latte", q.Items[0].Name)
	assert.Equal(t, core.ItemStatusPending, q.Items[0].Status)
	assert.NotEmpty(t, q.Items[0].ID)
	assert.Equal(t, "275.00", q.Totals.Total.StringFixed(2))
}

func TestQuote_KeepsExistingPriceAndFoldsQuantity(t *testing.T) {
	calc := NewCalculator(testCatalog, nil, fixedNow)
	existing := []core.OrderItem{{ID: "l1", CatalogItemID: "latte", Quantity: 1, UnitPrice: dec("80"), Status: core.ItemStatusPending}}

	q, err := calc.Quote(context.Background(), QuoteInput{
		Existing: existing,
		Add:      []ItemInput{{CatalogItemID: "latte", Quantity: 1}},
	})
	require.NoError(t, err)

	require.Len(t, q.Items, 2)
	assert.Equal(t, "80", q.Items[0].UnitPrice.String())
	assert.Equal(t, 1, existing[0].Quantity)

	q, err = calc.Quote(context.Background(), QuoteInput{
		Add: []ItemInput{{CatalogItemID: "latte", Quantity: 1}, {CatalogItemID: "latte", Quantity: 2}},
	})
	require.NoError(t, err)
	require.Len(t, q.Items, 1)
	assert.Equal(t, 3, q.Items[0].Quantity)

	served := []core.OrderItem{{ID: "l1", CatalogItemID: "latte", Quantity: 2, UnitPrice: dec("100"), Status: core.ItemStatusServed}}
	q, err = calc.Quote(context.Background(), QuoteInput{
		Existing: served,
		Add:      []ItemInput{{CatalogItemID: "latte", Quantity: 1}},
	})
	require.NoError(t, err)
	require.Len(t, q.Items, 2, "a new unit is not folded into a served line")
	assert.Equal(t, core.ItemStatusPending, q.Items[1].Status)
}

func TestQuote_Failures(t *testing.T) {
	calc := NewCalculator(testCatalog, NewCouponBook(stubCoupons{}), fixedNow)
	ctx := context.Background()

	_, err := calc.Quote(ctx, QuoteInput{Add: []ItemInput{{CatalogItemID: "special", Quantity: 1}}})
	var ie *core.ItemError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "special", ie.CatalogItemID)
	assert.ErrorIs(t, err, core.ErrItemUnavailable)

	_, err = calc.Quote(ctx, QuoteInput{Add: []ItemInput{{CatalogItemID: "ghost", Quantity: 1}}})
	assert.ErrorIs(t, err, core.ErrItemUnavailable)

	_, err = calc.Quote(ctx, QuoteInput{Add: []ItemInput{{CatalogItemID: "latte", Quantity: 0}}})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = calc.Quote(ctx, QuoteInput{Add: []ItemInput{{CatalogItemID: "latte", Quantity: MaxLineQuantity + 1}}})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = calc.Quote(ctx, QuoteInput{Add: []ItemInput{{CatalogItemID: "latte", Quantity: 1<<31 - 1}}})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = calc.Quote(ctx, QuoteInput{Add: []ItemInput{{CatalogItemID: "latte", Quantity: 1}}, CouponCode: "NOPE"})
	assert.ErrorIs(t, err, core.ErrInvalidCoupon)
}

func TestQuote_AppliesCoupon(t *testing.T) {
	coupons := stubCoupons{"TENPCT": {Code: "TENPCT", Type: core.CouponTypePercentage, Value: dec("10"), IsActive: true}}
	calc := NewCalculator(testCatalog, NewCouponBook(coupons), fixedNow)

	q, err := calc.Quote(context.Background(), QuoteInput{
		Add:        []ItemInput{{CatalogItemID: "latte", Quantity: 2}, {CatalogItemID: "muffin", Quantity: 1}},
		CouponCode: "tenpct",
	})
	require.NoError(t, err)

	assert.Equal(t, "TENPCT", q.CouponCode)
	assert.Equal(t, "25.00", q.Totals.Discount.StringFixed(2))
	assert.Equal(t, "250.00", q.Totals.Total.StringFixed(2))
	require.Len(t, q.Breakdown, 1)
	assert.Equal(t, "percentage", q.Breakdown[0].Rule)
}
