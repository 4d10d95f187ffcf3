package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EvaluateCoupon computes the discount a coupon grants for an order. It is
// pure: the coupon is not modified and usage is not recorded.
func EvaluateCoupon(c *core.Coupon, oc core.OrderContext) (core.DiscountResult, error) {
	reject := func(format string, args ...any) (core.DiscountResult, error) {
		return core.DiscountResult{}, &core.CouponError{Code: c.Code, Reason: fmt.Sprintf(format, args...)}
	}

	if !c.IsActive {
		return reject("inactive")
	}
	if c.ValidFrom != nil && oc.At.Before(*c.ValidFrom) {
		return reject("not valid before %s", c.ValidFrom.Format("2006-01-02"))
	}
	if c.ValidUntil != nil && oc.At.After(*c.ValidUntil) {
		return reject("expired on %s", c.ValidUntil.Format("2006-01-02"))
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return reject("usage limit reached")
	}
	if c.BranchID != "" && c.BranchID != oc.BranchID {
		return reject("not valid at this branch")
	}
	if c.MinOrderAmount.IsPositive() && oc.Subtotal.LessThan(c.MinOrderAmount) {
		return reject("minimum order amount %s not met", c.MinOrderAmount.StringFixed(2))
	}

	var (
		amount decimal.Decimal
		lines  []core.DiscountLine
	)

	switch c.Type {
	case core.CouponTypeFlat:
		if !c.Value.IsPositive() {
			return reject("flat value must be positive")
		}
		amount = c.Value
		lines = append(lines, core.DiscountLine{Rule: "flat", Description: fmt.Sprintf("%s off", c.Value.StringFixed(2)), Amount: amount})

	case core.CouponTypePercentage:
		if !validPercent(c.Value) {
			return reject("percentage must be within (0, 100]")
		}
		amount = oc.Subtotal.Mul(c.Value).Div(hundred)
		lines = append(lines, core.DiscountLine{Rule: "percentage", Description: fmt.Sprintf("%s%% of subtotal", c.Value.String()), Amount: amount})

	case core.CouponTypeBuyXGetY:
		if c.BuyQuantity < 1 || c.GetQuantity < 1 {
			return reject("buy/get quantities must be at least 1")
		}
		eligible := eligibleLines(c, oc.Items)
		units := 0
		for _, it := range eligible {
			units += it.Quantity
		}
		free := (units / (c.BuyQuantity + c.GetQuantity)) * c.GetQuantity
		if free == 0 {
			return reject("buy %d get %d not satisfied", c.BuyQuantity, c.GetQuantity)
		}
		amount = cheapestUnits(eligible, free)
		lines = append(lines, core.DiscountLine{Rule: "buy_x_get_y", Description: fmt.Sprintf("buy %d get %d: %d free", c.BuyQuantity, c.GetQuantity, free), Amount: amount})

	case core.CouponTypeQuantityFlat:
		if !c.Value.IsPositive() || c.MinQuantity < 1 {
			return reject("quantity discount needs a positive value and minimum quantity")
		}
		qty := 0
		for _, it := range eligibleLines(c, oc.Items) {
			qty += it.Quantity
		}
		if qty < c.MinQuantity {
			return reject("needs at least %d items, order has %d", c.MinQuantity, qty)
		}
		amount = c.Value
		lines = append(lines, core.DiscountLine{Rule: "quantity_flat", Description: fmt.Sprintf("%s off for %d+ items", c.Value.StringFixed(2), c.MinQuantity), Amount: amount})

	case core.CouponTypeCategoryPercentage:
		if strings.TrimSpace(c.Category) == "" {
			return reject("category is required")
		}
		if !validPercent(c.Value) {
			return reject("percentage must be within (0, 100]")
		}
		base := decimal.Zero
		for _, it := range eligibleLines(c, oc.Items) {
			base = base.Add(it.LineTotal())
		}
		if base.IsZero() {
			return reject("no items in category %s", c.Category)
		}
		amount = base.Mul(c.Value).Div(hundred)
		lines = append(lines, core.DiscountLine{Rule: "category_percentage", Description: fmt.Sprintf("%s%% off %s", c.Value.String(), c.Category), Amount: amount})

	default:
		return reject("unsupported coupon type %q", c.Type)
	}

	amount = amount.Round(2)
	if c.MaxDiscount.IsPositive() && amount.GreaterThan(c.MaxDiscount) {
		lines = append(lines, core.DiscountLine{Rule: "max_discount", Description: fmt.Sprintf("capped at %s", c.MaxDiscount.StringFixed(2)), Amount: c.MaxDiscount.Sub(amount)})
		amount = c.MaxDiscount
	}
	if amount.GreaterThan(oc.Subtotal) {
		lines = append(lines, core.DiscountLine{Rule: "subtotal_clamp", Description: "limited to subtotal", Amount: oc.Subtotal.Sub(amount)})
		amount = oc.Subtotal
	}

	return core.DiscountResult{Code: c.Code, Amount: amount, Breakdown: lines}, nil
}

// cheapestUnits sums the price of the n cheapest units across lines.
func cheapestUnits(lines []core.OrderItem, n int) decimal.Decimal {
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].UnitPrice.LessThan(lines[j].UnitPrice) })
	sum := decimal.Zero
	for _, it := range lines {
		if n == 0 {
			break
		}
		take := min(it.Quantity, n)
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(take))))
		n -= take
	}
	return sum
}

func validPercent(v decimal.Decimal) bool {
	return v.IsPositive() && v.LessThanOrEqual(hundred)
}

// eligibleLines filters to the coupon's item or category scope, if any.
func eligibleLines(c *core.Coupon, items []core.OrderItem) []core.OrderItem {
	out := make([]core.OrderItem, 0, len(items))
	for _, it := range items {
		if it.Status == core.ItemStatusCancelled {
			continue
		}
		if c.CatalogItemID != "" && it.CatalogItemID != c.CatalogItemID {
			continue
		}
		if c.Category != "" && !strings.EqualFold(it.Category, c.Category) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// CouponBook resolves coupon codes from a repository
type CouponBook struct {
	coupons core.CouponRepository
}

// NewCouponBook creates a resolver backed by repo
func NewCouponBook(repo core.CouponRepository) *CouponBook {
	return &CouponBook{coupons: repo}
}

// Resolve implements core.CouponResolver
func (b *CouponBook) Resolve(ctx context.Context, code string, oc core.OrderContext) (core.DiscountResult, error) {
	coupon, err := b.coupons.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.DiscountResult{}, &core.CouponError{Code: code, Reason: "unknown code"}
		}
		return core.DiscountResult{}, fmt.Errorf("failed to load coupon: %w", err)
	}
	return EvaluateCoupon(coupon, oc)
}
