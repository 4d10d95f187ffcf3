// Package pricing turns line items and coupons into order totals.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaxRate is the flat tax applied to every subtotal.
var TaxRate = decimal.RequireFromString("0.10")

// MaxLineQuantity bounds the quantity of a single requested line.
const MaxLineQuantity = 999

// Totals is the derived money state of an order
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals derives subtotal, tax and total from stored line prices.
// The discount is clamped to [0, subtotal].
func ComputeTotals(items []core.OrderItem, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Status == core.ItemStatusCancelled {
			continue
		}
		subtotal = subtotal.Add(it.LineTotal())
	}
	subtotal = subtotal.Round(2)

	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	discount = discount.Round(2)

	tax := subtotal.Mul(TaxRate).Round(2)
	total := subtotal.Add(tax).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{Subtotal: subtotal, Tax: tax, Discount: discount, Total: total}
}

// ApplyTotals copies t onto the order.
func ApplyTotals(o *core.Order, t Totals) {
	o.Subtotal = t.Subtotal
	o.Tax = t.Tax
	o.Discount = t.Discount
	o.Total = t.Total
}

// CatalogLookup is the slice of the catalog the calculator needs
type CatalogLookup interface {
	GetItem(ctx context.Context, id string) (*core.CatalogItem, error)
}

// ItemInput is a requested order line before pricing
type ItemInput struct {
	CatalogItemID string `json:"catalog_item_id"`
	Quantity      int    `json:"quantity"`
	Instructions  string `json:"instructions"`
}

// QuoteInput describes a pricing request. Existing lines keep their
// snapshotted price; Add lines are priced against the catalog.
type QuoteInput struct {
	BranchID   string
	Existing   []core.OrderItem
	Add        []ItemInput
	CouponCode string
}

// Quote is a fully priced item list
type Quote struct {
	Items      []core.OrderItem    `json:"items"`
	Totals     Totals              `json:"totals"`
	CouponCode string              `json:"coupon_code,omitempty"`
	Breakdown  []core.DiscountLine `json:"discount_breakdown,omitempty"`
}

// Calculator prices orders against the catalog and coupon collaborators
type Calculator struct {
	catalog CatalogLookup
	coupons core.CouponResolver
	now     func() time.Time
}

// NewCalculator creates a calculator. coupons may be nil when coupons are
// not supported; any coupon code then fails.
func NewCalculator(catalog CatalogLookup, coupons core.CouponResolver, now func() time.Time) *Calculator {
	if now == nil {
		now = time.Now
	}
	return &Calculator{catalog: catalog, coupons: coupons, now: now}
}

// Quote snapshots prices for new lines, folds them into existing lines and
// prices the result. Any unavailable item or rejected coupon fails the
// whole quote.
func (c *Calculator) Quote(ctx context.Context, in QuoteInput) (*Quote, error) {
	items := make([]core.OrderItem, len(in.Existing))
	copy(items, in.Existing)

	for _, req := range in.Add {
		if strings.TrimSpace(req.CatalogItemID) == "" {
			return nil, fmt.Errorf("%w: catalog item id is required", core.ErrInvalidInput)
		}
		if req.Quantity < 1 || req.Quantity > MaxLineQuantity {
			return nil, fmt.Errorf("%w: quantity for %s must be between 1 and %d", core.ErrInvalidInput, req.CatalogItemID, MaxLineQuantity)
		}

		entry, err := c.catalog.GetItem(ctx, req.CatalogItemID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return nil, &core.ItemError{CatalogItemID: req.CatalogItemID, Reason: "not in catalog"}
			}
			return nil, fmt.Errorf("failed to look up catalog item %s: %w", req.CatalogItemID, err)
		}
		if !entry.IsAvailable {
			return nil, &core.ItemError{CatalogItemID: req.CatalogItemID, Reason: "not available"}
		}
		if entry.BranchID != "" && in.BranchID != "" && entry.BranchID != in.BranchID {
			return nil, &core.ItemError{CatalogItemID: req.CatalogItemID, Reason: "not sold at this branch"}
		}

		items = addLine(items, core.OrderItem{
			ID:            uuid.New().String(),
			CatalogItemID: entry.ID,
			Name:          entry.Name,
			Category:      entry.Category,
			Quantity:      req.Quantity,
			UnitPrice:     entry.Price,
			Instructions:  strings.TrimSpace(req.Instructions),
			Status:        core.ItemStatusPending,
		})
	}

	return c.Price(ctx, in.BranchID, items, in.CouponCode)
}

// Price resolves the coupon for an already-priced item list and computes
// totals. No catalog lookups happen here.
func (c *Calculator) Price(ctx context.Context, branchID string, items []core.OrderItem, couponCode string) (*Quote, error) {
	base := ComputeTotals(items, decimal.Zero)
	quote := &Quote{Items: items, Totals: base}

	code := strings.TrimSpace(couponCode)
	if code == "" {
		return quote, nil
	}
	if c.coupons == nil {
		return nil, &core.CouponError{Code: code, Reason: "coupons are not enabled"}
	}

	result, err := c.coupons.Resolve(ctx, code, core.OrderContext{
		BranchID: branchID,
		Items:    items,
		Subtotal: base.Subtotal,
		At:       c.now(),
	})
	if err != nil {
		if errors.Is(err, core.ErrInvalidCoupon) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to resolve coupon %s: %w", code, err)
	}

	quote.Totals = ComputeTotals(items, result.Amount)
	quote.CouponCode = result.Code
	if quote.CouponCode == "" {
		quote.CouponCode = code
	}
	quote.Breakdown = result.Breakdown
	return quote, nil
}

// addLine folds line into an existing line with the same catalog item,
// price, instructions and kitchen status, or appends it.
func addLine(items []core.OrderItem, line core.OrderItem) []core.OrderItem {
	for i := range items {
		it := &items[i]
		if it.Status == core.ItemStatusCancelled {
			continue
		}
		if it.CatalogItemID == line.CatalogItemID && it.UnitPrice.Equal(line.UnitPrice) && it.Instructions == line.Instructions && it.Status == line.Status {
			it.Quantity += line.Quantity
			return items
		}
	}
	return append(items, line)
}
