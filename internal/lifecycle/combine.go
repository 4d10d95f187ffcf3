package lifecycle

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/dumu-tech/cafe-orders/internal/pricing"
	"github.com/shopspring/decimal"
)

// MergePlan is the outcome of combining a set of orders. Target and
// Sources are fresh copies; the inputs are never modified.
type MergePlan struct {
	Target  *core.Order
	Sources []*core.Order
	Totals  pricing.Totals
	// PreviousTableID is the target's table before a move, empty when the
	// target stays where it is.
	PreviousTableID string
	DroppedCoupons  []string
}

// CheckMergeable validates the per-order merge preconditions. Payment is
// checked across every order before state so a paid order is always
// reported as such. All orders must belong to one branch.
func CheckMergeable(orders []*core.Order) error {
	for _, o := range orders {
		if o.BranchID != orders[0].BranchID {
			return &core.MergeError{OrderID: o.ID, Status: o.Status, PaymentStatus: o.PaymentStatus,
				Err: fmt.Errorf("%w: order belongs to branch %q, not %q", core.ErrInvalidInput, o.BranchID, orders[0].BranchID)}
		}
	}
	for _, o := range orders {
		if o.PaymentStatus != core.PaymentStatusUnpaid || o.Status == core.OrderStatusPaid {
			return &core.MergeError{OrderID: o.ID, Status: o.Status, PaymentStatus: o.PaymentStatus, Err: core.ErrCannotMergePaidOrder}
		}
	}
	for _, o := range orders {
		if !IsActive(o.Status) {
			return &core.MergeError{OrderID: o.ID, Status: o.Status, PaymentStatus: o.PaymentStatus, Err: core.ErrInvalidOrderState}
		}
	}
	return nil
}

// Combine folds orders into the oldest one. targetTableID, when set, moves
// the surviving order to that table.
func Combine(orders []*core.Order, at time.Time, actor, targetTableID string) (*MergePlan, error) {
	if len(orders) < 2 {
		return nil, core.ErrInsufficientOrders
	}
	if err := CheckMergeable(orders); err != nil {
		return nil, err
	}

	sorted := make([]*core.Order, 0, len(orders))
	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		if seen[o.ID] {
			continue
		}
		seen[o.ID] = true
		sorted = append(sorted, o.Clone())
	}
	if len(sorted) < 2 {
		return nil, core.ErrInsufficientOrders
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	target, sources := sorted[0], sorted[1:]
	plan := &MergePlan{Target: target, Sources: sources}

	items := UnionItems(sorted)
	plan.Totals = pricing.ComputeTotals(items, decimal.Zero)

	numbers := slices.Clone(target.OriginalOrderIDs)
	for _, o := range sorted {
		if o.CouponCode != "" {
			plan.DroppedCoupons = append(plan.DroppedCoupons, o.CouponCode)
		}
		if !slices.Contains(numbers, o.OrderNumber) {
			numbers = append(numbers, o.OrderNumber)
		}
	}

	target.Items = items
	pricing.ApplyTotals(target, plan.Totals)
	target.CouponCode = ""
	target.DiscountBreakdown = nil
	target.IsMerged = true
	target.MergedAt = &at
	target.OriginalOrderIDs = numbers
	target.MergeNote = mergeNote(sorted, plan.DroppedCoupons)
	target.UpdatedAt = at
	if targetTableID != "" && targetTableID != target.TableID {
		plan.PreviousTableID = target.TableID
		target.TableID = targetTableID
	}

	for _, src := range sources {
		setStatus(src, core.OrderStatusMerged, at, actor)
		src.MergedInto = target.ID
		src.Note = fmt.Sprintf("merged into order %s", target.OrderNumber)
	}

	return plan, nil
}

// UnionItems combines lines across orders in the given order. Lines match
// on catalog item, snapshot price and item status; matching quantities are
// summed and distinct instructions joined. Cancelled lines are dropped.
func UnionItems(orders []*core.Order) []core.OrderItem {
	var out []core.OrderItem
	index := make(map[string]int)

	for _, o := range orders {
		for _, it := range o.Items {
			if it.Status == core.ItemStatusCancelled {
				continue
			}
			key := it.CatalogItemID + "|" + it.UnitPrice.String() + "|" + string(it.Status)
			if i, ok := index[key]; ok {
				out[i].Quantity += it.Quantity
				out[i].Instructions = joinInstructions(out[i].Instructions, it.Instructions)
				continue
			}
			index[key] = len(out)
			out = append(out, it)
		}
	}
	return out
}

func joinInstructions(a, b string) string {
	if b == "" {
		return a
	}
	if a == "" {
		return b
	}
	if slices.Contains(strings.Split(a, "; "), b) {
		return a
	}
	return a + "; " + b
}

func mergeNote(orders []*core.Order, dropped []string) string {
	numbers := make([]string, len(orders))
	for i, o := range orders {
		numbers[i] = o.OrderNumber
	}
	note := fmt.Sprintf("merged %d orders: %s", len(orders), strings.Join(numbers, ", "))
	if len(dropped) > 0 {
		note += fmt.Sprintf("; coupons dropped: %s", strings.Join(dropped, ", "))
	}
	return note
}
