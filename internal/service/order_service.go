package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/dumu-tech/cafe-orders/internal/lifecycle"
	"github.com/dumu-tech/cafe-orders/internal/metrics"
	"github.com/dumu-tech/cafe-orders/internal/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// errUnchanged lets a modification end without writing anything
var errUnchanged = errors.New("unchanged")

// CreateOrderInput describes a new order
type CreateOrderInput struct {
	BranchID      string
	TableID       string
	CustomerPhone string
	Items         []pricing.ItemInput
	CouponCode    string
	Actor         string
}

// PayInput is a confirmed payment from the payment collaborator
type PayInput struct {
	Method          core.PaymentMethod
	Amount          decimal.Decimal
	Reference       string
	ExpectedVersion int64
	Actor           string
}

// OrderService drives single-order lifecycle operations
type OrderService struct {
	uow     *unitOfWork
	pricing *pricing.Calculator
	stats   *StatsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewOrderService creates a new order service. writeRetries bounds the
// attempts made when a write loses a version race.
func NewOrderService(
	store core.Store,
	calc *pricing.Calculator,
	stats *StatsService,
	events core.EventSink,
	logger *zap.Logger,
	writeRetries int,
	now func() time.Time,
) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &OrderService{
		uow:     &unitOfWork{store: store, stats: stats, events: events, logger: logger, retries: writeRetries},
		pricing: calc,
		stats:   stats,
		logger:  logger,
		now:     now,
	}
}

// CreateOrder prices the items, opens the order on its table and counts it
// in the stats cache.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*core.Order, error) {
	if strings.TrimSpace(in.BranchID) == "" {
		return nil, fmt.Errorf("%w: branch id is required", core.ErrInvalidInput)
	}
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: an order needs at least one item", core.ErrInvalidInput)
	}

	quote, err := s.pricing.Quote(ctx, pricing.QuoteInput{BranchID: in.BranchID, Add: in.Items, CouponCode: in.CouponCode})
	if err != nil {
		return nil, err
	}

	number, err := newOrderNumber(in.BranchID, s.now())
	if err != nil {
		return nil, err
	}

	var created *core.Order
	err = s.uow.run(ctx, "create_order", func(tx core.Repositories, fx *effects) error {
		now := s.now()
		o := &core.Order{
			ID:                uuid.New().String(),
			OrderNumber:       number,
			BranchID:          in.BranchID,
			TableID:           in.TableID,
			CustomerPhone:     strings.TrimSpace(in.CustomerPhone),
			Items:             quote.Items,
			Status:            core.OrderStatusCreated,
			PaymentStatus:     core.PaymentStatusUnpaid,
			CouponCode:        quote.CouponCode,
			DiscountBreakdown: quote.Breakdown,
			AmountPaid:        decimal.Zero,
			RefundedAmount:    decimal.Zero,
			StatusHistory:     []core.StatusChange{{To: core.OrderStatusCreated, At: now, Actor: in.Actor}},
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		pricing.ApplyTotals(o, quote.Totals)

		if o.TableID != "" {
			table, err := tx.Tables().GetForUpdate(ctx, o.TableID)
			if err != nil {
				return err
			}
			if table.BranchID != o.BranchID {
				return fmt.Errorf("%w: table %s belongs to branch %s", core.ErrInvalidInput, table.ID, table.BranchID)
			}
			if table.Status == core.TableStatusMaintenance {
				return fmt.Errorf("%w: table %s is under maintenance", core.ErrTableUnavailable, table.ID)
			}
			table.AttachOrder(o.ID)
			table.UpdatedAt = now
			if err := tx.Tables().Update(ctx, table); err != nil {
				return err
			}
		}

		rows, err := s.stats.Account(ctx, tx.Stats(), o, now)
		if err != nil {
			return err
		}
		fx.stats(rows)

		if err := tx.Orders().Create(ctx, o); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		ev := orderEvent(o, now)
		ev.NewStatus = o.Status
		fx.emit(core.EventOrderCreated, ev)
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("order_id", created.ID),
		zap.String("order_number", created.OrderNumber),
		zap.String("branch_id", created.BranchID),
		zap.String("total", created.Total.StringFixed(2)))
	return created, nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, id string) (*core.Order, error) {
	return s.uow.store.Orders().GetByID(ctx, id)
}

// ListOrders returns orders matching filter, newest first
func (s *OrderService) ListOrders(ctx context.Context, filter core.OrderFilter) ([]*core.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", core.ErrInvalidInput, filter.Status)
	}
	return s.uow.store.Orders().List(ctx, filter)
}

// AddItems prices new lines against the catalog and adds them. A line for
// an item already on the order at the same price increases its quantity.
func (s *OrderService) AddItems(ctx context.Context, orderID string, items []pricing.ItemInput, expectedVersion int64, actor string) (*core.Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no items to add", core.ErrInvalidInput)
	}
	return s.modify(ctx, "add_items", orderID, expectedVersion, func(tx core.Repositories, o *core.Order, fx *effects, now time.Time) error {
		if err := requireEditable(o); err != nil {
			return err
		}
		quote, err := s.pricing.Quote(ctx, pricing.QuoteInput{
			BranchID:   o.BranchID,
			Existing:   o.Items,
			Add:        items,
			CouponCode: o.CouponCode,
		})
		if err != nil {
			return err
		}
		applyQuote(o, quote, now)
		fx.emit(core.EventOrderUpdated, orderEvent(o, now))
		return nil
	})
}

// RemoveItem drops a line. The last line cannot be removed; cancel the
// order instead.
func (s *OrderService) RemoveItem(ctx context.Context, orderID, itemID string, expectedVersion int64, actor string) (*core.Order, error) {
	return s.modify(ctx, "remove_item", orderID, expectedVersion, func(tx core.Repositories, o *core.Order, fx *effects, now time.Time) error {
		if err := requireEditable(o); err != nil {
			return err
		}

		idx := -1
		for i, it := range o.Items {
			if it.ID == itemID && it.Status != core.ItemStatusCancelled {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("order item %s: %w", itemID, core.ErrNotFound)
		}
		if o.ItemCount()-o.Items[idx].Quantity <= 0 {
			return fmt.Errorf("%w: cannot remove the last item, cancel the order instead", core.ErrInvalidInput)
		}

		items := make([]core.OrderItem, 0, len(o.Items)-1)
		items = append(items, o.Items[:idx]...)
		items = append(items, o.Items[idx+1:]...)

		quote, err := s.pricing.Price(ctx, o.BranchID, items, o.CouponCode)
		if err != nil {
			return err
		}
		applyQuote(o, quote, now)
		fx.emit(core.EventOrderUpdated, orderEvent(o, now))
		return nil
	})
}

// ApplyCoupon sets or, with an empty code, clears the order's coupon.
func (s *OrderService) ApplyCoupon(ctx context.Context, orderID, code string, expectedVersion int64, actor string) (*core.Order, error) {
	return s.modify(ctx, "apply_coupon", orderID, expectedVersion, func(tx core.Repositories, o *core.Order, fx *effects, now time.Time) error {
		if err := requireEditable(o); err != nil {
			return err
		}
		quote, err := s.pricing.Price(ctx, o.BranchID, o.Items, code)
		if err != nil {
			return err
		}
		applyQuote(o, quote, now)
		fx.emit(core.EventOrderUpdated, orderEvent(o, now))
		return nil
	})
}

// Transition advances the order one step. Moving to paid always needs a
// confirmed payment, so it is rejected here; use Pay. Closing and
// cancelling go through Close and Cancel.
func (s *OrderService) Transition(ctx context.Context, orderID string, to core.OrderStatus, expectedVersion int64, actor string) (*core.Order, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", core.ErrInvalidInput, to)
	}
	switch to {
	case core.OrderStatusClosed:
		return s.Close(ctx, orderID, expectedVersion, actor)
	case core.OrderStatusCancelled:
		return s.Cancel(ctx, orderID, "", expectedVersion, actor)
	}

	return s.modify(ctx, "transition", orderID, expectedVersion, func(tx core.Repositories, o *core.Order, fx *effects, now time.Time) error {
		if err := lifecycle.Validate(o.ID, o.Status, to); err != nil {
			return err
		}
		if to == core.OrderStatusPaid {
			return &core.PaymentError{OrderID: o.ID, Total: o.Total, AmountPaid: decimal.Zero}
		}
		return s.advance(o, to, now, actor, fx)
	})
}

// Pay settles a ready order. The amount must cover the total. Replaying a
// payment with the same reference returns the order unchanged.
func (s *OrderService) Pay(ctx context.Context, orderID string, in PayInput) (*core.Order, error) {
	switch in.Method {
	case core.PaymentMethodCash, core.PaymentMethodCard, core.PaymentMethodUPI, core.PaymentMethodMpesa:
	default:
		return nil, fmt.Errorf("%w: unsupported payment method %q", core.ErrInvalidInput, in.Method)
	}
	if in.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount cannot be negative", core.ErrInvalidInput)
	}

	return s.modify(ctx, "pay", orderID, in.ExpectedVersion, func(tx core.Repositories, o *core.Order, fx *effects, now time.Time) error {
		if in.Reference != "" && o.PaymentRef == in.Reference && o.PaymentStatus != core.PaymentStatusUnpaid {
			return errUnchanged
		}
		if err := lifecycle.Validate(o.ID, o.Status, core.OrderStatusPaid); err != nil {
			return err
		}
		if in.Amount.LessThan(o.Total) {
			return &core.PaymentError{OrderID: o.ID, Total: o.Total, AmountPaid: in.Amount}
		}

		o.PaymentStatus = core.PaymentStatusPaid
		o.PaymentMethod = in.Method
		o.PaymentRef = in.Reference
		o.AmountPaid = in.Amount
		o.PaidAt = &now
		if err := s.advance(o, core.OrderStatusPaid, now, in.Actor, fx); err != nil {
			return err
		}

		ev := orderEvent(o, now)
		ev.PaymentMethod = o.PaymentMethod
		total := o.Total
		ev.Total = &total
		fx.emit(core.EventOrderPaid, ev)
		return nil
	})
}

// Close finishes a paid order and releases it from its table. Closing a
// closed order is rejected and releases nothing.
func (s *OrderService) Close(ctx context.Context, orderID string, expectedVersion int64, actor string) (*core.Order, error) {
	return s.modify(ctx, "close", orderID, expectedVersion, func(tx core.Repositories, o *core.Order, fx *effects, now time.Time) error {
		if err := lifecycle.Validate(o.ID, o.Status, core.OrderStatusClosed); err != nil {
			return err
		}
		if err := s.advance(o, core.OrderStatusClosed, now, actor, fx); err != nil {
			return err
		}
		if err := releaseTable(ctx, tx, o.TableID, o.ID, now); err != nil {
			return err
		}
		fx.emit(core.EventOrderClosed, orderEvent(o, now))
		return nil
	})
}

// Cancel cancels an unpaid order, reverses whatever it contributed to the
// stats cache and releases its table.
func (s *OrderService) Cancel(ctx context.Context, orderID, reason string, expectedVersion int64, actor string) (*core.Order, error) {
	return s.modify(ctx, "cancel", orderID, expectedVersion, func(tx core.Repositories, o *core.Order, fx *effects, now time.Time) error {
		previous := o.Status
		if err := lifecycle.Validate(o.ID, o.Status, core.OrderStatusCancelled); err != nil {
			return err
		}
		if err := s.advance(o, core.OrderStatusCancelled, now, actor, fx); err != nil {
			return err
		}
		if reason = strings.TrimSpace(reason); reason != "" {
			o.Note = reason
		}
		if err := releaseTable(ctx, tx, o.TableID, o.ID, now); err != nil {
			return err
		}

		ev := orderEvent(o, now)
		ev.PreviousStatus = previous
		ev.Reason = reason
		fx.emit(core.EventOrderCancelled, ev)
		return nil
	})
}

// Refund returns part or all of a paid order's total. Refunds are
// cumulative and may not exceed the total.
func (s *OrderService) Refund(ctx context.Context, orderID string, amount decimal.Decimal, reason string, expectedVersion int64, actor string) (*core.Order, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: refund amount must be positive", core.ErrInvalidInput)
	}

	return s.modify(ctx, "refund", orderID, expectedVersion, func(tx core.Repositories, o *core.Order, fx *effects, now time.Time) error {
		if o.PaymentStatus == core.PaymentStatusUnpaid {
			return fmt.Errorf("%w: order %s has not been paid", core.ErrInvalidOrderState, o.ID)
		}
		remaining := o.Total.Sub(o.RefundedAmount)
		if amount.GreaterThan(remaining) {
			return fmt.Errorf("%w: refund %s exceeds refundable %s", core.ErrInvalidInput, amount.StringFixed(2), remaining.StringFixed(2))
		}

		o.RefundedAmount = o.RefundedAmount.Add(amount)
		o.PaymentStatus = core.PaymentStatusRefunded
		o.UpdatedAt = now
		if reason = strings.TrimSpace(reason); reason != "" {
			o.Note = reason
		}

		ev := orderEvent(o, now)
		refunded := amount
		ev.Amount = &refunded
		ev.Reason = reason
		fx.emit(core.EventOrderRefunded, ev)
		return nil
	})
}

// modify loads the order under lock, applies fn, accounts the stats
// difference and writes the order back, all in one transaction.
func (s *OrderService) modify(ctx context.Context, op, orderID string, expectedVersion int64, fn func(tx core.Repositories, o *core.Order, fx *effects, now time.Time) error) (*core.Order, error) {
	var out *core.Order
	err := s.uow.run(ctx, op, func(tx core.Repositories, fx *effects) error {
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := checkVersion(o.ID, expectedVersion, o.Version); err != nil {
			return err
		}

		now := s.now()
		if err := fn(tx, o, fx, now); err != nil {
			if errors.Is(err, errUnchanged) {
				out = o
				return nil
			}
			return err
		}

		rows, err := s.stats.Account(ctx, tx.Stats(), o, now)
		if err != nil {
			return err
		}
		fx.stats(rows)

		if err := tx.Orders().Update(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// advance applies a validated transition and queues its event and metric.
func (s *OrderService) advance(o *core.Order, to core.OrderStatus, now time.Time, actor string, fx *effects) error {
	from := o.Status
	if err := lifecycle.Apply(o, to, now, actor); err != nil {
		return err
	}

	ev := orderEvent(o, now)
	ev.PreviousStatus = from
	ev.NewStatus = to
	fx.emit(core.EventOrderStatusChanged, ev)
	fx.after(func() {
		metrics.OrderTransitions.WithLabelValues(string(from), string(to)).Inc()
		s.logger.Info("order transitioned",
			zap.String("order_id", o.ID),
			zap.String("from", string(from)),
			zap.String("to", string(to)))
	})
	return nil
}

func requireEditable(o *core.Order) error {
	if lifecycle.IsTerminal(o.Status) {
		return &core.TransitionError{OrderID: o.ID, From: o.Status, Requested: o.Status, Err: core.ErrTerminalState}
	}
	if !lifecycle.IsActive(o.Status) {
		return fmt.Errorf("%w: order %s is %s", core.ErrInvalidOrderState, o.ID, o.Status)
	}
	return nil
}

func applyQuote(o *core.Order, q *pricing.Quote, now time.Time) {
	o.Items = q.Items
	pricing.ApplyTotals(o, q.Totals)
	o.CouponCode = q.CouponCode
	o.DiscountBreakdown = q.Breakdown
	o.UpdatedAt = now
}

// releaseTable removes orderID from the table's open set.
func releaseTable(ctx context.Context, tx core.Repositories, tableID, orderID string, now time.Time) error {
	if tableID == "" {
		return nil
	}
	table, err := tx.Tables().GetForUpdate(ctx, tableID)
	if err != nil {
		return err
	}
	if !table.ReleaseOrder(orderID) {
		return nil
	}
	table.UpdatedAt = now
	return tx.Tables().Update(ctx, table)
}

func orderEvent(o *core.Order, now time.Time) core.OrderEvent {
	return core.OrderEvent{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		BranchID:      o.BranchID,
		TableID:       o.TableID,
		CustomerPhone: o.CustomerPhone,
		NewStatus:     o.Status,
		ItemCount:     o.ItemCount(),
		Timestamp:     now,
	}
}

const orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// newOrderNumber builds <BRANCH>-<yyMMddHHmmss>-<4 random chars>.
func newOrderNumber(branchID string, now time.Time) (string, error) {
	var code []rune
	for _, r := range strings.ToUpper(branchID) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			code = append(code, r)
		}
		if len(code) == 4 {
			break
		}
	}
	if len(code) == 0 {
		code = []rune("ORD")
	}

	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate order number: %w", err)
	}
	suffix := make([]byte, len(buf))
	for i, b := range buf {
		suffix[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}

	return fmt.Sprintf("%s-%s-%s", string(code), now.UTC().Format("060102150405"), suffix), nil
}
