package whatsapp

import (
	"context"
	"fmt"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/dumu-tech/cafe-orders/internal/events"
	"go.uber.org/zap"
)

// OrderNotifier texts customers when their order is ready or paid
type OrderNotifier struct {
	sender  core.Notifier
	logger  *zap.Logger
	timeout time.Duration
}

// NewOrderNotifier creates a notifier sending through sender
func NewOrderNotifier(sender core.Notifier, logger *zap.Logger) *OrderNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderNotifier{sender: sender, logger: logger, timeout: 10 * time.Second}
}

// Run consumes bus events until ctx is done. Send failures are logged and
// never reach the order engine.
func (n *OrderNotifier) Run(ctx context.Context, bus *events.EventBus) {
	ch := bus.Subscribe(ctx, "whatsapp-notifier")
	for ev := range ch {
		n.Handle(ctx, ev)
	}
}

// Handle sends the message for a single event, if any.
func (n *OrderNotifier) Handle(ctx context.Context, ev events.Event) {
	oe, ok := ev.Data.(core.OrderEvent)
	if !ok || oe.CustomerPhone == "" {
		return
	}

	msg := MessageFor(ev.Type, oe)
	if msg == "" {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.sender.SendText(sendCtx, oe.CustomerPhone, msg); err != nil {
		n.logger.Warn("failed to notify customer",
			zap.String("order_id", oe.OrderID),
			zap.String("event", ev.Type),
			zap.Error(err))
	}
}

// MessageFor returns the customer text for an event, or "" for none.
func MessageFor(name string, ev core.OrderEvent) string {
	switch {
	case name == core.EventOrderStatusChanged && ev.NewStatus == core.OrderStatusReady:
		return fmt.Sprintf("*Order Ready!* Your order %s is ready.", ev.OrderNumber)
	case name == core.EventOrderPaid && ev.Total != nil:
		return fmt.Sprintf("Payment of %s received for order %s. Thank you!", ev.Total.StringFixed(2), ev.OrderNumber)
	}
	return ""
}
