package http

import (
	"context"
	"errors"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/gofiber/fiber/v2"
)

// statusFor maps a domain error onto an HTTP status and a stable code
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrOrderNotFound):
		return fiber.StatusNotFound, "order_not_found"
	case errors.Is(err, core.ErrTableNotFound):
		return fiber.StatusNotFound, "table_not_found"
	case errors.Is(err, core.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrVersionConflict):
		return fiber.StatusConflict, "version_conflict"
	case errors.Is(err, core.ErrTerminalState):
		return fiber.StatusConflict, "terminal_state"
	case errors.Is(err, core.ErrInvalidTransition):
		return fiber.StatusConflict, "invalid_transition"
	case errors.Is(err, core.ErrCannotMergePaidOrder):
		return fiber.StatusConflict, "cannot_merge_paid_order"
	case errors.Is(err, core.ErrInvalidOrderState):
		return fiber.StatusConflict, "invalid_order_state"
	case errors.Is(err, core.ErrTableUnavailable):
		return fiber.StatusConflict, "table_unavailable"
	case errors.Is(err, core.ErrInsufficientPayment):
		return fiber.StatusPaymentRequired, "insufficient_payment"
	case errors.Is(err, core.ErrInsufficientOrders):
		return fiber.StatusUnprocessableEntity, "insufficient_orders"
	case errors.Is(err, core.ErrItemUnavailable):
		return fiber.StatusUnprocessableEntity, "item_unavailable"
	case errors.Is(err, core.ErrInvalidCoupon):
		return fiber.StatusUnprocessableEntity, "invalid_coupon"
	case errors.Is(err, core.ErrInvalidInput):
		return fiber.StatusBadRequest, "invalid_input"
	case errors.Is(err, core.ErrUnauthorized):
		return fiber.StatusUnauthorized, "unauthorized"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "timeout"
	default:
		return fiber.StatusInternalServerError, "internal"
	}
}

func respondError(c *fiber.Ctx, err error) error {
	status, code := statusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		msg = "internal server error"
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
		"code":  code,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"code":  "invalid_input",
	})
}
