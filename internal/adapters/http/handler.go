package http

import (
	"errors"
	"strconv"
	"strings"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/dumu-tech/cafe-orders/internal/middleware"
	"github.com/dumu-tech/cafe-orders/internal/pricing"
	"github.com/dumu-tech/cafe-orders/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentSignatureHeader carries the provider's HMAC of the raw body
const PaymentSignatureHeader = "X-Payment-Signature"

// webhookActor is recorded in the status history of webhook payments
const webhookActor = "payment-webhook"

// Handler serves the order, table, merge and payment webhook endpoints
type Handler struct {
	orders   *service.OrderService
	merges   *service.MergeService
	tables   *service.TableService
	calc     *pricing.Calculator
	catalog  core.CatalogRepository
	coupons  core.CouponRepository
	payments core.PaymentVerifier
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orders *service.OrderService,
	merges *service.MergeService,
	tables *service.TableService,
	calc *pricing.Calculator,
	catalog core.CatalogRepository,
	coupons core.CouponRepository,
	payments core.PaymentVerifier,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		orders:   orders,
		merges:   merges,
		tables:   tables,
		calc:     calc,
		catalog:  catalog,
		coupons:  coupons,
		payments: payments,
		logger:   logger,
	}
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	if status, _ := statusFor(err); status == fiber.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
	}
	return respondError(c, err)
}

// expectedVersion reads the optimistic concurrency token from If-Match.
// Zero means the caller did not ask for a version check.
func expectedVersion(c *fiber.Ctx) (int64, error) {
	raw := strings.TrimSpace(c.Get(fiber.HeaderIfMatch))
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	if raw == "" || raw == "*" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, errors.New("If-Match must be an order version")
	}
	return v, nil
}

// branchOf scopes a request to the caller's branch unless the query names
// another one.
func branchOf(c *fiber.Ctx) string {
	if b := strings.TrimSpace(c.Query("branch_id")); b != "" {
		return b
	}
	b, _ := c.Locals("branch_id").(string)
	return b
}

func writeOrder(c *fiber.Ctx, status int, o *core.Order) error {
	c.Set(fiber.HeaderETag, strconv.Quote(strconv.FormatInt(o.Version, 10)))
	return c.Status(status).JSON(o)
}

// GetMenu lists the catalog for the caller's branch
// GET /api/menu
func (h *Handler) GetMenu(c *fiber.Ctx) error {
	items, err := h.catalog.ListByBranch(c.Context(), branchOf(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(items)
}

// GetCoupons lists active coupons for the caller's branch
// GET /api/coupons
func (h *Handler) GetCoupons(c *fiber.Ctx) error {
	coupons, err := h.coupons.ListActive(c.Context(), branchOf(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(coupons)
}

type orderRequest struct {
	BranchID      string              `json:"branch_id"`
	TableID       string              `json:"table_id"`
	CustomerPhone string              `json:"customer_phone"`
	Items         []pricing.ItemInput `json:"items"`
	CouponCode    string              `json:"coupon_code"`
}

func (r orderRequest) branch(c *fiber.Ctx) string {
	if r.BranchID != "" {
		return r.BranchID
	}
	return branchOf(c)
}

// QuoteOrder prices a cart without creating an order
// POST /api/orders/quote
func (h *Handler) QuoteOrder(c *fiber.Ctx) error {
	var req orderRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	quote, err := h.calc.Quote(c.Context(), pricing.QuoteInput{
		BranchID:   req.branch(c),
		Add:        req.Items,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(quote)
}

// CreateOrder creates an order
// POST /api/orders
func (h *Handler) CreateOrder(c *fiber.Ctx) error {
	var req orderRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	order, err := h.orders.CreateOrder(c.Context(), service.CreateOrderInput{
		BranchID:      req.branch(c),
		TableID:       req.TableID,
		CustomerPhone: req.CustomerPhone,
		Items:         req.Items,
		CouponCode:    req.CouponCode,
		Actor:         middleware.Actor(c, ""),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return writeOrder(c, fiber.StatusCreated, order)
}

// GetOrders lists orders with optional filters
// GET /api/orders?status=ready&table_id=t1&limit=50
func (h *Handler) GetOrders(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	orders, err := h.orders.ListOrders(c.Context(), core.OrderFilter{
		BranchID: branchOf(c),
		TableID:  c.Query("table_id"),
		Status:   core.OrderStatus(c.Query("status")),
		Limit:    limit,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(orders)
}

// GetOrder returns one order
// GET /api/orders/:id
func (h *Handler) GetOrder(c *fiber.Ctx) error {
	order, err := h.orders.GetOrder(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return writeOrder(c, fiber.StatusOK, order)
}

// AddItems appends lines to an open order
// POST /api/orders/:id/items
func (h *Handler) AddItems(c *fiber.Ctx) error {
	version, err := expectedVersion(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req struct {
		Items []pricing.ItemInput `json:"items"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	order, err := h.orders.AddItems(c.Context(), c.Params("id"), req.Items, version, middleware.Actor(c, ""))
	if err != nil {
		return h.fail(c, err)
	}
	return writeOrder(c, fiber.StatusOK, order)
}

// RemoveItem cancels one line of an open order
// DELETE /api/orders/:id/items/:itemId
func (h *Handler) RemoveItem(c *fiber.Ctx) error {
	version, err := expectedVersion(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	order, err := h.orders.RemoveItem(c.Context(), c.Params("id"), c.Params("itemId"), version, middleware.Actor(c, ""))
	if err != nil {
		return h.fail(c, err)
	}
	return writeOrder(c, fiber.StatusOK, order)
}

// ApplyCoupon sets or clears the order's coupon
// PUT /api/orders/:id/coupon
func (h *Handler) ApplyCoupon(c *fiber.Ctx) error {
	version, err := expectedVersion(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	order, err := h.orders.ApplyCoupon(c.Context(), c.Params("id"), req.Code, version, middleware.Actor(c, ""))
	if err != nil {
		return h.fail(c, err)
	}
	return writeOrder(c, fiber.StatusOK, order)
}

// TransitionOrder moves the order to the requested status
// POST /api/orders/:id/transition
func (h *Handler) TransitionOrder(c *fiber.Ctx) error {
	version, err := expectedVersion(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	to := core.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	order, err := h.orders.Transition(c.Context(), c.Params("id"), to, version, middleware.Actor(c, ""))
	if err != nil {
		return h.fail(c, err)
	}
	return writeOrder(c, fiber.StatusOK, order)
}

// PayOrder records a confirmed payment taken at the counter
// POST /api/orders/:id/pay
func (h *Handler) PayOrder(c *fiber.Ctx) error {
	version, err := expectedVersion(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req struct {
		Method    string          `json:"method"`
		Amount    decimal.Decimal `json:"amount"`
		Reference string          `json:"reference"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	order, err := h.orders.Pay(c.Context(), c.Params("id"), service.PayInput{
		Method:          core.PaymentMethod(strings.ToUpper(strings.TrimSpace(req.Method))),
		Amount:          req.Amount,
		Reference:       req.Reference,
		ExpectedVersion: version,
		Actor:           middleware.Actor(c, ""),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return writeOrder(c, fiber.StatusOK, order)
}

// CloseOrder closes a paid order and frees its table
// POST /api/orders/:id/close
func (h *Handler) CloseOrder(c *fiber.Ctx) error {
	version, err := expectedVersion(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	order, err := h.orders.Close(c.Context(), c.Params("id"), version, middleware.Actor(c, ""))
	if err != nil {
		return h.fail(c, err)
	}
	return writeOrder(c, fiber.StatusOK, order)
}

// CancelOrder cancels an unpaid order
// POST /api/orders/:id/cancel
func (h *Handler) CancelOrder(c *fiber.Ctx) error {
	version, err := expectedVersion(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	order, err := h.orders.Cancel(c.Context(), c.Params("id"), req.Reason, version, middleware.Actor(c, ""))
	if err != nil {
		return h.fail(c, err)
	}
	return writeOrder(c, fiber.StatusOK, order)
}

// RefundOrder returns money on a settled order
// POST /api/orders/:id/refund
func (h *Handler) RefundOrder(c *fiber.Ctx) error {
	version, err := expectedVersion(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Reason string          `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	order, err := h.orders.Refund(c.Context(), c.Params("id"), req.Amount, req.Reason, version, middleware.Actor(c, ""))
	if err != nil {
		return h.fail(c, err)
	}
	return writeOrder(c, fiber.StatusOK, order)
}

type mergeRequest struct {
	OrderIDs      []string `json:"order_ids"`
	TargetTableID string   `json:"target_table_id"`
}

func (r mergeRequest) input(actor string) service.MergeInput {
	return service.MergeInput{OrderIDs: r.OrderIDs, TargetTableID: r.TargetTableID, Actor: actor}
}

// PreviewMerge shows the consolidated order without saving anything
// POST /api/orders/merge/preview
func (h *Handler) PreviewMerge(c *fiber.Ctx) error {
	var req mergeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := h.merges.Preview(c.Context(), req.input(middleware.Actor(c, "")))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(result)
}

// MergeOrders consolidates open orders into the oldest one
// POST /api/orders/merge
func (h *Handler) MergeOrders(c *fiber.Ctx) error {
	var req mergeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := h.merges.Commit(c.Context(), req.input(middleware.Actor(c, "")))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(result)
}

// GetTables lists the branch's tables
// GET /api/tables
func (h *Handler) GetTables(c *fiber.Ctx) error {
	tables, err := h.tables.ListTables(c.Context(), branchOf(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(tables)
}

// GetTable returns one table
// GET /api/tables/:id
func (h *Handler) GetTable(c *fiber.Ctx) error {
	table, err := h.tables.GetTable(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(table)
}

// CreateTable adds a table to the branch
// POST /api/tables
func (h *Handler) CreateTable(c *fiber.Ctx) error {
	var req struct {
		BranchID string `json:"branch_id"`
		Number   string `json:"number"`
		Capacity int    `json:"capacity"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.BranchID == "" {
		req.BranchID = branchOf(c)
	}

	table, err := h.tables.CreateTable(c.Context(), req.BranchID, req.Number, req.Capacity)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(table)
}

// SetTableStatus changes a free table's floor status
// PATCH /api/tables/:id/status
func (h *Handler) SetTableStatus(c *fiber.Ctx) error {
	version, err := expectedVersion(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	table, err := h.tables.SetStatus(c.Context(), c.Params("id"), core.TableStatus(strings.ToLower(req.Status)), version)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(table)
}

// HandlePaymentWebhook processes payment confirmations from the provider
// POST /api/webhooks/payment
func (h *Handler) HandlePaymentWebhook(c *fiber.Ctx) error {
	signature := c.Get(PaymentSignatureHeader)
	if signature == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "missing signature",
		})
	}

	body := c.Body()
	if !h.payments.VerifyWebhook(c.Context(), signature, body) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid signature",
		})
	}

	result, err := h.payments.ProcessWebhook(c.Context(), body)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to process webhook",
		})
	}

	if !result.Success {
		h.logger.Info("payment not successful",
			zap.String("order_id", result.OrderID),
			zap.String("reference", result.Reference))
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	order, err := h.orders.Pay(c.Context(), result.OrderID, service.PayInput{
		Method:    result.Method,
		Amount:    result.Amount,
		Reference: result.Reference,
		Actor:     webhookActor,
	})
	if err != nil {
		status, code := statusFor(err)
		if status == fiber.StatusInternalServerError || status == fiber.StatusGatewayTimeout {
			h.logger.Error("payment webhook failed", zap.String("order_id", result.OrderID), zap.Error(err))
			// Non-2xx makes the provider retry.
			return c.Status(status).JSON(fiber.Map{"error": "payment not recorded"})
		}

		// Return 200 OK anyway so the provider stops retrying a payment
		// that can never apply.
		h.logger.Warn("payment rejected",
			zap.String("order_id", result.OrderID),
			zap.String("reference", result.Reference),
			zap.String("amount", result.Amount.String()),
			zap.String("code", code),
			zap.Error(err))
		return c.JSON(fiber.Map{"status": "rejected", "code": code})
	}

	return c.JSON(fiber.Map{
		"status":         "ok",
		"order_id":       order.ID,
		"payment_status": order.PaymentStatus,
	})
}
