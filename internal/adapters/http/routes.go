package http

import (
	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/dumu-tech/cafe-orders/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the API on app. Webhooks and login are public;
// everything else requires a staff session.
func RegisterRoutes(app *fiber.App, h *Handler, dh *DashboardHandler, auth middleware.TokenValidator) {
	api := app.Group("/api")

	api.Post("/webhooks/payment", h.HandlePaymentWebhook)

	api.Post("/auth/login", dh.Login)
	api.Post("/auth/logout", dh.Logout)

	protected := api.Group("", middleware.AuthMiddleware(auth))
	managers := middleware.RequireRoles(core.StaffRoleManager)
	tills := middleware.RequireRoles(core.StaffRoleManager, core.StaffRoleCashier)

	protected.Get("/auth/me", dh.GetMe)

	protected.Get("/menu", h.GetMenu)
	protected.Get("/coupons", h.GetCoupons)

	protected.Post("/orders/quote", h.QuoteOrder)
	protected.Post("/orders/merge/preview", h.PreviewMerge)
	protected.Post("/orders/merge", managers, h.MergeOrders)
	protected.Post("/orders", h.CreateOrder)
	protected.Get("/orders", h.GetOrders)
	protected.Get("/orders/:id", h.GetOrder)
	protected.Post("/orders/:id/items", h.AddItems)
	protected.Delete("/orders/:id/items/:itemId", h.RemoveItem)
	protected.Put("/orders/:id/coupon", h.ApplyCoupon)
	protected.Post("/orders/:id/transition", h.TransitionOrder)
	protected.Post("/orders/:id/pay", tills, h.PayOrder)
	protected.Post("/orders/:id/close", tills, h.CloseOrder)
	protected.Post("/orders/:id/cancel", h.CancelOrder)
	protected.Post("/orders/:id/refund", managers, h.RefundOrder)

	protected.Get("/tables", h.GetTables)
	protected.Post("/tables", managers, h.CreateTable)
	protected.Get("/tables/:id", h.GetTable)
	protected.Patch("/tables/:id/status", managers, h.SetTableStatus)

	protected.Get("/analytics/overview", dh.GetAnalyticsOverview)
	protected.Get("/analytics/revenue", dh.GetRevenueTrend)
	protected.Get("/reports/daily", managers, dh.DownloadDailySalesReport)
	protected.Get("/events", dh.SSEEvents)
}
