package http

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/events"
	"github.com/dumu-tech/cafe-orders/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const heartbeatInterval = 30 * time.Second

// DashboardHandler handles dashboard HTTP requests
type DashboardHandler struct {
	auth             *service.AuthService
	dashboardService *service.DashboardService
	cookieTTL        time.Duration
	secureCookie     bool
	logger           *zap.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(auth *service.AuthService, dashboardService *service.DashboardService, cookieTTL time.Duration, secureCookie bool, logger *zap.Logger) *DashboardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardHandler{
		auth:             auth,
		dashboardService: dashboardService,
		cookieTTL:        cookieTTL,
		secureCookie:     secureCookie,
		logger:           logger,
	}
}

func (h *DashboardHandler) fail(c *fiber.Ctx, err error) error {
	if status, _ := statusFor(err); status == fiber.StatusInternalServerError {
		h.logger.Error("dashboard request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return respondError(c, err)
}

// Login exchanges a staff PIN for a session token
// POST /api/auth/login
func (h *DashboardHandler) Login(c *fiber.Ctx) error {
	var req struct {
		BranchID string `json:"branch_id"`
		PIN      string `json:"pin"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.BranchID == "" || req.PIN == "" {
		return badRequest(c, "branch_id and pin are required")
	}

	token, user, err := h.auth.LoginWithPIN(c.Context(), req.BranchID, req.PIN)
	if err != nil {
		return h.fail(c, err)
	}

	// Set JWT token in HTTP-only cookie
	c.Cookie(&fiber.Cookie{
		Name:     "auth_token",
		Value:    token,
		Expires:  time.Now().Add(h.cookieTTL),
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: "Lax",
	})

	return c.JSON(fiber.Map{
		"message": "login successful",
		"token":   token,
		"user":    user,
	})
}

// Logout handles user logout
// POST /api/auth/logout
func (h *DashboardHandler) Logout(c *fiber.Ctx) error {
	// Clear auth cookie
	c.Cookie(&fiber.Cookie{
		Name:     "auth_token",
		Value:    "",
		Expires:  time.Now().Add(-1 * time.Hour),
		HTTPOnly: true,
	})

	return c.JSON(fiber.Map{
		"message": "logged out successfully",
	})
}

// GetMe returns current user info
// GET /api/auth/me
func (h *DashboardHandler) GetMe(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	user, err := h.auth.GetStaff(c.Context(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(user)
}

// GetAnalyticsOverview retrieves the stats cache view of one day
// GET /api/analytics/overview?date=2026-03-02
func (h *DashboardHandler) GetAnalyticsOverview(c *fiber.Ctx) error {
	analytics, err := h.dashboardService.GetAnalyticsOverview(c.Context(), branchOf(c), c.Query("date"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(analytics)
}

// GetRevenueTrend retrieves revenue trend data
// GET /api/analytics/revenue?days=30
func (h *DashboardHandler) GetRevenueTrend(c *fiber.Ctx) error {
	days, err := strconv.Atoi(c.Query("days", "30"))
	if err != nil {
		days = 30
	}

	trends, err := h.dashboardService.GetRevenueTrend(c.Context(), branchOf(c), days)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(trends)
}

// DownloadDailySalesReport streams the day's sales report as a PDF
// GET /api/reports/daily?date=2026-03-02
func (h *DashboardHandler) DownloadDailySalesReport(c *fiber.Ctx) error {
	pdfBytes, filename, err := h.dashboardService.GenerateDailySalesReportPDF(c.Context(), branchOf(c), c.Query("date"))
	if err != nil {
		return h.fail(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Send(pdfBytes)
}

// SSEEvents handles Server-Sent Events for real-time updates
// GET /api/events
func (h *DashboardHandler) SSEEvents(c *fiber.Ctx) error {
	// Set headers for SSE
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	bus := h.dashboardService.GetEventBus()
	subscriberID := uuid.New().String()

	// The stream writer outlives this handler, so the subscription is
	// bound to the writer rather than the request.
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		eventChan := bus.Subscribe(ctx, subscriberID)

		// Send initial connection message
		if _, err := w.WriteString("event: connected\ndata: {\"message\":\"connected\"}\n\n"); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}

		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-eventChan:
				if !ok {
					return
				}

				sseData, err := events.FormatSSE(event)
				if err != nil {
					h.logger.Warn("failed to format SSE event", zap.String("event", event.Type), zap.Error(err))
					continue
				}

				if _, err := w.WriteString(sseData); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}

			case <-ticker.C:
				// Send heartbeat
				if _, err := w.WriteString(": heartbeat\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}
