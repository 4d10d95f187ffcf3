package middleware

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator map[string]jwt.MapClaims

func (s stubValidator) ValidateJWT(token string) (jwt.MapClaims, error) {
	claims, ok := s[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return claims, nil
}

func newAuthApp() *fiber.App {
	v := stubValidator{
		"mgr":    {"user_id": "u1", "branch_id": "main", "role": "manager"},
		"waiter": {"user_id": "u2", "branch_id": "main", "role": "WAITER"},
	}
	app := fiber.New()
	app.Get("/events", AuthMiddleware(v), func(c *fiber.Ctx) error {
		return c.SendString(Actor(c, "anon"))
	})
	app.Post("/refund", AuthMiddleware(v), RequireRoles("MANAGER"), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("branch_id").(string))
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	app := newAuthApp()

	cases := []struct {
		name   string
		method string
		target string
		header string
		want   int
	}{
		{"no token", "POST", "/refund", "", fiber.StatusUnauthorized},
		{"invalid token", "POST", "/refund", "Bearer nope", fiber.StatusUnauthorized},
		{"wrong role", "POST", "/refund", "Bearer waiter", fiber.StatusForbidden},
		{"manager", "POST", "/refund", "Bearer mgr", fiber.StatusOK},
		{"sse query token", "GET", "/events?token=waiter", "", fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestPrometheusMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(PrometheusMiddleware())
	app.Get("/ping/:id", func(c *fiber.Ctx) error { return c.SendString("pong") })
	app.Get("/boom", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "boom") })

	before := testutil.ToFloat64(HttpRequestsTotal.WithLabelValues("GET", "/ping/:id", "200"))
	resp, err := app.Test(httptest.NewRequest("GET", "/ping/7", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, before+1, testutil.ToFloat64(HttpRequestsTotal.WithLabelValues("GET", "/ping/:id", "200")))

	_, err = app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(HttpRequestsTotal.WithLabelValues("GET", "/boom", "418")))
}
