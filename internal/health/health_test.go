package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveness(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", Liveness)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChecker_AllHealthy(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("onebot", func(ctx context.Context) Status { return StatusOK })
	c.Register("store", func(ctx context.Context) Status { return StatusOK })

	assert.True(t, c.IsReady(context.Background()))
	assert.Len(t, c.Last(), 2)
}

func TestChecker_OneDown(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("store", func(ctx context.Context) Status { return StatusOK })
	c.Register("onebot", func(ctx context.Context) Status { return StatusDown })

	assert.False(t, c.IsReady(context.Background()))
}

func TestChecker_Degraded_StillReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("nats", func(ctx context.Context) Status { return StatusDegraded })

	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_NoChecks(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	assert.True(t, c.IsReady(context.Background()))
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		code   int
		want   string
	}{
		{"healthy", StatusOK, http.StatusOK, "ready"},
		{"down", StatusDown, http.StatusServiceUnavailable, "not_ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(zerolog.Nop())
			c.Register("svc", func(ctx context.Context) Status { return tt.status })
			app := fiber.New()
			app.Get("/readyz", c.Readiness)

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/readyz", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.code, resp.StatusCode)

			var report Report
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
			assert.Equal(t, tt.want, report.Status)
			assert.Equal(t, tt.status, report.Checks["svc"])
		})
	}
}

func TestChecks(t *testing.T) {
	ctx := context.Background()
	up := func() bool { return true }
	down := func() bool { return false }

	assert.Equal(t, StatusOK, ConnectedCheck(up)(ctx))
	assert.Equal(t, StatusDown, ConnectedCheck(down)(ctx))
	assert.Equal(t, StatusDegraded, OptionalConnectedCheck(down)(ctx))

	assert.Equal(t, StatusOK, PingCheck(func(context.Context) error { return nil })(ctx))
	assert.Equal(t, StatusDown, PingCheck(func(context.Context) error { return errors.New("locked") })(ctx))

	assert.Equal(t, StatusOK, BacklogCheck(func() int { return 3 }, 10)(ctx))
	assert.Equal(t, StatusDegraded, BacklogCheck(func() int { return 10 }, 10)(ctx))
}
