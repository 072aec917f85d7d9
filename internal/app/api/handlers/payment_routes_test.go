package handlers

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/paydesk/pkg/config"
)

func TestRegisterRoutes_RegistersEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	log := zap.NewNop().Sugar()
	RegisterHealthRoutes(r)
	RegisterCheckoutRoutes(r.Group("/api/v1"), nil, log)
	RegisterPaymentRoutes(r.Group("/api/v1/payment"), nil, config.SiteConfig{}, log)
	RegisterOrderRoutes(r.Group("/api/v1"), nil, log)

	routes := r.Routes()
	contains := func(target string) bool {
		for _, rt := range routes {
			if rt.Method+" "+rt.Path == target {
				return true
			}
		}
		return false
	}

	require.True(t, contains("GET /healthz"))
	require.True(t, contains("POST /api/v1/checkout"))
	require.True(t, contains("POST /api/v1/subscriptions"))
	require.True(t, contains("POST /api/v1/subscriptions/:reference/cancel"))
	require.True(t, contains("POST /api/v1/subscriptions/:reference/change_tier"))
	require.True(t, contains("GET /api/v1/payment/callback"))
	require.True(t, contains("POST /api/v1/payment/callback"))
	require.True(t, contains("GET /api/v1/payment/confirm"))
	require.True(t, contains("GET /api/v1/orders"))
	require.True(t, contains("GET /api/v1/orders/:reference"))
}
