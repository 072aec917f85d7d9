package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fatflowers/paydesk/pkg/logctx"
)

func TestTraceAndRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core).Sugar()

	r := gin.New()
	r.Use(TraceMiddleware(), RequestLoggerMiddleware(base), AccessLogMiddleware(base))
	r.GET("/ping", func(c *gin.Context) {
		require.Equal(t, "req-42", logctx.TraceID(c.Request.Context()))
		logctx.FromCtx(c.Request.Context(), base).Infow("inside handler")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	entries := logs.All()
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.Equal(t, "req-42", e.ContextMap()["trace_id"])
	}
	require.Equal(t, "http_access", entries[1].Message)
	require.EqualValues(t, http.StatusNoContent, entries[1].ContextMap()["status"])
}

func TestTraceMiddleware_GeneratesID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware(), RequestLoggerMiddleware(zap.NewNop().Sugar()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.NotEmpty(t, w.Header().Get(RequestIDHeader))
}
