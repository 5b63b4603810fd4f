package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/adrecon/backend/tests/testutil"
)

func TestHealthHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: refused") }

	tests := []struct {
		name   string
		checks map[string]HealthCheck
		status int
		want   map[string]any
	}{
		{"all healthy", map[string]HealthCheck{"database": ok, "redis": ok}, http.StatusOK,
			map[string]any{"status": "healthy", "database": "ok", "redis": "ok"}},
		{"redis down", map[string]HealthCheck{"database": ok, "redis": down}, http.StatusServiceUnavailable,
			map[string]any{"status": "unhealthy", "database": "ok", "redis": "error"}},
		{"no checks", nil, http.StatusOK, map[string]any{"status": "healthy"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := gin.New()
			engine.GET("/health", NewHealthHandler(tt.checks).Health)

			w := testutil.Do(t, engine, http.MethodGet, "/health", nil, nil)
			assert.Equal(t, tt.status, w.Code)
			body := testutil.JSONBody(t, w)
			for k, v := range tt.want {
				assert.Equal(t, v, body[k], k)
			}
			assert.NotEmpty(t, body["time"])
		})
	}
}
