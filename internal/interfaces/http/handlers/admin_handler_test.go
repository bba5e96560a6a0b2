package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/ratelimit"
	"github.com/turtacn/aegis/pkg/logger"
)

type nopAudit struct{}

func (nopAudit) Record(ctx context.Context, event *models.AuditEvent) {}
func (nopAudit) Close() error                                         { return nil }

func adminRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	limiter, err := ratelimit.NewLimiter(
		ratelimit.NewMemoryStore(),
		&config.RateLimitConfig{Enabled: true},
		ratelimit.SystemClock(),
		nopAudit{},
		nil,
		logger.NewNoopLogger(),
	)
	require.NoError(t, err)

	handler := NewAdminHandler(limiter, nopAudit{}, logger.NewNoopLogger())
	engine := gin.New()
	engine.GET("/api/admin/rules", handler.ListRules)
	engine.POST("/api/admin/rules", handler.AddRule)
	engine.DELETE("/api/admin/rules/:id", handler.RemoveRule)
	engine.POST("/api/admin/clients/:key/reset", handler.ResetClient)
	return engine
}

func TestListRulesReturnsDefaults(t *testing.T) {
	engine := adminRouter(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("GET", "/api/admin/rules", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Rules []models.RateLimitRule `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Rules)
	assert.Equal(t, "auth-endpoints", body.Rules[0].ID, "rules come back ordered by priority")
}

func TestAddAndRemoveRule(t *testing.T) {
	engine := adminRouter(t)

	payload := `{
		"id": "report-endpoints",
		"pathPattern": "/api/reports/*",
		"applicableUserTypes": ["admin"],
		"windowMs": 60000,
		"maxRequests": 10,
		"strategy": "fixed",
		"priority": 85
	}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/admin/rules", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Duplicate registration fails.
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/admin/rules", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/admin/rules/report-endpoints", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/admin/rules/report-endpoints", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddRuleValidatesPayload(t *testing.T) {
	engine := adminRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/admin/rules", strings.NewReader(`{"id":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResetClient(t *testing.T) {
	engine := adminRouter(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("POST", "/api/admin/clients/user:cust-42/reset", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
