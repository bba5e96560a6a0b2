package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/dlp"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/infrastructure/monitoring"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

// captureAudit records events for assertions.
type captureAudit struct {
	mu     sync.Mutex
	events []*models.AuditEvent
}

func (a *captureAudit) Record(ctx context.Context, event *models.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *captureAudit) Close() error { return nil }

func (a *captureAudit) Events() []*models.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*models.AuditEvent{}, a.events...)
}

func dlpTestConfig() *config.DLPConfig {
	return &config.DLPConfig{
		Enabled:             true,
		RedactSensitiveData: true,
		ScanResponses:       true,
		ExemptPaths:         []string{"/health/*", "/metrics"},
	}
}

func securityTestRouter(t *testing.T, cfg *config.DLPConfig, audit *captureAudit, handler gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	lib := dlp.NewLibrary(logger.NewNoopLogger())
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	scanner, err := dlp.NewScanner(lib, nil, metrics, logger.NewNoopLogger())
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(SecurityMiddleware(scanner, audit, metrics, cfg, logger.NewNoopLogger()))
	engine.POST("/api/orders", handler)
	engine.GET("/api/profile", handler)
	engine.GET("/health/live", handler)
	return engine
}

func TestSecurityBlocksSSNRequest(t *testing.T) {
	audit := &captureAudit{}
	engine := securityTestRouter(t, dlpTestConfig(), audit, func(c *gin.Context) {
		t.Fatal("handler must not run for a blocked request")
	})

	req := httptest.NewRequest("POST", "/api/orders", strings.NewReader(`{"ssn":"078-05-1120"}`))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)

	var body struct {
		Error      string   `json:"error"`
		Code       string   `json:"code"`
		Violations []string `json:"violations"`
		Reference  string   `json:"reference"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(constants.ErrCodeDLPViolation), body.Code)
	assert.NotEmpty(t, body.Violations)
	assert.Regexp(t, `^DLP-`, body.Reference)
	// The raw SSN never appears in the response.
	assert.NotContains(t, w.Body.String(), "078-05-1120")

	events := audit.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, constants.AuditEventRequestBlocked, events[0].EventType)
	assert.Equal(t, constants.OutcomeBlocked, events[0].Outcome)
}

func TestSecurityRedactsEmailAndForwards(t *testing.T) {
	audit := &captureAudit{}
	var seenBody string
	engine := securityTestRouter(t, dlpTestConfig(), audit, func(c *gin.Context) {
		data, _ := io.ReadAll(c.Request.Body)
		seenBody = string(data)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest("POST", "/api/orders", strings.NewReader(`{"contact":"hello@example.com"}`))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, seenBody, "hello@example.com", "handler must see the redacted body")
	assert.Contains(t, seenBody, "@example.com", "the domain survives redaction")

	events := audit.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, constants.AuditEventDLPViolation, events[0].EventType)
}

func TestSecurityReplacesLeakyResponse(t *testing.T) {
	audit := &captureAudit{}
	engine := securityTestRouter(t, dlpTestConfig(), audit, func(c *gin.Context) {
		c.Header("Content-Type", "application/json")
		c.String(http.StatusOK, `{"card":"4532015112830366"}`)
	})

	req := httptest.NewRequest("GET", "/api/profile", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "4532015112830366")
	assert.Contains(t, w.Body.String(), "reference")

	var blocked bool
	for _, e := range audit.Events() {
		if e.EventType == constants.AuditEventResponseBlocked {
			blocked = true
		}
	}
	assert.True(t, blocked)
}

func TestSecurityRedactsMediumResponse(t *testing.T) {
	audit := &captureAudit{}
	engine := securityTestRouter(t, dlpTestConfig(), audit, func(c *gin.Context) {
		c.Header("Content-Type", "application/json")
		c.String(http.StatusOK, `{"contact":"hello@example.com"}`)
	})

	req := httptest.NewRequest("GET", "/api/profile", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "hello@example.com")
	assert.Contains(t, w.Body.String(), "h***@example.com")
}

func TestSecurityCleanTrafficUntouched(t *testing.T) {
	audit := &captureAudit{}
	engine := securityTestRouter(t, dlpTestConfig(), audit, func(c *gin.Context) {
		c.Header("Content-Type", "application/json")
		c.String(http.StatusOK, `{"items":[1,2,3]}`)
	})

	req := httptest.NewRequest("GET", "/api/profile", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[1,2,3]}`, w.Body.String())
	assert.Empty(t, audit.Events())
}

func TestSecurityExemptPathSkipsScan(t *testing.T) {
	audit := &captureAudit{}
	engine := securityTestRouter(t, dlpTestConfig(), audit, func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest("GET", "/health/live", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, audit.Events())
}

func TestSecurityDisabledPassesThrough(t *testing.T) {
	cfg := dlpTestConfig()
	cfg.Enabled = false

	audit := &captureAudit{}
	engine := securityTestRouter(t, cfg, audit, func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest("POST", "/api/orders", strings.NewReader(`{"ssn":"078-05-1120"}`))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, audit.Events())
}
