package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/dlp"
	"github.com/turtacn/aegis/internal/infrastructure/monitoring"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

func wrappedRouter(t *testing.T, cfg *config.DLPConfig, audit *captureAudit, handler gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	lib := dlp.NewLibrary(logger.NewNoopLogger())
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	scanner, err := dlp.NewScanner(lib, nil, metrics, logger.NewNoopLogger())
	require.NoError(t, err)

	engine := gin.New()
	engine.POST("/api/reviews", WrapRoute(handler, scanner, audit, metrics, cfg, logger.NewNoopLogger()))
	return engine
}

func TestWrapRouteRejectsViolationWith400(t *testing.T) {
	audit := &captureAudit{}
	engine := wrappedRouter(t, dlpTestConfig(), audit, func(c *gin.Context) {
		t.Fatal("handler must not run for a rejected request")
	})

	req := httptest.NewRequest("POST", "/api/reviews", strings.NewReader(`{"text":"my ssn is 078-05-1120"}`))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Code      string   `json:"code"`
		Reference string   `json:"reference"`
		Violation []string `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(constants.ErrCodeDLPViolation), body.Code)
	assert.Regexp(t, `^DLP-`, body.Reference)

	events := audit.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, constants.AuditEventRequestBlocked, events[0].EventType)
}

func TestWrapRouteRedactsAndInvokesHandler(t *testing.T) {
	audit := &captureAudit{}
	var seen string
	engine := wrappedRouter(t, dlpTestConfig(), audit, func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		seen = string(body)
		c.Status(http.StatusAccepted)
	})

	req := httptest.NewRequest("POST", "/api/reviews", strings.NewReader(`{"contact":"hello@example.com"}`))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.NotContains(t, seen, "hello@example.com")
	assert.Contains(t, seen, "h***@example.com")
}

func TestWrapRouteDisabledRunsHandlerDirectly(t *testing.T) {
	audit := &captureAudit{}
	engine := wrappedRouter(t, &config.DLPConfig{Enabled: false}, audit, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/api/reviews", strings.NewReader(`{"ssn":"078-05-1120"}`))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, audit.Events())
}
