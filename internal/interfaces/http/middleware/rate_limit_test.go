package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

// stubLimiter returns a fixed status and records the input it saw.
type stubLimiter struct {
	status models.RateLimitStatus
	lastIn service.CheckInput
}

func (s *stubLimiter) Check(ctx context.Context, in service.CheckInput) models.RateLimitStatus {
	s.lastIn = in
	return s.status
}

func (s *stubLimiter) AddRule(rule models.RateLimitRule) error { return nil }
func (s *stubLimiter) RemoveRule(id string) error              { return nil }
func (s *stubLimiter) Rules() []models.RateLimitRule           { return nil }
func (s *stubLimiter) ResetClient(ctx context.Context, clientKey string) error {
	return nil
}

func rateLimitRouter(limiter service.RateLimitService, enabled bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RateLimitMiddleware(limiter, &config.RateLimitConfig{Enabled: enabled}, logger.NewNoopLogger()))
	engine.GET("/api/products", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return engine
}

func TestRateLimitHeadersOnAdmission(t *testing.T) {
	reset := time.Now().Add(30 * time.Second)
	limiter := &stubLimiter{status: models.RateLimitStatus{
		RuleID:            "customer-endpoints",
		Limit:             60,
		TotalRequests:     12,
		RemainingRequests: 48,
		ResetAt:           reset,
	}}
	engine := rateLimitRouter(limiter, true)

	req := httptest.NewRequest("GET", "/api/products", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get(constants.HeaderRateLimitLimit))
	assert.Equal(t, "48", w.Header().Get(constants.HeaderRateLimitRemaining))
	// The reset header carries epoch milliseconds, same unit as the 429 body.
	assert.Equal(t, strconv.FormatInt(reset.UnixMilli(), 10), w.Header().Get(constants.HeaderRateLimitReset))
}

func TestRateLimit429Shape(t *testing.T) {
	reset := time.Now().Add(45 * time.Second)
	limiter := &stubLimiter{status: models.RateLimitStatus{
		RuleID:            "auth-endpoints",
		Limit:             5,
		TotalRequests:     5,
		RemainingRequests: 0,
		ResetAt:           reset,
		Limited:           true,
		RetryAfter:        45 * time.Second,
	}}
	engine := rateLimitRouter(limiter, true)

	req := httptest.NewRequest("GET", "/api/products", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "45", w.Header().Get(constants.HeaderRetryAfter))
	assert.Equal(t, "0", w.Header().Get(constants.HeaderRateLimitRemaining))

	var body struct {
		Error         string `json:"error"`
		Message       string `json:"message"`
		RateLimitInfo struct {
			Limit      int   `json:"limit"`
			Remaining  int   `json:"remaining"`
			ResetTime  int64 `json:"resetTime"`
			RetryAfter int   `json:"retryAfter"`
		} `json:"rateLimitInfo"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(constants.ErrCodeRateLimitExceeded), body.Error)
	assert.Equal(t, 5, body.RateLimitInfo.Limit)
	assert.Equal(t, 45, body.RateLimitInfo.RetryAfter)
	assert.Equal(t, reset.UnixMilli(), body.RateLimitInfo.ResetTime)
}

func TestRateLimitRetryAfterNeverZero(t *testing.T) {
	limiter := &stubLimiter{status: models.RateLimitStatus{
		RuleID:     "auth-endpoints",
		Limit:      5,
		Limited:    true,
		RetryAfter: 10 * time.Millisecond,
	}}
	engine := rateLimitRouter(limiter, true)

	req := httptest.NewRequest("GET", "/api/products", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, "1", w.Header().Get(constants.HeaderRetryAfter))
}

func TestRateLimitDisabledBypassesLimiter(t *testing.T) {
	limiter := &stubLimiter{status: models.RateLimitStatus{Limited: true}}
	engine := rateLimitRouter(limiter, false)

	req := httptest.NewRequest("GET", "/api/products", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitPassesCallerIdentity(t *testing.T) {
	limiter := &stubLimiter{}
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Set(CtxUserID, "cust-42")
		c.Set(CtxUserType, string(constants.UserTypeCustomer))
	})
	engine.Use(RateLimitMiddleware(limiter, &config.RateLimitConfig{Enabled: true}, logger.NewNoopLogger()))
	engine.GET("/api/products", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest("GET", "/api/products", nil)
	req.Header.Set("User-Agent", "shop-app/2.1")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, "cust-42", limiter.lastIn.UserID)
	assert.Equal(t, constants.UserTypeCustomer, limiter.lastIn.UserType)
	assert.Equal(t, "/api/products", limiter.lastIn.Path)
	assert.Equal(t, "shop-app/2.1", limiter.lastIn.UserAgent)
}
