package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
)

func TestGlobToRegexp(t *testing.T) {
	cases := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/api/auth/*", "/api/auth/login", true},
		{"/api/auth/*", "/api/auth/oauth/callback", true},
		{"/api/auth/*", "/api/authx", false},
		{"/api/auth/*", "/api/products", false},
		{"*", "/anything/at/all", true},
		{"/api/v?/items", "/api/v1/items", true},
		{"/api/v?/items", "/api/v12/items", false},
		{"/exact", "/exact", true},
		{"/exact", "/exact/sub", false},
	}
	for _, tc := range cases {
		re, err := globToRegexp(tc.pattern)
		require.NoError(t, err, tc.pattern)
		assert.Equal(t, tc.want, re.MatchString(tc.path), "%s vs %s", tc.pattern, tc.path)
	}
}

func TestRuleSetMatchPrefersPriority(t *testing.T) {
	rs, err := NewRuleSet()
	require.NoError(t, err)

	// /api/auth/* matches both auth-endpoints (p100) and anonymous-catchall
	// (p10) for anonymous traffic; priority decides.
	rule := rs.Match("/api/auth/login", constants.UserTypeAnonymous)
	assert.Equal(t, "auth-endpoints", rule.ID)

	// Authenticated customers skip the anonymous auth rule.
	rule = rs.Match("/api/auth/login", constants.UserTypeCustomer)
	assert.Equal(t, "customer-endpoints", rule.ID)
}

func TestRuleSetFallback(t *testing.T) {
	rs, err := NewRuleSet()
	require.NoError(t, err)

	// No default rule covers admins outside /api; the fallback applies.
	rule := rs.Match("/internal/debug", constants.UserTypeAdmin)
	assert.Equal(t, "default", rule.ID)
	assert.Equal(t, 60, rule.MaxRequests)
}

func TestRuleSetAddRemove(t *testing.T) {
	rs, err := NewRuleSet()
	require.NoError(t, err)

	custom := models.RateLimitRule{
		ID:          "search-endpoints",
		PathPattern: "/api/search*",
		UserTypes:   []constants.UserType{constants.UserTypeCustomer},
		Window:      time.Minute,
		MaxRequests: 30,
		Strategy:    constants.StrategySlidingWindow,
		Priority:    95,
		Active:      true,
	}
	require.NoError(t, rs.Add(custom))

	rule := rs.Match("/api/search", constants.UserTypeCustomer)
	assert.Equal(t, "search-endpoints", rule.ID)

	// Duplicate ids are rejected.
	assert.Error(t, rs.Add(custom))

	require.NoError(t, rs.Remove("search-endpoints"))
	rule = rs.Match("/api/search", constants.UserTypeCustomer)
	assert.Equal(t, "customer-endpoints", rule.ID)

	assert.Error(t, rs.Remove("search-endpoints"))
}

func TestRuleSetRejectsInvalidRules(t *testing.T) {
	rs, err := NewRuleSet()
	require.NoError(t, err)

	assert.Error(t, rs.Add(models.RateLimitRule{PathPattern: "*", Window: time.Minute, MaxRequests: 1}))
	assert.Error(t, rs.Add(models.RateLimitRule{ID: "no-window", PathPattern: "*", MaxRequests: 1}))
	assert.Error(t, rs.Add(models.RateLimitRule{ID: "no-max", PathPattern: "*", Window: time.Minute}))
}

func TestInactiveRuleSkipped(t *testing.T) {
	rs, err := NewRuleSet()
	require.NoError(t, err)

	require.NoError(t, rs.Add(models.RateLimitRule{
		ID:          "disabled",
		PathPattern: "/api/disabled/*",
		UserTypes:   []constants.UserType{constants.UserTypeAnonymous},
		Window:      time.Minute,
		MaxRequests: 1,
		Strategy:    constants.StrategySlidingWindow,
		Priority:    200,
		Active:      false,
	}))

	rule := rs.Match("/api/disabled/thing", constants.UserTypeAnonymous)
	assert.Equal(t, "anonymous-catchall", rule.ID)
}
