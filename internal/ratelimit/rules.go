package ratelimit

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/errors"
)

// compiledRule pairs a rule with its compiled path matcher.
type compiledRule struct {
	rule models.RateLimitRule
	re   *regexp.Regexp
}

// globToRegexp compiles a glob pattern (* and ? wildcards) into an anchored
// regexp. * matches any run of characters including slashes.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

// RuleSet holds the registered rules in descending priority order plus the
// built-in fallback applied when nothing matches.
type RuleSet struct {
	mu       sync.RWMutex
	rules    []compiledRule
	fallback compiledRule
}

// DefaultRules returns the built-in rule table.
func DefaultRules() []models.RateLimitRule {
	return []models.RateLimitRule{
		{
			ID:          "auth-endpoints",
			PathPattern: "/api/auth/*",
			UserTypes:   []constants.UserType{constants.UserTypeAnonymous},
			Window:      15 * time.Minute,
			MaxRequests: 5,
			Strategy:    constants.StrategySlidingWindow,
			Priority:    100,
			Active:      true,
		},
		{
			ID:          "upload-endpoints",
			PathPattern: "/api/uploads/*",
			UserTypes:   constants.AuthenticatedUserTypes,
			Window:      time.Minute,
			MaxRequests: 10,
			Strategy:    constants.StrategyFixedWindow,
			Priority:    90,
			Active:      true,
		},
		{
			ID:          "admin-endpoints",
			PathPattern: "/api/admin/*",
			UserTypes:   []constants.UserType{constants.UserTypeAdmin},
			Window:      time.Minute,
			MaxRequests: 200,
			Strategy:    constants.StrategyTokenBucket,
			Priority:    80,
			Active:      true,
		},
		{
			ID:          "partner-endpoints",
			PathPattern: "/api/partner/*",
			UserTypes:   []constants.UserType{constants.UserTypePartner},
			Window:      time.Minute,
			MaxRequests: 100,
			Strategy:    constants.StrategySlidingWindow,
			Priority:    70,
			Active:      true,
		},
		{
			ID:          "customer-endpoints",
			PathPattern: "/api/*",
			UserTypes:   []constants.UserType{constants.UserTypeCustomer},
			Window:      time.Minute,
			MaxRequests: 60,
			Strategy:    constants.StrategySlidingWindow,
			Priority:    60,
			Active:      true,
		},
		{
			ID:          "anonymous-catchall",
			PathPattern: "*",
			UserTypes:   []constants.UserType{constants.UserTypeAnonymous},
			Window:      time.Minute,
			MaxRequests: 20,
			Strategy:    constants.StrategySlidingWindow,
			Priority:    10,
			Active:      true,
		},
	}
}

// fallbackRule applies when no registered rule matches the request.
func fallbackRule() models.RateLimitRule {
	return models.RateLimitRule{
		ID:          "default",
		PathPattern: "*",
		UserTypes:   constants.AllUserTypes,
		Window:      time.Minute,
		MaxRequests: 60,
		Strategy:    constants.StrategySlidingWindow,
		Priority:    0,
		Active:      true,
	}
}

// NewRuleSet creates a rule set preloaded with the built-in default rules.
func NewRuleSet() (*RuleSet, error) {
	rs := &RuleSet{}

	fb := fallbackRule()
	fbRe, err := globToRegexp(fb.PathPattern)
	if err != nil {
		return nil, err
	}
	rs.fallback = compiledRule{rule: fb, re: fbRe}

	for _, rule := range DefaultRules() {
		if err := rs.Add(rule); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

// Add registers a rule. The rule's path pattern is compiled once here.
func (rs *RuleSet) Add(rule models.RateLimitRule) error {
	if rule.ID == "" {
		return errors.ErrInvalidRequest("rule id is required")
	}
	if rule.MaxRequests <= 0 || rule.Window <= 0 {
		return errors.ErrInvalidRequest("rule must have positive window and max requests")
	}
	re, err := globToRegexp(rule.PathPattern)
	if err != nil {
		return errors.ErrInvalidRequest("invalid path pattern: " + err.Error())
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	for _, existing := range rs.rules {
		if existing.rule.ID == rule.ID {
			return errors.ErrInvalidRequest("rule already registered: " + rule.ID)
		}
	}

	rs.rules = append(rs.rules, compiledRule{rule: rule, re: re})
	sort.SliceStable(rs.rules, func(i, j int) bool {
		return rs.rules[i].rule.Priority > rs.rules[j].rule.Priority
	})
	return nil
}

// Remove deletes a rule by id.
func (rs *RuleSet) Remove(id string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for i, cr := range rs.rules {
		if cr.rule.ID == id {
			rs.rules = append(rs.rules[:i], rs.rules[i+1:]...)
			return nil
		}
	}
	return errors.ErrRuleNotFound(id)
}

// Match returns the highest-priority active rule whose path pattern matches
// and whose user types include the resolved type. Falls back to the built-in
// default rule.
func (rs *RuleSet) Match(path string, userType constants.UserType) models.RateLimitRule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	for _, cr := range rs.rules {
		if !cr.rule.Active {
			continue
		}
		if !cr.rule.AppliesTo(userType) {
			continue
		}
		if cr.re.MatchString(path) {
			return cr.rule
		}
	}
	return rs.fallback.rule
}

// All returns the registered rules ordered by descending priority.
func (rs *RuleSet) All() []models.RateLimitRule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	out := make([]models.RateLimitRule, 0, len(rs.rules))
	for _, cr := range rs.rules {
		out = append(out, cr.rule)
	}
	return out
}
