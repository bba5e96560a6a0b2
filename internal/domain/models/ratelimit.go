package models

import (
	"encoding/json"
	"time"

	"github.com/turtacn/aegis/pkg/constants"
)

// RateLimitRule describes one limiting policy. Rules are immutable after
// registration; changes happen only through explicit add/remove.
type RateLimitRule struct {
	ID          string
	PathPattern string // glob, * and ? wildcards
	UserTypes   []constants.UserType
	Window      time.Duration
	MaxRequests int
	Strategy    constants.LimitStrategy
	Priority    int
	Active      bool
}

// ruleWire is the JSON shape of a rule; the window travels in milliseconds.
type ruleWire struct {
	ID          string                  `json:"id"`
	PathPattern string                  `json:"pathPattern"`
	UserTypes   []constants.UserType    `json:"applicableUserTypes"`
	WindowMs    int64                   `json:"windowMs"`
	MaxRequests int                     `json:"maxRequests"`
	Strategy    constants.LimitStrategy `json:"strategy"`
	Priority    int                     `json:"priority"`
	Active      bool                    `json:"active"`
}

func (r RateLimitRule) MarshalJSON() ([]byte, error) {
	return json.Marshal(ruleWire{
		ID:          r.ID,
		PathPattern: r.PathPattern,
		UserTypes:   r.UserTypes,
		WindowMs:    r.Window.Milliseconds(),
		MaxRequests: r.MaxRequests,
		Strategy:    r.Strategy,
		Priority:    r.Priority,
		Active:      r.Active,
	})
}

func (r *RateLimitRule) UnmarshalJSON(data []byte) error {
	var w ruleWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.ID = w.ID
	r.PathPattern = w.PathPattern
	r.UserTypes = w.UserTypes
	r.Window = time.Duration(w.WindowMs) * time.Millisecond
	r.MaxRequests = w.MaxRequests
	r.Strategy = w.Strategy
	r.Priority = w.Priority
	r.Active = w.Active
	return nil
}

// AppliesTo reports whether the rule covers the given user type.
func (r *RateLimitRule) AppliesTo(userType constants.UserType) bool {
	for _, ut := range r.UserTypes {
		if ut == userType {
			return true
		}
	}
	return false
}

// RequestRecord is one observed request in a client's history.
type RequestRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}

// ClientState is the per-client limiter state, keyed by client key
// (user:<id> or anon:<fingerprint>). Mutation must be serialized per key by
// the caller; the struct itself carries no lock so it can round-trip through
// external stores.
type ClientState struct {
	Key            string          `json:"key"`
	Records        []RequestRecord `json:"records"`
	Tokens         float64         `json:"tokens"`
	LastRefill     time.Time       `json:"lastRefillTime"`
	SuspicionLevel int             `json:"suspicionLevel"`
	Blocked        bool            `json:"blocked"`
	BlockExpiresAt time.Time       `json:"blockExpiresAt"`
	LastSeen       time.Time       `json:"lastSeen"`
}

// NewClientState creates state for a client seen for the first time.
// LastRefill stays zero until the token-bucket strategy first touches the
// state, which is how the bucket knows to start full.
func NewClientState(key string, now time.Time) *ClientState {
	return &ClientState{
		Key:      key,
		Records:  make([]RequestRecord, 0, 8),
		LastSeen: now,
	}
}

// CountSince returns the number of records with Timestamp >= cutoff.
func (s *ClientState) CountSince(cutoff time.Time) int {
	count := 0
	for _, r := range s.Records {
		if !r.Timestamp.Before(cutoff) {
			count++
		}
	}
	return count
}

// CountAfter returns the number of records with Timestamp > cutoff.
func (s *ClientState) CountAfter(cutoff time.Time) int {
	count := 0
	for _, r := range s.Records {
		if r.Timestamp.After(cutoff) {
			count++
		}
	}
	return count
}

// OldestAfter returns the oldest record newer than cutoff, if any.
func (s *ClientState) OldestAfter(cutoff time.Time) (RequestRecord, bool) {
	for _, r := range s.Records {
		if r.Timestamp.After(cutoff) {
			return r, true
		}
	}
	return RequestRecord{}, false
}

// Prune discards records older than cutoff. Block state always survives
// pruning: a blocked client with an empty history is still blocked.
func (s *ClientState) Prune(cutoff time.Time) {
	if len(s.Records) == 0 {
		return
	}
	kept := s.Records[:0]
	for _, r := range s.Records {
		if !r.Timestamp.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	s.Records = kept
}

// BlockActive reports whether a block is in force at the given instant.
func (s *ClientState) BlockActive(now time.Time) bool {
	return s.Blocked && now.Before(s.BlockExpiresAt)
}

// ClearExpiredBlock resets block state once the expiry has lapsed.
func (s *ClientState) ClearExpiredBlock(now time.Time) {
	if s.Blocked && !now.Before(s.BlockExpiresAt) {
		s.Blocked = false
		s.BlockExpiresAt = time.Time{}
	}
}

// RateLimitStatus is the outcome of a single rate-limit check.
type RateLimitStatus struct {
	RuleID            string        `json:"ruleId"`
	Limit             int           `json:"limit"`
	TotalRequests     int           `json:"totalRequests"`
	RemainingRequests int           `json:"remainingRequests"`
	ResetAt           time.Time     `json:"resetTime"`
	Limited           bool          `json:"limited"`
	RetryAfter        time.Duration `json:"retryAfterSeconds,omitempty"`
}
