package ratelimit

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/internal/infrastructure/monitoring"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

// lockStripes bounds the number of per-key mutexes. Two clients sharing a
// stripe serialize against each other, which is harmless; two requests for
// the same client always serialize, which is required.
const lockStripes = 128

// maxRecordsBeforeInlinePrune caps history growth between sweeps.
const maxRecordsBeforeInlinePrune = 1024

// Limiter applies per-rule limiting plus the shared abuse-detection layer.
type Limiter struct {
	store   ClientStateStore
	rules   *RuleSet
	clock   Clock
	cfg     *config.RateLimitConfig
	audit   service.AuditService
	metrics *monitoring.Metrics
	log     logger.Logger

	locks [lockStripes]chan struct{}
	done  chan struct{}
}

// NewLimiter creates a Limiter with the built-in default rules.
//
// Parameters:
//   - store: client state store (memory or redis)
//   - cfg: rate limit configuration
//   - clock: time source; SystemClock() in production
//   - audit: audit sink for block events; may be nil
//   - metrics: prometheus metrics; may be nil
//   - log: logger instance
func NewLimiter(
	store ClientStateStore,
	cfg *config.RateLimitConfig,
	clock Clock,
	audit service.AuditService,
	metrics *monitoring.Metrics,
	log logger.Logger,
) (*Limiter, error) {
	rules, err := NewRuleSet()
	if err != nil {
		return nil, err
	}

	l := &Limiter{
		store:   store,
		rules:   rules,
		clock:   clock,
		cfg:     cfg,
		audit:   audit,
		metrics: metrics,
		log:     log.WithComponent("rate_limiter"),
		done:    make(chan struct{}),
	}
	for i := range l.locks {
		l.locks[i] = make(chan struct{}, 1)
	}
	return l, nil
}

// Check applies the highest-priority matching rule, then the abuse-detection
// layer, to one request. It never returns an error: any internal failure is
// logged and the request is admitted, because a limiter outage must not
// become a denial of service against legitimate traffic.
func (l *Limiter) Check(ctx context.Context, in service.CheckInput) models.RateLimitStatus {
	now := l.clock.Now()
	rule := l.rules.Match(in.Path, in.UserType)
	key := l.clientKey(in)

	unlock := l.lockKey(key)
	defer unlock()

	state, err := l.store.Get(ctx, key)
	if err != nil {
		l.log.Error(ctx, "client state read failed, admitting request", err,
			logger.String("client_key", key))
		return l.openStatus(rule, now)
	}
	if state == nil {
		state = models.NewClientState(key, now)
	}
	state.LastSeen = now
	state.ClearExpiredBlock(now)

	// An active abuse block overrides every per-rule decision.
	if state.BlockActive(now) {
		state.Records = append(state.Records, models.RequestRecord{Timestamp: now, Success: false})
		l.put(ctx, state)
		retry := state.BlockExpiresAt.Sub(now)
		return models.RateLimitStatus{
			RuleID:            rule.ID,
			Limit:             rule.MaxRequests,
			TotalRequests:     state.CountAfter(now.Add(-rule.Window)),
			RemainingRequests: 0,
			ResetAt:           state.BlockExpiresAt,
			Limited:           true,
			RetryAfter:        retry,
		}
	}

	var status models.RateLimitStatus
	switch rule.Strategy {
	case constants.StrategyFixedWindow:
		status = l.checkFixedWindow(state, rule, now)
	case constants.StrategyTokenBucket:
		status = l.checkTokenBucket(state, rule, now)
	default:
		status = l.checkSlidingWindow(state, rule, now)
	}
	status.RuleID = rule.ID
	status.Limit = rule.MaxRequests

	state.Records = append(state.Records, models.RequestRecord{Timestamp: now, Success: !status.Limited})
	if len(state.Records) > maxRecordsBeforeInlinePrune {
		state.Prune(now.Add(-l.retention()))
	}

	// The abuse layer runs on every check, independent of the per-rule
	// decision, and can escalate to a temporary block.
	l.detectAbuse(ctx, state, in, now)
	if state.BlockActive(now) {
		status.Limited = true
		status.RemainingRequests = 0
		status.ResetAt = state.BlockExpiresAt
		status.RetryAfter = state.BlockExpiresAt.Sub(now)
	}

	if status.Limited && l.metrics != nil {
		l.metrics.RecordRateLimitHit(rule.ID)
	}

	l.put(ctx, state)
	return status
}

// checkFixedWindow partitions time into epoch-aligned buckets of the rule's
// window and counts requests in the current bucket.
func (l *Limiter) checkFixedWindow(state *models.ClientState, rule models.RateLimitRule, now time.Time) models.RateLimitStatus {
	windowMs := rule.Window.Milliseconds()
	bucketStart := time.UnixMilli((now.UnixMilli() / windowMs) * windowMs)
	resetAt := bucketStart.Add(rule.Window)

	count := state.CountSince(bucketStart)
	limited := count >= rule.MaxRequests

	status := models.RateLimitStatus{
		TotalRequests: count,
		ResetAt:       resetAt,
		Limited:       limited,
	}
	if limited {
		status.RetryAfter = resetAt.Sub(now)
	} else {
		status.TotalRequests = count + 1
	}
	status.RemainingRequests = rule.MaxRequests - status.TotalRequests
	if status.RemainingRequests < 0 {
		status.RemainingRequests = 0
	}
	return status
}

// checkSlidingWindow counts requests in the trailing window with no bucket
// alignment. The reset time is when the oldest in-window request ages out.
func (l *Limiter) checkSlidingWindow(state *models.ClientState, rule models.RateLimitRule, now time.Time) models.RateLimitStatus {
	cutoff := now.Add(-rule.Window)
	count := state.CountAfter(cutoff)
	limited := count >= rule.MaxRequests

	resetAt := now.Add(rule.Window)
	if oldest, ok := state.OldestAfter(cutoff); ok {
		resetAt = oldest.Timestamp.Add(rule.Window)
	}

	status := models.RateLimitStatus{
		TotalRequests: count,
		ResetAt:       resetAt,
		Limited:       limited,
	}
	if limited {
		status.RetryAfter = resetAt.Sub(now)
		if status.RetryAfter < 0 {
			status.RetryAfter = 0
		}
	} else {
		status.TotalRequests = count + 1
	}
	status.RemainingRequests = rule.MaxRequests - status.TotalRequests
	if status.RemainingRequests < 0 {
		status.RemainingRequests = 0
	}
	return status
}

// checkTokenBucket refills continuously at maxRequests per window and
// consumes one token per admitted request.
func (l *Limiter) checkTokenBucket(state *models.ClientState, rule models.RateLimitRule, now time.Time) models.RateLimitStatus {
	capacity := float64(rule.MaxRequests)
	rate := capacity / rule.Window.Seconds()

	tokens := state.Tokens
	if state.LastRefill.IsZero() {
		tokens = capacity
	} else {
		elapsed := now.Sub(state.LastRefill).Seconds()
		tokens += elapsed * rate
		if tokens > capacity {
			tokens = capacity
		}
	}
	state.LastRefill = now

	limited := tokens < 1
	if !limited {
		tokens--
	}
	state.Tokens = tokens

	status := models.RateLimitStatus{
		TotalRequests:     rule.MaxRequests - int(tokens),
		RemainingRequests: int(tokens),
		Limited:           limited,
	}
	if tokens < capacity {
		status.ResetAt = now.Add(time.Duration((capacity - tokens) / rate * float64(time.Second)))
	} else {
		status.ResetAt = now
	}
	if limited {
		status.RetryAfter = time.Duration((1 - tokens) / rate * float64(time.Second))
	}
	return status
}

// detectAbuse runs after every admission decision. It tracks request volume
// over the trailing 60 seconds: sustained high volume raises the suspicion
// level, and crossing the block threshold imposes a temporary block that is
// reported as a HIGH-severity audit event. Failures in the audit path are
// swallowed; abuse bookkeeping must never fail the request.
func (l *Limiter) detectAbuse(ctx context.Context, state *models.ClientState, in service.CheckInput, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error(ctx, "abuse detection panicked", fmt.Errorf("%v", r),
				logger.String("client_key", state.Key))
		}
	}()

	recent := state.CountAfter(now.Add(-constants.AbuseObservationWindow))

	if recent > l.cfg.SuspiciousThreshold {
		state.SuspicionLevel += constants.SuspicionRaiseStep
		if state.SuspicionLevel > constants.MaxSuspicionLevel {
			state.SuspicionLevel = constants.MaxSuspicionLevel
		}
	} else if state.SuspicionLevel > 0 {
		state.SuspicionLevel -= constants.SuspicionDecayStep
		if state.SuspicionLevel < 0 {
			state.SuspicionLevel = 0
		}
	}

	if recent > l.cfg.BlockThreshold && !state.Blocked {
		state.Blocked = true
		state.BlockExpiresAt = now.Add(l.cfg.BlockDuration)

		l.log.Warn(ctx, "client blocked for abusive request volume",
			logger.String("client_key", state.Key),
			logger.Int("requests_last_60s", recent),
			logger.Time("block_expires_at", state.BlockExpiresAt))

		if l.metrics != nil {
			l.metrics.RecordClientBlocked()
		}
		if l.audit != nil {
			event := models.NewAuditEvent(
				constants.AuditEventClientBlocked,
				constants.SeverityHigh,
				"rate_limiter.block_client",
				constants.OutcomeBlocked,
			).
				WithActor(in.UserID, in.ClientIP, in.UserAgent).
				WithResource("client", state.Key).
				WithDetail("requests_last_60s", recent).
				WithDetail("suspicion_level", state.SuspicionLevel).
				WithDetail("block_expires_at", state.BlockExpiresAt.UTC())
			l.audit.Record(ctx, event)
		}
	}
}

// AddRule registers a rule.
func (l *Limiter) AddRule(rule models.RateLimitRule) error {
	return l.rules.Add(rule)
}

// RemoveRule removes a rule by id.
func (l *Limiter) RemoveRule(id string) error {
	return l.rules.Remove(id)
}

// Rules returns the registered rules ordered by descending priority.
func (l *Limiter) Rules() []models.RateLimitRule {
	return l.rules.All()
}

// ResetClient clears all limiter state for one client key.
func (l *Limiter) ResetClient(ctx context.Context, clientKey string) error {
	unlock := l.lockKey(clientKey)
	defer unlock()
	return l.store.Delete(ctx, clientKey)
}

// StartSweeper launches the background sweep that prunes request history
// older than the retention window and garbage-collects idle clients.
func (l *Limiter) StartSweeper() {
	interval := l.cfg.SweepInterval
	if interval <= 0 {
		interval = constants.DefaultSweepInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				removed, err := l.store.Sweep(ctx, l.clock.Now(), l.retention())
				cancel()
				if err != nil {
					l.log.Error(context.Background(), "state sweep failed", err)
				} else if removed > 0 {
					l.log.Debug(context.Background(), "swept idle clients",
						logger.Int("removed", removed))
				}
			}
		}
	}()
}

// Stop terminates the background sweeper.
func (l *Limiter) Stop() {
	close(l.done)
}

// clientKey resolves the identity used to bucket limiter state: the
// authenticated user id when present, otherwise a fingerprint of IP and
// User-Agent. Two user agents behind one IP are therefore tracked as two
// clients; see the rule table's per-type limits for why this is acceptable.
func (l *Limiter) clientKey(in service.CheckInput) string {
	if in.UserID != "" {
		return "user:" + in.UserID
	}
	ip := in.ClientIP
	if ip == "" {
		ip = "unknown"
	}
	h := fnv.New32a()
	h.Write([]byte(ip + "|" + in.UserAgent))
	return fmt.Sprintf("anon:%08x", h.Sum32())
}

// lockKey serializes all mutation for one client key.
func (l *Limiter) lockKey(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	stripe := l.locks[h.Sum32()%lockStripes]
	stripe <- struct{}{}
	return func() { <-stripe }
}

// openStatus is returned when internal bookkeeping fails: the request is
// admitted with the rule's nominal limits.
func (l *Limiter) openStatus(rule models.RateLimitRule, now time.Time) models.RateLimitStatus {
	return models.RateLimitStatus{
		RuleID:            rule.ID,
		Limit:             rule.MaxRequests,
		TotalRequests:     1,
		RemainingRequests: rule.MaxRequests - 1,
		ResetAt:           now.Add(rule.Window),
		Limited:           false,
	}
}

func (l *Limiter) put(ctx context.Context, state *models.ClientState) {
	if err := l.store.Put(ctx, state); err != nil {
		l.log.Error(ctx, "client state write failed", err,
			logger.String("client_key", state.Key))
	}
}

func (l *Limiter) retention() time.Duration {
	if l.cfg.Retention > 0 {
		return l.cfg.Retention
	}
	return constants.DefaultStateRetention
}
