// Package service defines the domain service contracts the infrastructure and
// interface layers depend on.
package service

import (
	"context"
	"net/http"
	"time"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
)

// CheckInput carries everything the rate limiter needs about one request.
type CheckInput struct {
	Path      string
	UserType  constants.UserType
	UserID    string // empty for anonymous traffic
	ClientIP  string
	UserAgent string
}

// RateLimitService decides whether a request is admitted.
type RateLimitService interface {
	// Check applies the highest-priority matching rule and the abuse
	// detection layer. It never returns an error to the caller; internal
	// failures are logged and the request is admitted (fail open).
	Check(ctx context.Context, in CheckInput) models.RateLimitStatus

	// AddRule registers a rule. Rules are immutable once registered.
	AddRule(rule models.RateLimitRule) error

	// RemoveRule removes a rule by id.
	RemoveRule(id string) error

	// Rules returns the registered rules ordered by descending priority.
	Rules() []models.RateLimitRule

	// ResetClient clears all limiter state for one client key.
	ResetClient(ctx context.Context, clientKey string) error
}

// ContentScanner detects sensitive data in arbitrary content.
type ContentScanner interface {
	// ScanContent scans a string and returns a deterministic result.
	ScanContent(ctx context.Context, content string, scanCtx models.ScanContext) (*models.ScanResult, error)

	// ScanRequest scans URL query, selected headers, and the body for
	// non-GET/HEAD requests. The request body is restored after reading.
	ScanRequest(ctx context.Context, r *http.Request) (*models.ScanResult, error)

	// ScanResponse scans a response body when its content type is scannable
	// (json, html, plain text, xml).
	ScanResponse(ctx context.Context, body string, contentType string, scanCtx models.ScanContext) (*models.ScanResult, error)

	// ScanFile scans file content prior to acceptance.
	ScanFile(ctx context.Context, path string, content string) (*models.ScanResult, error)
}

// AuditService accepts structured security events. Record must never block
// the request path; delivery is asynchronous and best effort.
type AuditService interface {
	Record(ctx context.Context, event *models.AuditEvent)
	Close() error
}

// ViolationCount is one aggregation bucket of audit events.
type ViolationCount struct {
	DataType constants.DataType
	Severity constants.Severity
	Count    int64
}

// AuditQuery reads back recorded events for compliance reporting.
type AuditQuery interface {
	// CountViolations aggregates DLP violation events in [from, to) by data
	// type and severity.
	CountViolations(ctx context.Context, from, to time.Time) ([]ViolationCount, error)

	// AverageRiskScore returns the mean risk score over DLP events in the
	// window, and the number of events considered.
	AverageRiskScore(ctx context.Context, from, to time.Time) (float64, int64, error)
}
