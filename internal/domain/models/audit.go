package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/aegis/pkg/constants"
)

// AuditEvent is a single structured security event. The sink contract is
// {eventType, severity, action, resource, details, outcome}; everything else
// is context the sinks may keep or drop.
type AuditEvent struct {
	EventID    uuid.UUID                `json:"eventId"`
	EventType  constants.AuditEventType `json:"eventType"`
	Severity   constants.Severity       `json:"severity"`
	Action     string                   `json:"action"`
	Resource   string                   `json:"resource,omitempty"`
	ResourceID string                   `json:"resourceId,omitempty"`
	UserID     string                   `json:"userId,omitempty"`
	ClientIP   string                   `json:"clientIp,omitempty"`
	UserAgent  string                   `json:"userAgent,omitempty"`
	Details    map[string]interface{}   `json:"details,omitempty"`
	Outcome    constants.Outcome        `json:"outcome"`
	RiskScore  int                      `json:"riskScore,omitempty"`
	Timestamp  time.Time                `json:"timestamp"`
}

// NewAuditEvent creates a new audit event with generated id and timestamp.
func NewAuditEvent(eventType constants.AuditEventType, severity constants.Severity, action string, outcome constants.Outcome) *AuditEvent {
	return &AuditEvent{
		EventID:   uuid.New(),
		EventType: eventType,
		Severity:  severity,
		Action:    action,
		Outcome:   outcome,
		Details:   make(map[string]interface{}),
		Timestamp: time.Now().UTC(),
	}
}

// WithResource sets the affected resource.
func (e *AuditEvent) WithResource(resource, resourceID string) *AuditEvent {
	e.Resource = resource
	e.ResourceID = resourceID
	return e
}

// WithActor sets the acting user and client context.
func (e *AuditEvent) WithActor(userID, clientIP, userAgent string) *AuditEvent {
	e.UserID = userID
	e.ClientIP = clientIP
	e.UserAgent = userAgent
	return e
}

// WithDetail adds one detail entry.
func (e *AuditEvent) WithDetail(key string, value interface{}) *AuditEvent {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithRiskScore attaches the DLP risk score that produced this event.
func (e *AuditEvent) WithRiskScore(score int) *AuditEvent {
	e.RiskScore = score
	return e
}
