// Package constants defines shared enumerations and tunable defaults for the
// Aegis request-inspection service.
package constants

import "time"

// ================================================================================
// Log Levels
// ================================================================================

// LogLevel represents the severity of a log entry.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

// ================================================================================
// Error Codes
// ================================================================================

// ErrorCode identifies a class of application error.
type ErrorCode string

const (
	ErrCodeInvalidRequest     ErrorCode = "invalid_request"
	ErrCodeForbidden          ErrorCode = "forbidden"
	ErrCodeNotFound           ErrorCode = "not_found"
	ErrCodeRateLimitExceeded  ErrorCode = "rate_limit_exceeded"
	ErrCodeDLPViolation       ErrorCode = "dlp_violation"
	ErrCodeServerError        ErrorCode = "server_error"
	ErrCodeServiceUnavailable ErrorCode = "service_unavailable"
)

// ================================================================================
// User Types
// ================================================================================

// UserType classifies the caller of a request for rule matching.
type UserType string

const (
	UserTypeAnonymous UserType = "anonymous"
	UserTypeCustomer  UserType = "customer"
	UserTypePartner   UserType = "partner"
	UserTypeAdmin     UserType = "admin"
)

// AuthenticatedUserTypes lists every user type that carries a session.
var AuthenticatedUserTypes = []UserType{UserTypeCustomer, UserTypePartner, UserTypeAdmin}

// AllUserTypes lists every known user type.
var AllUserTypes = []UserType{UserTypeAnonymous, UserTypeCustomer, UserTypePartner, UserTypeAdmin}

// ================================================================================
// Rate Limiting
// ================================================================================

// LimitStrategy selects the algorithm applied by a rate limit rule.
type LimitStrategy string

const (
	StrategyFixedWindow   LimitStrategy = "fixed"
	StrategySlidingWindow LimitStrategy = "sliding"
	StrategyTokenBucket   LimitStrategy = "token_bucket"
)

// Rate limiter defaults. The abuse thresholds count requests observed in the
// trailing 60 seconds, independent of any per-rule window.
const (
	DefaultSuspiciousThreshold = 60
	DefaultBlockThreshold      = 120
	DefaultBlockDuration       = 30 * time.Minute
	DefaultSweepInterval       = 5 * time.Minute
	DefaultStateRetention      = 24 * time.Hour
	AbuseObservationWindow     = 60 * time.Second
	MaxSuspicionLevel          = 100
	SuspicionRaiseStep         = 10
	SuspicionDecayStep         = 1
)

// ================================================================================
// DLP Data Types
// ================================================================================

// DataType identifies the class of sensitive data a pattern detects.
type DataType string

const (
	DataTypeCreditCard     DataType = "CREDIT_CARD"
	DataTypeSSN            DataType = "SSN"
	DataTypeEmail          DataType = "EMAIL"
	DataTypePhoneNumber    DataType = "PHONE_NUMBER"
	DataTypeAPIKey         DataType = "API_KEY"
	DataTypeAWSAccessKey   DataType = "AWS_ACCESS_KEY"
	DataTypeEncryptionKey  DataType = "ENCRYPTION_KEY"
	DataTypeDBConnection   DataType = "DATABASE_CONNECTION"
	DataTypeIPAddress      DataType = "IP_ADDRESS"
	DataTypePersonalName   DataType = "PERSONAL_NAME"
	DataTypeIBAN           DataType = "IBAN"
)

// Severity grades how damaging an exposed match of a data type is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// SuggestedAction is the action a pattern recommends for its matches.
type SuggestedAction string

const (
	ActionLog        SuggestedAction = "LOG"
	ActionBlock      SuggestedAction = "BLOCK"
	ActionRedact     SuggestedAction = "REDACT"
	ActionQuarantine SuggestedAction = "QUARANTINE"
	ActionAlert      SuggestedAction = "ALERT"
)

// Scanner tuning. Matches below ConfidenceFloor never reach risk scoring.
const (
	ConfidenceFloor        = 0.7
	MaxRiskScore           = 100
	ContextWindowRadius    = 100
	ReviewEscalationCount  = 5
	MaxEmailAddressLength  = 254
	ScanCacheTTL           = 30 * time.Second
	ScanCacheSweepInterval = 1 * time.Minute
)

// ================================================================================
// Compliance Frameworks
// ================================================================================

// ComplianceFramework names a regulatory framework tracked by reports.
type ComplianceFramework string

const (
	FrameworkPCIDSS ComplianceFramework = "PCI-DSS"
	FrameworkGDPR   ComplianceFramework = "GDPR"
	FrameworkCCPA   ComplianceFramework = "CCPA"
	FrameworkHIPAA  ComplianceFramework = "HIPAA"
	FrameworkSOC2   ComplianceFramework = "SOC2"
)

// ComplianceStatus is the coarse per-framework verdict of a report window.
type ComplianceStatus string

const (
	ComplianceStatusCompliant    ComplianceStatus = "COMPLIANT"
	ComplianceStatusMinorIssues  ComplianceStatus = "MINOR_ISSUES"
	ComplianceStatusNonCompliant ComplianceStatus = "NON_COMPLIANT"
)

// Violation count thresholds for the per-framework status.
const (
	ComplianceMinorIssueThreshold = 5
)

// ================================================================================
// Audit Events
// ================================================================================

// AuditEventType classifies a structured security event.
type AuditEventType string

const (
	AuditEventRateLimitExceeded AuditEventType = "RATE_LIMIT_EXCEEDED"
	AuditEventClientBlocked     AuditEventType = "CLIENT_BLOCKED"
	AuditEventDLPViolation      AuditEventType = "DLP_VIOLATION"
	AuditEventRequestBlocked    AuditEventType = "REQUEST_BLOCKED"
	AuditEventResponseBlocked   AuditEventType = "RESPONSE_BLOCKED"
	AuditEventEmailBlocked      AuditEventType = "EMAIL_BLOCKED"
	AuditEventFileQuarantined   AuditEventType = "FILE_QUARANTINED"
	AuditEventDatabaseFlagged   AuditEventType = "DATABASE_WRITE_FLAGGED"
	AuditEventSystemAccess      AuditEventType = "SYSTEM_ACCESS"
	AuditEventConfigChanged     AuditEventType = "CONFIG_CHANGED"
)

// Outcome records how an audited operation concluded.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
	OutcomeBlocked Outcome = "BLOCKED"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is the type used for request-scoped context values.
type ContextKey string

const (
	ContextKeyRequestID ContextKey = "request_id"
	ContextKeyClientKey ContextKey = "client_key"
	ContextKeyUserID    ContextKey = "user_id"
	ContextKeyUserType  ContextKey = "user_type"
)

// ================================================================================
// HTTP Headers
// ================================================================================

const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
	HeaderRequestID          = "X-Request-ID"
)

// ================================================================================
// Audit Dispatcher
// ================================================================================

const (
	DefaultAuditQueueSize     = 1024
	DefaultAuditWriteTimeout  = 5 * time.Second
	DefaultWebhookTimeout     = 3 * time.Second
)
