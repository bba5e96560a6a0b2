// Package service composes the domain scanners and policies into the
// operations the interface layer calls.
package service

import (
	"context"
	"fmt"

	"github.com/turtacn/aegis/internal/dlp"
	"github.com/turtacn/aegis/internal/domain/models"
	domainservice "github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/internal/infrastructure/monitoring"
	"github.com/turtacn/aegis/internal/infrastructure/quarantine"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

// FileScanOutcome reports what happened to one uploaded file.
type FileScanOutcome struct {
	Result       *models.ScanResult
	Reference    string
	Quarantined  bool
	QuarantineID string
}

// EmailContent is an outbound email presented for inspection.
type EmailContent struct {
	To      []string
	Subject string
	Body    string
}

// InspectionService applies DLP policy to the non-HTTP surfaces: file
// uploads, outbound email, and database writes. HTTP request and response
// policy lives in the middleware.
type InspectionService struct {
	scanner        domainservice.ContentScanner
	audit          domainservice.AuditService
	quarantine     *quarantine.FSStore
	metrics        *monitoring.Metrics
	autoQuarantine bool
	log            logger.Logger
}

// NewInspectionService wires the service. The quarantine store may be nil
// when auto-quarantine is disabled.
func NewInspectionService(
	scanner domainservice.ContentScanner,
	audit domainservice.AuditService,
	quarantineStore *quarantine.FSStore,
	metrics *monitoring.Metrics,
	autoQuarantine bool,
	log logger.Logger,
) *InspectionService {
	return &InspectionService{
		scanner:        scanner,
		audit:          audit,
		quarantine:     quarantineStore,
		metrics:        metrics,
		autoQuarantine: autoQuarantine,
		log:            log.WithComponent("inspection_service"),
	}
}

// ScanFileUpload scans an uploaded file. Every violation is audited; when
// auto-quarantine is on the file is also moved aside for review. Scanner
// failures admit the file (fail open) with a logged error.
func (s *InspectionService) ScanFileUpload(ctx context.Context, filename, content, userID string) (*FileScanOutcome, error) {
	result, err := s.scanner.ScanFile(ctx, filename, content)
	if err != nil {
		s.log.Error(ctx, "file scan failed, admitting upload", err,
			logger.String("filename", filename))
		return &FileScanOutcome{Result: &models.ScanResult{}}, nil
	}

	outcome := &FileScanOutcome{Result: result}
	if !result.HasViolations {
		return outcome, nil
	}

	outcome.Reference = dlp.NewIncidentReference()
	dataTypes := typeStrings(result.DataTypes())

	if s.autoQuarantine && s.quarantine != nil {
		entry, qErr := s.quarantine.Quarantine(ctx, filename, content, outcome.Reference, result.RiskScore, dataTypes)
		if qErr != nil {
			s.log.Error(ctx, "quarantine failed", qErr,
				logger.String("filename", filename),
				logger.String("reference", outcome.Reference))
		} else {
			outcome.Quarantined = true
			outcome.QuarantineID = entry.ID
			s.metrics.RecordContentBlocked("file")
		}
	}

	eventType := constants.AuditEventDLPViolation
	if outcome.Quarantined {
		eventType = constants.AuditEventFileQuarantined
	}
	s.audit.Record(ctx, models.NewAuditEvent(
		eventType,
		highestSeverity(result),
		"inspection.scan_file",
		outcomeOf(outcome.Quarantined),
	).
		WithResource("file", filename).
		WithActor(userID, "", "").
		WithRiskScore(result.RiskScore).
		WithDetail("reference", outcome.Reference).
		WithDetail("data_types", dataTypes).
		WithDetail("match_count", len(result.Matches)))

	return outcome, nil
}

// ScanEmail inspects an outbound email (subject and body together). A policy
// hit returns an error the mailer must surface as a failed send.
func (s *InspectionService) ScanEmail(ctx context.Context, email EmailContent) (*models.ScanResult, error) {
	content := email.Subject + "\n" + email.Body
	result, err := s.scanner.ScanContent(ctx, content, models.ScanContext{
		Source:   "email",
		Resource: fmt.Sprintf("recipients:%d", len(email.To)),
	})
	if err != nil {
		s.log.Error(ctx, "email scan failed, admitting send", err)
		return &models.ScanResult{}, nil
	}

	if !dlp.ShouldBlockEmail(result) {
		return result, nil
	}

	reference := dlp.NewIncidentReference()
	result.BlockedContent = dlp.BlockedRendering(reference)
	dataTypes := typeStrings(result.DataTypes())
	s.metrics.RecordContentBlocked("email")
	s.audit.Record(ctx, models.NewAuditEvent(
		constants.AuditEventEmailBlocked,
		constants.SeverityCritical,
		"inspection.scan_email",
		constants.OutcomeBlocked,
	).
		WithResource("email", email.Subject).
		WithRiskScore(result.RiskScore).
		WithDetail("reference", reference).
		WithDetail("data_types", dataTypes).
		WithDetail("recipient_count", len(email.To)))

	return result, errors.ErrEmailBlocked(reference, dataTypes)
}

// ScanDatabaseWrite inspects a value bound for persistence. Database writes
// are never blocked, only flagged, since the application may legitimately
// store data the patterns match.
func (s *InspectionService) ScanDatabaseWrite(ctx context.Context, table, column, value string) (*models.ScanResult, error) {
	result, err := s.scanner.ScanContent(ctx, value, models.ScanContext{
		Source:   "database",
		Resource: table + "." + column,
	})
	if err != nil {
		s.log.Error(ctx, "database write scan failed", err,
			logger.String("table", table))
		return &models.ScanResult{}, nil
	}

	if result.HasViolations {
		s.audit.Record(ctx, models.NewAuditEvent(
			constants.AuditEventDatabaseFlagged,
			highestSeverity(result),
			"inspection.scan_database_write",
			constants.OutcomeSuccess,
		).
			WithResource("column", table+"."+column).
			WithRiskScore(result.RiskScore).
			WithDetail("data_types", typeStrings(result.DataTypes())))
	}
	return result, nil
}

func typeStrings(types []constants.DataType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}

func highestSeverity(result *models.ScanResult) constants.Severity {
	rank := map[constants.Severity]int{
		constants.SeverityLow:      0,
		constants.SeverityMedium:   1,
		constants.SeverityHigh:     2,
		constants.SeverityCritical: 3,
	}
	highest := constants.SeverityLow
	for _, m := range result.Matches {
		if rank[m.Severity] > rank[highest] {
			highest = m.Severity
		}
	}
	return highest
}

func outcomeOf(blocked bool) constants.Outcome {
	if blocked {
		return constants.OutcomeBlocked
	}
	return constants.OutcomeSuccess
}
