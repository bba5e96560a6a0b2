package dlp

import (
	"context"
	"time"

	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

// FrameworkSummary is the per-framework section of a compliance report.
type FrameworkSummary struct {
	Framework  constants.ComplianceFramework `json:"framework"`
	Status     constants.ComplianceStatus    `json:"status"`
	Violations int64                         `json:"violations"`
	DataTypes  []constants.DataType          `json:"dataTypes"`
}

// ComplianceReport summarizes recorded violations over a window, grouped by
// the regulatory frameworks the matched data types fall under.
type ComplianceReport struct {
	From             time.Time                    `json:"from"`
	To               time.Time                    `json:"to"`
	GeneratedAt      time.Time                    `json:"generatedAt"`
	TotalViolations  int64                        `json:"totalViolations"`
	AverageRiskScore float64                      `json:"averageRiskScore"`
	EventCount       int64                        `json:"eventCount"`
	Frameworks       []FrameworkSummary           `json:"frameworks"`
	BySeverity       map[constants.Severity]int64 `json:"bySeverity"`
}

// ComplianceReporter builds reports from the audit query store and the
// framework tags of the active pattern table.
type ComplianceReporter struct {
	query service.AuditQuery
	lib   *Library
	log   logger.Logger
}

// NewComplianceReporter wires a reporter over the audit store.
func NewComplianceReporter(query service.AuditQuery, lib *Library, log logger.Logger) *ComplianceReporter {
	return &ComplianceReporter{
		query: query,
		lib:   lib,
		log:   log.WithComponent("compliance_reporter"),
	}
}

// Generate builds a report for [from, to). A framework with zero violations
// is COMPLIANT, below the minor-issue threshold MINOR_ISSUES, otherwise
// NON_COMPLIANT.
func (r *ComplianceReporter) Generate(ctx context.Context, from, to time.Time) (*ComplianceReport, error) {
	if !to.After(from) {
		return nil, errors.ErrInvalidRequest("report window end must be after start")
	}

	counts, err := r.query.CountViolations(ctx, from, to)
	if err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeServerError, "failed to aggregate violations")
	}
	avg, events, err := r.query.AverageRiskScore(ctx, from, to)
	if err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeServerError, "failed to compute average risk score")
	}

	report := &ComplianceReport{
		From:             from,
		To:               to,
		GeneratedAt:      time.Now().UTC(),
		AverageRiskScore: avg,
		EventCount:       events,
		BySeverity:       make(map[constants.Severity]int64),
	}

	byType := make(map[constants.DataType]int64)
	for _, c := range counts {
		report.TotalViolations += c.Count
		report.BySeverity[c.Severity] += c.Count
		byType[c.DataType] += c.Count
	}

	frameworkTypes := r.lib.FrameworkDataTypes()
	for _, fw := range []constants.ComplianceFramework{
		constants.FrameworkPCIDSS,
		constants.FrameworkGDPR,
		constants.FrameworkCCPA,
		constants.FrameworkHIPAA,
		constants.FrameworkSOC2,
	} {
		types := frameworkTypes[fw]
		var total int64
		var seen []constants.DataType
		for _, t := range types {
			if n := byType[t]; n > 0 {
				total += n
				seen = append(seen, t)
			}
		}
		report.Frameworks = append(report.Frameworks, FrameworkSummary{
			Framework:  fw,
			Status:     frameworkStatus(total),
			Violations: total,
			DataTypes:  seen,
		})
	}

	r.log.Info(ctx, "compliance report generated",
		logger.Time("from", from),
		logger.Time("to", to),
		logger.Int64("total_violations", report.TotalViolations))
	return report, nil
}

func frameworkStatus(violations int64) constants.ComplianceStatus {
	switch {
	case violations == 0:
		return constants.ComplianceStatusCompliant
	case violations < constants.ComplianceMinorIssueThreshold:
		return constants.ComplianceStatusMinorIssues
	default:
		return constants.ComplianceStatusNonCompliant
	}
}
