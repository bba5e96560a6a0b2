package dlp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

// stubAuditQuery returns canned aggregates.
type stubAuditQuery struct {
	counts []service.ViolationCount
	avg    float64
	events int64
	err    error
}

func (s *stubAuditQuery) CountViolations(ctx context.Context, from, to time.Time) ([]service.ViolationCount, error) {
	return s.counts, s.err
}

func (s *stubAuditQuery) AverageRiskScore(ctx context.Context, from, to time.Time) (float64, int64, error) {
	return s.avg, s.events, s.err
}

func newReporter(q service.AuditQuery) *ComplianceReporter {
	return NewComplianceReporter(q, NewLibrary(logger.NewNoopLogger()), logger.NewNoopLogger())
}

func TestGenerateReportStatuses(t *testing.T) {
	query := &stubAuditQuery{
		counts: []service.ViolationCount{
			// 7 card exposures push PCI-DSS past the minor-issue threshold.
			{DataType: constants.DataTypeCreditCard, Severity: constants.SeverityCritical, Count: 7},
			// 2 emails leave GDPR and CCPA with minor issues.
			{DataType: constants.DataTypeEmail, Severity: constants.SeverityMedium, Count: 2},
		},
		avg:    54.5,
		events: 9,
	}
	reporter := newReporter(query)

	to := time.Now().UTC()
	report, err := reporter.Generate(context.Background(), to.AddDate(0, 0, -7), to)
	require.NoError(t, err)

	assert.Equal(t, int64(9), report.TotalViolations)
	assert.InDelta(t, 54.5, report.AverageRiskScore, 1e-9)
	assert.Equal(t, int64(9), report.EventCount)
	assert.Equal(t, int64(7), report.BySeverity[constants.SeverityCritical])
	assert.Equal(t, int64(2), report.BySeverity[constants.SeverityMedium])

	statuses := make(map[constants.ComplianceFramework]constants.ComplianceStatus)
	violations := make(map[constants.ComplianceFramework]int64)
	for _, fw := range report.Frameworks {
		statuses[fw.Framework] = fw.Status
		violations[fw.Framework] = fw.Violations
	}

	assert.Equal(t, constants.ComplianceStatusNonCompliant, statuses[constants.FrameworkPCIDSS])
	assert.Equal(t, int64(7), violations[constants.FrameworkPCIDSS])
	assert.Equal(t, constants.ComplianceStatusMinorIssues, statuses[constants.FrameworkGDPR])
	assert.Equal(t, constants.ComplianceStatusMinorIssues, statuses[constants.FrameworkCCPA])
	assert.Equal(t, constants.ComplianceStatusCompliant, statuses[constants.FrameworkHIPAA])
}

func TestGenerateReportEmptyWindowIsCompliant(t *testing.T) {
	reporter := newReporter(&stubAuditQuery{})

	to := time.Now().UTC()
	report, err := reporter.Generate(context.Background(), to.Add(-time.Hour), to)
	require.NoError(t, err)

	assert.Zero(t, report.TotalViolations)
	for _, fw := range report.Frameworks {
		assert.Equal(t, constants.ComplianceStatusCompliant, fw.Status, string(fw.Framework))
	}
}

func TestGenerateReportRejectsInvertedWindow(t *testing.T) {
	reporter := newReporter(&stubAuditQuery{})

	now := time.Now().UTC()
	_, err := reporter.Generate(context.Background(), now, now.Add(-time.Hour))
	assert.Error(t, err)
}

func TestGenerateReportPropagatesStoreError(t *testing.T) {
	reporter := newReporter(&stubAuditQuery{err: assert.AnError})

	to := time.Now().UTC()
	_, err := reporter.Generate(context.Background(), to.Add(-time.Hour), to)
	assert.Error(t, err)
}
