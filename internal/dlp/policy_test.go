package dlp

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
)

func resultWith(matches ...models.Match) *models.ScanResult {
	return &models.ScanResult{
		HasViolations: len(matches) > 0,
		Matches:       matches,
	}
}

func match(dataType constants.DataType, severity constants.Severity) models.Match {
	return models.Match{DataType: dataType, Severity: severity, Confidence: 0.9}
}

func TestShouldBlockRequest(t *testing.T) {
	assert.True(t, ShouldBlockRequest(resultWith(match(constants.DataTypeCreditCard, constants.SeverityCritical))))
	assert.True(t, ShouldBlockRequest(resultWith(match(constants.DataTypeSSN, constants.SeverityCritical))))

	// Other critical types do not block requests unless the risk score says so.
	apiKey := resultWith(match(constants.DataTypeAPIKey, constants.SeverityCritical))
	assert.False(t, ShouldBlockRequest(apiKey))

	apiKey.RiskScore = 95
	assert.True(t, ShouldBlockRequest(apiKey))

	assert.False(t, ShouldBlockRequest(resultWith(match(constants.DataTypeEmail, constants.SeverityMedium))))
	assert.False(t, ShouldBlockRequest(nil))
	assert.False(t, ShouldBlockRequest(&models.ScanResult{}))
}

func TestShouldBlockResponse(t *testing.T) {
	assert.True(t, ShouldBlockResponse(resultWith(match(constants.DataTypeAPIKey, constants.SeverityCritical))))
	assert.True(t, ShouldBlockResponse(resultWith(match(constants.DataTypeCreditCard, constants.SeverityCritical))))
	assert.False(t, ShouldBlockResponse(resultWith(match(constants.DataTypeEncryptionKey, constants.SeverityCritical))))
	assert.False(t, ShouldBlockResponse(resultWith(match(constants.DataTypeEmail, constants.SeverityMedium))))
	assert.False(t, ShouldBlockResponse(nil))
}

func TestShouldBlockEmail(t *testing.T) {
	assert.True(t, ShouldBlockEmail(resultWith(match(constants.DataTypeEncryptionKey, constants.SeverityCritical))))
	assert.True(t, ShouldBlockEmail(resultWith(match(constants.DataTypeDBConnection, constants.SeverityCritical))))
	assert.True(t, ShouldBlockEmail(resultWith(match(constants.DataTypeCreditCard, constants.SeverityCritical))))

	// SSNs redact in email rather than blocking the send.
	assert.False(t, ShouldBlockEmail(resultWith(match(constants.DataTypeSSN, constants.SeverityCritical))))
	assert.False(t, ShouldBlockEmail(nil))
}

func TestIncidentReferenceFormat(t *testing.T) {
	re := regexp.MustCompile(`^DLP-[0-9A-Z]+-[0-9A-Z]{5}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		ref := NewIncidentReference()
		assert.Regexp(t, re, ref)
		seen[ref] = true
	}
	// 100 references generated in a tight loop share a timestamp; the random
	// suffix must keep them distinct.
	assert.Greater(t, len(seen), 95)
}
