package dlp

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
)

// Risk score at or above which a request is refused even without a blocking
// data type.
const requestRiskBlockThreshold = 95

var referenceAlphabet = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

// NewIncidentReference generates an operator-facing incident id of the form
// DLP-<base36 millis>-<5 random chars>. It is a correlation handle, not a
// security token.
func NewIncidentReference() string {
	var sb strings.Builder
	sb.WriteString("DLP-")
	sb.WriteString(strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36)))
	sb.WriteByte('-')
	for i := 0; i < 5; i++ {
		sb.WriteByte(referenceAlphabet[rand.IntN(len(referenceAlphabet))])
	}
	return sb.String()
}

// ShouldBlockRequest reports whether an inbound request must be refused:
// critical card or SSN exposure, or an overall risk score at the block
// threshold.
func ShouldBlockRequest(result *models.ScanResult) bool {
	if result == nil || !result.HasViolations {
		return false
	}
	if result.HasCritical(constants.DataTypeCreditCard, constants.DataTypeSSN) {
		return true
	}
	return result.RiskScore >= requestRiskBlockThreshold
}

// ShouldBlockResponse reports whether an outbound response must be replaced.
// Responses additionally block on leaked API keys since they indicate a
// server-side defect rather than user input.
func ShouldBlockResponse(result *models.ScanResult) bool {
	if result == nil || !result.HasViolations {
		return false
	}
	return result.HasCritical(
		constants.DataTypeCreditCard,
		constants.DataTypeSSN,
		constants.DataTypeAPIKey,
	)
}

// ShouldBlockEmail reports whether an outbound email must fail. Secrets in
// email leave the trust boundary permanently, so key material and connection
// strings block alongside card numbers.
func ShouldBlockEmail(result *models.ScanResult) bool {
	if result == nil || !result.HasViolations {
		return false
	}
	return result.HasCritical(
		constants.DataTypeCreditCard,
		constants.DataTypeAPIKey,
		constants.DataTypeEncryptionKey,
		constants.DataTypeDBConnection,
	)
}
