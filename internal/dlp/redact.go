package dlp

import (
	"sort"
	"strings"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
)

// redactValue renders a type-aware placeholder for one matched value. Card
// numbers keep their last four digits so support staff can still correlate
// with payment records.
func redactValue(dataType constants.DataType, value string) string {
	switch dataType {
	case constants.DataTypeCreditCard:
		digits := digitsOf(value)
		if len(digits) >= 4 {
			return "****-****-****-" + digits[len(digits)-4:]
		}
		return "[REDACTED]"
	case constants.DataTypeSSN:
		return "XXX-XX-XXXX"
	case constants.DataTypeEmail:
		if at := strings.IndexByte(value, '@'); at > 0 {
			return value[:1] + "***" + value[at:]
		}
		return "[REDACTED]"
	case constants.DataTypePhoneNumber:
		return "***-***-****"
	default:
		return "[REDACTED]"
	}
}

// redactContent replaces every match with its placeholder. Replacement walks
// matches in descending position so earlier offsets stay valid while later
// spans are rewritten.
func redactContent(content string, matches []models.Match) string {
	ordered := make([]models.Match, len(matches))
	copy(ordered, matches)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Position > ordered[j].Position
	})

	out := content
	for _, m := range ordered {
		end := m.Position + len(m.Value)
		if m.Position < 0 || end > len(out) {
			continue
		}
		out = out[:m.Position] + redactValue(m.DataType, m.Value) + out[end:]
	}
	return out
}

// BlockedRendering is the replacement text served when content is refused
// outright rather than redacted. Callers set it on the scan result once the
// block decision and its incident reference exist.
func BlockedRendering(reference string) string {
	return "[CONTENT BLOCKED BY DATA PROTECTION POLICY - INCIDENT " + reference + "]"
}
