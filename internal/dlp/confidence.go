package dlp

import (
	"regexp"
	"strings"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
)

// strictEmailRe re-checks the structure of an email candidate more tightly
// than the detection pattern: single @, no leading/trailing dots, TLD of at
// least two letters.
var strictEmailRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._%+-]*@[A-Za-z0-9][A-Za-z0-9.-]*\.[A-Za-z]{2,}$`)

var apiKeyContextWords = []string{"api", "key", "token"}

// digitsOf strips everything but digits from a string.
func digitsOf(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// luhnValid validates a digit string with the Luhn checksum.
func luhnValid(digits string) bool {
	if len(digits) < 13 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// creditCardConfidence scores 0.95 for sequences passing the Luhn checksum,
// 0.3 otherwise. Anything below the confidence floor is discarded, so a
// random 16-digit number never becomes a violation.
func creditCardConfidence(value, content string, position int) float64 {
	if luhnValid(digitsOf(value)) {
		return 0.95
	}
	return 0.3
}

// emailConfidence scores 0.9 for addresses passing a stricter structural
// re-check within the RFC length bound, 0.4 otherwise.
func emailConfidence(value, content string, position int) float64 {
	if len(value) <= constants.MaxEmailAddressLength && strictEmailRe.MatchString(value) {
		return 0.9
	}
	return 0.4
}

// phoneConfidence scores 0.85 when the candidate carries at least ten digits
// after punctuation is stripped, 0.4 otherwise.
func phoneConfidence(value, content string, position int) float64 {
	if len(digitsOf(value)) >= 10 {
		return 0.85
	}
	return 0.4
}

// apiKeyConfidence scores 0.9 when the surrounding context mentions an API
// credential, 0.5 otherwise. A long random token with no context is more
// likely a hash or identifier than a leaked key.
func apiKeyConfidence(value, content string, position int) float64 {
	start := position - constants.ContextWindowRadius
	if start < 0 {
		start = 0
	}
	end := position + len(value) + constants.ContextWindowRadius
	if end > len(content) {
		end = len(content)
	}
	window := strings.ToLower(content[start:end])
	for _, word := range apiKeyContextWords {
		if strings.Contains(window, word) {
			return 0.9
		}
	}
	return 0.5
}

// fixedConfidence returns a ConfidenceFunc with a constant score.
func fixedConfidence(score float64) models.ConfidenceFunc {
	return func(value, content string, position int) float64 {
		return score
	}
}
