// Package dlp implements sensitive-data detection, risk scoring, redaction,
// and the policy decisions built on top of them.
package dlp

import (
	"context"
	"encoding/json"
	"os"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

// builtinPatterns returns the immutable detection rule table. Order matters:
// when two patterns match at the same position, the earlier entry wins, so
// higher-severity types come first. Adding a data type means adding a table
// entry with its confidence function, not new branch logic in the scanner.
func builtinPatterns() []models.Pattern {
	return []models.Pattern{
		{
			ID:              "builtin-credit-card",
			Name:            "Credit Card Number",
			Regexp:          regexp.MustCompile(`\b\d(?:[ -]?\d){12,18}\b`),
			DataType:        constants.DataTypeCreditCard,
			Severity:        constants.SeverityCritical,
			SuggestedAction: constants.ActionBlock,
			Description:     "Payment card number (13-19 digits, Luhn-verified)",
			ComplianceTags:  []constants.ComplianceFramework{constants.FrameworkPCIDSS},
			Confidence:      creditCardConfidence,
		},
		{
			ID:              "builtin-ssn",
			Name:            "Social Security Number",
			Regexp:          regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			DataType:        constants.DataTypeSSN,
			Severity:        constants.SeverityCritical,
			SuggestedAction: constants.ActionBlock,
			Description:     "US Social Security Number",
			ComplianceTags:  []constants.ComplianceFramework{constants.FrameworkHIPAA, constants.FrameworkSOC2},
			Confidence:      fixedConfidence(0.8),
		},
		{
			ID:              "builtin-encryption-key",
			Name:            "Private Key Material",
			Regexp:          regexp.MustCompile(`-----BEGIN (?:[A-Z]+ )*PRIVATE KEY-----`),
			DataType:        constants.DataTypeEncryptionKey,
			Severity:        constants.SeverityCritical,
			SuggestedAction: constants.ActionAlert,
			Description:     "PEM-encoded private key header",
			ComplianceTags:  []constants.ComplianceFramework{constants.FrameworkSOC2},
			Confidence:      fixedConfidence(0.8),
		},
		{
			ID:              "builtin-db-connection",
			Name:            "Database Connection String",
			Regexp:          regexp.MustCompile(`(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^\s:@]+:[^\s@]+@\S+`),
			DataType:        constants.DataTypeDBConnection,
			Severity:        constants.SeverityCritical,
			SuggestedAction: constants.ActionAlert,
			Description:     "Connection URI embedding credentials",
			ComplianceTags:  []constants.ComplianceFramework{constants.FrameworkSOC2},
			Confidence:      fixedConfidence(0.8),
		},
		{
			ID:              "builtin-aws-access-key",
			Name:            "AWS Access Key ID",
			Regexp:          regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`),
			DataType:        constants.DataTypeAWSAccessKey,
			Severity:        constants.SeverityCritical,
			SuggestedAction: constants.ActionAlert,
			Description:     "AWS access key identifier",
			ComplianceTags:  []constants.ComplianceFramework{constants.FrameworkSOC2},
			Confidence:      fixedConfidence(0.8),
		},
		{
			ID:              "builtin-api-key",
			Name:            "Generic API Key",
			Regexp:          regexp.MustCompile(`\b[A-Za-z0-9_-]{32,64}\b`),
			DataType:        constants.DataTypeAPIKey,
			Severity:        constants.SeverityCritical,
			SuggestedAction: constants.ActionBlock,
			Description:     "High-entropy token near credential keywords",
			ComplianceTags:  []constants.ComplianceFramework{constants.FrameworkSOC2},
			Confidence:      apiKeyConfidence,
		},
		{
			ID:              "builtin-iban",
			Name:            "IBAN",
			Regexp:          regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`),
			DataType:        constants.DataTypeIBAN,
			Severity:        constants.SeverityHigh,
			SuggestedAction: constants.ActionRedact,
			Description:     "International bank account number",
			ComplianceTags:  []constants.ComplianceFramework{constants.FrameworkGDPR},
			Confidence:      fixedConfidence(0.8),
		},
		{
			ID:              "builtin-email",
			Name:            "Email Address",
			Regexp:          regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`),
			DataType:        constants.DataTypeEmail,
			Severity:        constants.SeverityMedium,
			SuggestedAction: constants.ActionRedact,
			Description:     "Email address",
			ComplianceTags:  []constants.ComplianceFramework{constants.FrameworkGDPR, constants.FrameworkCCPA},
			Confidence:      emailConfidence,
		},
		{
			ID:              "builtin-phone",
			Name:            "Phone Number",
			Regexp:          regexp.MustCompile(`\b(?:\+?1[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`),
			DataType:        constants.DataTypePhoneNumber,
			Severity:        constants.SeverityMedium,
			SuggestedAction: constants.ActionRedact,
			Description:     "North American phone number",
			ComplianceTags:  []constants.ComplianceFramework{constants.FrameworkGDPR, constants.FrameworkCCPA},
			Confidence:      phoneConfidence,
		},
		{
			ID:              "builtin-ip-address",
			Name:            "IP Address",
			Regexp:          regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
			DataType:        constants.DataTypeIPAddress,
			Severity:        constants.SeverityLow,
			SuggestedAction: constants.ActionLog,
			Description:     "IPv4 address",
			ComplianceTags:  []constants.ComplianceFramework{constants.FrameworkGDPR},
			Confidence:      fixedConfidence(0.8),
		},
		{
			ID:              "builtin-personal-name",
			Name:            "Personal Name",
			Regexp:          regexp.MustCompile(`\b[A-Z][a-z]{1,20} [A-Z][a-z]{1,20}\b`),
			DataType:        constants.DataTypePersonalName,
			Severity:        constants.SeverityLow,
			SuggestedAction: constants.ActionLog,
			Description:     "Capitalized word pair resembling a name",
			ComplianceTags:  []constants.ComplianceFramework{constants.FrameworkGDPR},
			// Fixed below the floor: names alone are telemetry, never a
			// violation without stronger evidence.
			Confidence: fixedConfidence(0.4),
		},
	}
}

// Library is the detection rule table: immutable built-ins plus appendable
// custom patterns.
type Library struct {
	mu       sync.RWMutex
	builtins []models.Pattern
	customs  []models.Pattern
	log      logger.Logger
}

// NewLibrary creates a library with the built-in patterns.
func NewLibrary(log logger.Logger) *Library {
	return &Library{
		builtins: builtinPatterns(),
		log:      log.WithComponent("pattern_library"),
	}
}

// Patterns returns a snapshot of all active patterns, built-ins first.
func (l *Library) Patterns() []models.Pattern {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Pattern, 0, len(l.builtins)+len(l.customs))
	out = append(out, l.builtins...)
	out = append(out, l.customs...)
	return out
}

// AddCustom appends a custom pattern. Built-ins are never mutated.
func (l *Library) AddCustom(p models.Pattern) error {
	if p.ID == "" || p.Regexp == nil {
		return errors.ErrPatternInvalid(p.ID, "id and compiled regex are required")
	}
	if p.Confidence == nil {
		p.Confidence = fixedConfidence(0.8)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range append(l.builtins, l.customs...) {
		if existing.ID == p.ID {
			return errors.ErrPatternInvalid(p.ID, "duplicate pattern id")
		}
	}
	l.customs = append(l.customs, p)
	return nil
}

// patternFileEntry is the serialized form of a custom pattern.
type patternFileEntry struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Regex           string   `json:"regex"`
	DataType        string   `json:"dataType"`
	Severity        string   `json:"severity"`
	SuggestedAction string   `json:"suggestedAction"`
	Description     string   `json:"description"`
	ComplianceTags  []string `json:"complianceTags"`
}

// LoadCustomFile replaces the custom pattern set from a JSON file. A bad
// entry fails the whole load so a partial table never goes live.
func (l *Library) LoadCustomFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapError(err, constants.ErrCodeServerError, "failed to read pattern file")
	}

	var entries []patternFileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return errors.WrapError(err, constants.ErrCodeInvalidRequest, "failed to parse pattern file")
	}

	customs := make([]models.Pattern, 0, len(entries))
	for _, e := range entries {
		re, err := regexp.Compile(e.Regex)
		if err != nil {
			return errors.ErrPatternInvalid(e.ID, err.Error())
		}
		tags := make([]constants.ComplianceFramework, 0, len(e.ComplianceTags))
		for _, t := range e.ComplianceTags {
			tags = append(tags, constants.ComplianceFramework(t))
		}
		customs = append(customs, models.Pattern{
			ID:              e.ID,
			Name:            e.Name,
			Regexp:          re,
			DataType:        constants.DataType(e.DataType),
			Severity:        constants.Severity(e.Severity),
			SuggestedAction: constants.SuggestedAction(e.SuggestedAction),
			Description:     e.Description,
			ComplianceTags:  tags,
			Confidence:      fixedConfidence(0.8),
		})
	}

	l.mu.Lock()
	l.customs = customs
	l.mu.Unlock()

	l.log.Info(context.Background(), "custom patterns loaded",
		logger.String("path", path),
		logger.Int("count", len(customs)))
	return nil
}

// WatchCustomFile reloads the custom pattern file whenever it changes.
// Reload failures keep the previous table and are logged.
func (l *Library) WatchCustomFile(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapError(err, constants.ErrCodeServerError, "failed to create pattern watcher")
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return errors.WrapError(err, constants.ErrCodeServerError, "failed to watch pattern file")
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := l.LoadCustomFile(path); err != nil {
					l.log.Error(ctx, "pattern file reload failed, keeping previous table", err,
						logger.String("path", path))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.log.Error(ctx, "pattern file watcher error", err)
			}
		}
	}()
	return nil
}

// FrameworkDataTypes maps each compliance framework to the data types whose
// patterns carry its tag. Used by compliance reporting.
func (l *Library) FrameworkDataTypes() map[constants.ComplianceFramework][]constants.DataType {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[constants.ComplianceFramework][]constants.DataType)
	seen := make(map[constants.ComplianceFramework]map[constants.DataType]bool)
	all := append(append([]models.Pattern{}, l.builtins...), l.customs...)
	for _, p := range all {
		for _, tag := range p.ComplianceTags {
			if seen[tag] == nil {
				seen[tag] = make(map[constants.DataType]bool)
			}
			if !seen[tag][p.DataType] {
				seen[tag][p.DataType] = true
				out[tag] = append(out[tag], p.DataType)
			}
		}
	}
	return out
}
