package models

import (
	"regexp"

	"github.com/turtacn/aegis/pkg/constants"
)

// ConfidenceFunc scores a raw regex match in [0,1]. It receives the matched
// value, the full content, and the match position so type-specific checks
// (checksum, surrounding context) can be applied without per-type dispatch in
// the scanner itself.
type ConfidenceFunc func(value string, content string, position int) float64

// Pattern is a single detection rule. Built-in patterns are loaded at scanner
// construction and never mutated; custom patterns are appended.
type Pattern struct {
	ID              string
	Name            string
	Regexp          *regexp.Regexp
	DataType        constants.DataType
	Severity        constants.Severity
	SuggestedAction constants.SuggestedAction
	Description     string
	ComplianceTags  []constants.ComplianceFramework
	Confidence      ConfidenceFunc
}

// Match is one confidence-scored pattern hit.
type Match struct {
	Pattern    *Pattern           `json:"-"`
	DataType   constants.DataType `json:"dataType"`
	Severity   constants.Severity `json:"severity"`
	Value      string             `json:"-"` // never serialized; the match is the secret
	Position   int                `json:"position"`
	Context    string             `json:"-"`
	Confidence float64            `json:"confidence"`
}

// ScanResult is the outcome of scanning one piece of content. It is a pure
// function of (content, pattern library, whitelist); scanning identical
// content twice yields identical matches.
type ScanResult struct {
	HasViolations   bool     `json:"hasViolations"`
	Matches         []Match  `json:"matches"`
	RiskScore       int      `json:"riskScore"`
	Recommendations []string `json:"recommendations"`
	RedactedContent string   `json:"redactedContent,omitempty"`
	BlockedContent  string   `json:"blockedContent,omitempty"`
}

// DataTypes returns the distinct data types present in the result.
func (r *ScanResult) DataTypes() []constants.DataType {
	seen := make(map[constants.DataType]bool, len(r.Matches))
	types := make([]constants.DataType, 0, len(r.Matches))
	for _, m := range r.Matches {
		if !seen[m.DataType] {
			seen[m.DataType] = true
			types = append(types, m.DataType)
		}
	}
	return types
}

// HasCritical reports whether the result contains a CRITICAL match of one of
// the given data types.
func (r *ScanResult) HasCritical(types ...constants.DataType) bool {
	for _, m := range r.Matches {
		if m.Severity != constants.SeverityCritical {
			continue
		}
		for _, t := range types {
			if m.DataType == t {
				return true
			}
		}
	}
	return false
}

// ViolationSummaries renders one short line per match for wire responses,
// without exposing matched values.
func (r *ScanResult) ViolationSummaries() []string {
	summaries := make([]string, 0, len(r.Matches))
	for _, m := range r.Matches {
		summaries = append(summaries, string(m.DataType)+" ("+string(m.Severity)+")")
	}
	return summaries
}

// ScanContext tells the scanner where the content came from, for audit trails.
type ScanContext struct {
	Source    string // e.g. "request:body", "response", "file", "email", "database"
	Resource  string // path, filename, table name
	UserID    string
	ClientIP  string
	UserAgent string
}
