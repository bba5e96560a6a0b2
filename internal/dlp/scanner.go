package dlp

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/infrastructure/monitoring"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

// severityBaseScore maps a severity grade to the base contribution of one
// match toward the risk score.
var severityBaseScore = map[constants.Severity]float64{
	constants.SeverityLow:      10,
	constants.SeverityMedium:   30,
	constants.SeverityHigh:     60,
	constants.SeverityCritical: 90,
}

// scannableContentTypes lists the response media types worth scanning.
// Binary payloads (images, archives, octet streams) are passed through.
var scannableContentTypes = []string{
	"application/json",
	"text/html",
	"text/plain",
	"application/xml",
	"text/xml",
}

// scannedHeaders are the request headers inspected alongside the query and
// body. They are the usual carriers of smuggled values.
var scannedHeaders = []string{"Referer", "Cookie", "X-Forwarded-For"}

// maxScanBodyBytes bounds how much of a request or response body is read for
// scanning.
const maxScanBodyBytes = 10 << 20

// whitelistEntry is one exemption. Entries wrapped in slashes are treated as
// regular expressions, anything else as a literal substring of the matched
// value.
type whitelistEntry struct {
	literal string
	re      *regexp.Regexp
}

func (w whitelistEntry) allows(value string) bool {
	if w.re != nil {
		return w.re.MatchString(value)
	}
	return strings.Contains(value, w.literal)
}

// Scanner detects sensitive data with the pattern library and scores the
// result. It implements service.ContentScanner.
type Scanner struct {
	lib       *Library
	whitelist []whitelistEntry
	cache     *gocache.Cache
	metrics   *monitoring.Metrics
	log       logger.Logger
}

// NewScanner builds a scanner over the given library. Whitelist entries that
// fail to compile as regexes are rejected up front.
func NewScanner(lib *Library, whitelist []string, metrics *monitoring.Metrics, log logger.Logger) (*Scanner, error) {
	entries := make([]whitelistEntry, 0, len(whitelist))
	for _, raw := range whitelist {
		if len(raw) > 2 && strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/") {
			re, err := regexp.Compile(raw[1 : len(raw)-1])
			if err != nil {
				return nil, errors.ErrInvalidRequest(fmt.Sprintf("whitelist entry %q is not a valid regex: %v", raw, err))
			}
			entries = append(entries, whitelistEntry{re: re})
			continue
		}
		entries = append(entries, whitelistEntry{literal: raw})
	}

	return &Scanner{
		lib:       lib,
		whitelist: entries,
		cache:     gocache.New(constants.ScanCacheTTL, constants.ScanCacheSweepInterval),
		metrics:   metrics,
		log:       log.WithComponent("dlp_scanner"),
	}, nil
}

// ScanContent scans a string against every active pattern. The result is a
// pure function of the content and the active pattern table, so identical
// content within the cache TTL is served from cache.
func (s *Scanner) ScanContent(ctx context.Context, content string, scanCtx models.ScanContext) (*models.ScanResult, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveScanDuration(scanCtx.Source, time.Since(start).Seconds())
	}()

	// Callers annotate results (blocked rendering, incident metadata), so the
	// cache keeps its own value and every caller gets a copy.
	key := cacheKey(content)
	if cached, ok := s.cache.Get(key); ok {
		cp := *cached.(*models.ScanResult)
		return &cp, nil
	}

	matches := s.collectMatches(content)
	result := s.score(content, matches)

	if result.HasViolations {
		for _, m := range result.Matches {
			s.metrics.RecordDLPViolation(string(m.DataType), string(m.Severity))
		}
		s.log.Warn(ctx, "sensitive data detected",
			logger.String("source", scanCtx.Source),
			logger.String("resource", scanCtx.Resource),
			logger.Int("matches", len(result.Matches)),
			logger.Int("risk_score", result.RiskScore))
	}

	s.cache.Set(key, result, gocache.DefaultExpiration)
	cp := *result
	return &cp, nil
}

// ScanRequest scans the URL query, a fixed set of headers, and the body for
// non-GET/HEAD requests. The body is restored so downstream handlers can read
// it again.
func (s *Scanner) ScanRequest(ctx context.Context, r *http.Request) (*models.ScanResult, error) {
	var sb strings.Builder

	if raw := r.URL.RawQuery; raw != "" {
		sb.WriteString(raw)
		sb.WriteByte('\n')
	}
	for _, h := range scannedHeaders {
		if v := r.Header.Get(h); v != "" {
			sb.WriteString(v)
			sb.WriteByte('\n')
		}
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxScanBodyBytes))
		if err != nil {
			return nil, errors.WrapError(err, constants.ErrCodeInvalidRequest, "failed to read request body for scanning")
		}
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		sb.Write(body)
	}

	return s.ScanContent(ctx, sb.String(), models.ScanContext{
		Source:    "request",
		Resource:  r.URL.Path,
		ClientIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
}

// ScanResponse scans a response body when its media type is text-like.
// Non-scannable types return an empty result rather than an error.
func (s *Scanner) ScanResponse(ctx context.Context, body string, contentType string, scanCtx models.ScanContext) (*models.ScanResult, error) {
	if !isScannableContentType(contentType) {
		return &models.ScanResult{}, nil
	}
	if scanCtx.Source == "" {
		scanCtx.Source = "response"
	}
	return s.ScanContent(ctx, body, scanCtx)
}

// ScanFile scans uploaded file content.
func (s *Scanner) ScanFile(ctx context.Context, path string, content string) (*models.ScanResult, error) {
	return s.ScanContent(ctx, content, models.ScanContext{
		Source:   "file",
		Resource: path,
	})
}

// collectMatches runs every pattern over the content, scores each raw hit,
// drops whitelisted and low-confidence candidates, and dedupes by position.
func (s *Scanner) collectMatches(content string) []models.Match {
	var matches []models.Match
	claimed := make(map[int]bool)

	patterns := s.lib.Patterns()
	for i := range patterns {
		p := patterns[i]
		for _, loc := range p.Regexp.FindAllStringIndex(content, -1) {
			start := loc[0]
			// First pattern in table order wins a position; the table is
			// ordered by descending severity.
			if claimed[start] {
				continue
			}
			value := content[loc[0]:loc[1]]
			if s.whitelisted(value) {
				continue
			}
			conf := p.Confidence(value, content, start)
			if conf < constants.ConfidenceFloor {
				continue
			}
			claimed[start] = true
			matches = append(matches, models.Match{
				Pattern:    &p,
				DataType:   p.DataType,
				Severity:   p.Severity,
				Value:      value,
				Position:   start,
				Context:    contextWindow(content, start, len(value)),
				Confidence: conf,
			})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Position < matches[j].Position
	})
	return matches
}

// score turns matches into a full result with risk score, recommendations,
// and both content renderings.
func (s *Scanner) score(content string, matches []models.Match) *models.ScanResult {
	result := &models.ScanResult{
		HasViolations: len(matches) > 0,
		Matches:       matches,
	}
	if len(matches) == 0 {
		return result
	}

	var sum float64
	for _, m := range matches {
		sum += severityBaseScore[m.Severity] * m.Confidence
	}
	risk := int(math.Round(sum / float64(len(matches))))
	if risk > constants.MaxRiskScore {
		risk = constants.MaxRiskScore
	}
	result.RiskScore = risk
	result.Recommendations = recommendations(matches)
	result.RedactedContent = redactContent(content, matches)
	return result
}

// recommendations renders operator guidance keyed by the data types present.
func recommendations(matches []models.Match) []string {
	types := make(map[constants.DataType]bool)
	for _, m := range matches {
		types[m.DataType] = true
	}

	var recs []string
	if types[constants.DataTypeCreditCard] {
		recs = append(recs, "Credit card data detected: handle per PCI-DSS and never store unmasked PANs")
	}
	if types[constants.DataTypeSSN] {
		recs = append(recs, "SSN detected: store only encrypted and restrict access to this record")
	}
	if types[constants.DataTypeEmail] || types[constants.DataTypePhoneNumber] {
		recs = append(recs, "Personal contact data detected: verify GDPR/CCPA consent before processing")
	}
	if types[constants.DataTypeAPIKey] || types[constants.DataTypeAWSAccessKey] ||
		types[constants.DataTypeEncryptionKey] || types[constants.DataTypeDBConnection] {
		recs = append(recs, "Credentials detected: rotate the exposed keys immediately")
	}
	if len(matches) > constants.ReviewEscalationCount {
		recs = append(recs, fmt.Sprintf("Escalate for comprehensive review: %d matches in one payload", len(matches)))
	}
	if len(recs) == 0 {
		recs = append(recs, "Log and monitor: low-severity matches only")
	}
	return recs
}

func (s *Scanner) whitelisted(value string) bool {
	for _, w := range s.whitelist {
		if w.allows(value) {
			return true
		}
	}
	return false
}

// contextWindow extracts the text surrounding a match for audit trails.
func contextWindow(content string, position, length int) string {
	start := position - constants.ContextWindowRadius
	if start < 0 {
		start = 0
	}
	end := position + length + constants.ContextWindowRadius
	if end > len(content) {
		end = len(content)
	}
	return content[start:end]
}

func isScannableContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	for _, t := range scannableContentTypes {
		if mediaType == t {
			return true
		}
	}
	return false
}

func cacheKey(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
