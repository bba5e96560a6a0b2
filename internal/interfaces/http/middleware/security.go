package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/dlp"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/internal/infrastructure/monitoring"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

// SecurityMiddleware scans inbound requests and, when enabled, outbound
// responses for sensitive data. Blocking data types refuse the request with
// 403 or replace the response with 500; redactable types rewrite the body in
// place. Scanner failures admit the traffic (fail open) and raise a
// HIGH-severity audit event.
func SecurityMiddleware(
	scanner service.ContentScanner,
	audit service.AuditService,
	metrics *monitoring.Metrics,
	cfg *config.DLPConfig,
	log logger.Logger,
) gin.HandlerFunc {
	componentLog := log.WithComponent("security_middleware")

	return func(c *gin.Context) {
		if !cfg.Enabled || isExemptPath(c.Request.URL.Path, cfg.ExemptPaths) {
			c.Next()
			return
		}

		userID, _ := CallerIdentity(c)

		result, err := scanner.ScanRequest(c.Request.Context(), c.Request)
		if err != nil {
			componentLog.Error(c.Request.Context(), "request scan failed, admitting request", err,
				logger.String("path", c.Request.URL.Path))
			audit.Record(c.Request.Context(), models.NewAuditEvent(
				constants.AuditEventSystemAccess,
				constants.SeverityHigh,
				"security.scan_failure",
				constants.OutcomeFailure,
			).
				WithResource("path", c.Request.URL.Path).
				WithActor(userID, c.ClientIP(), c.Request.UserAgent()).
				WithDetail("error", err.Error()))
			c.Next()
			return
		}

		if result.HasViolations {
			reference := dlp.NewIncidentReference()

			if dlp.ShouldBlockRequest(result) {
				result.BlockedContent = dlp.BlockedRendering(reference)
				metrics.RecordContentBlocked("request")
				recordViolation(c, audit, result, reference, constants.AuditEventRequestBlocked, constants.OutcomeBlocked, userID)
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error":      "Request blocked by data protection policy",
					"code":       string(constants.ErrCodeDLPViolation),
					"violations": result.ViolationSummaries(),
					"reference":  reference,
				})
				return
			}

			recordViolation(c, audit, result, reference, constants.AuditEventDLPViolation, constants.OutcomeSuccess, userID)

			// Redactable content continues with matched values replaced so
			// downstream handlers never see the raw secrets.
			if cfg.RedactSensitiveData {
				substituteRequestBody(c, scanner, componentLog)
			}
		}

		if !cfg.ScanResponses {
			c.Next()
			return
		}

		capture := &responseCapture{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = capture
		c.Next()
		inspectResponse(c, capture, scanner, audit, metrics, cfg, componentLog, userID)
	}
}

// substituteRequestBody rescans just the body and swaps it for the redacted
// rendering. The composite request scan already decided the request is
// admissible; this step only sanitizes what handlers read.
func substituteRequestBody(c *gin.Context, scanner service.ContentScanner, log logger.Logger) {
	if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Body == nil {
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	bodyResult, err := scanner.ScanContent(c.Request.Context(), string(body), models.ScanContext{
		Source:   "request:body",
		Resource: c.Request.URL.Path,
	})
	if err != nil || !bodyResult.HasViolations || bodyResult.RedactedContent == "" {
		return
	}

	redacted := []byte(bodyResult.RedactedContent)
	c.Request.Body = io.NopCloser(bytes.NewReader(redacted))
	c.Request.ContentLength = int64(len(redacted))
	c.Request.Header.Set("Content-Length", strconv.Itoa(len(redacted)))
	log.Info(c.Request.Context(), "request body redacted",
		logger.String("path", c.Request.URL.Path),
		logger.Int("matches", len(bodyResult.Matches)))
}

// inspectResponse scans the captured body and either forwards it, forwards a
// redacted rendering, or replaces it with a 500 when blocking data leaked.
func inspectResponse(
	c *gin.Context,
	capture *responseCapture,
	scanner service.ContentScanner,
	audit service.AuditService,
	metrics *monitoring.Metrics,
	cfg *config.DLPConfig,
	log logger.Logger,
	userID string,
) {
	body := capture.body.String()
	contentType := capture.Header().Get("Content-Type")

	result, err := scanner.ScanResponse(c.Request.Context(), body, contentType, models.ScanContext{
		Source:   "response",
		Resource: c.Request.URL.Path,
	})
	if err != nil {
		log.Error(c.Request.Context(), "response scan failed, forwarding as-is", err)
		capture.flush(capture.status, body)
		return
	}

	if !result.HasViolations {
		capture.flush(capture.status, body)
		return
	}

	reference := dlp.NewIncidentReference()

	if dlp.ShouldBlockResponse(result) {
		result.BlockedContent = dlp.BlockedRendering(reference)
		metrics.RecordContentBlocked("response")
		recordViolation(c, audit, result, reference, constants.AuditEventResponseBlocked, constants.OutcomeBlocked, userID)
		capture.Header().Set("Content-Type", "application/json; charset=utf-8")
		capture.flush(http.StatusInternalServerError,
			`{"error":"Response blocked by data protection policy","reference":"`+reference+`"}`)
		return
	}

	recordViolation(c, audit, result, reference, constants.AuditEventDLPViolation, constants.OutcomeSuccess, userID)
	if cfg.RedactSensitiveData && result.RedactedContent != "" {
		capture.flush(capture.status, result.RedactedContent)
		return
	}
	capture.flush(capture.status, body)
}

func recordViolation(
	c *gin.Context,
	audit service.AuditService,
	result *models.ScanResult,
	reference string,
	eventType constants.AuditEventType,
	outcome constants.Outcome,
	userID string,
) {
	dataTypes := make([]string, 0)
	for _, t := range result.DataTypes() {
		dataTypes = append(dataTypes, string(t))
	}
	audit.Record(c.Request.Context(), models.NewAuditEvent(
		eventType,
		constants.SeverityHigh,
		"security.inspect",
		outcome,
	).
		WithResource("path", c.Request.URL.Path).
		WithActor(userID, c.ClientIP(), c.Request.UserAgent()).
		WithRiskScore(result.RiskScore).
		WithDetail("reference", reference).
		WithDetail("data_types", dataTypes).
		WithDetail("match_count", len(result.Matches)))
}

func isExemptPath(path string, exempt []string) bool {
	for _, p := range exempt {
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(path, strings.TrimSuffix(p, "*")) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

// responseCapture buffers the handler's output so it can be inspected before
// anything reaches the client.
type responseCapture struct {
	gin.ResponseWriter
	body    *bytes.Buffer
	status  int
	flushed bool
}

func (w *responseCapture) WriteHeader(status int) {
	w.status = status
}

func (w *responseCapture) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(b)
}

func (w *responseCapture) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// flush releases the final body to the real writer exactly once.
func (w *responseCapture) flush(status int, body string) {
	if w.flushed {
		return
	}
	w.flushed = true
	if status == 0 {
		status = http.StatusOK
	}
	w.ResponseWriter.WriteHeader(status)
	w.ResponseWriter.Write([]byte(body)) //nolint:errcheck
}
