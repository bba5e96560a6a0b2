package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/dlp"
	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/internal/infrastructure/monitoring"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

// WrapRoute guards a single handler with a request scan. Unlike the
// chain-wide middleware it answers violations with 400: the payloads on
// wrapped routes are caller-authored input, so a blocking match is a bad
// request rather than a policy refusal of otherwise valid traffic. Scan
// failures admit the request, same as the middleware.
func WrapRoute(
	handler gin.HandlerFunc,
	scanner service.ContentScanner,
	audit service.AuditService,
	metrics *monitoring.Metrics,
	cfg *config.DLPConfig,
	log logger.Logger,
) gin.HandlerFunc {
	componentLog := log.WithComponent("route_wrapper")

	return func(c *gin.Context) {
		if !cfg.Enabled {
			handler(c)
			return
		}

		userID, _ := CallerIdentity(c)

		result, err := scanner.ScanRequest(c.Request.Context(), c.Request)
		if err != nil {
			componentLog.Error(c.Request.Context(), "route scan failed, admitting request", err,
				logger.String("path", c.Request.URL.Path))
			handler(c)
			return
		}

		if result.HasViolations {
			reference := dlp.NewIncidentReference()

			if dlp.ShouldBlockRequest(result) {
				result.BlockedContent = dlp.BlockedRendering(reference)
				metrics.RecordContentBlocked("request")
				recordViolation(c, audit, result, reference, constants.AuditEventRequestBlocked, constants.OutcomeBlocked, userID)
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error":      "Request contains data that violates policy",
					"code":       string(constants.ErrCodeDLPViolation),
					"violations": result.ViolationSummaries(),
					"reference":  reference,
				})
				return
			}

			recordViolation(c, audit, result, reference, constants.AuditEventDLPViolation, constants.OutcomeSuccess, userID)
			if cfg.RedactSensitiveData {
				substituteRequestBody(c, scanner, componentLog)
			}
		}

		handler(c)
	}
}
