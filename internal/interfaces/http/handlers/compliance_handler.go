package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/aegis/internal/dlp"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

// ComplianceHandler serves compliance reports generated from the audit store.
type ComplianceHandler struct {
	reporter *dlp.ComplianceReporter
	log      logger.Logger
}

// NewComplianceHandler creates a ComplianceHandler.
func NewComplianceHandler(reporter *dlp.ComplianceReporter, log logger.Logger) *ComplianceHandler {
	return &ComplianceHandler{
		reporter: reporter,
		log:      log.WithComponent("compliance_handler"),
	}
}

// Report generates a report for the window given by the RFC 3339 `from` and
// `to` query parameters. Defaults to the trailing 30 days.
func (h *ComplianceHandler) Report(c *gin.Context) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			renderError(c, errors.ErrInvalidRequest("'from' must be RFC 3339"))
			return
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			renderError(c, errors.ErrInvalidRequest("'to' must be RFC 3339"))
			return
		}
		to = parsed
	}

	report, err := h.reporter.Generate(c.Request.Context(), from, to)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
