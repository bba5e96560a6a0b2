package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	appservice "github.com/turtacn/aegis/internal/application/service"
	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

// maxUploadBytes bounds the file size accepted by the upload scan endpoint.
const maxUploadBytes = 25 << 20

// ScanHandler exposes on-demand scanning: ad-hoc content checks for internal
// callers and the file upload inspection endpoint.
type ScanHandler struct {
	scanner    service.ContentScanner
	inspection *appservice.InspectionService
	log        logger.Logger
}

// NewScanHandler creates a ScanHandler.
func NewScanHandler(scanner service.ContentScanner, inspection *appservice.InspectionService, log logger.Logger) *ScanHandler {
	return &ScanHandler{
		scanner:    scanner,
		inspection: inspection,
		log:        log.WithComponent("scan_handler"),
	}
}

type scanContentRequest struct {
	Content string `json:"content" binding:"required"`
	Source  string `json:"source"`
}

// ScanContent scans a string supplied by an internal caller and returns the
// full result, redacted rendering included. Matched values are never echoed.
func (h *ScanHandler) ScanContent(c *gin.Context) {
	var req scanContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.ErrInvalidRequest(err.Error()))
		return
	}

	source := req.Source
	if source == "" {
		source = "api"
	}
	result, err := h.scanner.ScanContent(c.Request.Context(), req.Content, models.ScanContext{
		Source:   source,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ScanUpload inspects a multipart file upload. Violating files are refused
// and, when configured, quarantined; the response carries the incident
// reference either way.
func (h *ScanHandler) ScanUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		renderError(c, errors.ErrInvalidRequest("multipart field 'file' is required"))
		return
	}
	if fileHeader.Size > maxUploadBytes {
		renderError(c, errors.ErrInvalidRequest("file exceeds maximum scannable size"))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		renderError(c, errors.ErrServerError("failed to open uploaded file"))
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		renderError(c, errors.ErrServerError("failed to read uploaded file"))
		return
	}

	userID := c.GetString("user_id")
	outcome, err := h.inspection.ScanFileUpload(c.Request.Context(), fileHeader.Filename, string(content), userID)
	if err != nil {
		renderError(c, err)
		return
	}

	if outcome.Result.HasViolations {
		c.JSON(http.StatusForbidden, gin.H{
			"accepted":    false,
			"violations":  outcome.Result.ViolationSummaries(),
			"riskScore":   outcome.Result.RiskScore,
			"reference":   outcome.Reference,
			"quarantined": outcome.Quarantined,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accepted": true,
		"filename": fileHeader.Filename,
	})
}
