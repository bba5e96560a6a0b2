package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

// AdminHandler manages rate limit rules and client state at runtime. The
// routes live under /api/admin and are themselves rate limited by the
// admin-endpoints rule.
type AdminHandler struct {
	limiter service.RateLimitService
	audit   service.AuditService
	log     logger.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(limiter service.RateLimitService, audit service.AuditService, log logger.Logger) *AdminHandler {
	return &AdminHandler{
		limiter: limiter,
		audit:   audit,
		log:     log.WithComponent("admin_handler"),
	}
}

// addRuleRequest is the wire shape for registering a rule. The window is
// taken in milliseconds to match the stored rule serialization.
type addRuleRequest struct {
	ID          string   `json:"id" binding:"required"`
	PathPattern string   `json:"pathPattern" binding:"required"`
	UserTypes   []string `json:"applicableUserTypes" binding:"required,min=1"`
	WindowMs    int64    `json:"windowMs" binding:"required,gt=0"`
	MaxRequests int      `json:"maxRequests" binding:"required,gt=0"`
	Strategy    string   `json:"strategy"`
	Priority    int      `json:"priority"`
}

// ListRules returns the active rules ordered by descending priority.
func (h *AdminHandler) ListRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": h.limiter.Rules()})
}

// AddRule registers a new rule.
func (h *AdminHandler) AddRule(c *gin.Context) {
	var req addRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.ErrInvalidRequest(err.Error()))
		return
	}

	userTypes := make([]constants.UserType, 0, len(req.UserTypes))
	for _, ut := range req.UserTypes {
		userTypes = append(userTypes, constants.UserType(ut))
	}
	strategy := constants.LimitStrategy(req.Strategy)
	if strategy == "" {
		strategy = constants.StrategySlidingWindow
	}

	rule := models.RateLimitRule{
		ID:          req.ID,
		PathPattern: req.PathPattern,
		UserTypes:   userTypes,
		Window:      time.Duration(req.WindowMs) * time.Millisecond,
		MaxRequests: req.MaxRequests,
		Strategy:    strategy,
		Priority:    req.Priority,
		Active:      true,
	}
	if err := h.limiter.AddRule(rule); err != nil {
		renderError(c, err)
		return
	}

	h.recordConfigChange(c, "admin.add_rule", rule.ID)
	c.JSON(http.StatusCreated, gin.H{"rule": rule})
}

// RemoveRule deletes a rule by id.
func (h *AdminHandler) RemoveRule(c *gin.Context) {
	id := c.Param("id")
	if err := h.limiter.RemoveRule(id); err != nil {
		renderError(c, err)
		return
	}

	h.recordConfigChange(c, "admin.remove_rule", id)
	c.JSON(http.StatusOK, gin.H{"removed": id})
}

// ResetClient clears limiter state for one client key, which also lifts an
// active abuse block.
func (h *AdminHandler) ResetClient(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		renderError(c, errors.ErrInvalidRequest("client key is required"))
		return
	}
	if err := h.limiter.ResetClient(c.Request.Context(), key); err != nil {
		renderError(c, err)
		return
	}

	h.recordConfigChange(c, "admin.reset_client", key)
	h.log.Info(c.Request.Context(), "client state reset",
		logger.String("client_key", key))
	c.JSON(http.StatusOK, gin.H{"reset": key})
}

func (h *AdminHandler) recordConfigChange(c *gin.Context, action, resourceID string) {
	userID := c.GetString("user_id")
	h.audit.Record(c.Request.Context(), models.NewAuditEvent(
		constants.AuditEventConfigChanged,
		constants.SeverityMedium,
		action,
		constants.OutcomeSuccess,
	).
		WithResource("rate_limit", resourceID).
		WithActor(userID, c.ClientIP(), c.Request.UserAgent()))
}

// renderError writes an AppError in the service's standard error shape.
func renderError(c *gin.Context, err error) {
	if appErr, ok := errors.AsAppError(err); ok {
		c.JSON(appErr.HTTPStatus(), errors.ToErrorResponse(appErr))
		return
	}
	c.JSON(http.StatusInternalServerError, errors.ToGenericErrorResponse(err))
}
