package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

// rateLimitInfo is the wire shape of the limiter state in a 429 body.
type rateLimitInfo struct {
	Limit      int   `json:"limit"`
	Remaining  int   `json:"remaining"`
	ResetTime  int64 `json:"resetTime"`
	RetryAfter int   `json:"retryAfter"`
}

// RateLimitMiddleware applies the limiter to every request and decorates the
// response with the standard X-RateLimit headers. Admission decisions are
// made entirely by the limiter; this layer only translates them to HTTP.
func RateLimitMiddleware(limiter service.RateLimitService, cfg *config.RateLimitConfig, log logger.Logger) gin.HandlerFunc {
	componentLog := log.WithComponent("rate_limit_middleware")

	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		userID, userType := CallerIdentity(c)
		status := limiter.Check(c.Request.Context(), service.CheckInput{
			Path:      c.Request.URL.Path,
			UserType:  userType,
			UserID:    userID,
			ClientIP:  c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})

		c.Header(constants.HeaderRateLimitLimit, strconv.Itoa(status.Limit))
		c.Header(constants.HeaderRateLimitRemaining, strconv.Itoa(status.RemainingRequests))
		c.Header(constants.HeaderRateLimitReset, strconv.FormatInt(status.ResetAt.UnixMilli(), 10))

		if !status.Limited {
			c.Next()
			return
		}

		retryAfter := int(math.Ceil(status.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header(constants.HeaderRetryAfter, strconv.Itoa(retryAfter))

		componentLog.Warn(c.Request.Context(), "request rate limited",
			logger.String("rule", status.RuleID),
			logger.String("path", c.Request.URL.Path),
			logger.String("user_type", string(userType)))

		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":   string(constants.ErrCodeRateLimitExceeded),
			"message": "Too many requests. Please try again later.",
			"rateLimitInfo": rateLimitInfo{
				Limit:      status.Limit,
				Remaining:  status.RemainingRequests,
				ResetTime:  status.ResetAt.UnixMilli(),
				RetryAfter: retryAfter,
			},
		})
	}
}
