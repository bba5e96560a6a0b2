// Package middleware holds the Gin middleware chain of the inspection layer:
// identity resolution, observability, rate limiting, and content security.
package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

// Gin context keys set by the identity middleware.
const (
	CtxUserID   = "user_id"
	CtxUserType = "user_type"
)

// sessionClaims is the subset of the session JWT the inspection layer cares
// about.
type sessionClaims struct {
	UserType string `json:"userType"`
	jwt.RegisteredClaims
}

// IdentityMiddleware resolves the caller's identity from the session token in
// the Authorization header. An absent, expired, or invalid token makes the
// caller anonymous; it never rejects the request, because enforcement is the
// upstream auth service's job and ours is classification.
func IdentityMiddleware(cfg *config.SessionConfig, log logger.Logger) gin.HandlerFunc {
	componentLog := log.WithComponent("identity")

	return func(c *gin.Context) {
		requestID := c.GetHeader(constants.HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(constants.HeaderRequestID, requestID)

		userID, userType := resolveIdentity(c, cfg, componentLog)
		c.Set(CtxUserID, userID)
		c.Set(CtxUserType, string(userType))

		ctx := context.WithValue(c.Request.Context(), constants.ContextKeyRequestID, requestID)
		ctx = context.WithValue(ctx, constants.ContextKeyUserID, userID)
		ctx = context.WithValue(ctx, constants.ContextKeyUserType, string(userType))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func resolveIdentity(c *gin.Context, cfg *config.SessionConfig, log logger.Logger) (string, constants.UserType) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", constants.UserTypeAnonymous
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(cfg.SigningSecret), nil
	}, jwt.WithIssuer(cfg.Issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		log.Debug(c.Request.Context(), "session token rejected, treating caller as anonymous",
			logger.String("reason", errString(err)))
		return "", constants.UserTypeAnonymous
	}

	userType := constants.UserType(claims.UserType)
	switch userType {
	case constants.UserTypeCustomer, constants.UserTypePartner, constants.UserTypeAdmin:
	default:
		userType = constants.UserTypeCustomer
	}
	return claims.Subject, userType
}

func errString(err error) string {
	if err == nil {
		return "invalid token"
	}
	return err.Error()
}

// CallerIdentity reads back what the identity middleware stored.
func CallerIdentity(c *gin.Context) (string, constants.UserType) {
	userID := c.GetString(CtxUserID)
	userType := constants.UserType(c.GetString(CtxUserType))
	if userType == "" {
		userType = constants.UserTypeAnonymous
	}
	return userID, userType
}
