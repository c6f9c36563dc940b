package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"geminichat/internal/billing"
	"geminichat/internal/microservices/http-api/service"
	"geminichat/internal/middleware/auth"
	"geminichat/internal/shared"
)

// respondError maps service errors to HTTP responses. Anything unrecognised is a 500 and is logged.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, shared.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, shared.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":   "quota_exceeded",
			"message": "Daily message limit reached. Upgrade to Pro for unlimited messages.",
		})
	case errors.Is(err, shared.ErrUnauthenticated), errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, shared.ErrInvalidOTP):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired otp"})
	case errors.Is(err, service.ErrMobileInUse):
		c.JSON(http.StatusConflict, gin.H{"error": "mobile number already registered"})
	case errors.Is(err, shared.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, billing.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrBillingDisabled), errors.Is(err, shared.ErrDispatchUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		slog.ErrorContext(c.Request.Context(), "request_failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// currentUserID reads the id AuthMiddleware stored on the context.
func currentUserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get("userID")
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}

func requireUser(c *gin.Context) (int64, bool) {
	id, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	}
	return id, ok
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
