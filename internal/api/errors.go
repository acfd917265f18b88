package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parley-chat/parley/internal/errs"
)

// respondError maps a service failure onto a status code and a single
// message field. Provider and internal failures are logged with full detail
// and answered with a generic message.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	if ve, ok := errs.AsValidation(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
		return
	}

	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrProviderTimeout):
		logger.Error("provider timeout", zap.Error(err))
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "the model took too long to answer"})
	case errors.Is(err, errs.ErrProvider):
		logger.Error("provider failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "the model provider failed"})
	default:
		logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
