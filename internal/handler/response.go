package handler

import (
	"strconv"

	"github.com/Baaaki/songshare/internal/apperror"
	"github.com/Baaaki/songshare/internal/middleware"
	"github.com/Baaaki/songshare/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError writes err as {"error": message}. Causes of server-side
// failures are logged and never sent to the client.
func respondError(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	status := kind.HTTPStatus()

	if status >= 500 {
		logger.Log.Error("Request failed",
			zap.String("kind", kind.String()),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString(middleware.ContextRequestID)),
			zap.Error(err),
		)
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error": apperror.PublicMessage(err),
	})
}

func paramID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.Validation("invalid " + name)
	}
	return uint(id), nil
}
