package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/essay-qa/pkg/utils/errors"
)

// Recovery converts handler panics into an ErrInternal response.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Errorw("panic recovered",
			"path", c.Request.URL.Path,
			"request_id", GetRequestID(c.Request.Context()),
			"panic", recovered,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"code":    errors.ErrInternal.Code,
			"message": errors.ErrInternal.MessageEN,
		})
	})
}
