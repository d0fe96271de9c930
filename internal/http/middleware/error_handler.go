package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/barter-backend/internal/interface/http/response"
	"github.com/ignatzorin/barter-backend/internal/logger"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

// ErrorHandler логирует ошибки, накопленные в c.Errors, и маскирует
// внутренние ошибки, если хэндлер не успел ответить.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last()
		logger.Log.WithFields(logrus.Fields{
			"error":  err.Error(),
			"path":   c.FullPath(),
			"method": c.Request.Method,
			"status": c.Writer.Status(),
		}).Error("request error")

		if c.Writer.Written() {
			return
		}
		response.Error(c, err.Err)
	}
}

// Recovery перехватывает панику хэндлера и отвечает 500 в общем формате.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Log.WithFields(logrus.Fields{
					"panic":  r,
					"path":   c.FullPath(),
					"method": c.Request.Method,
				}).Error("panic recovered")

				if !c.Writer.Written() {
					c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
						Success: false,
						Error: &response.ErrorInfo{
							Code:    string(apperror.ErrCodeInternal),
							Message: "внутренняя ошибка сервера",
						},
					})
					return
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
