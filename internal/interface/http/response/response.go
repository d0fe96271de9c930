package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

// Response - общий конверт ответов API.
type Response struct {
	Success bool        `json:"success"`
	Data    any `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type PaginatedResponse struct {
	Success    bool        `json:"success"`
	Data       any `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Paginated пишет страницу списка с применёнными limit и offset.
func Paginated(c *gin.Context, data any, total, limit, offset int) {
	c.JSON(http.StatusOK, PaginatedResponse{
		Success: true,
		Data:    data,
		Pagination: Pagination{
			Total:   total,
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+limit < total,
		},
	})
}

// Error пишет доменную ошибку с её кодом и деталями. Прочие ошибки
// маскируются и попадают в c.Errors для ErrorHandler.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		abort(c, appErr.HTTPStatus, string(appErr.Code), appErr.Message, appErr.Details)
		return
	}

	_ = c.Error(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		abort(c, http.StatusServiceUnavailable, string(apperror.ErrCodeInternal), "запрос прерван, повторите попытку", nil)
		return
	}
	abort(c, http.StatusInternalServerError, string(apperror.ErrCodeInternal), "внутренняя ошибка сервера", nil)
}

func BadRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, string(apperror.ErrCodeBadRequest), message, nil)
}

func Unauthorized(c *gin.Context, message string) {
	abort(c, http.StatusUnauthorized, string(apperror.ErrCodeUnauthorized), message, nil)
}

func Forbidden(c *gin.Context, message string) {
	abort(c, http.StatusForbidden, string(apperror.ErrCodeForbidden), message, nil)
}

func TooManyRequests(c *gin.Context, message string) {
	abort(c, http.StatusTooManyRequests, string(apperror.ErrCodeTooManyRequests), message, nil)
}

func abort(c *gin.Context, status int, code, message string, details map[string]string) {
	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}
