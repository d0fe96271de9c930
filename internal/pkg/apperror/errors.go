package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest         ErrorCode = "BAD_REQUEST"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	ErrCodePreconditionFailed ErrorCode = "PRECONDITION_FAILED"
	ErrCodeDatabaseError      ErrorCode = "DATABASE_ERROR"
	ErrCodeTooManyRequests    ErrorCode = "TOO_MANY_REQUESTS"
)

// Ключи Details, по которым клиент восстанавливает актуальное состояние.
const (
	DetailCurrentStatus  = "current_status"
	DetailDeliveryType   = "delivery_type"
	DetailLastProposedBy = "last_proposed_by"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Details    map[string]string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail возвращает копию ошибки с дополнительным полем.
// Копия нужна, чтобы не портить общие sentinel-ошибки.
func (e *AppError) WithDetail(key, value string) *AppError {
	cp := *e
	cp.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeInvalidTransition:
		return http.StatusConflict
	case ErrCodePreconditionFailed:
		return http.StatusPreconditionFailed
	case ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	case ErrCodeDatabaseError:
		// Недоступность хранилища клиент может повторить.
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

func IsForbidden(err error) bool {
	return CodeOf(err) == ErrCodeForbidden
}

func IsValidation(err error) bool {
	return CodeOf(err) == ErrCodeValidation
}

func IsConflict(err error) bool {
	return CodeOf(err) == ErrCodeConflict
}

func IsInvalidTransition(err error) bool {
	return CodeOf(err) == ErrCodeInvalidTransition
}

func IsPreconditionFailed(err error) bool {
	return CodeOf(err) == ErrCodePreconditionFailed
}

var (
	ErrSwapRequestNotFound = New(ErrCodeNotFound, "заявка на обмен не найдена")
	ErrMultiSwapNotFound   = New(ErrCodeNotFound, "цепочка обмена не найдена")
	ErrDisputeNotFound     = New(ErrCodeNotFound, "спор не найден")
	ErrProductNotFound     = New(ErrCodeNotFound, "товар не найден")
	ErrUnauthorized        = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden           = New(ErrCodeForbidden, "недостаточно прав")
	ErrStaleVersion        = New(ErrCodeConflict, "запись изменена другим участником, обновите данные и повторите")
	ErrTooManyAttempts     = New(ErrCodeTooManyRequests, "слишком много попыток ввода кода, повторите позже")
)
