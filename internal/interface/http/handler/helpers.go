package handler

import (
	"errors"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/http/middleware"
	"github.com/ignatzorin/barter-backend/internal/interface/http/response"
	"github.com/ignatzorin/barter-backend/internal/service"
)

const (
	ContextUserIDKey = middleware.ContextUserIDKey
	ContextRoleKey   = middleware.ContextRoleKey
)

func getUserID(c *gin.Context) (uuid.UUID, error) {
	userIDValue, exists := c.Get(ContextUserIDKey)
	if !exists {
		return uuid.Nil, errors.New("user_id не найден в контексте")
	}

	userID, ok := userIDValue.(uuid.UUID)
	if !ok {
		return uuid.Nil, errors.New("некорректный формат user_id")
	}

	return userID, nil
}

func isAdmin(c *gin.Context) bool {
	return c.GetString(ContextRoleKey) == service.RoleAdmin
}

// requireUser пишет 401 и возвращает false, если пользователя нет в контексте.
func requireUser(c *gin.Context) (uuid.UUID, bool) {
	userID, err := getUserID(c)
	if err != nil {
		response.Unauthorized(c, "требуется авторизация")
		return uuid.Nil, false
	}
	return userID, true
}

// bindOptionalJSON разбирает необязательное тело. Пустое тело допустимо,
// битый JSON - 400.
func bindOptionalJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "некорректные данные запроса")
		return false
	}
	return true
}

func parseUUIDParam(c *gin.Context, name, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, message)
		return uuid.Nil, false
	}
	return id, true
}

func parseIntQuery(c *gin.Context, key string, defaultValue int) int {
	valueStr := c.Query(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func parseFloatQuery(c *gin.Context, key string) *float64 {
	valueStr := c.Query(key)
	if valueStr == "" {
		return nil
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return nil
	}

	return &value
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
