package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const defaultAccessTTL = 15 * time.Minute

var ErrInvalidToken = errors.New("token: невалидный токен")

// AccessClaims - клеймы access токена. Токены выпускает сервис аккаунтов,
// здесь они только проверяются. Issue нужен CLI и тестам.
type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager проверяет и выпускает JWT.
type TokenManager struct {
	accessSecret []byte
	accessTTL    time.Duration
	now          func() time.Time
}

func NewTokenManager(accessSecret string, accessTTL time.Duration) *TokenManager {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	return &TokenManager{
		accessSecret: []byte(accessSecret),
		accessTTL:    accessTTL,
		now:          time.Now,
	}
}

// Issue выпускает access токен для пользователя.
func (m *TokenManager) Issue(userID uuid.UUID, role string) (string, time.Time, error) {
	if role == "" {
		role = RoleUser
	}
	now := m.now()
	exp := now.Add(m.accessTTL)
	claims := AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.accessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseAccess извлекает userID и роль из access токена.
func (m *TokenManager) ParseAccess(token string) (uuid.UUID, string, error) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.accessSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return uuid.Nil, "", errors.Join(ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, "", ErrInvalidToken
	}

	role := claims.Role
	if role == "" {
		role = RoleUser
	}
	return userID, role, nil
}
