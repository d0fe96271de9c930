package valueobject

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"

	"github.com/jaevor/go-nanoid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

// QRPrefix - узнаваемый префикс QR-токена передачи.
const QRPrefix = "SWQR-"

const (
	qrTokenLength          = 21
	VerificationCodeDigits = 6
)

var codeHashCost atomic.Int64

func init() {
	codeHashCost.Store(int64(bcrypt.DefaultCost))
}

// SetCodeHashCost задаёт стоимость bcrypt для кодов подтверждения.
func SetCodeHashCost(cost int) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	codeHashCost.Store(int64(cost))
}

// NewQRToken выпускает одноразовый токен для QR-кода.
func NewQRToken() (string, error) {
	gen, err := nanoid.Standard(qrTokenLength)
	if err != nil {
		return "", fmt.Errorf("qr: не удалось создать генератор: %w", err)
	}
	return QRPrefix + gen(), nil
}

// MatchQRToken - точное совпадение, допускаются только пробелы по краям.
func MatchQRToken(issued, presented string) bool {
	presented = strings.TrimSpace(presented)
	return issued != "" && strings.HasPrefix(presented, QRPrefix) && presented == issued
}

// NewVerificationCode выпускает 6-значный код.
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("code: не удалось сгенерировать код: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// NormalizeVerificationCode убирает пробелы и дефисы, проверяет формат.
func NormalizeVerificationCode(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r == ' ' || r == '-' || r == '\t':
			continue
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			return "", apperror.New(apperror.ErrCodeValidation, "код должен состоять из цифр")
		}
	}
	code := b.String()
	if len(code) != VerificationCodeDigits {
		return "", apperror.Newf(apperror.ErrCodeValidation, "код должен содержать %d цифр", VerificationCodeDigits)
	}
	return code, nil
}

// HashVerificationCode хранит код только в виде bcrypt-хеша.
func HashVerificationCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), int(codeHashCost.Load()))
	if err != nil {
		return "", fmt.Errorf("code: не удалось захешировать код: %w", err)
	}
	return string(hash), nil
}

func MatchVerificationCode(hash, raw string) bool {
	if hash == "" {
		return false
	}
	code, err := NormalizeVerificationCode(raw)
	if err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
