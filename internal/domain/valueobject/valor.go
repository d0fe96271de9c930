package valueobject

import (
	"fmt"

	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

// Valor - внутренняя валюта площадки, целые единицы.
type Valor int64

func NewValor(amount int64) (Valor, error) {
	if amount <= 0 {
		return 0, apperror.New(apperror.ErrCodeValidation, "сумма в валорах должна быть положительной")
	}
	return Valor(amount), nil
}

func (v Valor) Int64() int64 {
	return int64(v)
}

func (v Valor) String() string {
	return fmt.Sprintf("%d VLR", int64(v))
}
