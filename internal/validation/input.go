package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Константы валидации
const (
	MaxSwapMessageLength     = 2000
	MaxCancelReasonLength    = 500
	MaxCustomLocationLength  = 200
	MaxDisputeDescription    = 5000
	MaxResolutionNoteLength  = 2000
	MaxPhotoRefLength        = 1000
	MaxMultiSwapReasonLength = 500
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateSwapMessage проверяет сопроводительное сообщение заявки.
func ValidateSwapMessage(message string) error {
	return ValidateLength("сообщение", strings.TrimSpace(message), 0, MaxSwapMessageLength)
}

// ValidateCustomLocation проверяет своё место встречи.
func ValidateCustomLocation(location *string) error {
	if location != nil && *location != "" {
		loc := strings.TrimSpace(*location)
		if err := ValidateLength("место встречи", loc, 0, MaxCustomLocationLength); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDisputeDescription проверяет описание проблемы.
func ValidateDisputeDescription(description string, minLength int) error {
	if description == "" {
		return fmt.Errorf("описание проблемы обязательно")
	}

	description = strings.TrimSpace(description)

	if err := ValidateLength("описание проблемы", description, minLength, MaxDisputeDescription); err != nil {
		return err
	}

	return nil
}

// ValidatePhotoRefs проверяет ссылки на снимки: только длина, содержимое хранится вне сервиса.
func ValidatePhotoRefs(refs []string) error {
	for _, ref := range refs {
		if err := ValidateNonEmpty("ссылка на фото", ref); err != nil {
			return err
		}
		if utf8.RuneCountInString(ref) > MaxPhotoRefLength {
			return fmt.Errorf("ссылка на фото не может быть длиннее %d символов", MaxPhotoRefLength)
		}
	}
	return nil
}

// ValidateReason проверяет причину отмены или отказа.
func ValidateReason(reason *string, max int) error {
	if reason != nil && *reason != "" {
		if err := ValidateLength("причина", strings.TrimSpace(*reason), 0, max); err != nil {
			return err
		}
	}
	return nil
}
