package application

import (
	"errors"
	"fmt"
	"strings"

	"mediastudio/internal/domain"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validateRequest は、リクエストの構造体タグを検証し、ErrInvalidPromptとして返します
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPrompt, err)
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, describeFieldError(e))
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidPrompt, strings.Join(messages, ", "))
}

func describeFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%sは必須です", e.Field())
	case "max":
		return fmt.Sprintf("%sは%s以下である必要があります", e.Field(), e.Param())
	case "min":
		return fmt.Sprintf("%sは%s以上である必要があります", e.Field(), e.Param())
	case "gte":
		return fmt.Sprintf("%sは%s以上である必要があります", e.Field(), e.Param())
	case "lte":
		return fmt.Sprintf("%sは%s以下である必要があります", e.Field(), e.Param())
	case "oneof":
		return fmt.Sprintf("%sは次のいずれかである必要があります: %s", e.Field(), e.Param())
	default:
		return fmt.Sprintf("%sが不正です (%s)", e.Field(), e.Tag())
	}
}
