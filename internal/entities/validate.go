package entities

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs struct-tag validation, folding go-playground's
// field-by-field errors into a single message — the same pattern the
// teacher's internal/utils/validator.go used for request DTOs.
func ValidateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("validation failed: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
