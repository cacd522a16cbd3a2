package validator

import (
	"github.com/go-playground/validator/v10"
)

var (
	// Validate - singleton экземпляр валидатора для переиспользования (best practice для highload)
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	_ = Validate.RegisterValidation("sign_verb", validateSignVerb)
}

// validateSignVerb проверяет verb для presigned URL: только чтение или загрузка
func validateSignVerb(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "GET", "PUT":
		return true
	}
	return false
}
