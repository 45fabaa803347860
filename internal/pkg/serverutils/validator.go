package serverutils

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:@-]{1,128}$`)
)

func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
			return IsValidUserID(fl.Field().String())
		})
	})
	return validate
}

// IsValidUserID reports whether id has the shape of an identity-provider id.
func IsValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

func ValidateRequest(req interface{}) error {
	return Validator().Struct(req)
}
