package validator

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var digits18Regex = regexp.MustCompile(`^\d{18}$`)
var digits9Regex = regexp.MustCompile(`^\d{9}$`)

func validateDigits18(fl validator.FieldLevel) bool {
	return digits18Regex.MatchString(fl.Field().String())
}

func validateDigits9(fl validator.FieldLevel) bool {
	return digits9Regex.MatchString(fl.Field().String())
}

func validateStruct(payload interface{}) *[]error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		errs := []error{err}
		return &errs
	}
	errs := []error{}
	for _, fieldErr := range validationErrors {
		errs = append(errs, fmt.Errorf("%s failed validation for rule %s", fieldErr.Field(), fieldErr.Tag()))
	}
	return &errs
}

func validateField(value any, rules string) error {
	return validate.Var(value, rules)
}
