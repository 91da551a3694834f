package utils

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// ValidateStruct checks the validate tags on a model before it is persisted.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}
