package testutils

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewTestValidator creates a validator that reports fields by their yaml
// names, matching how configuration errors read in production.
func NewTestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
