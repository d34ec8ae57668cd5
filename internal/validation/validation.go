// Package validation wraps go-playground/validator with JSON field names and
// the custom tags used by request and configuration structs.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator"

	"subtitle-index/internal/logging"
)

// Validator checks struct tags and reports the first failure as a readable
// error.
type Validator struct {
	validator *validator.Validate
}

type tagValidationDetails struct {
	validatorFunc validator.Func
	err           error
}

var customTags = map[string]tagValidationDetails{
	"phrase": {validatorFunc: isPhrase, err: errors.New("search phrase must not be empty")},
}

// New creates a Validator with the custom tags registered.
func New() (*Validator, error) {
	v := &Validator{validator: validator.New()}
	v.validator.RegisterTagNameFunc(useJSONFieldNames)

	for tag, details := range customTags {
		if err := v.validator.RegisterValidation(tag, details.validatorFunc); err != nil {
			return nil, fmt.Errorf("failed to register validator for tag %s: %w", tag, err)
		}
	}

	return v, nil
}

// Validate checks i against its validate tags.
func (v *Validator) Validate(i any) error {
	err := v.validator.Struct(i)
	if err == nil {
		return nil
	}

	logging.Debug("Validation failed: %v", err)

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err
	}

	first := validationErrs[0]
	if details, ok := customTags[first.Tag()]; ok {
		return details.err
	}

	switch first.Tag() {
	case "required":
		return fmt.Errorf("missing required field '%s'", first.Field())
	case "min", "max", "gt", "gte", "lt", "lte":
		return fmt.Errorf("value of field '%s' is not in the expected range", first.Field())
	case "oneof":
		return fmt.Errorf("field '%s' must be one of: %s", first.Field(), first.Param())
	case "gtfield":
		return fmt.Errorf("field '%s' must be greater than '%s'", first.Field(), lowerFirst(first.Param()))
	}

	return fmt.Errorf("field '%s' failed '%s' validation", first.Field(), first.Tag())
}

func useJSONFieldNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

func isPhrase(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
