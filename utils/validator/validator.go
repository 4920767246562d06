// ABOUTME: Struct tag validation for tool and CLI inputs on top of go-playground/validator
// ABOUTME: Failures map onto models.ValidationError named after the JSON field

package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"mindbody-mcp/models"
)

// Custom tags
const (
	// TagNotBefore compares two YYYY-MM-DD fields: `not_before=StartDate`
	TagNotBefore = "not_before"
	// TagWithoutKey rejects a map holding the named key: `without_key=Id`
	TagWithoutKey = "without_key"
)

// Validator wraps the go-playground validator with custom rules
type Validator struct {
	validator *validator.Validate
}

// New creates a new validator instance with custom rules
func New() *Validator {
	validate := validator.New()

	registerCustomValidators(validate)

	// Use JSON field names for validation error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{validator: validate}
}

var std = New()

// Struct validates s with the shared instance
func Struct(s any) error {
	return std.Validate(s)
}

// Validate validates a struct and returns the first failure as a *models.ValidationError
func (v *Validator) Validate(s any) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return NewValidationError(fieldErrs[0])
	}
	return fmt.Errorf("validation could not run: %w", err)
}

// ValidateVar validates a single variable
func (v *Validator) ValidateVar(field any, tag string) error {
	return v.validator.Var(field, tag)
}

// NewValidationError renders one field failure in user-facing terms
func NewValidationError(fe validator.FieldError) *models.ValidationError {
	field := fe.Field()

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "required_with":
		msg = fmt.Sprintf("is required when %s is set", jsonName(fe))
	case "min":
		msg = boundMessage(fe, "at least")
	case "max":
		msg = boundMessage(fe, "at most")
	case "gt":
		msg = fmt.Sprintf("must be greater than %s, got %v", fe.Param(), fe.Value())
	case "oneof":
		msg = fmt.Sprintf("must be one of %s, got %q", strings.Join(strings.Fields(fe.Param()), ", "), fe.Value())
	case "datetime":
		msg = fmt.Sprintf("%q is not a YYYY-MM-DD date", fe.Value())
	case TagNotBefore:
		msg = fmt.Sprintf("%v is before %s", fe.Value(), jsonName(fe))
	case TagWithoutKey:
		msg = fmt.Sprintf("%s cannot be changed", fe.Param())
	default:
		msg = fmt.Sprintf("failed the %s rule", fe.Tag())
	}
	return &models.ValidationError{Field: field, Message: msg}
}

func boundMessage(fe validator.FieldError, bound string) string {
	switch fe.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return fmt.Sprintf("must contain %s %s item(s)", bound, fe.Param())
	case reflect.String:
		return fmt.Sprintf("must be %s %s characters long", bound, fe.Param())
	default:
		return fmt.Sprintf("must be %s %s, got %v", bound, fe.Param(), fe.Value())
	}
}

// jsonName renders the Go field named in a rule parameter in snake_case, e.g. StartDate -> start_date
func jsonName(fe validator.FieldError) string {
	param := fe.Param()
	var b strings.Builder
	for i, r := range param {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// registerCustomValidators registers custom validation rules
func registerCustomValidators(validate *validator.Validate) {
	// not_before: this YYYY-MM-DD field must not precede the named sibling field.
	// Malformed dates pass here and are reported by the datetime rule.
	validate.RegisterValidation(TagNotBefore, func(fl validator.FieldLevel) bool {
		other := reflect.Indirect(fl.Parent()).FieldByName(fl.Param())
		if !other.IsValid() || other.Kind() != reflect.String {
			return false
		}
		end, err := time.Parse(models.DateLayout, fl.Field().String())
		if err != nil {
			return true
		}
		start, err := time.Parse(models.DateLayout, other.String())
		if err != nil {
			return true
		}
		return !end.Before(start)
	})

	// without_key: the map must not contain the named string key
	validate.RegisterValidation(TagWithoutKey, func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() != reflect.Map {
			return false
		}
		for _, key := range field.MapKeys() {
			if key.Kind() == reflect.String && key.String() == fl.Param() {
				return false
			}
		}
		return true
	})
}
