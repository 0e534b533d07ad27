// Package validation checks request payloads against their declared rules
// and reports every failing field at once.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/booktalk/backend/internal/apperr"
	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Get returns the shared validator. Struct metadata is cached on it, so a
// single instance serves every request.
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		validate.RegisterTagNameFunc(fieldName)

		_ = validate.RegisterValidation("isodate", isISODate)
		_ = validate.RegisterValidation("notblank", notBlank)
	})
	return validate
}

// fieldName reports the name a client sent the field under, so query and
// form structs surface "itemId" rather than "ItemID".
func fieldName(field reflect.StructField) string {
	for _, tag := range []string{"json", "query", "form"} {
		name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return field.Name
}

// Struct validates s and returns nil or an *apperr.ValidationError.
func Struct(s interface{}) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return apperr.Validation(apperr.FieldError{Field: "body", Message: err.Error()})
	}

	fields := make([]apperr.FieldError, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		fields = append(fields, apperr.FieldError{
			Field:   fieldErr.Field(),
			Message: translate(fieldErr),
		})
	}
	return apperr.Validation(fields...)
}

var isoDateLayouts = []string{"2006-01-02", time.RFC3339, time.RFC3339Nano}

// ParseISODate accepts a calendar date or a full RFC 3339 timestamp.
func ParseISODate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range isoDateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}

func isISODate(fl validator.FieldLevel) bool {
	_, err := ParseISODate(fl.Field().String())
	return err == nil
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

var messageTemplates = map[string]string{
	"required":         "%s is required",
	"required_without": "%s is required",
	"notblank":         "%s must not be blank",
	"email":            "%s must be a valid email address",
	"url":              "%s must be a valid URL",
	"http_url":         "%s must be a valid URL",
	"uuid":             "%s must be a valid identifier",
	"isodate":          "%s must be a valid date (YYYY-MM-DD)",
	"numeric":          "%s must be numeric",
	"excluded_with":    "%s cannot be combined with another target",
}

var paramTemplates = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
}

func translate(fe validator.FieldError) string {
	field := fe.Field()
	if template, ok := messageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := paramTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(template, field, strings.ReplaceAll(fe.Param(), " ", ", "))
	}

	switch fe.Kind() {
	case reflect.String:
		switch fe.Tag() {
		case "min":
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		case "max":
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
	case reflect.Slice, reflect.Array:
		switch fe.Tag() {
		case "min":
			return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		case "max":
			return fmt.Sprintf("%s must contain at most %s item(s)", field, fe.Param())
		}
	default:
		switch fe.Tag() {
		case "min":
			return fmt.Sprintf("%s must be at least %s", field, fe.Param())
		case "max":
			return fmt.Sprintf("%s must be at most %s", field, fe.Param())
		}
	}
	return fmt.Sprintf("%s is invalid", field)
}
