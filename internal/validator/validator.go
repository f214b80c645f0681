// Package validator provides a custom Validator type for accumulating
// field-level validation errors and returning them as a map, plus the
// sanitizers applied to request fields before they are checked.
package validator

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	playground "github.com/go-playground/validator/v10"
)

// ObjectIDRX matches the 24 hex digit form of a document identifier.
var ObjectIDRX = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// AlphanumericRX matches strings made only of ASCII letters and digits.
var AlphanumericRX = regexp.MustCompile(`^[0-9A-Za-z]+$`)

// Validator holds a map of field names to their validation error messages.
// A Validator with an empty Errors map is considered valid.
type Validator struct {
	Errors map[string]string
}

// New creates and returns a fresh, empty Validator.
func New() *Validator {
	return &Validator{Errors: make(map[string]string)}
}

// Valid returns true if the Errors map contains no entries.
func (v *Validator) Valid() bool {
	return len(v.Errors) == 0
}

// AddError records key as failing with the given message.
// If key already has an error it is not overwritten, so the first
// failure for a field is always the one that is reported.
func (v *Validator) AddError(key, message string) {
	if _, exists := v.Errors[key]; !exists {
		v.Errors[key] = message
	}
}

// Check adds an error for key with message only when ok is false.
// Use this as a single-line guard:
//
//	v.Check(len(title) > 0, "title", "must be provided")
func (v *Validator) Check(ok bool, key, message string) {
	if !ok {
		v.AddError(key, message)
	}
}

// In reports whether value is one of list. Enum fields are checked with it.
func In(value string, list ...string) bool {
	for _, item := range list {
		if value == item {
			return true
		}
	}
	return false
}

// Matches reports whether rx matches value.
func Matches(value string, rx *regexp.Regexp) bool {
	return rx.MatchString(value)
}

// Trim strips leading and trailing white space.
func Trim(s string) string {
	return strings.TrimSpace(s)
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	`"`, "&quot;",
	"'", "&#x27;",
	"<", "&lt;",
	">", "&gt;",
	"/", "&#x2F;",
	`\`, "&#x5C;",
	"`", "&#96;",
)

// Escape replaces HTML-significant characters with their entities.
func Escape(s string) string {
	return htmlEscaper.Replace(s)
}

// EscapeAll escapes every element of values in place and returns it.
func EscapeAll(values []string) []string {
	for i, s := range values {
		values[i] = Escape(s)
	}
	return values
}

var isoLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01",
	"2006",
}

// ParseISO8601 parses the calendar date and date-time forms of ISO 8601.
// Values without a zone are taken as UTC.
func ParseISO8601(s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("not an ISO 8601 date")
}

var (
	structValidator     *playground.Validate
	structValidatorOnce sync.Once
)

func engine() *playground.Validate {
	structValidatorOnce.Do(func() {
		v := playground.New(playground.WithRequiredStructEnabled())

		// Report fields under their JSON names.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		_ = v.RegisterValidation("iso8601", func(fl playground.FieldLevel) bool {
			_, err := ParseISO8601(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("objectid", func(fl playground.FieldLevel) bool {
			return Matches(fl.Field().String(), ObjectIDRX)
		})
		_ = v.RegisterValidation("alphanumeric", func(fl playground.FieldLevel) bool {
			return Matches(fl.Field().String(), AlphanumericRX)
		})

		structValidator = v
	})
	return structValidator
}

// Struct checks s against its `validate` tags and records one message per
// failing field. messages is keyed by "field.tag" or "field"; failures with
// no entry get a generic message for the tag.
func (v *Validator) Struct(s any, messages map[string]string) {
	err := engine().Struct(s)
	if err == nil {
		return
	}

	var fieldErrs playground.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		v.AddError("_", err.Error())
		return
	}

	for _, fe := range fieldErrs {
		field := fe.Field()
		if i := strings.IndexByte(field, '['); i >= 0 {
			field = field[:i]
		}

		msg, ok := messages[field+"."+fe.Tag()]
		if !ok {
			msg, ok = messages[field]
		}
		if !ok {
			msg = defaultMessage(fe)
		}
		v.AddError(field, msg)
	}
}

func defaultMessage(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must be provided"
	case "min":
		return "must be at least " + fe.Param() + " characters long"
	case "max":
		return "must not be more than " + fe.Param() + " characters long"
	case "alphanumeric":
		return "must contain only letters and digits"
	case "iso8601":
		return "must be an ISO 8601 date"
	case "objectid":
		return "must be a valid identifier"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "is invalid"
	}
}
