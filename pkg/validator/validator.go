// Package validator checks the portal's request payloads. On top of the
// go-playground tag set it registers the panic-alert rules the alert and
// settings endpoints share.
package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	// TagAlertDuration bounds an alert's lifetime in minutes. Zero is
	// accepted and means "use the resident's stored default".
	TagAlertDuration = "alert_duration"
	// TagHoldSeconds bounds the press-and-hold arming time.
	TagHoldSeconds = "hold_seconds"

	maxAlertDurationMinutes = 24 * 60
	minHoldSeconds          = 1
	maxHoldSeconds          = 30
)

var (
	setupOnce sync.Once
	validate  *validator.Validate
)

// ValidationError describes one failed rule on one field.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
}

// ValidationErrors aggregates every failed rule for a payload.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}

	parts := make([]string, len(v))
	for i, failure := range v {
		rule := failure.Tag
		if failure.Param != "" {
			rule += "=" + failure.Param
		}
		parts[i] = failure.Field + " violates " + rule
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct checks s against its validate tags and reports failures
// as ValidationErrors keyed by wire field names.
func ValidateStruct(s any) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	failures := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		failures = append(failures, ValidationError{
			Field: fe.Field(),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		})
	}
	return failures
}

// RegisterValidation adds a custom rule to the shared validator.
func RegisterValidation(tag string, fn validator.Func) error {
	return instance().RegisterValidation(tag, fn)
}

func instance() *validator.Validate {
	setupOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(jsonFieldName)
		// Registration only fails for an empty tag name.
		_ = validate.RegisterValidation(TagAlertDuration, validAlertDuration)
		_ = validate.RegisterValidation(TagHoldSeconds, validHoldSeconds)
	})
	return validate
}

// jsonFieldName reports fields under their wire names so validation
// failures line up with the payload the client actually sent.
func jsonFieldName(fld reflect.StructField) string {
	tag := fld.Tag.Get("json")
	if tag == "" || tag == "-" {
		return fld.Name
	}

	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

func validAlertDuration(fl validator.FieldLevel) bool {
	minutes, ok := intValue(fl)
	return ok && minutes >= 0 && minutes <= maxAlertDurationMinutes
}

func validHoldSeconds(fl validator.FieldLevel) bool {
	seconds, ok := intValue(fl)
	return ok && seconds >= minHoldSeconds && seconds <= maxHoldSeconds
}

func intValue(fl validator.FieldLevel) (int64, bool) {
	field := fl.Field()
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return field.Int(), true
	default:
		return 0, false
	}
}
