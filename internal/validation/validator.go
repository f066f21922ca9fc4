// Package validation checks API request bodies with validator/v10 and
// converts failures to domain validation errors keyed by JSON field name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/waypointapp/waypoint-server/internal/clock"
	domainerrors "github.com/waypointapp/waypoint-server/internal/errors"
)

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator with the itinerary tags registered:
//
//	clock      HH:MM wall-clock time
//	latitude   built in, -90..90
//	longitude  built in, -180..180
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})

	//nolint:errcheck // RegisterValidation only fails on an empty tag name
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return clock.Valid(fl.Field().String())
	})

	return &Validator{v: v}
}

// Validate validates a struct. Field failures come back as one
// VALIDATION error whose details map field path to message.
func (v *Validator) Validate(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	details := make(map[string]string, len(fieldErrs))
	for _, e := range fieldErrs {
		details[fieldPath(e)] = message(e)
	}
	return domainerrors.ValidationWithDetails("validation failed", details)
}

// fieldPath drops the root struct name: "coordinates.lat", not
// "AddEventRequest.coordinates.lat".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return e.Field()
}

// Messages for tags whose wording does not depend on the field kind.
var fixedMessages = map[string]string{
	"required":  "is required",
	"clock":     "must be a time in HH:MM format",
	"latitude":  "must be a latitude between -90 and 90",
	"longitude": "must be a longitude between -180 and 180",
}

func message(e validator.FieldError) string {
	if msg, ok := fixedMessages[e.Tag()]; ok {
		return msg
	}

	isText := e.Kind() == reflect.String
	switch e.Tag() {
	case "max":
		if isText {
			return fmt.Sprintf("must not exceed %s characters", e.Param())
		}
		return "must be at most " + e.Param()
	case "min":
		if isText {
			return fmt.Sprintf("must be at least %s characters", e.Param())
		}
		return "must be at least " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "lt":
		return "must be less than " + e.Param()
	}
	return "is invalid"
}
