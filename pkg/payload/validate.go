// Package payload validates form input against an event type's field specs,
// serializes it into the canonical payload string submitted with a care
// event, and decodes stored payloads back into field mappings.
package payload

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mesh-intelligence/carechain/pkg/types"
)

// dateLayouts are the accepted forms of a date field.
var dateLayouts = []string{"2006-01-02", time.RFC3339}

// Validate checks values against specs. Every field is checked; all
// failures are returned together as types.ValidationErrors keyed by field.
// Keys in values that no spec declares are ignored. Returns nil when every
// field passes.
func Validate(specs []types.FieldSpec, values map[string]string) error {
	errs := make(types.ValidationErrors)
	for _, spec := range specs {
		if verr, ok := validateField(spec, values[spec.Name]); !ok {
			errs[spec.Name] = verr
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// validateField applies the checks for one spec. An empty value fails only
// when the field is required; otherwise it skips the type checks. Values
// are checked as typed; only number parsing ignores surrounding spaces.
func validateField(spec types.FieldSpec, value string) (types.ValidationError, bool) {
	if value == "" {
		if spec.Required {
			return fieldError(spec, types.MissingField, "is required"), false
		}
		return types.ValidationError{}, true
	}

	switch spec.Type {
	case types.FieldTypeNumber:
		n, err := parseNumber(value)
		if err != nil {
			return fieldError(spec, types.NotANumber, "must be a number"), false
		}
		if spec.Min != nil && n < *spec.Min {
			return fieldError(spec, types.OutOfRange, rangeMessage(spec)), false
		}
		if spec.Max != nil && n > *spec.Max {
			return fieldError(spec, types.OutOfRange, rangeMessage(spec)), false
		}
	case types.FieldTypeSelect:
		if !spec.HasOption(value) {
			return fieldError(spec, types.InvalidOption, fmt.Sprintf("%q is not an allowed option", value)), false
		}
	case types.FieldTypeEmail:
		if !isEmail(value) {
			return fieldError(spec, types.InvalidEmail, "must be an email address"), false
		}
	case types.FieldTypeDate:
		if !isDate(value) {
			return fieldError(spec, types.InvalidDate, "must be a date (YYYY-MM-DD)"), false
		}
	case types.FieldTypeText, types.FieldTypeTextarea:
	}
	return types.ValidationError{}, true
}

func fieldError(spec types.FieldSpec, kind types.ValidationKind, msg string) types.ValidationError {
	return types.ValidationError{Field: spec.Name, Kind: kind, Message: msg}
}

// parseNumber accepts finite decimal numbers only.
func parseNumber(s string) (float64, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, strconv.ErrRange
	}
	return n, nil
}

func rangeMessage(spec types.FieldSpec) string {
	switch {
	case spec.Min != nil && spec.Max != nil:
		return fmt.Sprintf("must be between %v and %v", *spec.Min, *spec.Max)
	case spec.Min != nil:
		return fmt.Sprintf("must be at least %v", *spec.Min)
	default:
		return fmt.Sprintf("must be at most %v", *spec.Max)
	}
}

// isEmail is a syntactic check: exactly one "@" with non-empty local and
// domain parts.
func isEmail(s string) bool {
	if strings.Count(s, "@") != 1 {
		return false
	}
	local, domain, _ := strings.Cut(s, "@")
	return local != "" && domain != ""
}

func isDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
