// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

// Package validation checks outgoing requests with go-playground/validator v10
// so that malformed identities and queries are rejected before dispatch.
//
//	type RankedQuery struct {
//	    DeviceToken string `json:"device_token" validate:"required,opaqueid"`
//	    Page        int    `json:"page" validate:"min=1"`
//	}
//
//	if verr := validation.ValidateStruct(&q); verr != nil {
//	    return verr
//	}
//
// Besides the built-in rules two custom ones are registered:
//
//	notblank  string is not empty after trimming whitespace
//	opaqueid  empty, or at most 128 URL-safe characters [A-Za-z0-9_-]
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// MaxOpaqueIDLength bounds device tokens and session ids.
const MaxOpaqueIDLength = 128

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one failed rule.
type FieldError struct {
	// Field is the JSON name of the field.
	Field string
	// Rule is the failed tag, e.g. "max".
	Rule string
	// Param is the tag parameter, e.g. "100" for "max=100".
	Param   string
	Message string
}

// RequestValidationError collects every failed rule of one request.
type RequestValidationError struct {
	Fields []FieldError
}

// Error joins the field messages.
func (ve *RequestValidationError) Error() string {
	if len(ve.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(ve.Fields))
	for i, f := range ve.Fields {
		messages[i] = f.Message
	}
	return strings.Join(messages, "; ")
}

// HasField reports whether the named field failed validation.
func (ve *RequestValidationError) HasField(field string) bool {
	for _, f := range ve.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// GetValidator returns the shared validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(jsonName)
		for tag, fn := range map[string]validator.Func{
			"notblank": notBlank,
			"opaqueid": opaqueID,
		} {
			if err := v.RegisterValidation(tag, fn); err != nil {
				panic(fmt.Sprintf("validation: register %s: %v", tag, err))
			}
		}
		validate = v
	})
	return validate
}

func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

func notBlank(fl validator.FieldLevel) bool {
	f := fl.Field()
	return f.Kind() == reflect.String && strings.TrimSpace(f.String()) != ""
}

// opaqueID accepts identifiers that are safe to put in a URL query unescaped.
func opaqueID(fl validator.FieldLevel) bool {
	f := fl.Field()
	if f.Kind() != reflect.String {
		return false
	}
	s := f.String()
	if len(s) > MaxOpaqueIDLength {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// ValidateStruct validates s, returning nil or a *RequestValidationError.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestValidationError{Fields: []FieldError{{Field: "request", Rule: "invalid", Message: err.Error()}}}
	}

	out := &RequestValidationError{Fields: make([]FieldError, len(fieldErrs))}
	for i, fe := range fieldErrs {
		out.Fields[i] = FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: describe(fe),
		}
	}
	return out
}

var ruleMessages = map[string]string{
	"required":         "%[1]s is required",
	"notblank":         "%[1]s must not be blank",
	"opaqueid":         "%[1]s must be at most 128 letters, digits, '_' or '-'",
	"required_without": "%[1]s is required when %[2]s is empty",
	"oneof":            "%[1]s must be one of: %[2]s",
	"gte":              "%[1]s must be greater than or equal to %[2]s",
	"lte":              "%[1]s must be less than or equal to %[2]s",
}

func describe(fe validator.FieldError) string {
	field, tag, param := fe.Field(), fe.Tag(), fe.Param()
	if tmpl, ok := ruleMessages[tag]; ok {
		return fmt.Sprintf(tmpl, field, param)
	}

	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch tag {
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", field, param, unit)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", field, param, unit)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
