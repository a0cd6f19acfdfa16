// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"errors"
	"strings"

	"github.com/asaskevich/govalidator"
)

// =============================================================================
// FIELD VALIDATION
// =============================================================================

// PhonePattern accepts an optional leading + and up to 16 digits, the first
// of which is not zero.
const PhonePattern = `^[\+]?[1-9][\d]{0,15}$`

var (
	ErrRequired     = errors.New("is required")
	ErrInvalidEmail = errors.New("is not a valid email address")
	ErrInvalidPhone = errors.New("is not a valid phone number")
	ErrNotAccepted  = errors.New("must be accepted")
)

// Validator checks one field value.
type Validator func(value string) error

// Required rejects blank values.
func Required(v string) error {
	if strings.TrimSpace(v) == "" {
		return ErrRequired
	}
	return nil
}

// Email rejects malformed addresses. Blank passes; pair with Required.
func Email(v string) error {
	if v != "" && !govalidator.IsEmail(v) {
		return ErrInvalidEmail
	}
	return nil
}

// Phone rejects values outside PhonePattern. Blank passes.
func Phone(v string) error {
	if v != "" && !govalidator.Matches(v, PhonePattern) {
		return ErrInvalidPhone
	}
	return nil
}

// Accepted requires a checked checkbox.
func Accepted(v string) error {
	if v != checkedValue {
		return ErrNotAccepted
	}
	return nil
}

// FieldError is one failed validation.
type FieldError struct {
	Field string
	Label string
	Err   error
}

func (e FieldError) Error() string {
	return e.Label + " " + e.Err.Error()
}

func (e FieldError) Unwrap() error {
	return e.Err
}
