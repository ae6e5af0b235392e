// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credential

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidFormat is the sentinel wrapped by every *ValidationError.
var ErrInvalidFormat = errors.New("invalid format")

var (
	identifierPattern = regexp.MustCompile(`^[A-Z]{3}[0-9]{7}$`)
	mobilePattern     = regexp.MustCompile(`^[0-9]{10}$`)
)

// FieldError describes a single rejected input field.
type FieldError struct {
	Field string
	Code  string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Code
}

// ValidationError collects all field errors of one request.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return ErrInvalidFormat.Error()
	}
	return ErrInvalidFormat.Error() + ": " + e.Errors[0].Error()
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidFormat
}

func (e *ValidationError) add(field, code string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Code: code})
}

func (e *ValidationError) err() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// NormalizeIdentifier trims and upper-cases an electoral identifier and
// checks it against the three-letters-seven-digits format.
func NormalizeIdentifier(raw string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(raw))
	if !identifierPattern.MatchString(id) {
		return "", &ValidationError{Errors: []FieldError{{Field: "identifier", Code: "invalid_identifier"}}}
	}
	return id, nil
}

// ValidEmail reports whether s is a bare address with a dotted domain.
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	return at > 0 && strings.Contains(s[at+1:], ".")
}

// ValidMobile reports whether s is a ten digit mobile number.
func ValidMobile(s string) bool {
	return mobilePattern.MatchString(s)
}

// AgeOn parses a YYYY-MM-DD birth date and returns the age in whole years on
// the given day.
func AgeOn(dob string, now time.Time) (int, error) {
	born, err := time.Parse(time.DateOnly, dob)
	if err != nil {
		return 0, err
	}
	if born.After(now) {
		return 0, errors.New("date of birth in the future")
	}
	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	return age, nil
}
