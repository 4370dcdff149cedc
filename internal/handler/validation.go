package handler

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"
)

var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

// FieldErrors maps a request field to the first problem found with it.
type FieldErrors map[string]string

func (f FieldErrors) add(field, msg string) {
	if _, exists := f[field]; !exists {
		f[field] = msg
	}
}

func (f FieldErrors) empty() bool {
	return len(f) == 0
}

type validationResponse struct {
	Error  string      `json:"error"`
	Fields FieldErrors `json:"fields"`
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

func checkEmailOrPhone(errs FieldErrors, field, value string) {
	switch {
	case strings.TrimSpace(value) == "":
		errs.add(field, "Email or phone number is required")
	case !validEmail(value) && !phonePattern.MatchString(value):
		errs.add(field, "Please enter a valid email address or phone number")
	}
}

// checkNewPassword enforces the password policy on new passwords and the
// confirmation match.
func checkNewPassword(errs FieldErrors, password, confirm string) {
	if len(password) < 8 {
		errs.add("password", "Password must be at least 8 characters long")
	}
	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !lower || !upper || !digit {
		errs.add("password", "Password must contain at least one uppercase letter, one lowercase letter, and one number")
	}

	switch {
	case confirm == "":
		errs.add("confirmPassword", "Please confirm your password")
	case confirm != password:
		errs.add("confirmPassword", "Passwords don't match, please try again")
	}
}
