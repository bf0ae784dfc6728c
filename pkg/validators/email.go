// Package validators holds the input checks shared by the intake and
// account endpoints
package validators

import (
	"errors"
	"net/mail"
	"strings"
)

var (
	ErrEmailEmpty   = errors.New("no email address provided")
	ErrEmailInvalid = errors.New("invalid email address provided")
	ErrEmailTooLong = errors.New("email address is too long")
)

// EmailValidator accepts a bare address only. Display-name forms such as
// "Jane <jane@example.com>" are rejected since the value is stored as is.
func EmailValidator(e string) error {
	if e == "" {
		return ErrEmailEmpty
	}

	if len(e) > 254 {
		return ErrEmailTooLong
	}

	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e || !strings.Contains(e[strings.LastIndex(e, "@"):], ".") {
		return ErrEmailInvalid
	}

	return nil
}
