package validators

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	minPasswordRunes = 8
	// argon2 takes any length, this keeps hashing cost bounded
	maxPasswordRunes = 128
)

var (
	ErrPasswordEmpty    = errors.New("no password provided")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters long")
	ErrPasswordTooLong  = errors.New("password can be at most 128 characters long")
	ErrPasswordBlank    = errors.New("password can't be only whitespace")
	ErrPasswordIsEmail  = errors.New("password can't be your email address")
)

// PasswordValidator checks a new account password. Length counts characters,
// not bytes. The password may not be the account's email address or its
// local part.
func PasswordValidator(p, email string) error {
	if p == "" {
		return ErrPasswordEmpty
	}

	n := utf8.RuneCountInString(p)
	if n < minPasswordRunes {
		return ErrPasswordTooShort
	}

	if n > maxPasswordRunes {
		return ErrPasswordTooLong
	}

	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		return ErrPasswordBlank
	}

	if email != "" {
		local, _, _ := strings.Cut(email, "@")
		if strings.EqualFold(trimmed, email) || strings.EqualFold(trimmed, local) {
			return ErrPasswordIsEmail
		}
	}

	return nil
}
