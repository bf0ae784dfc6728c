package service

import (
	"errors"

	"solarmarket/verify-api/pkg/security"
)

var (
	// 400
	ErrMalformedInput = errors.New("malformed input")
	ErrMalformedToken = security.ErrMalformedToken

	// 404
	ErrNotFound      = errors.New("record not found")
	ErrTokenNotFound = errors.New("verification token not found")

	// 410 for questionnaires, "token_expired" for registrations
	ErrTokenExpired = errors.New("verification token expired")

	// Registration tokens that are missing, mismatched or already used
	ErrInvalidToken = errors.New("invalid verification token")

	ErrThrottled          = errors.New("verification requested too often")
	ErrAlreadyVerified    = errors.New("already verified")
	ErrNotVerified        = errors.New("questionnaire is not verified")
	ErrNotOwner           = errors.New("questionnaire belongs to another account")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email address is not verified")
	ErrInvalidTransition  = errors.New("invalid questionnaire status transition")

	// A row read back from the store doesn't look like anything this service writes
	ErrInvalidRecord = errors.New("record failed validation")

	// Mail, notifier or queue failures. Logged, never shown as a verification failure
	ErrDownstream = errors.New("downstream failure")
)
