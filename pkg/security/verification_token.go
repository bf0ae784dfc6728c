package security

import (
	"errors"
	"time"

	"solarmarket/verify-api/internal/model"

	"github.com/google/uuid"
)

// Canonical textual length of a UUID: 8-4-4-4-12 hex digits
const tokenLength = 36

var ErrMalformedToken = errors.New("malformed verification token")

type VerificationTokenOpts struct {
	SubjectID string
	Kind      model.TokenKind
	IssuedAt  time.Time
	TTL       time.Duration
}

// MakeVerificationToken builds an unsaved token whose value is a random
// version 4 UUID (122 bits coming from crypto/rand).
func MakeVerificationToken(o *VerificationTokenOpts) (*model.VerificationToken, error) {
	if o == nil {
		return nil, errors.New("no token options provided")
	}

	if o.SubjectID == "" {
		return nil, errors.New("no subject ID provided")
	}

	if o.Kind == "" {
		return nil, errors.New("no token kind provided")
	}

	if o.TTL <= 0 {
		return nil, errors.New("no expiry provided")
	}

	value, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}

	return &model.VerificationToken{
		SubjectID: o.SubjectID,
		Kind:      o.Kind,
		Value:     value.String(),
		IssuedAt:  o.IssuedAt,
		ExpiresAt: o.IssuedAt.Add(o.TTL),
	}, nil
}

// CheckTokenShape accepts only the canonical hyphenated UUID form. uuid.Parse
// on its own also takes urn:uuid:, braced and unhyphenated variants.
func CheckTokenShape(v string) error {
	if len(v) != tokenLength {
		return ErrMalformedToken
	}

	if _, err := uuid.Parse(v); err != nil {
		return ErrMalformedToken
	}

	return nil
}
