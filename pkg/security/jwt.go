package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidAccessToken = errors.New("invalid access token")

type AccessTokens struct {
	secret []byte
	ttl    time.Duration

	// Clock used for exp/iat validation in Parse
	Now func() time.Time
}

func NewAccessTokens(secret string, ttl time.Duration) *AccessTokens {
	return &AccessTokens{secret: []byte(secret), ttl: ttl, Now: time.Now}
}

func (a *AccessTokens) Issue(userID string, now time.Time) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"type":    "auth",
		"iat":     now.Unix(),
		"exp":     now.Add(a.ttl).Unix(),
	})

	return t.SignedString(a.secret)
}

// Parse returns the user ID carried by a valid, unexpired access token.
func (a *AccessTokens) Parse(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}

		return a.secret, nil
	}, jwt.WithExpirationRequired(), jwt.WithTimeFunc(a.Now))
	if err != nil {
		return "", fmt.Errorf("%w, %w", ErrInvalidAccessToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidAccessToken
	}

	if typ, _ := claims["type"].(string); typ != "auth" {
		return "", ErrInvalidAccessToken
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", ErrInvalidAccessToken
	}

	return userID, nil
}
