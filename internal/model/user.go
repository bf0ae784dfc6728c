package model

import (
	"errors"
	"time"
)

// UserAccount mirrors the identity provider's user record. The service only
// owns the verification flags, the rest is written once at registration.
type UserAccount struct {
	ID           string `gorm:"primaryKey;size:64"`
	Email        string `gorm:"size:320;uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	FirstName    string `gorm:"size:128"`
	LastName     string `gorm:"size:128"`
	Phone        string `gorm:"size:32"`

	// Provider level flag
	EmailVerified bool `gorm:"not null;default:false"`
	// Our own confirmation flag, login gating only trusts this one
	CustomEmailVerified bool `gorm:"not null;default:false"`
	EmailVerifiedAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *UserAccount) Validate() error {
	if u.ID == "" {
		return errors.New("account has no id")
	}

	if u.Email == "" {
		return errors.New("account has no email")
	}

	if u.CustomEmailVerified != u.EmailVerified {
		return errors.New("account verification flags disagree")
	}

	return nil
}
