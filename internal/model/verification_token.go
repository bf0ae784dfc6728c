package model

import (
	"errors"
	"fmt"
	"time"
)

type TokenKind string

const (
	TokenKindQuestionnaire TokenKind = "questionnaire"
	TokenKindRegistration  TokenKind = "registration"
)

// VerificationToken is a single use credential sent by mail. There is at most
// one row per (SubjectID, Kind); reissuing overwrites the row so the previous
// value stops matching anything.
type VerificationToken struct {
	ID         uint       `gorm:"primaryKey;autoIncrement"`
	SubjectID  string     `gorm:"size:64;not null;uniqueIndex:idx_token_subject_kind"`
	Kind       TokenKind  `gorm:"size:32;not null;uniqueIndex:idx_token_subject_kind"`
	Value      string     `gorm:"size:36;not null;uniqueIndex"`
	IssuedAt   time.Time  `gorm:"not null"`
	ExpiresAt  time.Time  `gorm:"index;not null"`
	Consumed   bool       `gorm:"not null;default:false"`
	ConsumedAt *time.Time
}

// Usable reports whether the token would pass validation at t.
func (t *VerificationToken) Usable(at time.Time) bool {
	return !t.Consumed && at.Before(t.ExpiresAt)
}

func (t *VerificationToken) Validate() error {
	if t.SubjectID == "" {
		return errors.New("token has no subject")
	}

	switch t.Kind {
	case TokenKindQuestionnaire, TokenKindRegistration:
	default:
		return fmt.Errorf("unknown token kind %q", t.Kind)
	}

	if t.Value == "" {
		return errors.New("token has no value")
	}

	if t.Consumed && t.ConsumedAt == nil {
		return errors.New("consumed token without consumption time")
	}

	return nil
}
