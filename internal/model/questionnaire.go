// Package model defines database models
package model

import (
	"errors"
	"fmt"
	"time"
)

type QuestionnaireStatus string

const (
	StatusDraft     QuestionnaireStatus = "draft"
	StatusActive    QuestionnaireStatus = "active"
	StatusCompleted QuestionnaireStatus = "completed"
)

type PropertyQuestionnaire struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`
	// Empty until an authenticated account claims the questionnaire
	CustomerID *string             `gorm:"size:64;index" json:"customerId"`
	Status     QuestionnaireStatus `gorm:"size:16;not null;default:draft" json:"status"`
	VerifiedAt *time.Time          `json:"verifiedAt"`
	// Toggled by the profile completion action, independent from verification
	IsCompleted bool `gorm:"not null;default:false" json:"isCompleted"`

	FirstName string `gorm:"size:128" json:"firstName"`
	LastName  string `gorm:"size:128" json:"lastName"`
	Email     string `gorm:"size:320;not null;index" json:"email"`
	Phone     string `gorm:"size:32" json:"phone"`
	Address   string `gorm:"size:512" json:"address"`

	PropertyType string  `gorm:"size:64" json:"propertyType"`
	MonthlyBill  float64 `json:"monthlyBill"`
	// Remaining intake answers, passed through untouched
	Answers map[string]any `gorm:"serializer:json" json:"answers"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (q *PropertyQuestionnaire) FullName() string {
	switch {
	case q.FirstName == "":
		return q.LastName
	case q.LastName == "":
		return q.FirstName
	}

	return q.FirstName + " " + q.LastName
}

func (q *PropertyQuestionnaire) Verified() bool {
	return q.VerifiedAt != nil
}

// Validate rejects rows that can't have been written by this service.
func (q *PropertyQuestionnaire) Validate() error {
	if q.ID == "" {
		return errors.New("questionnaire has no id")
	}

	switch q.Status {
	case StatusDraft, StatusActive, StatusCompleted:
	default:
		return fmt.Errorf("unknown questionnaire status %q", q.Status)
	}

	if q.Status != StatusDraft && q.VerifiedAt == nil {
		return fmt.Errorf("questionnaire is %s but was never verified", q.Status)
	}

	if q.Email == "" {
		return errors.New("questionnaire has no email")
	}

	return nil
}
