package model

import "time"

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxDispatched OutboxStatus = "dispatched"
	OutboxFailed     OutboxStatus = "failed"
)

// NotificationOutbox holds a vendor notification written in the same
// transaction that activated its questionnaire. Rows stay pending until a
// dispatcher accepts them.
type NotificationOutbox struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	QuestionnaireID string `gorm:"size:36;uniqueIndex;not null"`

	CustomerName  string
	CustomerEmail string
	PropertyType  string
	MonthlyBill   float64

	Status       OutboxStatus `gorm:"size:16;index;not null;default:pending"`
	Attempts     int          `gorm:"not null;default:0"`
	LastError    string       `gorm:"size:1024"`
	DispatchedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
