package model

import (
	"time"

	"gorm.io/datatypes"
)

// DeadLetterStatus tracks whether a failed delivery still needs attention
type DeadLetterStatus string

const (
	DeadLetterPending   DeadLetterStatus = "pending"
	DeadLetterResolved  DeadLetterStatus = "resolved"
	DeadLetterAbandoned DeadLetterStatus = "abandoned"
)

// NotificationDeadLetter records a notification task a sink could not deliver
type NotificationDeadLetter struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	TaskID     string           `gorm:"type:varchar(64);index;not null" json:"task_id"`
	Kind       string           `gorm:"type:varchar(50);not null" json:"kind"`
	Sink       string           `gorm:"type:varchar(50);not null;index" json:"sink"`
	Payload    datatypes.JSON   `json:"payload"`
	Attempts   int              `gorm:"default:0" json:"attempts"`
	LastError  string           `gorm:"type:text" json:"last_error"`
	Status     DeadLetterStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// TableName specifies the table name for NotificationDeadLetter
func (NotificationDeadLetter) TableName() string {
	return "notification_dead_letters"
}
