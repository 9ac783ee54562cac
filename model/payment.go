package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentStatus is the lifecycle state of a gateway checkout attempt
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment represents one attempted checkout for a course
type Payment struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	UserID        uint              `gorm:"not null;index:idx_payment_user_course_status" json:"user_id"`
	CourseID      uint              `gorm:"not null;index:idx_payment_user_course_status" json:"course_id"`
	Amount        int64             `gorm:"not null" json:"amount"` // Minor units (paise)
	Currency      string            `gorm:"type:varchar(10);default:'INR'" json:"currency"`
	OrderID       string            `gorm:"type:varchar(100);uniqueIndex;not null" json:"order_id"`
	PaymentID     string            `gorm:"type:varchar(100);index" json:"payment_id"` // Empty until confirmed
	Signature     string            `gorm:"type:varchar(128)" json:"-"`
	Status        PaymentStatus     `gorm:"type:varchar(20);default:'pending';index:idx_payment_user_course_status" json:"status"`
	PaymentMethod string            `gorm:"type:varchar(50)" json:"payment_method"`
	Receipt       string            `gorm:"type:varchar(64)" json:"receipt"`
	Notes         datatypes.JSONMap `json:"notes,omitempty"`
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	DeletedAt     gorm.DeletedAt    `gorm:"index" json:"-"`

	// Relationships
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Course Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"course,omitempty"`
}

// TableName specifies the table name for Payment
func (Payment) TableName() string {
	return "payments"
}
