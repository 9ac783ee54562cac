package model

import (
	"time"

	"gorm.io/datatypes"
)

// EnrollmentPaymentStatus records how an enrollment was paid for
type EnrollmentPaymentStatus string

const (
	EnrollmentPaymentNone      EnrollmentPaymentStatus = "none"
	EnrollmentPaymentPending   EnrollmentPaymentStatus = "pending"
	EnrollmentPaymentCompleted EnrollmentPaymentStatus = "completed"
	EnrollmentPaymentFree      EnrollmentPaymentStatus = "free"
)

// IsConfirmed reports whether the status grants course access
func (s EnrollmentPaymentStatus) IsConfirmed() bool {
	return s == EnrollmentPaymentCompleted || s == EnrollmentPaymentFree
}

// EnrollmentStatus is the learner-facing state of an enrollment
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusSuspended EnrollmentStatus = "suspended"
)

// Enrollment links a user to a course. At most one row exists per (user, course).
type Enrollment struct {
	ID               uint                        `gorm:"primaryKey" json:"id"`
	UserID           uint                        `gorm:"not null;uniqueIndex:idx_enrollment_user_course" json:"user_id"`
	CourseID         uint                        `gorm:"not null;uniqueIndex:idx_enrollment_user_course;index" json:"course_id"`
	PaymentStatus    EnrollmentPaymentStatus     `gorm:"type:varchar(20);default:'none'" json:"payment_status"`
	PaymentID        string                      `gorm:"type:varchar(100)" json:"payment_id,omitempty"`
	EnrollmentDate   time.Time                   `json:"enrollment_date"`
	Status           EnrollmentStatus            `gorm:"type:varchar(20);default:'active'" json:"status"`
	Progress         int                         `gorm:"default:0" json:"progress"` // 0-100
	CompletedLessons datatypes.JSONSlice[string] `json:"completed_lessons"`
	LastAccessedAt   *time.Time                  `json:"last_accessed_at,omitempty"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`

	// Relationships
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Course Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
}

// EnrollmentResponse is an enrollment populated with its course summary
type EnrollmentResponse struct {
	ID               uint                    `json:"id"`
	UserID           uint                    `json:"user_id"`
	CourseID         uint                    `json:"course_id"`
	PaymentStatus    EnrollmentPaymentStatus `json:"payment_status"`
	PaymentID        string                  `json:"payment_id,omitempty"`
	EnrollmentDate   time.Time               `json:"enrollment_date"`
	Status           EnrollmentStatus        `json:"status"`
	Progress         int                     `json:"progress"`
	CompletedLessons []string                `json:"completed_lessons"`
	Course           CourseSummary           `json:"course"`
}

// ToResponse converts an Enrollment (with Course preloaded) to EnrollmentResponse
func (e *Enrollment) ToResponse() EnrollmentResponse {
	lessons := []string(e.CompletedLessons)
	if lessons == nil {
		lessons = []string{}
	}
	return EnrollmentResponse{
		ID:               e.ID,
		UserID:           e.UserID,
		CourseID:         e.CourseID,
		PaymentStatus:    e.PaymentStatus,
		PaymentID:        e.PaymentID,
		EnrollmentDate:   e.EnrollmentDate,
		Status:           e.Status,
		Progress:         e.Progress,
		CompletedLessons: lessons,
		Course:           e.Course.Summary(),
	}
}
