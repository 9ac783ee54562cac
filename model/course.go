package model

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Course represents a sellable course in the catalog
type Course struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `gorm:"index" json:"-"`
	InstructorID uint            `gorm:"not null;index" json:"instructor_id"`
	Title        string          `gorm:"not null" json:"title"`
	Description  string          `gorm:"type:text" json:"description"`
	Thumbnail    string          `gorm:"type:varchar(500)" json:"thumbnail,omitempty"`
	Price        decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"price"` // In major units, e.g. rupees
	Currency     string          `gorm:"type:varchar(10);default:'INR'" json:"currency"`
	Published    bool            `gorm:"default:false;index" json:"published"`
	Approved     bool            `gorm:"default:false;index" json:"approved"`

	// Denormalized list of enrolled user IDs, kept in sync by enrollment confirmation
	EnrolledStudents datatypes.JSONSlice[uint] `gorm:"default:'[]'" json:"enrolled_students"`

	// Relationships
	Instructor  User         `gorm:"foreignKey:InstructorID;constraint:OnDelete:CASCADE" json:"instructor,omitempty"`
	Enrollments []Enrollment `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
}

// IsFree reports whether the course can be enrolled without payment
func (c *Course) IsFree() bool {
	return c.Price.IsZero()
}

// IsAvailable reports whether students may buy or join the course
func (c *Course) IsAvailable() bool {
	return c.Published && c.Approved
}

// HasStudent reports whether userID is in the denormalized enrolled list
func (c *Course) HasStudent(userID uint) bool {
	return slices.Contains(c.EnrolledStudents, userID)
}

// CourseSummary is the subset of course fields embedded in enrollment responses
type CourseSummary struct {
	ID           uint            `json:"id"`
	Title        string          `json:"title"`
	Thumbnail    string          `json:"thumbnail,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	InstructorID uint            `json:"instructor_id"`
}

// Summary converts a Course to its CourseSummary
func (c *Course) Summary() CourseSummary {
	return CourseSummary{
		ID:           c.ID,
		Title:        c.Title,
		Thumbnail:    c.Thumbnail,
		Price:        c.Price,
		Currency:     c.Currency,
		InstructorID: c.InstructorID,
	}
}
