package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/sahilchouksey/learnhub-api/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnrollmentService owns the (user, course) enrollment rows
type EnrollmentService struct {
	db       *gorm.DB
	notifier Notifier
}

// NewEnrollmentService creates a new enrollment service. notifier may be nil.
func NewEnrollmentService(db *gorm.DB, notifier Notifier) *EnrollmentService {
	return &EnrollmentService{db: db, notifier: notifier}
}

// ConfirmRequest describes a confirmed enrollment
type ConfirmRequest struct {
	UserID        uint
	CourseID      uint
	PaymentStatus model.EnrollmentPaymentStatus // completed or free
	PaymentID     string
}

// ConfirmEnrollment upserts the enrollment and records the user on the course, in one transaction
func (s *EnrollmentService) ConfirmEnrollment(ctx context.Context, req ConfirmRequest) (*model.Enrollment, error) {
	var enrollment *model.Enrollment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		enrollment, err = s.ConfirmInTx(tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return enrollment, nil
}

// ConfirmInTx is ConfirmEnrollment on a caller-owned transaction.
//
// The row for (user, course) is inserted, or updated when it exists but is not yet
// confirmed. An already confirmed row is left untouched: a free confirmation then fails
// with ErrAlreadyEnrolled, a paid one is a no-op so that re-verification stays idempotent.
// A paid confirmation carrying a different payment id than the stored row is logged so the
// duplicate charge can be refunded.
func (s *EnrollmentService) ConfirmInTx(tx *gorm.DB, req ConfirmRequest) (*model.Enrollment, error) {
	if !req.PaymentStatus.IsConfirmed() {
		return nil, fmt.Errorf("cannot confirm enrollment with payment status %q", req.PaymentStatus)
	}

	enrollment := model.Enrollment{
		UserID:           req.UserID,
		CourseID:         req.CourseID,
		PaymentStatus:    req.PaymentStatus,
		PaymentID:        req.PaymentID,
		EnrollmentDate:   time.Now(),
		Status:           model.EnrollmentStatusActive,
		CompletedLessons: datatypes.JSONSlice[string]{},
	}

	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payment_status", "payment_id", "enrollment_date", "status", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{
				SQL:  "enrollments.payment_status NOT IN (?, ?)",
				Vars: []interface{}{model.EnrollmentPaymentCompleted, model.EnrollmentPaymentFree},
			},
		}},
	}).Create(&enrollment)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to upsert enrollment: %w", result.Error)
	}

	if result.RowsAffected == 0 && req.PaymentStatus == model.EnrollmentPaymentFree {
		return nil, ErrAlreadyEnrolled
	}

	var saved model.Enrollment
	if err := tx.Where("user_id = ? AND course_id = ?", req.UserID, req.CourseID).First(&saved).Error; err != nil {
		return nil, fmt.Errorf("failed to reload enrollment: %w", err)
	}

	if result.RowsAffected == 0 && saved.PaymentID != req.PaymentID {
		log.Printf("[PAYMENT] WARNING: user %d already enrolled in course %d via payment %q, payment %q needs a refund review",
			req.UserID, req.CourseID, saved.PaymentID, req.PaymentID)
	}

	if err := addEnrolledStudent(tx, req.CourseID, req.UserID); err != nil {
		return nil, err
	}

	return &saved, nil
}

// addEnrolledStudent appends userID to the course's enrolled list unless already present.
// The course row is locked so concurrent confirmations do not overwrite each other.
func addEnrolledStudent(tx *gorm.DB, courseID, userID uint) error {
	var course model.Course
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "enrolled_students").
		First(&course, courseID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCourseNotFound
		}
		return fmt.Errorf("failed to lock course: %w", err)
	}

	if course.HasStudent(userID) {
		return nil
	}

	students := append(slices.Clone(course.EnrolledStudents), userID)
	if err := tx.Model(&model.Course{}).
		Where("id = ?", courseID).
		Update("enrolled_students", datatypes.JSONSlice[uint](students)).Error; err != nil {
		return fmt.Errorf("failed to update enrolled students: %w", err)
	}
	return nil
}

// EnrollFree enrolls a user in a free course
func (s *EnrollmentService) EnrollFree(ctx context.Context, userID, courseID uint) (*model.Enrollment, error) {
	var course model.Course
	if err := s.db.WithContext(ctx).First(&course, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to load course: %w", err)
	}

	if !course.IsAvailable() {
		return nil, ErrCourseUnavailable
	}
	if course.Price.IsNegative() {
		return nil, ErrInvalidCoursePrice
	}
	if !course.IsFree() {
		return nil, ErrCourseNotFree
	}

	if _, err := s.ConfirmEnrollment(ctx, ConfirmRequest{
		UserID:        userID,
		CourseID:      courseID,
		PaymentStatus: model.EnrollmentPaymentFree,
	}); err != nil {
		return nil, err
	}

	enrollment, err := s.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}

	log.Printf("[ENROLL] user %d enrolled in free course %d", userID, courseID)
	s.notify(ctx, NotifyEnrollmentConfirmed, enrollment, nil)

	return enrollment, nil
}

// IsEnrolled reports whether the user has a confirmed enrollment for the course
func (s *EnrollmentService) IsEnrolled(ctx context.Context, userID, courseID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id = ? AND payment_status IN ?", userID, courseID,
			[]model.EnrollmentPaymentStatus{model.EnrollmentPaymentCompleted, model.EnrollmentPaymentFree}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return count > 0, nil
}

// GetEnrollment returns the user's enrollment for a course with the course preloaded
func (s *EnrollmentService) GetEnrollment(ctx context.Context, userID, courseID uint) (*model.Enrollment, error) {
	var enrollment model.Enrollment
	err := s.db.WithContext(ctx).
		Preload("Course").
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&enrollment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	return &enrollment, nil
}

// ListEnrollments returns a page of the user's enrollments, most recent first
func (s *EnrollmentService) ListEnrollments(ctx context.Context, userID uint, limit, offset int) ([]model.Enrollment, int64, error) {
	var enrollments []model.Enrollment
	var total int64

	if limit <= 0 {
		limit = 20
	}

	query := s.db.WithContext(ctx).Model(&model.Enrollment{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count enrollments: %w", err)
	}

	if err := query.Preload("Course").
		Order("enrollment_date DESC").
		Limit(limit).
		Offset(offset).
		Find(&enrollments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch enrollments: %w", err)
	}

	return enrollments, total, nil
}

// UpdateProgressRequest carries a learner's progress update
type UpdateProgressRequest struct {
	Progress        *int   `json:"progress" validate:"omitempty,gte=0,lte=100"`
	CompletedLesson string `json:"completed_lesson" validate:"omitempty,max=100"`
}

// UpdateProgress records progress on a confirmed enrollment. Reaching 100 completes it.
func (s *EnrollmentService) UpdateProgress(ctx context.Context, userID, courseID uint, req UpdateProgressRequest) (*model.Enrollment, error) {
	enrollment, err := s.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if !enrollment.PaymentStatus.IsConfirmed() {
		return nil, ErrNotEnrolled
	}

	now := time.Now()
	updates := map[string]interface{}{
		"last_accessed_at": &now,
	}

	if req.Progress != nil {
		updates["progress"] = *req.Progress
		if *req.Progress == 100 {
			updates["status"] = model.EnrollmentStatusCompleted
		}
	}

	if req.CompletedLesson != "" && !slices.Contains(enrollment.CompletedLessons, req.CompletedLesson) {
		lessons := append(slices.Clone(enrollment.CompletedLessons), req.CompletedLesson)
		updates["completed_lessons"] = datatypes.JSONSlice[string](lessons)
	}

	if err := s.db.WithContext(ctx).Model(&model.Enrollment{}).
		Where("id = ?", enrollment.ID).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update progress: %w", err)
	}

	return s.GetEnrollment(ctx, userID, courseID)
}

// notify enqueues side-effects for a confirmed enrollment. Errors are logged only.
func (s *EnrollmentService) notify(ctx context.Context, kind NotificationKind, enrollment *model.Enrollment, payment *model.Payment) {
	if s.notifier == nil {
		return
	}

	task := NotificationTask{
		Kind:          kind,
		UserID:        enrollment.UserID,
		CourseID:      enrollment.CourseID,
		CourseTitle:   enrollment.Course.Title,
		InstructorID:  enrollment.Course.InstructorID,
		EnrollmentID:  enrollment.ID,
		PaymentStatus: enrollment.PaymentStatus,
	}

	var user model.User
	if err := s.db.WithContext(ctx).Select("id", "email", "name").First(&user, enrollment.UserID).Error; err != nil {
		log.Printf("[NOTIFY] failed to load user %d for notification: %v", enrollment.UserID, err)
	} else {
		task.UserEmail = user.Email
		task.UserName = user.Name
	}

	if payment != nil {
		task.OrderID = payment.OrderID
		task.PaymentID = payment.PaymentID
		task.Receipt = payment.Receipt
		task.Amount = payment.Amount
		task.Currency = payment.Currency
		if payment.PaidAt != nil {
			task.OccurredAt = *payment.PaidAt
		}
	}

	s.notifier.Enqueue(task)
}
