package services

import (
	"context"
	"sync"
	"testing"

	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollFree(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	course := createCourse(t, f.db, f.instructor.ID, "0")

	enrollment, err := f.enrollments.EnrollFree(ctx, f.student.ID, course.ID)
	require.NoError(t, err)

	assert.Equal(t, model.EnrollmentPaymentFree, enrollment.PaymentStatus)
	assert.Empty(t, enrollment.PaymentID)
	assert.Equal(t, model.EnrollmentStatusActive, enrollment.Status)
	assert.Equal(t, course.ID, enrollment.Course.ID, "course is preloaded")
	assert.Equal(t, []uint{f.student.ID}, []uint(reloadCourse(t, f.db, course.ID).EnrolledStudents))
	assert.Equal(t, []NotificationKind{NotifyEnrollmentConfirmed}, f.notifier.kinds())
}

func TestEnrollFreeTwiceIsRejected(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	course := createCourse(t, f.db, f.instructor.ID, "0")

	_, err := f.enrollments.EnrollFree(ctx, f.student.ID, course.ID)
	require.NoError(t, err)

	_, err = f.enrollments.EnrollFree(ctx, f.student.ID, course.ID)
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)

	assert.Equal(t, int64(1), f.enrollmentCount(t, f.student.ID, course.ID))
	assert.Equal(t, []uint{f.student.ID}, []uint(reloadCourse(t, f.db, course.ID).EnrolledStudents))
	assert.Len(t, f.notifier.kinds(), 1)
}

func TestEnrollFreeConcurrent(t *testing.T) {
	f := newPaymentFixture(t)
	course := createCourse(t, f.db, f.instructor.ID, "0")

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.enrollments.EnrollFree(context.Background(), f.student.ID, course.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyEnrolled)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(1), f.enrollmentCount(t, f.student.ID, course.ID))
}

func TestEnrollFreeRejections(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	paid := createCourse(t, f.db, f.instructor.ID, "499")
	hidden := createCourse(t, f.db, f.instructor.ID, "0")
	require.NoError(t, f.db.Model(hidden).Update("approved", false).Error)

	tests := []struct {
		name     string
		courseID uint
		want     error
	}{
		{"missing course", 9999, ErrCourseNotFound},
		{"paid course", paid.ID, ErrCourseNotFree},
		{"unapproved course", hidden.ID, ErrCourseUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.enrollments.EnrollFree(ctx, f.student.ID, tt.courseID)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, f.enrollmentCount(t, f.student.ID, tt.courseID))
		})
	}
	assert.Empty(t, f.notifier.kinds())
}

func TestConfirmEnrollmentPaidIsIdempotent(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	course := createCourse(t, f.db, f.instructor.ID, "500")

	req := ConfirmRequest{
		UserID:        f.student.ID,
		CourseID:      course.ID,
		PaymentStatus: model.EnrollmentPaymentCompleted,
		PaymentID:     "pay_first",
	}
	first, err := f.enrollments.ConfirmEnrollment(ctx, req)
	require.NoError(t, err)

	req.PaymentID = "pay_second"
	second, err := f.enrollments.ConfirmEnrollment(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "pay_first", second.PaymentID, "a confirmed row is never overwritten")
	assert.Equal(t, int64(1), f.enrollmentCount(t, f.student.ID, course.ID))
	assert.Equal(t, []uint{f.student.ID}, []uint(reloadCourse(t, f.db, course.ID).EnrolledStudents))
}

func TestConfirmEnrollmentUpgradesPendingRow(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	course := createCourse(t, f.db, f.instructor.ID, "500")

	require.NoError(t, f.db.Create(&model.Enrollment{
		UserID:        f.student.ID,
		CourseID:      course.ID,
		PaymentStatus: model.EnrollmentPaymentPending,
		Status:        model.EnrollmentStatusActive,
	}).Error)

	enrollment, err := f.enrollments.ConfirmEnrollment(ctx, ConfirmRequest{
		UserID:        f.student.ID,
		CourseID:      course.ID,
		PaymentStatus: model.EnrollmentPaymentCompleted,
		PaymentID:     "pay_123",
	})
	require.NoError(t, err)

	assert.Equal(t, model.EnrollmentPaymentCompleted, enrollment.PaymentStatus)
	assert.Equal(t, "pay_123", enrollment.PaymentID)
	assert.Equal(t, int64(1), f.enrollmentCount(t, f.student.ID, course.ID))
}

func TestConfirmEnrollmentRejectsUnconfirmedStatus(t *testing.T) {
	f := newPaymentFixture(t)
	course := createCourse(t, f.db, f.instructor.ID, "500")

	_, err := f.enrollments.ConfirmEnrollment(context.Background(), ConfirmRequest{
		UserID:        f.student.ID,
		CourseID:      course.ID,
		PaymentStatus: model.EnrollmentPaymentPending,
	})
	assert.Error(t, err)
	assert.Zero(t, f.enrollmentCount(t, f.student.ID, course.ID))
}

func TestUpdateProgress(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	course := createCourse(t, f.db, f.instructor.ID, "0")

	_, err := f.enrollments.UpdateProgress(ctx, f.student.ID, course.ID, UpdateProgressRequest{})
	assert.ErrorIs(t, err, ErrNotEnrolled)

	_, err = f.enrollments.EnrollFree(ctx, f.student.ID, course.ID)
	require.NoError(t, err)

	half := 50
	enrollment, err := f.enrollments.UpdateProgress(ctx, f.student.ID, course.ID, UpdateProgressRequest{
		Progress:        &half,
		CompletedLesson: "intro",
	})
	require.NoError(t, err)
	assert.Equal(t, 50, enrollment.Progress)
	assert.Equal(t, []string{"intro"}, []string(enrollment.CompletedLessons))
	assert.Equal(t, model.EnrollmentStatusActive, enrollment.Status)
	assert.NotNil(t, enrollment.LastAccessedAt)

	full := 100
	enrollment, err = f.enrollments.UpdateProgress(ctx, f.student.ID, course.ID, UpdateProgressRequest{
		Progress:        &full,
		CompletedLesson: "intro",
	})
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentStatusCompleted, enrollment.Status)
	assert.Equal(t, []string{"intro"}, []string(enrollment.CompletedLessons), "lessons are not duplicated")
}

func TestListEnrollments(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	for _, price := range []string{"0", "0.00", "0.0"} {
		course := createCourse(t, f.db, f.instructor.ID, price)
		_, err := f.enrollments.EnrollFree(ctx, f.student.ID, course.ID)
		require.NoError(t, err)
	}

	page, total, err := f.enrollments.ListEnrollments(ctx, f.student.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 2)
	assert.NotZero(t, page[0].Course.ID)

	enrolled, err := f.enrollments.IsEnrolled(ctx, f.student.ID, page[0].CourseID)
	require.NoError(t, err)
	assert.True(t, enrolled)
}
