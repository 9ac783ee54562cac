package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/sahilchouksey/learnhub-api/database"
	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/sahilchouksey/learnhub-api/services/razorpay"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testKeySecret = "test_key_secret"

// newTestDB opens a private in-memory SQLite database with every table migrated
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	store, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, database.Migrate(store.DB()))
	return store.DB()
}

func createUser(t *testing.T, db *gorm.DB, email, role string) *model.User {
	t.Helper()
	user := &model.User{Email: email, PasswordHash: "x", Name: strings.Split(email, "@")[0], Role: role}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createCourse(t *testing.T, db *gorm.DB, instructorID uint, price string) *model.Course {
	t.Helper()
	course := &model.Course{
		InstructorID:     instructorID,
		Title:            "Course " + price,
		Price:            decimal.RequireFromString(price),
		Currency:         "INR",
		Published:        true,
		Approved:         true,
		EnrolledStudents: []uint{},
	}
	require.NoError(t, db.Create(course).Error)
	return course
}

func reloadCourse(t *testing.T, db *gorm.DB, id uint) *model.Course {
	t.Helper()
	var course model.Course
	require.NoError(t, db.First(&course, id).Error)
	return &course
}

// fakeGateway issues sequential order ids and counts calls
type fakeGateway struct {
	mu    sync.Mutex
	calls []razorpay.OrderRequest
	err   error
}

func (g *fakeGateway) CreateOrder(_ context.Context, req razorpay.OrderRequest) (*razorpay.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return nil, g.err
	}
	g.calls = append(g.calls, req)
	return &razorpay.Order{
		ID:       fmt.Sprintf("order_test%04d", len(g.calls)),
		Entity:   "order",
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// recordingNotifier keeps enqueued tasks in memory
type recordingNotifier struct {
	mu    sync.Mutex
	tasks []NotificationTask
}

func (n *recordingNotifier) Enqueue(task NotificationTask) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, task)
}

func (n *recordingNotifier) kinds() []NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]NotificationKind, 0, len(n.tasks))
	for _, task := range n.tasks {
		kinds = append(kinds, task.Kind)
	}
	return kinds
}

type paymentFixture struct {
	db          *gorm.DB
	gateway     *fakeGateway
	notifier    *recordingNotifier
	signer      *razorpay.Signer
	enrollments *EnrollmentService
	payments    *PaymentService
	student     *model.User
	instructor  *model.User
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	db := newTestDB(t)
	f := &paymentFixture{
		db:       db,
		gateway:  &fakeGateway{},
		notifier: &recordingNotifier{},
		signer:   razorpay.NewSigner(testKeySecret, "test_webhook_secret"),
	}
	f.enrollments = NewEnrollmentService(db, f.notifier)
	f.payments = NewPaymentService(db, f.gateway, f.signer, f.enrollments, PaymentOptions{KeyID: "rzp_test_key"})
	f.student = createUser(t, db, "student@example.com", model.RoleStudent)
	f.instructor = createUser(t, db, "instructor@example.com", model.RoleInstructor)
	return f
}

// verifyRequest builds a correctly signed checkout callback
func (f *paymentFixture) verifyRequest(orderID, paymentID string) VerifyPaymentRequest {
	return VerifyPaymentRequest{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: f.signer.Sign(orderID, paymentID),
	}
}

func (f *paymentFixture) payment(t *testing.T, orderID string) *model.Payment {
	t.Helper()
	var payment model.Payment
	require.NoError(t, f.db.Where("order_id = ?", orderID).First(&payment).Error)
	return &payment
}

func (f *paymentFixture) enrollmentCount(t *testing.T, userID, courseID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&count).Error)
	return count
}
