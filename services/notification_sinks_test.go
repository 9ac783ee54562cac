package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sahilchouksey/learnhub-api/config"
	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "₹500.00", FormatAmount(50000, "INR"))
	assert.Equal(t, "₹0.99", FormatAmount(99, ""))
	assert.Equal(t, "USD 12.50", FormatAmount(1250, "USD"))
}

func paymentTask(userID uint) NotificationTask {
	return NotificationTask{
		ID:            "task-1",
		Kind:          NotifyPaymentCompleted,
		UserID:        userID,
		UserEmail:     "student@example.com",
		CourseID:      3,
		CourseTitle:   "Go in Production",
		PaymentStatus: model.EnrollmentPaymentCompleted,
		OrderID:       "order_abc",
		PaymentID:     "pay_abc",
		Receipt:       "rcpt_0123456789abcdef0123",
		Amount:        50000,
		Currency:      "INR",
		OccurredAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestInAppSink(t *testing.T) {
	db := newTestDB(t)
	student := createUser(t, db, "student@example.com", model.RoleStudent)
	notifications := NewNotificationService(db)
	sink := NewInAppSink(notifications)
	ctx := context.Background()

	require.NoError(t, sink.Deliver(ctx, paymentTask(student.ID)))

	list, total, err := notifications.GetNotificationsByUser(ctx, ListNotificationsOptions{UserID: student.ID})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, model.NotificationCategoryPayment, list[0].Category)
	assert.Contains(t, list[0].Message, "₹500.00")
	assert.Contains(t, list[0].Message, "Go in Production")

	var metadata model.NotificationMetadata
	require.NoError(t, json.Unmarshal(list[0].Metadata, &metadata))
	assert.Equal(t, "order_abc", metadata.OrderID)

	assert.Error(t, sink.Deliver(ctx, NotificationTask{Kind: "unknown", UserID: student.ID}))
}

func TestAdminAlertSink(t *testing.T) {
	db := newTestDB(t)
	student := createUser(t, db, "student@example.com", model.RoleStudent)
	admin := createUser(t, db, "admin@example.com", model.RoleAdmin)
	second := createUser(t, db, "admin2@example.com", model.RoleAdmin)
	notifications := NewNotificationService(db)
	ctx := context.Background()

	task := paymentTask(student.ID)
	task.Kind = NotifyEnrollmentConfirmed
	require.NoError(t, NewAdminAlertSink(notifications).Deliver(ctx, task))

	for _, id := range []uint{admin.ID, second.ID} {
		count, err := notifications.GetUnreadCount(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	}

	count, err := notifications.GetUnreadCount(ctx, student.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

type memoryStore struct {
	objects map[string][]byte
	err     error
}

func (m *memoryStore) PutObject(_ context.Context, key string, data []byte, contentType string) error {
	if m.err != nil {
		return m.err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return nil
}

func TestReceiptSink(t *testing.T) {
	store := &memoryStore{}
	sink := NewReceiptSink(store)
	ctx := context.Background()

	require.NoError(t, sink.Deliver(ctx, paymentTask(1)))

	data, ok := store.objects["receipts/order_abc.json"]
	require.True(t, ok)

	var receipt Receipt
	require.NoError(t, json.Unmarshal(data, &receipt))
	assert.Equal(t, "pay_abc", receipt.PaymentID)
	assert.Equal(t, "₹500.00", receipt.AmountText)
	assert.Equal(t, int64(50000), receipt.Amount)

	free := paymentTask(1)
	free.Kind = NotifyEnrollmentConfirmed
	free.OrderID = "order_free"
	require.NoError(t, sink.Deliver(ctx, free))
	assert.Len(t, store.objects, 1, "free enrollments have no receipt")

	store.err = errors.New("bucket unavailable")
	assert.Error(t, sink.Deliver(ctx, paymentTask(1)))
}

type recordedEvent struct {
	name   string
	userID uint
	event  interface{}
}

type fakePublisher struct {
	events []recordedEvent
}

func (p *fakePublisher) Publish(name string, userID uint, event interface{}) error {
	p.events = append(p.events, recordedEvent{name, userID, event})
	return nil
}

func TestEventSink(t *testing.T) {
	publisher := &fakePublisher{}
	require.NoError(t, NewEventSink(publisher).Deliver(context.Background(), paymentTask(42)))

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "payment.completed", publisher.events[0].name)
	assert.Equal(t, uint(42), publisher.events[0].userID)
}

func TestEmailSinkSkipsUsersWithoutEmail(t *testing.T) {
	sink := NewEmailSink(NewEmailService(config.SMTPConfig{}))

	task := paymentTask(1)
	task.UserEmail = ""
	assert.NoError(t, sink.Deliver(context.Background(), task))

	// Unconfigured SMTP is a delivery failure, so the task is dead-lettered and retried later
	assert.Error(t, sink.Deliver(context.Background(), paymentTask(1)))
}

func TestBuildEnrollmentEmailBodyEscapes(t *testing.T) {
	email := NewEmailService(config.SMTPConfig{AppURL: "https://learnhub.test"})

	body := email.buildEnrollmentEmailBody(EnrollmentEmail{
		To:          "student@example.com",
		UserName:    "<script>",
		CourseID:    3,
		CourseTitle: "Go & Friends",
		AmountText:  "₹500.00",
		OrderID:     "order_abc",
	})

	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "Go &amp; Friends")
	assert.Contains(t, body, "₹500.00")
	assert.Contains(t, body, "https://learnhub.test")
}
