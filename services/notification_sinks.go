package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/shopspring/decimal"
)

// FormatAmount renders minor units for humans, e.g. 50000 INR → "₹500.00"
func FormatAmount(amount int64, currency string) string {
	value := decimal.New(amount, -2).StringFixed(2)
	if currency == "" || currency == "INR" {
		return "₹" + value
	}
	return currency + " " + value
}

func taskMetadata(task NotificationTask) *model.NotificationMetadata {
	return &model.NotificationMetadata{
		CourseID:    task.CourseID,
		CourseTitle: task.CourseTitle,
		OrderID:     task.OrderID,
		PaymentID:   task.PaymentID,
		Amount:      task.Amount,
		Currency:    task.Currency,
		StudentID:   task.UserID,
	}
}

// InAppSink writes the student's own notification
type InAppSink struct {
	notifications *NotificationService
}

func NewInAppSink(notifications *NotificationService) *InAppSink {
	return &InAppSink{notifications: notifications}
}

func (s *InAppSink) Name() string { return "inapp" }

func (s *InAppSink) Deliver(ctx context.Context, task NotificationTask) error {
	req := CreateNotificationRequest{
		UserID:   task.UserID,
		Type:     model.NotificationTypeSuccess,
		Metadata: taskMetadata(task),
	}

	switch task.Kind {
	case NotifyPaymentCompleted:
		req.Category = model.NotificationCategoryPayment
		req.Title = "Payment successful"
		req.Message = fmt.Sprintf("Your payment of %s for %q was received. You now have full access.",
			FormatAmount(task.Amount, task.Currency), task.CourseTitle)
	case NotifyEnrollmentConfirmed:
		req.Category = model.NotificationCategoryEnrollment
		req.Title = "Enrollment confirmed"
		req.Message = fmt.Sprintf("You are now enrolled in %q.", task.CourseTitle)
	default:
		return fmt.Errorf("unknown notification kind %q", task.Kind)
	}

	_, err := s.notifications.CreateNotification(ctx, req)
	return err
}

// AdminAlertSink tells every admin about new purchases and enrollments
type AdminAlertSink struct {
	notifications *NotificationService
}

func NewAdminAlertSink(notifications *NotificationService) *AdminAlertSink {
	return &AdminAlertSink{notifications: notifications}
}

func (s *AdminAlertSink) Name() string { return "admin_alert" }

func (s *AdminAlertSink) Deliver(ctx context.Context, task NotificationTask) error {
	req := CreateNotificationRequest{
		Type:     model.NotificationTypeInfo,
		Metadata: taskMetadata(task),
	}

	switch task.Kind {
	case NotifyPaymentCompleted:
		req.Category = model.NotificationCategoryPayment
		req.Title = "New course purchase"
		req.Message = fmt.Sprintf("User #%d bought %q for %s (order %s).",
			task.UserID, task.CourseTitle, FormatAmount(task.Amount, task.Currency), task.OrderID)
	case NotifyEnrollmentConfirmed:
		req.Category = model.NotificationCategoryEnrollment
		req.Title = "New enrollment"
		req.Message = fmt.Sprintf("User #%d enrolled in %q.", task.UserID, task.CourseTitle)
	default:
		return fmt.Errorf("unknown notification kind %q", task.Kind)
	}

	_, err := s.notifications.NotifyAdmins(ctx, req)
	return err
}

// EmailSink sends the confirmation email
type EmailSink struct {
	email *EmailService
}

func NewEmailSink(email *EmailService) *EmailSink {
	return &EmailSink{email: email}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Deliver(_ context.Context, task NotificationTask) error {
	if task.UserEmail == "" {
		return nil
	}

	msg := EnrollmentEmail{
		To:          task.UserEmail,
		UserName:    task.UserName,
		CourseID:    task.CourseID,
		CourseTitle: task.CourseTitle,
		OrderID:     task.OrderID,
	}
	if task.Kind == NotifyPaymentCompleted {
		msg.AmountText = FormatAmount(task.Amount, task.Currency)
	}

	return s.email.SendEnrollmentConfirmation(msg)
}

// ObjectStore is where receipts are archived
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// Receipt is the archived record of a completed payment
type Receipt struct {
	Receipt     string    `json:"receipt"`
	OrderID     string    `json:"order_id"`
	PaymentID   string    `json:"payment_id"`
	UserID      uint      `json:"user_id"`
	CourseID    uint      `json:"course_id"`
	CourseTitle string    `json:"course_title"`
	Amount      int64     `json:"amount"`
	AmountText  string    `json:"amount_text"`
	Currency    string    `json:"currency"`
	PaidAt      time.Time `json:"paid_at"`
}

// ReceiptSink archives a JSON receipt per completed payment at receipts/<orderId>.json
type ReceiptSink struct {
	store ObjectStore
}

func NewReceiptSink(store ObjectStore) *ReceiptSink {
	return &ReceiptSink{store: store}
}

func (s *ReceiptSink) Name() string { return "receipt_archive" }

// ReceiptKey returns the object key for an order's receipt
func ReceiptKey(orderID string) string {
	return "receipts/" + orderID + ".json"
}

func (s *ReceiptSink) Deliver(ctx context.Context, task NotificationTask) error {
	if task.Kind != NotifyPaymentCompleted {
		return nil
	}

	data, err := json.MarshalIndent(Receipt{
		Receipt:     task.Receipt,
		OrderID:     task.OrderID,
		PaymentID:   task.PaymentID,
		UserID:      task.UserID,
		CourseID:    task.CourseID,
		CourseTitle: task.CourseTitle,
		Amount:      task.Amount,
		AmountText:  FormatAmount(task.Amount, task.Currency),
		Currency:    task.Currency,
		PaidAt:      task.OccurredAt,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}

	return s.store.PutObject(ctx, ReceiptKey(task.OrderID), data, "application/json")
}

// EventPublisher sends domain events to a stream
type EventPublisher interface {
	Publish(name string, userID uint, event interface{}) error
}

// EventSink publishes each task as a domain event named after its kind
type EventSink struct {
	publisher EventPublisher
}

func NewEventSink(publisher EventPublisher) *EventSink {
	return &EventSink{publisher: publisher}
}

func (s *EventSink) Name() string { return "event_stream" }

func (s *EventSink) Deliver(_ context.Context, task NotificationTask) error {
	return s.publisher.Publish(string(task.Kind), task.UserID, task)
}
