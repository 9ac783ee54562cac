package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/sahilchouksey/learnhub-api/services/razorpay"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Gateway creates payment intents. *razorpay.Client implements it.
type Gateway interface {
	CreateOrder(ctx context.Context, req razorpay.OrderRequest) (*razorpay.Order, error)
}

// PaymentOptions configures a PaymentService
type PaymentOptions struct {
	KeyID    string // Public key returned to the checkout widget
	Currency string
	Locker   OrderLocker
}

// PaymentService issues gateway orders and reconciles verified payments into enrollments
type PaymentService struct {
	db          *gorm.DB
	gateway     Gateway
	signer      *razorpay.Signer
	enrollments *EnrollmentService
	locker      OrderLocker
	keyID       string
	currency    string
}

// NewPaymentService creates a payment service. Without a Locker, an in-process one is used.
func NewPaymentService(db *gorm.DB, gateway Gateway, signer *razorpay.Signer, enrollments *EnrollmentService, opts PaymentOptions) *PaymentService {
	if opts.Locker == nil {
		opts.Locker = NewLocalOrderLocker()
	}
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	return &PaymentService{
		db:          db,
		gateway:     gateway,
		signer:      signer,
		enrollments: enrollments,
		locker:      opts.Locker,
		keyID:       opts.KeyID,
		currency:    opts.Currency,
	}
}

// OrderResponse is what the client needs to open the checkout widget
type OrderResponse struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	KeyID    string `json:"keyId,omitempty"`
}

// ToMinorUnits converts a major-unit price to minor units, rounding half away from zero
func ToMinorUnits(price decimal.Decimal) int64 {
	return price.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func newReceipt() string {
	return "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

func (s *PaymentService) orderResponse(p *model.Payment) *OrderResponse {
	return &OrderResponse{
		OrderID:  p.OrderID,
		Amount:   p.Amount,
		Currency: p.Currency,
		Receipt:  p.Receipt,
		KeyID:    s.keyID,
	}
}

// CreateOrder issues a gateway order for a paid course, or returns the user's existing
// pending order for it
func (s *PaymentService) CreateOrder(ctx context.Context, userID, courseID uint) (*OrderResponse, error) {
	release, ok, err := s.locker.TryLock(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire order lock: %w", err)
	}
	if !ok {
		return nil, ErrOrderInProgress
	}
	defer release()

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
	if course.IsFree() {
		return nil, ErrCourseIsFree
	}

	enrolled, err := s.enrollments.IsEnrolled(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, ErrAlreadyEnrolled
	}

	var pending model.Payment
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ? AND status = ?", userID, courseID, model.PaymentStatusPending).
		Order("created_at DESC").
		First(&pending).Error
	if err == nil {
		log.Printf("[PAYMENT] reusing pending order %s for user %d course %d", pending.OrderID, userID, courseID)
		return s.orderResponse(&pending), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up pending payment: %w", err)
	}

	amount := ToMinorUnits(course.Price)
	if amount <= 0 {
		return nil, ErrInvalidCoursePrice
	}

	currency := course.Currency
	if currency == "" {
		currency = s.currency
	}

	receipt := newReceipt()
	notes := map[string]string{
		"course_id": strconv.FormatUint(uint64(courseID), 10),
		"user_id":   strconv.FormatUint(uint64(userID), 10),
	}

	order, err := s.gateway.CreateOrder(ctx, razorpay.OrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		log.Printf("[PAYMENT] gateway order creation failed for user %d course %d: %v", userID, courseID, err)
		return nil, newGatewayError("create order", err)
	}

	payment := model.Payment{
		UserID:   userID,
		CourseID: courseID,
		Amount:   amount,
		Currency: currency,
		OrderID:  order.ID,
		Status:   model.PaymentStatusPending,
		Receipt:  receipt,
		Notes: datatypes.JSONMap{
			"course_id": notes["course_id"],
			"user_id":   notes["user_id"],
		},
	}
	if err := s.db.WithContext(ctx).Create(&payment).Error; err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	log.Printf("[PAYMENT] created order %s for user %d course %d (%s)",
		order.ID, userID, courseID, FormatAmount(amount, currency))
	return s.orderResponse(&payment), nil
}

// VerifyPaymentRequest is the checkout callback payload
type VerifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id" validate:"required,max=100"`
	PaymentID string `json:"razorpay_payment_id" validate:"required,max=100"`
	Signature string `json:"razorpay_signature" validate:"required,hexadecimal"`
}

// VerifyPayment authenticates a checkout callback and confirms the enrollment it pays for.
// On signature mismatch nothing is changed.
func (s *PaymentService) VerifyPayment(ctx context.Context, userID uint, req VerifyPaymentRequest) (*model.Enrollment, error) {
	if !s.signer.Verify(req.OrderID, req.PaymentID, req.Signature) {
		log.Printf("[PAYMENT] signature mismatch for order %s (user %d)", req.OrderID, userID)
		return nil, ErrInvalidSignature
	}

	return s.confirm(ctx, confirmation{
		ownerID:   userID,
		orderID:   req.OrderID,
		paymentID: req.PaymentID,
		signature: req.Signature,
	})
}

type confirmation struct {
	ownerID   uint // Zero skips the ownership check
	orderID   string
	paymentID string
	signature string
	method    string
	// A captured payment on an expired order still grants access
	allowExpired bool
}

func (s *PaymentService) confirm(ctx context.Context, c confirmation) (*model.Enrollment, error) {
	var payment model.Payment
	if err := s.db.WithContext(ctx).Where("order_id = ?", c.orderID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}

	if c.ownerID != 0 && payment.UserID != c.ownerID {
		return nil, ErrNotPaymentOwner
	}

	switch payment.Status {
	case model.PaymentStatusCompleted:
		if payment.PaymentID != c.paymentID {
			return nil, ErrPaymentAlreadyCompleted
		}
		return s.enrollments.GetEnrollment(ctx, payment.UserID, payment.CourseID)
	case model.PaymentStatusFailed:
		if !c.allowExpired {
			return nil, ErrPaymentExpired
		}
	}

	from := []model.PaymentStatus{model.PaymentStatusPending}
	if c.allowExpired {
		from = append(from, model.PaymentStatusFailed)
	}

	transitioned := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		updates := map[string]interface{}{
			"status":     model.PaymentStatusCompleted,
			"payment_id": c.paymentID,
			"paid_at":    &now,
		}
		if c.signature != "" {
			updates["signature"] = c.signature
		}
		if c.method != "" {
			updates["payment_method"] = c.method
		}

		result := tx.Model(&model.Payment{}).
			Where("id = ? AND status IN ?", payment.ID, from).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to complete payment: %w", result.Error)
		}

		if result.RowsAffected == 0 {
			// A concurrent verification or webhook got there first
			var current model.Payment
			if err := tx.First(&current, payment.ID).Error; err != nil {
				return fmt.Errorf("failed to reload payment: %w", err)
			}
			switch {
			case current.Status == model.PaymentStatusCompleted && current.PaymentID == c.paymentID:
				return nil
			case current.Status == model.PaymentStatusCompleted:
				return ErrPaymentAlreadyCompleted
			default:
				return ErrPaymentExpired
			}
		}

		transitioned = true
		payment.Status = model.PaymentStatusCompleted
		payment.PaymentID = c.paymentID
		payment.PaidAt = &now

		_, err := s.enrollments.ConfirmInTx(tx, ConfirmRequest{
			UserID:        payment.UserID,
			CourseID:      payment.CourseID,
			PaymentStatus: model.EnrollmentPaymentCompleted,
			PaymentID:     c.paymentID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	enrollment, err := s.enrollments.GetEnrollment(ctx, payment.UserID, payment.CourseID)
	if err != nil {
		return nil, err
	}

	if transitioned {
		log.Printf("[PAYMENT] order %s completed with payment %s, user %d enrolled in course %d",
			payment.OrderID, payment.PaymentID, payment.UserID, payment.CourseID)
		s.enrollments.notify(ctx, NotifyPaymentCompleted, enrollment, &payment)
	}

	return enrollment, nil
}

// WebhookEvent is the subset of a Razorpay webhook body this service reads
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID       string `json:"id"`
				OrderID  string `json:"order_id"`
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
				Status   string `json:"status"`
				Method   string `json:"method"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// WebhookResult reports what a webhook delivery did
type WebhookResult struct {
	Event   string `json:"event"`
	OrderID string `json:"order_id,omitempty"`
	Handled bool   `json:"handled"`
	Reason  string `json:"reason,omitempty"`
}

// HandleWebhook reconciles gateway-pushed payment events through the same confirmation path
// as VerifyPayment. Events that cannot be applied are acknowledged so the gateway stops
// redelivering them.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if !s.signer.VerifyWebhook(body, signature) {
		return nil, ErrInvalidSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("invalid webhook body: %w", err)
	}

	result := &WebhookResult{Event: event.Event}
	if event.Event != "payment.captured" {
		result.Reason = "event ignored"
		return result, nil
	}

	entity := event.Payload.Payment.Entity
	result.OrderID = entity.OrderID
	if entity.OrderID == "" || entity.ID == "" {
		result.Reason = "payment entity without order"
		return result, nil
	}

	_, err := s.confirm(ctx, confirmation{
		orderID:      entity.OrderID,
		paymentID:    entity.ID,
		method:       entity.Method,
		allowExpired: true,
	})
	switch {
	case err == nil:
		result.Handled = true
	case errors.Is(err, ErrPaymentNotFound), errors.Is(err, ErrPaymentAlreadyCompleted):
		log.Printf("[PAYMENT] webhook %s for order %s not applied: %v", event.Event, entity.OrderID, err)
		result.Reason = err.Error()
	default:
		return nil, err
	}

	return result, nil
}

// ListPayments returns a page of the user's payments, most recent first
func (s *PaymentService) ListPayments(ctx context.Context, userID uint, status string, limit, offset int) ([]model.Payment, int64, error) {
	var payments []model.Payment
	var total int64

	if limit <= 0 {
		limit = 20
	}

	query := s.db.WithContext(ctx).Model(&model.Payment{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	if err := query.Preload("Course").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&payments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch payments: %w", err)
	}

	return payments, total, nil
}

// ExpireStalePayments marks pending payments older than olderThan as failed, so the next
// CreateOrder issues a fresh gateway order
func (s *PaymentService) ExpireStalePayments(ctx context.Context, olderThan time.Duration) (int64, error) {
	result := s.db.WithContext(ctx).Model(&model.Payment{}).
		Where("status = ? AND created_at < ?", model.PaymentStatusPending, time.Now().Add(-olderThan)).
		Update("status", model.PaymentStatusFailed)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to expire stale payments: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		log.Printf("[PAYMENT] expired %d stale pending payments", result.RowsAffected)
	}
	return result.RowsAffected, nil
}
