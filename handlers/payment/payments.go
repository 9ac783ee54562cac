package payment

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnhub-api/handlers"
	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/sahilchouksey/learnhub-api/services"
	"github.com/sahilchouksey/learnhub-api/utils/middleware"
	"github.com/sahilchouksey/learnhub-api/utils/response"
	"github.com/sahilchouksey/learnhub-api/utils/validation"
)

// SignatureHeader carries the webhook body HMAC
const SignatureHeader = "X-Razorpay-Signature"

// PaymentHandler handles checkout and payment reconciliation requests
type PaymentHandler struct {
	payments  *services.PaymentService
	validator *validation.Validator
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		payments:  payments,
		validator: validation.NewValidator(),
	}
}

// CreateOrderRequest represents the request body for starting a checkout
type CreateOrderRequest struct {
	CourseID uint `json:"courseId" validate:"required,min=1"`
}

// CreateOrder handles POST /api/payments/create
func (h *PaymentHandler) CreateOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	order, err := h.payments.CreateOrder(c.UserContext(), userID, req.CourseID)
	if err != nil {
		return handlers.HandleServiceError(c, err)
	}

	return response.Success(c, order)
}

// VerifyPayment handles POST /api/payments/verify
func (h *PaymentHandler) VerifyPayment(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req services.VerifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	enrollment, err := h.payments.VerifyPayment(c.UserContext(), userID, req)
	if err != nil {
		return handlers.HandleServiceError(c, err)
	}

	return response.SuccessWithMessage(c, "Payment verified successfully", enrollment.ToResponse())
}

// Webhook handles POST /api/payments/webhook. The body must be read raw for the HMAC check.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	signature := c.Get(SignatureHeader)
	if signature == "" {
		return response.BadRequest(c, "Missing webhook signature")
	}

	result, err := h.payments.HandleWebhook(c.UserContext(), c.Body(), signature)
	if err != nil {
		if errors.Is(err, services.ErrInvalidSignature) {
			return response.Error(c, fiber.StatusBadRequest, "Invalid webhook signature", "INVALID_SIGNATURE")
		}
		return handlers.HandleServiceError(c, err)
	}

	return response.Success(c, result)
}

// ListPayments handles GET /api/payments
func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	status := c.Query("status")
	switch model.PaymentStatus(status) {
	case "", model.PaymentStatusPending, model.PaymentStatusCompleted, model.PaymentStatusFailed:
	default:
		return response.BadRequest(c, "Invalid status filter")
	}

	page, limit, offset := handlers.Pagination(c)
	payments, total, err := h.payments.ListPayments(c.UserContext(), userID, status, limit, offset)
	if err != nil {
		return handlers.HandleServiceError(c, err)
	}

	return response.Paginated(c, payments, response.CalculatePagination(page, limit, total))
}
