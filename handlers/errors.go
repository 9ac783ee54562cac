package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnhub-api/services"
	"github.com/sahilchouksey/learnhub-api/utils/response"
)

// HandleServiceError writes the response for an error returned by a service
func HandleServiceError(c *fiber.Ctx, err error) error {
	var gatewayErr *services.GatewayError
	switch {
	case errors.As(err, &gatewayErr):
		return response.ErrorWithDetails(c, fiber.StatusInternalServerError,
			"Payment gateway error", "GATEWAY_ERROR", gatewayErr.Detail)

	case errors.Is(err, services.ErrCourseNotFound):
		return response.NotFound(c, "Course not found")
	case errors.Is(err, services.ErrPaymentNotFound):
		return response.NotFound(c, "Payment not found")
	case errors.Is(err, services.ErrNotEnrolled):
		return response.NotFound(c, "Enrollment not found")
	case errors.Is(err, services.ErrNotificationNotFound):
		return response.NotFound(c, "Notification not found")

	case errors.Is(err, services.ErrNotPaymentOwner),
		errors.Is(err, services.ErrNotCourseOwner):
		return response.Forbidden(c, err.Error())

	case errors.Is(err, services.ErrInvalidSignature):
		return response.Error(c, fiber.StatusBadRequest, "Payment verification failed", "INVALID_SIGNATURE")
	case errors.Is(err, services.ErrAlreadyEnrolled):
		return response.Error(c, fiber.StatusBadRequest, "Already enrolled in this course", "ALREADY_ENROLLED")
	case errors.Is(err, services.ErrCourseIsFree):
		return response.Error(c, fiber.StatusBadRequest, err.Error(), "COURSE_IS_FREE")
	case errors.Is(err, services.ErrCourseNotFree):
		return response.Error(c, fiber.StatusBadRequest, "Course requires payment", "PAYMENT_REQUIRED")
	case errors.Is(err, services.ErrCourseUnavailable):
		return response.Error(c, fiber.StatusBadRequest, err.Error(), "COURSE_UNAVAILABLE")
	case errors.Is(err, services.ErrInvalidCoursePrice):
		return response.Error(c, fiber.StatusBadRequest, err.Error(), "INVALID_PRICE")
	case errors.Is(err, services.ErrPaymentExpired):
		return response.Error(c, fiber.StatusBadRequest, err.Error(), "PAYMENT_EXPIRED")

	case errors.Is(err, services.ErrOrderInProgress):
		return response.Error(c, fiber.StatusConflict, err.Error(), "ORDER_IN_PROGRESS")
	case errors.Is(err, services.ErrPaymentAlreadyCompleted):
		return response.Error(c, fiber.StatusConflict, err.Error(), "PAYMENT_ALREADY_COMPLETED")
	}

	log.Printf("Unhandled service error on %s %s: %v", c.Method(), c.Path(), err)
	return response.InternalServerError(c, "")
}

// ParseID reads a positive integer route parameter
func ParseID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}

// Pagination reads page/limit query parameters, clamped to 1..100 per page
func Pagination(c *fiber.Ctx) (page, limit, offset int) {
	page = c.QueryInt("page", 1)
	limit = c.QueryInt("limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit, (page - 1) * limit
}
