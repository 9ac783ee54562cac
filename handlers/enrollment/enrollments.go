package enrollment

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnhub-api/handlers"
	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/sahilchouksey/learnhub-api/services"
	"github.com/sahilchouksey/learnhub-api/utils/middleware"
	"github.com/sahilchouksey/learnhub-api/utils/response"
	"github.com/sahilchouksey/learnhub-api/utils/validation"
)

// EnrollmentHandler handles enrollment requests
type EnrollmentHandler struct {
	enrollments *services.EnrollmentService
	validator   *validation.Validator
}

// NewEnrollmentHandler creates a new enrollment handler
func NewEnrollmentHandler(enrollments *services.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{
		enrollments: enrollments,
		validator:   validation.NewValidator(),
	}
}

// EnrollFree handles POST /api/enrollments/enroll/:courseId
func (h *EnrollmentHandler) EnrollFree(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	courseID, ok := handlers.ParseID(c, "courseId")
	if !ok {
		return response.BadRequest(c, "Invalid course ID")
	}

	enrollment, err := h.enrollments.EnrollFree(c.UserContext(), userID, courseID)
	if err != nil {
		return handlers.HandleServiceError(c, err)
	}

	return response.Created(c, enrollment.ToResponse())
}

// ListEnrollments handles GET /api/enrollments
func (h *EnrollmentHandler) ListEnrollments(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	page, limit, offset := handlers.Pagination(c)
	enrollments, total, err := h.enrollments.ListEnrollments(c.UserContext(), userID, limit, offset)
	if err != nil {
		return handlers.HandleServiceError(c, err)
	}

	items := make([]model.EnrollmentResponse, 0, len(enrollments))
	for i := range enrollments {
		items = append(items, enrollments[i].ToResponse())
	}

	return response.Paginated(c, items, response.CalculatePagination(page, limit, total))
}

// GetEnrollment handles GET /api/enrollments/:courseId
func (h *EnrollmentHandler) GetEnrollment(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	courseID, ok := handlers.ParseID(c, "courseId")
	if !ok {
		return response.BadRequest(c, "Invalid course ID")
	}

	enrollment, err := h.enrollments.GetEnrollment(c.UserContext(), userID, courseID)
	if err != nil {
		return handlers.HandleServiceError(c, err)
	}

	return response.Success(c, enrollment.ToResponse())
}

// UpdateProgress handles PATCH /api/enrollments/:courseId/progress
func (h *EnrollmentHandler) UpdateProgress(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	courseID, ok := handlers.ParseID(c, "courseId")
	if !ok {
		return response.BadRequest(c, "Invalid course ID")
	}

	var req services.UpdateProgressRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	enrollment, err := h.enrollments.UpdateProgress(c.UserContext(), userID, courseID, req)
	if err != nil {
		return handlers.HandleServiceError(c, err)
	}

	return response.SuccessWithMessage(c, "Progress updated", enrollment.ToResponse())
}
