package course

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnhub-api/handlers"
	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/sahilchouksey/learnhub-api/services"
	"github.com/sahilchouksey/learnhub-api/utils/middleware"
	"github.com/sahilchouksey/learnhub-api/utils/response"
	"github.com/sahilchouksey/learnhub-api/utils/validation"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CourseHandler handles course-related requests
type CourseHandler struct {
	db        *gorm.DB
	validator *validation.Validator
}

// NewCourseHandler creates a new course handler
func NewCourseHandler(db *gorm.DB) *CourseHandler {
	return &CourseHandler{
		db:        db,
		validator: validation.NewValidator(),
	}
}

// CreateCourseRequest represents the request body for creating a course
type CreateCourseRequest struct {
	Title       string          `json:"title" validate:"required,min=3,max=255"`
	Description string          `json:"description" validate:"omitempty,max=5000"`
	Thumbnail   string          `json:"thumbnail" validate:"omitempty,url,max=500"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency" validate:"omitempty,len=3,uppercase"`
}

// UpdateCourseRequest represents the request body for updating a course
type UpdateCourseRequest struct {
	Title       string           `json:"title" validate:"omitempty,min=3,max=255"`
	Description *string          `json:"description" validate:"omitempty,max=5000"`
	Thumbnail   *string          `json:"thumbnail" validate:"omitempty,max=500"`
	Price       *decimal.Decimal `json:"price"`
	Currency    string           `json:"currency" validate:"omitempty,len=3,uppercase"`
}

// ListCourses handles GET /api/courses
func (h *CourseHandler) ListCourses(c *fiber.Ctx) error {
	page, limit, offset := handlers.Pagination(c)
	search := strings.TrimSpace(c.Query("search", ""))

	query := h.db.Model(&model.Course{}).Where("published = ? AND approved = ?", true, true)

	if search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}

	if instructorID := c.QueryInt("instructor_id", 0); instructorID > 0 {
		query = query.Where("instructor_id = ?", instructorID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count courses")
	}

	var courses []model.Course
	if err := query.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&courses).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch courses")
	}

	return response.Paginated(c, courses, response.CalculatePagination(page, limit, total))
}

// GetCourse handles GET /api/courses/:id. Unpublished courses are visible to their owner and admins only.
func (h *CourseHandler) GetCourse(c *fiber.Ctx) error {
	id, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid course ID")
	}

	course, err := h.loadCourse(id)
	if err != nil {
		return handlers.HandleServiceError(c, err)
	}

	if !course.IsAvailable() {
		user, _ := middleware.GetUser(c)
		if user == nil || (user.ID != course.InstructorID && !user.IsAdmin()) {
			return response.NotFound(c, "Course not found")
		}
	}

	return response.Success(c, course)
}

// CreateCourse handles POST /api/courses
func (h *CourseHandler) CreateCourse(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}
	if req.Price.IsNegative() {
		return handlers.HandleServiceError(c, services.ErrInvalidCoursePrice)
	}

	currency := req.Currency
	if currency == "" {
		currency = "INR"
	}

	course := model.Course{
		InstructorID:     user.ID,
		Title:            validation.SanitizeString(req.Title),
		Description:      validation.SanitizeString(req.Description),
		Thumbnail:        req.Thumbnail,
		Price:            req.Price.Round(2),
		Currency:         currency,
		EnrolledStudents: []uint{},
	}

	if err := h.db.Create(&course).Error; err != nil {
		return response.InternalServerError(c, "Failed to create course")
	}

	return response.Created(c, course)
}

// UpdateCourse handles PUT /api/courses/:id
func (h *CourseHandler) UpdateCourse(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	id, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid course ID")
	}

	var req UpdateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	course, err := h.loadOwnedCourse(id, user)
	if err != nil {
		return handlers.HandleServiceError(c, err)
	}

	updates := map[string]interface{}{}
	if req.Title != "" {
		updates["title"] = validation.SanitizeString(req.Title)
	}
	if req.Description != nil {
		updates["description"] = validation.SanitizeString(*req.Description)
	}
	if req.Thumbnail != nil {
		updates["thumbnail"] = *req.Thumbnail
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return handlers.HandleServiceError(c, services.ErrInvalidCoursePrice)
		}
		updates["price"] = req.Price.Round(2)
	}
	if req.Currency != "" {
		updates["currency"] = req.Currency
	}

	if len(updates) > 0 {
		if err := h.db.Model(course).Updates(updates).Error; err != nil {
			return response.InternalServerError(c, "Failed to update course")
		}
	}

	course, err = h.loadCourse(id)
	if err != nil {
		return handlers.HandleServiceError(c, err)
	}

	return response.SuccessWithMessage(c, "Course updated successfully", course)
}

// PublishCourse handles POST /api/courses/:id/publish (owner or admin)
func (h *CourseHandler) PublishCourse(c *fiber.Ctx) error {
	return h.setFlag(c, "published", false)
}

// ApproveCourse handles POST /api/courses/:id/approve (admin only)
func (h *CourseHandler) ApproveCourse(c *fiber.Ctx) error {
	return h.setFlag(c, "approved", true)
}

func (h *CourseHandler) setFlag(c *fiber.Ctx, column string, adminOnly bool) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}
	if adminOnly && !user.IsAdmin() {
		return response.Forbidden(c, "Admin access required")
	}

	id, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid course ID")
	}

	course, err := h.loadOwnedCourse(id, user)
	if err != nil {
		return handlers.HandleServiceError(c, err)
	}

	value := c.QueryBool("value", true)
	previous := course.Published
	if column == "approved" {
		previous = course.Approved
	}
	if err := h.db.Model(course).Update(column, value).Error; err != nil {
		return response.InternalServerError(c, "Failed to update course")
	}

	if adminOnly {
		handlers.RecordAudit(c, h.db, model.AdminAuditLog{
			AdminID:     user.ID,
			Action:      model.AuditCourseApprove,
			Resource:    "courses",
			ResourceID:  id,
			Description: course.Title,
		}, fiber.Map{column: previous}, fiber.Map{column: value})
	}

	course, err = h.loadCourse(id)
	if err != nil {
		return handlers.HandleServiceError(c, err)
	}

	return response.SuccessWithMessage(c, "Course updated successfully", course)
}

// DeleteCourse handles DELETE /api/courses/:id. Courses with confirmed enrollments cannot be deleted.
func (h *CourseHandler) DeleteCourse(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	id, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid course ID")
	}

	course, err := h.loadOwnedCourse(id, user)
	if err != nil {
		return handlers.HandleServiceError(c, err)
	}

	var enrolled int64
	if err := h.db.Model(&model.Enrollment{}).
		Where("course_id = ? AND payment_status IN ?", id,
			[]model.EnrollmentPaymentStatus{model.EnrollmentPaymentCompleted, model.EnrollmentPaymentFree}).
		Count(&enrolled).Error; err != nil {
		return response.InternalServerError(c, "Failed to check course dependencies")
	}

	if enrolled > 0 {
		return response.BadRequest(c, "Cannot delete course with enrolled students")
	}

	if err := h.db.Delete(course).Error; err != nil {
		return response.InternalServerError(c, "Failed to delete course")
	}

	return response.SuccessWithMessage(c, "Course deleted successfully", nil)
}

func (h *CourseHandler) loadCourse(id uint) (*model.Course, error) {
	var course model.Course
	if err := h.db.First(&course, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrCourseNotFound
		}
		return nil, err
	}
	return &course, nil
}

// loadOwnedCourse loads a course the user may manage: its instructor or any admin
func (h *CourseHandler) loadOwnedCourse(id uint, user *model.User) (*model.Course, error) {
	course, err := h.loadCourse(id)
	if err != nil {
		return nil, err
	}
	if course.InstructorID != user.ID && !user.IsAdmin() {
		return nil, services.ErrNotCourseOwner
	}
	return course, nil
}
