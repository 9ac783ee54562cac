package admin

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnhub-api/handlers"
	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/sahilchouksey/learnhub-api/utils/middleware"
	"github.com/sahilchouksey/learnhub-api/utils/response"
	"github.com/sahilchouksey/learnhub-api/utils/validation"
	"gorm.io/gorm"
)

// AdminHandler serves the admin-only user, audit and revenue endpoints
type AdminHandler struct {
	db        *gorm.DB
	validator *validation.Validator
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{
		db:        db,
		validator: validation.NewValidator(),
	}
}

// UpdateRoleRequest represents the request body for changing a user's role
type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=student instructor admin"`
}

// UserStats summarises a user's activity on the platform
type UserStats struct {
	Enrollments       int64 `json:"enrollments"`
	CompletedPayments int64 `json:"completed_payments"`
	CoursesTaught     int64 `json:"courses_taught"`
}

// ListUsers handles GET /api/admin/users
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	page, limit, offset := handlers.Pagination(c)

	query := h.db.WithContext(c.UserContext()).Model(&model.User{})

	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}

	// Search by name or email
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		term := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", term, term)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count users")
	}

	var users []model.User
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch users")
	}

	return response.Paginated(c, users, response.CalculatePagination(page, limit, total))
}

// GetUser handles GET /api/admin/users/:id
func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	id, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid user ID")
	}

	db := h.db.WithContext(c.UserContext())

	var user model.User
	if err := db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "User not found")
		}
		return response.InternalServerError(c, "Failed to fetch user")
	}

	var stats UserStats
	db.Model(&model.Enrollment{}).
		Where("user_id = ? AND payment_status IN ?", id,
			[]model.EnrollmentPaymentStatus{model.EnrollmentPaymentCompleted, model.EnrollmentPaymentFree}).
		Count(&stats.Enrollments)
	db.Model(&model.Payment{}).Where("user_id = ? AND status = ?", id, model.PaymentStatusCompleted).Count(&stats.CompletedPayments)
	db.Model(&model.Course{}).Where("instructor_id = ?", id).Count(&stats.CoursesTaught)

	return response.Success(c, fiber.Map{
		"user":  user,
		"stats": stats,
	})
}

// UpdateUserRole handles PUT /api/admin/users/:id/role. Existing tokens of the user are
// invalidated so the new role takes effect on the next login.
func (h *AdminHandler) UpdateUserRole(c *fiber.Ctx) error {
	admin, ok := middleware.GetUser(c)
	if !ok || admin == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	id, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid user ID")
	}
	if id == admin.ID {
		return response.BadRequest(c, "Cannot change your own role")
	}

	var req UpdateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		return response.ValidationError(c, err)
	}

	db := h.db.WithContext(c.UserContext())

	var user model.User
	if err := db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "User not found")
		}
		return response.InternalServerError(c, "Failed to fetch user")
	}

	if user.Role == req.Role {
		return response.SuccessWithMessage(c, "Role unchanged", user)
	}

	previous := user.Role
	if err := db.Model(&user).Updates(map[string]interface{}{
		"role":          req.Role,
		"token_version": gorm.Expr("token_version + 1"),
	}).Error; err != nil {
		return response.InternalServerError(c, "Failed to update user")
	}

	handlers.RecordAudit(c, h.db, model.AdminAuditLog{
		AdminID:     admin.ID,
		Action:      model.AuditUserRoleUpdate,
		Resource:    "users",
		ResourceID:  user.ID,
		Description: user.Email,
	}, fiber.Map{"role": previous}, fiber.Map{"role": req.Role})

	if err := db.First(&user, id).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch user")
	}

	return response.SuccessWithMessage(c, "User role updated successfully", user)
}
