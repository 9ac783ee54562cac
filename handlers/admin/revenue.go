package admin

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/sahilchouksey/learnhub-api/utils/response"
)

// CurrencyRevenue is the completed payment total for one currency, in minor units
type CurrencyRevenue struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
	Payments int64  `json:"payments"`
}

// CourseRevenue is the completed payment total for one course
type CourseRevenue struct {
	CourseID uint   `json:"course_id"`
	Title    string `json:"title"`
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
	Payments int64  `json:"payments"`
}

// RevenueStats is the payload of GET /api/admin/revenue
type RevenueStats struct {
	Revenue            []CurrencyRevenue `json:"revenue"`
	PaymentsByStatus   map[string]int64  `json:"payments_by_status"`
	EnrollmentsByState map[string]int64  `json:"enrollments_by_payment_status"`
	TopCourses         []CourseRevenue   `json:"top_courses"`
}

type statusCount struct {
	Status string
	Count  int64
}

// GetRevenueStats handles GET /api/admin/revenue
func (h *AdminHandler) GetRevenueStats(c *fiber.Ctx) error {
	db := h.db.WithContext(c.UserContext())
	stats := RevenueStats{
		Revenue:            []CurrencyRevenue{},
		PaymentsByStatus:   make(map[string]int64),
		EnrollmentsByState: make(map[string]int64),
		TopCourses:         []CourseRevenue{},
	}

	if err := db.Model(&model.Payment{}).
		Select("currency, SUM(amount) AS amount, COUNT(*) AS payments").
		Where("status = ?", model.PaymentStatusCompleted).
		Group("currency").
		Order("currency").
		Scan(&stats.Revenue).Error; err != nil {
		return response.InternalServerError(c, "Failed to compute revenue")
	}

	var payments []statusCount
	if err := db.Model(&model.Payment{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&payments).Error; err != nil {
		return response.InternalServerError(c, "Failed to count payments")
	}
	for _, row := range payments {
		stats.PaymentsByStatus[row.Status] = row.Count
	}

	var enrollments []statusCount
	if err := db.Model(&model.Enrollment{}).
		Select("payment_status AS status, COUNT(*) AS count").
		Group("payment_status").
		Scan(&enrollments).Error; err != nil {
		return response.InternalServerError(c, "Failed to count enrollments")
	}
	for _, row := range enrollments {
		stats.EnrollmentsByState[row.Status] = row.Count
	}

	limit := c.QueryInt("top", 5)
	if limit < 1 || limit > 50 {
		limit = 5
	}
	if err := db.Table("payments").
		Select("payments.course_id, courses.title, payments.currency, SUM(payments.amount) AS amount, COUNT(*) AS payments").
		Joins("JOIN courses ON courses.id = payments.course_id").
		Where("payments.status = ? AND payments.deleted_at IS NULL", model.PaymentStatusCompleted).
		Group("payments.course_id, courses.title, payments.currency").
		Order("amount DESC").
		Limit(limit).
		Scan(&stats.TopCourses).Error; err != nil {
		return response.InternalServerError(c, "Failed to compute course revenue")
	}

	return response.Success(c, stats)
}
