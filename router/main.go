package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnhub-api/database"
	"github.com/sahilchouksey/learnhub-api/handlers"
	admin_handlers "github.com/sahilchouksey/learnhub-api/handlers/admin"
	auth_handlers "github.com/sahilchouksey/learnhub-api/handlers/auth"
	course_handlers "github.com/sahilchouksey/learnhub-api/handlers/course"
	enrollment_handlers "github.com/sahilchouksey/learnhub-api/handlers/enrollment"
	notification_handlers "github.com/sahilchouksey/learnhub-api/handlers/notification"
	payment_handlers "github.com/sahilchouksey/learnhub-api/handlers/payment"
	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/sahilchouksey/learnhub-api/services"
	"github.com/sahilchouksey/learnhub-api/utils/auth"
	"github.com/sahilchouksey/learnhub-api/utils/middleware"
)

// Deps are the shared services the routes are built on
type Deps struct {
	Store         database.Storage
	JWT           *auth.JWTManager
	BruteForce    *middleware.BruteForceProtection // nil disables login throttling
	BcryptCost    int
	Payments      *services.PaymentService
	Enrollments   *services.EnrollmentService
	Notifications *services.NotificationService
	Dispatcher    *services.NotificationDispatcher
	Security      middleware.SecurityConfig
}

func SetupRoutes(app *fiber.App, deps Deps) {
	db := deps.Store.DB()

	// Initialize auth middleware with DB for blacklist checking
	authMiddleware := middleware.NewAuthMiddleware(deps.JWT, db)

	authHandler := auth_handlers.NewAuthHandler(db, deps.JWT, deps.BruteForce, deps.BcryptCost)
	courseHandler := course_handlers.NewCourseHandler(db)
	paymentHandler := payment_handlers.NewPaymentHandler(deps.Payments)
	enrollmentHandler := enrollment_handlers.NewEnrollmentHandler(deps.Enrollments)
	notificationHandler := notification_handlers.NewNotificationHandler(deps.Notifications, deps.Dispatcher)
	adminHandler := admin_handlers.NewAdminHandler(db)

	// Apply security middleware
	middleware.SetupSecurity(app, deps.Security)

	// Health check endpoint (public)
	app.Get("/ping", func(c *fiber.Ctx) error { return handlers.HandleCheckHealth(c, deps.Store) })

	api := app.Group("/api")

	// Auth routes (public)
	authGroup := api.Group("/auth")
	authGroup.Post("/register", authHandler.Register)

	// Login with brute force protection
	if deps.BruteForce != nil {
		authGroup.Post("/login", deps.BruteForce.CheckAndRecordAttempt(), authHandler.Login)
	} else {
		authGroup.Post("/login", authHandler.Login)
	}

	authGroup.Post("/refresh", authHandler.RefreshToken)

	// Protected auth routes
	authGroup.Post("/logout", authMiddleware.Required(), authHandler.Logout)
	authGroup.Post("/logout-all", authMiddleware.Required(), authHandler.LogoutAll)

	// Profile routes (protected)
	profileGroup := api.Group("/profile", authMiddleware.Required())
	profileGroup.Get("/", authHandler.GetProfile)
	profileGroup.Put("/", authHandler.UpdateProfile)

	// Courses routes
	courses := api.Group("/courses")
	// Public: published courses, or any course for its owner and admins
	courses.Get("/", courseHandler.ListCourses)
	courses.Get("/:id", authMiddleware.Optional(), courseHandler.GetCourse)

	// Instructors manage their own courses, admins approve them
	instructors := authMiddleware.RequireRole(model.RoleInstructor, model.RoleAdmin)
	courses.Post("/", authMiddleware.Required(), instructors, courseHandler.CreateCourse)
	courses.Put("/:id", authMiddleware.Required(), instructors, courseHandler.UpdateCourse)
	courses.Post("/:id/publish", authMiddleware.Required(), instructors, courseHandler.PublishCourse)
	courses.Post("/:id/approve", authMiddleware.Required(), authMiddleware.RequireAdmin(), courseHandler.ApproveCourse)
	courses.Delete("/:id", authMiddleware.Required(), instructors, courseHandler.DeleteCourse)

	// Payments routes. The webhook authenticates by body signature, not bearer token.
	payments := api.Group("/payments")
	payments.Post("/webhook", paymentHandler.Webhook)
	payments.Get("/", authMiddleware.Required(), paymentHandler.ListPayments)
	payments.Post("/create", authMiddleware.Required(), paymentHandler.CreateOrder)
	payments.Post("/verify", authMiddleware.Required(), paymentHandler.VerifyPayment)

	// Enrollments routes (all protected)
	enrollments := api.Group("/enrollments", authMiddleware.Required())
	enrollments.Get("/", enrollmentHandler.ListEnrollments)
	enrollments.Post("/enroll/:courseId", enrollmentHandler.EnrollFree)
	enrollments.Get("/:courseId", enrollmentHandler.GetEnrollment)
	enrollments.Patch("/:courseId/progress", enrollmentHandler.UpdateProgress)

	// Notifications routes (all protected)
	notifications := api.Group("/notifications", authMiddleware.Required())
	notifications.Get("/", notificationHandler.GetNotifications)
	notifications.Get("/unread-count", notificationHandler.GetUnreadCount)
	notifications.Post("/read-all", notificationHandler.MarkAllAsRead)
	notifications.Post("/:id/read", notificationHandler.MarkAsRead)
	notifications.Delete("/", notificationHandler.DeleteAllNotifications)
	notifications.Delete("/:id", notificationHandler.DeleteNotification)

	// Admin routes
	admin := api.Group("/admin", authMiddleware.Required(), authMiddleware.RequireAdmin())
	admin.Get("/users", adminHandler.ListUsers)
	admin.Get("/users/:id", adminHandler.GetUser)
	admin.Put("/users/:id/role", adminHandler.UpdateUserRole)
	admin.Get("/audit-logs", adminHandler.ListAuditLogs)
	admin.Get("/audit-logs/:id", adminHandler.GetAuditLog)
	admin.Get("/revenue", adminHandler.GetRevenueStats)
	admin.Get("/notifications/dead-letters", notificationHandler.ListDeadLetters)
	admin.Post("/notifications/dead-letters/retry", notificationHandler.RetryDeadLetters)
}
