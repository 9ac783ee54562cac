package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnhub-api/api"
	"github.com/sahilchouksey/learnhub-api/config"
	"github.com/sahilchouksey/learnhub-api/database"
	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/sahilchouksey/learnhub-api/router"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testKeySecret     = "rzp_test_secret"
	testWebhookSecret = "rzp_webhook_secret"
)

// fakeRazorpay serves POST /v1/orders like the real API
type fakeRazorpay struct {
	mu      sync.Mutex
	orders  int
	failing bool
}

func (f *fakeRazorpay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path != "/v1/orders" || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if f.failing {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"Authentication failed"}}`))
		return
	}

	var body struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Receipt  string `json:"receipt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.orders++
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":       fmt.Sprintf("order_e2e%04d", f.orders),
		"entity":   "order",
		"amount":   body.Amount,
		"currency": body.Currency,
		"receipt":  body.Receipt,
		"status":   "created",
		"notes":    []string{},
	})
}

func (f *fakeRazorpay) setFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

func (f *fakeRazorpay) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders
}

type testServer struct {
	app        *fiber.App
	db         *gorm.DB
	container  *Container
	gateway    *fakeRazorpay
	student    *model.User
	instructor *model.User
	admin      *model.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	gateway := &fakeRazorpay{}
	gatewayServer := httptest.NewServer(gateway)
	t.Cleanup(gatewayServer.Close)

	cfg := &config.Config{
		GoEnv:          "test",
		AllowedOrigins: "http://localhost:3000",
		JWT: config.JWTConfig{
			Secret:        "test-jwt-secret",
			Issuer:        "learnhub-api",
			Expiry:        time.Hour,
			RefreshExpiry: 24 * time.Hour,
			BcryptCost:    4,
		},
		Razorpay: config.RazorpayConfig{
			KeyID:         "rzp_test_key",
			KeySecret:     testKeySecret,
			WebhookSecret: testWebhookSecret,
			BaseURL:       gatewayServer.URL,
			Timeout:       5 * time.Second,
		},
		Payments: config.PaymentConfig{Currency: "INR", PendingTTL: 24 * time.Hour, OrderLock: 10 * time.Second},
		Notifications: config.NotificationConfig{
			Workers:     1,
			QueueSize:   64,
			MaxAttempts: 1,
			Backoff:     time.Millisecond,
			Timeout:     time.Second,
		},
	}

	name := strings.ReplaceAll(t.Name(), "/", "_")
	store, err := database.OpenSQLite(fmt.Sprintf("file:app_%s?mode=memory&cache=shared", name), true)
	require.NoError(t, err)
	require.NoError(t, store.Init())

	container, err := NewContainer(cfg, store, Options{SkipRedis: true, Quiet: true})
	require.NoError(t, err)
	container.Dispatcher.Start(context.Background())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		container.Close(ctx)
		_ = store.Close()
	})

	app := api.NewApp()
	router.SetupRoutes(app, container.RouteDeps())

	s := &testServer{
		app:       app,
		db:        store.DB(),
		container: container,
		gateway:   gateway,
	}
	s.student = s.createUser(t, "student@example.com", model.RoleStudent)
	s.instructor = s.createUser(t, "instructor@example.com", model.RoleInstructor)
	s.admin = s.createUser(t, "admin@example.com", model.RoleAdmin)
	return s
}

func (s *testServer) createUser(t *testing.T, email, role string) *model.User {
	t.Helper()
	user := &model.User{Email: email, PasswordHash: "x", Name: strings.Split(email, "@")[0], Role: role}
	require.NoError(t, s.db.Create(user).Error)
	return user
}

func (s *testServer) createCourse(t *testing.T, price string) *model.Course {
	t.Helper()
	course := &model.Course{
		InstructorID:     s.instructor.ID,
		Title:            "Go in Production",
		Price:            decimal.RequireFromString(price),
		Currency:         "INR",
		Published:        true,
		Approved:         true,
		EnrolledStudents: []uint{},
	}
	require.NoError(t, s.db.Create(course).Error)
	return course
}

func (s *testServer) token(t *testing.T, user *model.User) string {
	t.Helper()
	issued, err := s.container.JWT.GenerateAccessToken(user.ID, user.Email, user.Role, user.TokenVersion)
	require.NoError(t, err)
	return issued.Token
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details string            `json:"details"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path string, user *model.User, body interface{}, headers ...string) (int, envelope) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(t, user))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (s *testServer) payment(t *testing.T, orderID string) model.Payment {
	t.Helper()
	var p model.Payment
	require.NoError(t, s.db.Where("order_id = ?", orderID).First(&p).Error)
	return p
}

func (s *testServer) enrollmentCount(t *testing.T, userID, courseID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.db.Model(&model.Enrollment{}).Where("user_id = ? AND course_id = ?", userID, courseID).Count(&n).Error)
	return n
}

type orderData struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

func (s *testServer) createOrder(t *testing.T, courseID uint) orderData {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/api/payments/create", s.student, map[string]uint{"courseId": courseID})
	require.Equal(t, http.StatusOK, status, env.Error)

	var order orderData
	require.NoError(t, json.Unmarshal(env.Data, &order))
	return order
}

func verifyBody(orderID, paymentID, signature string) map[string]string {
	return map[string]string{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
		"razorpay_signature":  signature,
	}
}

func TestPaidEnrollmentEndToEnd(t *testing.T) {
	s := newTestServer(t)
	course := s.createCourse(t, "500")

	order := s.createOrder(t, course.ID)
	assert.Equal(t, int64(50000), order.Amount)
	assert.Equal(t, "INR", order.Currency)
	assert.NotEmpty(t, order.Receipt)
	assert.Empty(t, s.payment(t, order.OrderID).PaymentID)

	signature := s.container.Signer.Sign(order.OrderID, "pay_e2e0001")
	status, env := s.do(t, http.MethodPost, "/api/payments/verify", s.student, verifyBody(order.OrderID, "pay_e2e0001", signature))
	require.Equal(t, http.StatusOK, status, env.Error)

	var enrollment model.EnrollmentResponse
	require.NoError(t, json.Unmarshal(env.Data, &enrollment))
	assert.Equal(t, model.EnrollmentPaymentCompleted, enrollment.PaymentStatus)
	assert.Equal(t, "pay_e2e0001", enrollment.PaymentID)
	assert.Equal(t, course.ID, enrollment.Course.ID)

	p := s.payment(t, order.OrderID)
	assert.Equal(t, model.PaymentStatusCompleted, p.Status)
	assert.Equal(t, "pay_e2e0001", p.PaymentID)
	assert.Equal(t, int64(1), s.enrollmentCount(t, s.student.ID, course.ID))

	var reloaded model.Course
	require.NoError(t, s.db.First(&reloaded, course.ID).Error)
	assert.True(t, reloaded.HasStudent(s.student.ID))

	status, env = s.do(t, http.MethodGet, fmt.Sprintf("/api/enrollments/%d", course.ID), s.student, nil)
	require.Equal(t, http.StatusOK, status)
}

func TestCreateOrderReusesPendingOrder(t *testing.T) {
	s := newTestServer(t)
	course := s.createCourse(t, "499.50")

	first := s.createOrder(t, course.ID)
	second := s.createOrder(t, course.ID)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, int64(49950), second.Amount)
	assert.Equal(t, 1, s.gateway.orderCount())
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	s := newTestServer(t)
	course := s.createCourse(t, "500")
	order := s.createOrder(t, course.ID)

	signature := []byte(s.container.Signer.Sign(order.OrderID, "pay_e2e0002"))
	if signature[10] == 'a' {
		signature[10] = 'b'
	} else {
		signature[10] = 'a'
	}

	status, env := s.do(t, http.MethodPost, "/api/payments/verify", s.student, verifyBody(order.OrderID, "pay_e2e0002", string(signature)))
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_SIGNATURE", env.Error.Code)

	p := s.payment(t, order.OrderID)
	assert.Equal(t, model.PaymentStatusPending, p.Status)
	assert.Empty(t, p.PaymentID)
	assert.Zero(t, s.enrollmentCount(t, s.student.ID, course.ID))
}

func TestVerifyUnknownOrder(t *testing.T) {
	s := newTestServer(t)

	signature := s.container.Signer.Sign("order_missing", "pay_1")
	status, env := s.do(t, http.MethodPost, "/api/payments/verify", s.student, verifyBody("order_missing", "pay_1", signature))
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestVerifyValidation(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodPost, "/api/payments/verify", s.student, map[string]string{"razorpay_order_id": "order_1"})
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "razorpay_payment_id")
	assert.Contains(t, env.Error.Fields, "razorpay_signature")
}

func TestCreateOrderValidation(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodPost, "/api/payments/create", s.student, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Fields, "courseId")
}

func TestCreateOrderErrors(t *testing.T) {
	s := newTestServer(t)
	free := s.createCourse(t, "0")

	status, _ := s.do(t, http.MethodPost, "/api/payments/create", s.student, map[string]uint{"courseId": 9999})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodPost, "/api/payments/create", s.student, map[string]uint{"courseId": free.ID})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodPost, "/api/payments/create", nil, map[string]uint{"courseId": free.ID})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCreateOrderGatewayFailure(t *testing.T) {
	s := newTestServer(t)
	course := s.createCourse(t, "500")
	s.gateway.setFailing(true)

	status, env := s.do(t, http.MethodPost, "/api/payments/create", s.student, map[string]uint{"courseId": course.ID})
	assert.Equal(t, http.StatusInternalServerError, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "GATEWAY_ERROR", env.Error.Code)
	assert.Equal(t, "Authentication failed", env.Error.Details)

	var n int64
	require.NoError(t, s.db.Model(&model.Payment{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestFreeEnrollmentTwice(t *testing.T) {
	s := newTestServer(t)
	course := s.createCourse(t, "0")
	path := fmt.Sprintf("/api/enrollments/enroll/%d", course.ID)

	status, env := s.do(t, http.MethodPost, path, s.student, nil)
	require.Equal(t, http.StatusCreated, status, env.Error)

	var enrollment model.EnrollmentResponse
	require.NoError(t, json.Unmarshal(env.Data, &enrollment))
	assert.Equal(t, model.EnrollmentPaymentFree, enrollment.PaymentStatus)
	assert.Empty(t, enrollment.PaymentID)

	status, env = s.do(t, http.MethodPost, path, s.student, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ALREADY_ENROLLED", env.Error.Code)

	assert.Equal(t, int64(1), s.enrollmentCount(t, s.student.ID, course.ID))
}

func TestFreeEnrollmentRejectsPaidCourse(t *testing.T) {
	s := newTestServer(t)
	course := s.createCourse(t, "500")

	status, _ := s.do(t, http.MethodPost, fmt.Sprintf("/api/enrollments/enroll/%d", course.ID), s.student, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodPost, "/api/enrollments/enroll/abc", s.student, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCourseUpdateRequiresOwner(t *testing.T) {
	s := newTestServer(t)
	course := s.createCourse(t, "500")
	other := s.createUser(t, "other@example.com", model.RoleInstructor)
	path := fmt.Sprintf("/api/courses/%d", course.ID)

	status, env := s.do(t, http.MethodPut, path, other, map[string]string{"title": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, _ = s.do(t, http.MethodPut, path, s.student, map[string]string{"title": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, status)

	status, env = s.do(t, http.MethodPut, path, s.instructor, map[string]string{"title": "Go in Production, 2nd ed"})
	assert.Equal(t, http.StatusOK, status, env.Error)
}

func TestWebhookCapturesPayment(t *testing.T) {
	s := newTestServer(t)
	course := s.createCourse(t, "500")
	order := s.createOrder(t, course.ID)

	body := []byte(fmt.Sprintf(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_hook1","order_id":%q,"amount":50000,"currency":"INR","status":"captured","method":"upi"}}}}`, order.OrderID))

	status, env := s.do(t, http.MethodPost, "/api/payments/webhook", nil, body, "X-Razorpay-Signature", "deadbeef")
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_SIGNATURE", env.Error.Code)
	assert.Equal(t, model.PaymentStatusPending, s.payment(t, order.OrderID).Status)

	status, _ = s.do(t, http.MethodPost, "/api/payments/webhook", nil, body, "X-Razorpay-Signature", s.container.Signer.SignWebhook(body))
	require.Equal(t, http.StatusOK, status)

	p := s.payment(t, order.OrderID)
	assert.Equal(t, model.PaymentStatusCompleted, p.Status)
	assert.Equal(t, "pay_hook1", p.PaymentID)
	assert.Equal(t, int64(1), s.enrollmentCount(t, s.student.ID, course.ID))
}

func TestEnrollmentNotificationDelivered(t *testing.T) {
	s := newTestServer(t)
	course := s.createCourse(t, "0")

	status, _ := s.do(t, http.MethodPost, fmt.Sprintf("/api/enrollments/enroll/%d", course.ID), s.student, nil)
	require.Equal(t, http.StatusCreated, status)

	assert.Eventually(t, func() bool {
		var n int64
		s.db.Model(&model.UserNotification{}).Where("user_id = ?", s.student.ID).Count(&n)
		return n > 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestHealthAndUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodGet, "/ping", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	status, env = s.do(t, http.MethodGet, "/api/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, env.Success)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodGet, "/api/admin/notifications/dead-letters", s.student, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env := s.do(t, http.MethodGet, "/api/admin/notifications/dead-letters", s.admin, nil)
	assert.Equal(t, http.StatusOK, status, env.Error)
}

func TestAdminUpdatesRoleAndAudits(t *testing.T) {
	s := newTestServer(t)
	path := fmt.Sprintf("/api/admin/users/%d/role", s.student.ID)

	status, env := s.do(t, http.MethodPut, path, s.admin, map[string]string{"role": "owner"})
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Fields, "role")

	status, env = s.do(t, http.MethodPut, path, s.admin, map[string]string{"role": model.RoleInstructor})
	require.Equal(t, http.StatusOK, status, env.Error)

	var user model.User
	require.NoError(t, s.db.First(&user, s.student.ID).Error)
	assert.Equal(t, model.RoleInstructor, user.Role)
	assert.Equal(t, s.student.TokenVersion+1, user.TokenVersion)

	// Tokens issued before the change no longer authenticate
	status, _ = s.do(t, http.MethodGet, "/api/enrollments/", s.student, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	var entry model.AdminAuditLog
	require.NoError(t, s.db.Where("action = ?", model.AuditUserRoleUpdate).First(&entry).Error)
	assert.Equal(t, s.admin.ID, entry.AdminID)
	assert.Equal(t, s.student.ID, entry.ResourceID)
	assert.JSONEq(t, `{"role":"student"}`, string(entry.OldValue))
	assert.JSONEq(t, `{"role":"instructor"}`, string(entry.NewValue))

	status, _ = s.do(t, http.MethodPut, fmt.Sprintf("/api/admin/users/%d/role", s.admin.ID), s.admin, map[string]string{"role": model.RoleStudent})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCourseApprovalIsAudited(t *testing.T) {
	s := newTestServer(t)
	course := s.createCourse(t, "500")
	require.NoError(t, s.db.Model(course).Update("approved", false).Error)

	path := fmt.Sprintf("/api/courses/%d/approve", course.ID)
	status, _ := s.do(t, http.MethodPost, path, s.instructor, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env := s.do(t, http.MethodPost, path, s.admin, nil)
	require.Equal(t, http.StatusOK, status, env.Error)

	var reloaded model.Course
	require.NoError(t, s.db.First(&reloaded, course.ID).Error)
	assert.True(t, reloaded.Approved)

	var count int64
	require.NoError(t, s.db.Model(&model.AdminAuditLog{}).
		Where("action = ? AND resource_id = ?", model.AuditCourseApprove, course.ID).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAdminRevenueStats(t *testing.T) {
	s := newTestServer(t)
	course := s.createCourse(t, "500")
	order := s.createOrder(t, course.ID)

	signature := s.container.Signer.Sign(order.OrderID, "pay_rev1")
	status, _ := s.do(t, http.MethodPost, "/api/payments/verify", s.student, verifyBody(order.OrderID, "pay_rev1", signature))
	require.Equal(t, http.StatusOK, status)

	status, env := s.do(t, http.MethodGet, "/api/admin/revenue", s.admin, nil)
	require.Equal(t, http.StatusOK, status, env.Error)

	var stats struct {
		Revenue []struct {
			Currency string `json:"currency"`
			Amount   int64  `json:"amount"`
			Payments int64  `json:"payments"`
		} `json:"revenue"`
		PaymentsByStatus map[string]int64 `json:"payments_by_status"`
		TopCourses       []struct {
			CourseID uint  `json:"course_id"`
			Amount   int64 `json:"amount"`
		} `json:"top_courses"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))

	require.Len(t, stats.Revenue, 1)
	assert.Equal(t, "INR", stats.Revenue[0].Currency)
	assert.Equal(t, int64(50000), stats.Revenue[0].Amount)
	assert.Equal(t, int64(1), stats.PaymentsByStatus["completed"])
	require.Len(t, stats.TopCourses, 1)
	assert.Equal(t, course.ID, stats.TopCourses[0].CourseID)
}
