package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"expertresume/internal/api/middleware"
	"expertresume/internal/database"
	"expertresume/internal/hosting"
	"expertresume/internal/payment"
)

type fakeGateway struct {
	session       *payment.CheckoutSession
	retrieveCalls int
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, params payment.CreateSessionParams) (*payment.CheckoutSession, error) {
	return &payment.CheckoutSession{
		ID:            "cs_test_abc",
		URL:           "https://checkout.example/cs_test_abc",
		PaymentStatus: "unpaid",
		AmountTotal:   params.AmountMinor,
		Currency:      params.Currency,
		Metadata:      params.Metadata,
	}, nil
}

func (g *fakeGateway) RetrieveCheckoutSession(_ context.Context, sessionID string) (*payment.CheckoutSession, error) {
	g.retrieveCalls++
	if g.session == nil {
		return nil, fmt.Errorf("session %q not found", sessionID)
	}
	return g.session, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:api_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(&database.User{}, &database.HostedResume{}, &database.PaymentLog{})
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newHostedRouter(t *testing.T, db *gorm.DB, gateway payment.Gateway) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	controller := hosting.NewController(db, gateway, hosting.NewLogStore(db), slog.Default(), "https://resume.example")
	handler := NewHostedHandler(controller, nil, nil, nil, slog.Default(), 0)

	router := gin.New()
	group := router.Group("/v1/hosted-resume")
	group.POST("/create-payment-order", handler.CreatePaymentOrder)
	group.POST("/verify-payment", handler.VerifyPayment)
	group.POST("/log-payment", handler.LogPayment)
	group.GET("/:id", handler.View)
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w, decodeBody(t, w)
}

func getJSON(t *testing.T, router *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w, decodeBody(t, w)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func seedHosted(t *testing.T, db *gorm.DB, record database.HostedResume) string {
	t.Helper()
	if record.ID == "" {
		record.ID = "hosted-1"
	}
	if record.PaymentCurrency == "" {
		record.PaymentCurrency = "USD"
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("seed hosted resume: %v", err)
	}
	return record.ID
}

func TestCreatePaymentOrderResponseShape(t *testing.T) {
	db := newTestDB(t)
	router := newHostedRouter(t, db, &fakeGateway{})
	hostedID := seedHosted(t, db, database.HostedResume{ResumeName: "CV", PaymentAmount: 19.99})

	w, body := postJSON(t, router, "/v1/hosted-resume/create-payment-order",
		fmt.Sprintf(`{"hostedId":%q,"customerEmail":"ana@example.com"}`, hostedID))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if body["url"] != "https://checkout.example/cs_test_abc" {
		t.Errorf("url = %v", body["url"])
	}
	if body["sessionId"] != "cs_test_abc" {
		t.Errorf("sessionId = %v", body["sessionId"])
	}
	if body["amount"] != float64(1999) {
		t.Errorf("amount = %v, want 1999", body["amount"])
	}
	if body["currency"] != "USD" {
		t.Errorf("currency = %v", body["currency"])
	}
}

func TestCreatePaymentOrderValidation(t *testing.T) {
	db := newTestDB(t)
	router := newHostedRouter(t, db, &fakeGateway{})

	w, body := postJSON(t, router, "/v1/hosted-resume/create-payment-order", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing hostedId: status = %d, want 400", w.Code)
	}
	if body["error"] == "" {
		t.Error("missing error message")
	}

	w, _ = postJSON(t, router, "/v1/hosted-resume/create-payment-order", `{"hostedId":"missing"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown record: status = %d, want 404", w.Code)
	}
}

func TestCreatePaymentOrderAlreadyPaid(t *testing.T) {
	db := newTestDB(t)
	router := newHostedRouter(t, db, &fakeGateway{})
	hostedID := seedHosted(t, db, database.HostedResume{
		PaymentAmount: 10,
		PaymentStatus: database.PaymentStatusPaid,
	})

	w, _ := postJSON(t, router, "/v1/hosted-resume/create-payment-order",
		fmt.Sprintf(`{"hostedId":%q}`, hostedID))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestVerifyPaymentResponseShape(t *testing.T) {
	db := newTestDB(t)
	hostedID := "hosted-1"
	gateway := &fakeGateway{session: &payment.CheckoutSession{
		ID:            "cs_test_abc",
		PaymentStatus: "paid",
		AmountTotal:   1999,
		Currency:      "USD",
		Metadata:      map[string]string{"hostedId": hostedID},
	}}
	router := newHostedRouter(t, db, gateway)
	seedHosted(t, db, database.HostedResume{ID: hostedID, PaymentAmount: 19.99, Locked: true})

	w, body := postJSON(t, router, "/v1/hosted-resume/verify-payment",
		fmt.Sprintf(`{"hostedId":%q,"sessionId":"cs_test_abc"}`, hostedID))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["success"] != true || body["message"] != "Payment verified successfully" {
		t.Errorf("body = %v", body)
	}

	// Verifying again succeeds without another gateway round trip.
	calls := gateway.retrieveCalls
	w, body = postJSON(t, router, "/v1/hosted-resume/verify-payment",
		fmt.Sprintf(`{"hostedId":%q,"sessionId":"cs_test_abc"}`, hostedID))
	if w.Code != http.StatusOK || body["success"] != true {
		t.Errorf("repeat verify: status = %d, body = %v", w.Code, body)
	}
	if gateway.retrieveCalls != calls {
		t.Errorf("repeat verify contacted the gateway")
	}
}

func TestVerifyPaymentValidation(t *testing.T) {
	db := newTestDB(t)
	router := newHostedRouter(t, db, &fakeGateway{})

	w, _ := postJSON(t, router, "/v1/hosted-resume/verify-payment", `{"hostedId":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing sessionId: status = %d, want 400", w.Code)
	}
}

func TestVerifyPaymentIncompleteSession(t *testing.T) {
	db := newTestDB(t)
	hostedID := "hosted-1"
	gateway := &fakeGateway{session: &payment.CheckoutSession{
		ID:            "cs_test_abc",
		PaymentStatus: "unpaid",
		Metadata:      map[string]string{"hostedId": hostedID},
	}}
	router := newHostedRouter(t, db, gateway)
	seedHosted(t, db, database.HostedResume{ID: hostedID, PaymentAmount: 19.99})

	w, _ := postJSON(t, router, "/v1/hosted-resume/verify-payment",
		fmt.Sprintf(`{"hostedId":%q,"sessionId":"cs_test_abc"}`, hostedID))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestLogPaymentResponseShape(t *testing.T) {
	db := newTestDB(t)
	router := newHostedRouter(t, db, &fakeGateway{})
	hostedID := seedHosted(t, db, database.HostedResume{PaymentAmount: 10})

	w, body := postJSON(t, router, "/v1/hosted-resume/log-payment",
		fmt.Sprintf(`{"hostedId":%q,"status":"initiated"}`, hostedID))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["success"] != true || body["message"] != "Payment attempt logged" {
		t.Errorf("body = %v", body)
	}

	w, _ = postJSON(t, router, "/v1/hosted-resume/log-payment",
		fmt.Sprintf(`{"hostedId":%q,"status":"success"}`, hostedID))
	if w.Code != http.StatusBadRequest {
		t.Errorf("reserved status accepted: %d", w.Code)
	}
}

func TestViewPublicShape(t *testing.T) {
	db := newTestDB(t)
	router := newHostedRouter(t, db, &fakeGateway{})
	hostedID := seedHosted(t, db, database.HostedResume{
		ResumeName:    "CV",
		PaymentAmount: 19.99,
		Locked:        true,
		IsActive:      true,
	})

	w, body := getJSON(t, router, "/v1/hosted-resume/"+hostedID)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["hostedId"] != hostedID || body["locked"] != true || body["downloadEnabled"] != false {
		t.Errorf("body = %v", body)
	}
	if body["isExpired"] != false {
		t.Errorf("isExpired = %v", body["isExpired"])
	}

	w, _ = getJSON(t, router, "/v1/hosted-resume/missing")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown record: status = %d, want 404", w.Code)
	}
}

func newAdminRouter(t *testing.T, db *gorm.DB, userID uint) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	controller := hosting.NewController(db, &fakeGateway{}, hosting.NewLogStore(db), slog.Default(), "https://resume.example")
	handler := NewAdminHandler(controller, "https://resume.example")

	router := gin.New()
	group := router.Group("/v1/admin")
	group.Use(func(c *gin.Context) {
		if userID != 0 {
			c.Set("userID", userID)
		}
		c.Next()
	}, middleware.AdminMiddleware(db))
	group.GET("/hosted-resumes", handler.List)
	group.GET("/hosted-resume/:id", handler.Get)
	group.PATCH("/hosted-resume/:id", handler.SetFlags)
	return router
}

func TestAdminMiddlewareDistinguishes401From403(t *testing.T) {
	db := newTestDB(t)
	admin := database.User{Username: "root", Email: "root@example.com", PasswordHash: "x", AgentAdmin: true}
	regular := database.User{Username: "user", Email: "user@example.com", PasswordHash: "x"}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if err := db.Create(&regular).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	// No authenticated user at all.
	w, _ := getJSON(t, newAdminRouter(t, db, 0), "/v1/admin/hosted-resumes")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated: status = %d, want 401", w.Code)
	}

	// Authenticated but without the admin capability.
	w, body := getJSON(t, newAdminRouter(t, db, regular.ID), "/v1/admin/hosted-resumes")
	if w.Code != http.StatusForbidden {
		t.Errorf("non-admin: status = %d, want 403", w.Code)
	}
	if body["error"] != "admin access required" {
		t.Errorf("non-admin error = %v", body["error"])
	}

	w, body = getJSON(t, newAdminRouter(t, db, admin.ID), "/v1/admin/hosted-resumes")
	if w.Code != http.StatusOK {
		t.Errorf("admin: status = %d, want 200", w.Code)
	}
	if body["success"] != true {
		t.Errorf("admin body = %v", body)
	}
}

func TestAdminSetFlagsResponseShape(t *testing.T) {
	db := newTestDB(t)
	admin := database.User{Username: "root", Email: "root@example.com", PasswordHash: "x", AgentAdmin: true}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	router := newAdminRouter(t, db, admin.ID)
	hostedID := seedHosted(t, db, database.HostedResume{PaymentAmount: 5, Locked: true})

	req := httptest.NewRequest(http.MethodPatch, "/v1/admin/hosted-resume/"+hostedID,
		bytes.NewBufferString(`{"downloadEnabled":true}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != true || body["downloadEnabled"] != true {
		t.Errorf("body = %v", body)
	}
	if _, present := body["locked"]; present {
		t.Error("response echoes a flag the request did not set")
	}

	// Empty flag object is a validation error.
	req = httptest.NewRequest(http.MethodPatch, "/v1/admin/hosted-resume/"+hostedID, bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty update: status = %d, want 400", w.Code)
	}
}

func TestAdminGetIncludesHostedURLAndLogs(t *testing.T) {
	db := newTestDB(t)
	admin := database.User{Username: "root", Email: "root@example.com", PasswordHash: "x", AgentAdmin: true}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	router := newAdminRouter(t, db, admin.ID)
	hostedID := seedHosted(t, db, database.HostedResume{ResumeName: "CV", PaymentAmount: 5})

	w, body := getJSON(t, router, "/v1/admin/hosted-resume/"+hostedID)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resume, ok := body["resume"].(map[string]any)
	if !ok {
		t.Fatalf("resume missing in %v", body)
	}
	if resume["hostedUrl"] != "https://resume.example/hosted-resume/"+hostedID {
		t.Errorf("hostedUrl = %v", resume["hostedUrl"])
	}
	if _, ok := resume["paymentLogs"].([]any); !ok {
		t.Errorf("paymentLogs = %v, want array even when empty", resume["paymentLogs"])
	}
}
