package api

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"expertresume/internal/database"
	"expertresume/internal/quota"
)

func newQuotaRouter(t *testing.T, db *gorm.DB, now func() time.Time) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	err := db.AutoMigrate(
		&database.QuotaRecord{},
		&database.ClientRecord{},
		&database.ResumeUpload{},
		&database.AtsCheck{},
		&database.JdResume{},
	)
	if err != nil {
		t.Fatalf("migrate quota tables: %v", err)
	}

	handler := NewQuotaHandler(quota.NewLedger(db, quota.NewStaticPlanRegistry(), now))

	router := gin.New()
	group := router.Group("/v1/quota")
	group.POST("/decrement-quota", handler.Decrement)
	group.POST("/initialize-user-quotas", handler.Initialize)
	group.POST("/sync-quotas", handler.Sync)
	return router
}

func seedQuotaUser(t *testing.T, db *gorm.DB, user database.User) uint {
	t.Helper()
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user.ID
}

func TestQuotaInitializeResponseShape(t *testing.T) {
	db := newTestDB(t)
	router := newQuotaRouter(t, db, nil)
	userID := seedQuotaUser(t, db, database.User{Username: "alice", PasswordHash: "x"})

	w, body := postJSON(t, router, "/v1/quota/initialize-user-quotas",
		fmt.Sprintf(`{"userId":%d,"planKey":"starter_pro","resetQuotas":true}`, userID))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["success"] != true || body["message"] != "Quotas initialized" {
		t.Errorf("body = %v", body)
	}
	quotaData, ok := body["quotaData"].(map[string]any)
	if !ok {
		t.Fatalf("quotaData missing in %v", body)
	}
	if quotaData["planId"] != "starter_pro" {
		t.Errorf("planId = %v", quotaData["planId"])
	}
	limits, ok := quotaData["limits"].(map[string]any)
	if !ok || limits["maxClients"] != float64(10) {
		t.Errorf("limits = %v", quotaData["limits"])
	}
	if quotaData["resetDate"] == nil {
		t.Error("resetDate missing")
	}
}

func TestQuotaInitializeUnknownPlan(t *testing.T) {
	db := newTestDB(t)
	router := newQuotaRouter(t, db, nil)
	userID := seedQuotaUser(t, db, database.User{Username: "alice", PasswordHash: "x"})

	w, _ := postJSON(t, router, "/v1/quota/initialize-user-quotas",
		fmt.Sprintf(`{"userId":%d,"planKey":"gold_plated"}`, userID))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestQuotaDecrementResponseShape(t *testing.T) {
	db := newTestDB(t)
	router := newQuotaRouter(t, db, nil)
	userID := seedQuotaUser(t, db, database.User{Username: "alice", PasswordHash: "x"})

	if _, body := postJSON(t, router, "/v1/quota/initialize-user-quotas",
		fmt.Sprintf(`{"userId":%d,"planKey":"starter_pro"}`, userID)); body["success"] != true {
		t.Fatalf("initialize failed: %v", body)
	}

	w, body := postJSON(t, router, "/v1/quota/decrement-quota",
		fmt.Sprintf(`{"userId":%d,"quotaType":"clients"}`, userID))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["success"] != true {
		t.Errorf("body = %v", body)
	}
	if _, present := body["skipped"]; present {
		t.Error("skipped present for a regular user")
	}
}

func TestQuotaDecrementSkipsTeamMember(t *testing.T) {
	db := newTestDB(t)
	router := newQuotaRouter(t, db, nil)
	userID := seedQuotaUser(t, db, database.User{Username: "tm", PasswordHash: "x", UserType: "team_member"})

	w, body := postJSON(t, router, "/v1/quota/decrement-quota",
		fmt.Sprintf(`{"userId":%d,"quotaType":"clients"}`, userID))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["success"] != true || body["skipped"] != true || body["reason"] != "team_member" {
		t.Errorf("body = %v", body)
	}
}

func TestQuotaDecrementValidation(t *testing.T) {
	db := newTestDB(t)
	router := newQuotaRouter(t, db, nil)
	userID := seedQuotaUser(t, db, database.User{Username: "alice", PasswordHash: "x"})

	w, _ := postJSON(t, router, "/v1/quota/decrement-quota", `{"quotaType":"clients"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing userId: status = %d, want 400", w.Code)
	}

	w, _ = postJSON(t, router, "/v1/quota/decrement-quota",
		fmt.Sprintf(`{"userId":%d,"quotaType":"clients","amount":-1}`, userID))
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative amount: status = %d, want 400", w.Code)
	}

	w, _ = postJSON(t, router, "/v1/quota/decrement-quota",
		fmt.Sprintf(`{"userId":%d,"quotaType":"timeTravel"}`, userID))
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown quota type: status = %d, want 400", w.Code)
	}

	w, _ = postJSON(t, router, "/v1/quota/decrement-quota", `{"userId":999,"quotaType":"clients"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown user: status = %d, want 404", w.Code)
	}
}

func TestQuotaDecrementExpiredWindowConflicts(t *testing.T) {
	db := newTestDB(t)
	current := time.Now()
	now := func() time.Time { return current }
	router := newQuotaRouter(t, db, now)
	userID := seedQuotaUser(t, db, database.User{Username: "alice", PasswordHash: "x"})

	if _, body := postJSON(t, router, "/v1/quota/initialize-user-quotas",
		fmt.Sprintf(`{"userId":%d,"planKey":"starter_pro"}`, userID)); body["success"] != true {
		t.Fatalf("initialize failed: %v", body)
	}

	current = current.Add(31 * 24 * time.Hour)
	w, _ := postJSON(t, router, "/v1/quota/decrement-quota",
		fmt.Sprintf(`{"userId":%d,"quotaType":"clients"}`, userID))
	if w.Code != http.StatusConflict {
		t.Errorf("expired window: status = %d, want 409", w.Code)
	}
}

func TestQuotaUsageIncludesRemaining(t *testing.T) {
	db := newTestDB(t)
	router := newQuotaRouter(t, db, nil)
	userID := seedQuotaUser(t, db, database.User{Username: "alice", PasswordHash: "x"})

	handler := NewQuotaHandler(quota.NewLedger(db, quota.NewStaticPlanRegistry(), nil))
	router.GET("/v1/quota/usage", func(c *gin.Context) {
		c.Set("userID", userID)
		handler.Usage(c)
	})

	for i := 0; i < 2; i++ {
		if err := db.Create(&database.ClientRecord{UserID: userID, Name: fmt.Sprintf("client-%d", i)}).Error; err != nil {
			t.Fatalf("seed client: %v", err)
		}
	}
	// Seeds usage from the real counts: 2 clients against a limit of 10.
	if _, body := postJSON(t, router, "/v1/quota/initialize-user-quotas",
		fmt.Sprintf(`{"userId":%d,"planKey":"starter_pro"}`, userID)); body["success"] != true {
		t.Fatalf("initialize failed: %v", body)
	}

	w, body := getJSON(t, router, "/v1/quota/usage")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	remaining, ok := body["remaining"].(map[string]any)
	if !ok {
		t.Fatalf("remaining missing in %v", body)
	}
	if remaining["clients"] != float64(8) {
		t.Errorf("clients remaining = %v, want 8", remaining["clients"])
	}
}

func TestQuotaSyncResponseShape(t *testing.T) {
	db := newTestDB(t)
	router := newQuotaRouter(t, db, nil)
	userID := seedQuotaUser(t, db, database.User{Username: "alice", PasswordHash: "x"})

	if _, body := postJSON(t, router, "/v1/quota/initialize-user-quotas",
		fmt.Sprintf(`{"userId":%d,"planKey":"starter_pro"}`, userID)); body["success"] != true {
		t.Fatalf("initialize failed: %v", body)
	}
	for i := 0; i < 2; i++ {
		if err := db.Create(&database.ClientRecord{UserID: userID, Name: fmt.Sprintf("client-%d", i)}).Error; err != nil {
			t.Fatalf("seed client: %v", err)
		}
	}

	w, body := postJSON(t, router, "/v1/quota/sync-quotas",
		fmt.Sprintf(`{"userId":%d}`, userID))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["message"] != "Quotas synced with real counts" {
		t.Errorf("message = %v", body["message"])
	}
	realCounts, ok := body["realCounts"].(map[string]any)
	if !ok {
		t.Fatalf("realCounts missing in %v", body)
	}
	if realCounts["clients"] != float64(2) {
		t.Errorf("clients = %v, want 2", realCounts["clients"])
	}
}
