package quota

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"expertresume/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&database.User{},
		&database.QuotaRecord{},
		&database.ClientRecord{},
		&database.ResumeUpload{},
		&database.AtsCheck{},
		&database.JdResume{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, user database.User) uint {
	t.Helper()
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user.ID
}

func TestInitializeResetStartsAtZero(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db, NewStaticPlanRegistry(), nil)
	ctx := context.Background()
	userID := seedUser(t, db, database.User{Username: "alice", PasswordHash: "x"})

	record, err := ledger.Initialize(ctx, userID, "starter_pro", true)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if record.PlanID != "starter_pro" {
		t.Errorf("plan id = %q, want starter_pro", record.PlanID)
	}
	if record.Usage != (database.QuotaUsage{}) {
		t.Errorf("usage = %+v, want all zero", record.Usage)
	}
	if record.Limits.MaxResumeUploads != 25 {
		t.Errorf("maxResumeUploads = %d, want 25", record.Limits.MaxResumeUploads)
	}
	wantReset := time.Now().Add(30 * 24 * time.Hour)
	if diff := record.ResetDate.Sub(wantReset); diff < -time.Minute || diff > time.Minute {
		t.Errorf("resetDate = %v, want about %v", record.ResetDate, wantReset)
	}
}

func TestInitializeSeedsUsageFromRecount(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db, NewStaticPlanRegistry(), nil)
	ctx := context.Background()
	userID := seedUser(t, db, database.User{Username: "bob", PasswordHash: "x"})

	for i := 0; i < 3; i++ {
		db.Create(&database.ClientRecord{UserID: userID, Name: fmt.Sprintf("c%d", i)})
	}
	db.Create(&database.ResumeUpload{UserID: userID, FileName: "cv.pdf"})
	db.Create(&database.AtsCheck{UserID: userID, Score: 70})
	db.Create(&database.AtsCheck{UserID: userID, Score: 80})

	record, err := ledger.Initialize(ctx, userID, "BUSINESS_PRO", false)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if record.Usage.Clients != 3 {
		t.Errorf("clients = %d, want 3", record.Usage.Clients)
	}
	if record.Usage.ResumeUploads != 1 {
		t.Errorf("resumeUploads = %d, want 1", record.Usage.ResumeUploads)
	}
	if record.Usage.AtsChecks != 2 {
		t.Errorf("atsChecks = %d, want 2", record.Usage.AtsChecks)
	}
	if record.Usage.JdResumes != 0 {
		t.Errorf("jdResumes = %d, want 0", record.Usage.JdResumes)
	}
	if record.Usage.TeamMembers != 0 {
		t.Errorf("teamMembers = %d, want 0 (never recounted)", record.Usage.TeamMembers)
	}
	if record.PlanID != "business_pro" {
		t.Errorf("plan id = %q, want business_pro (upper-case alias)", record.PlanID)
	}
}

func TestInitializeUnknownPlan(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db, NewStaticPlanRegistry(), nil)
	userID := seedUser(t, db, database.User{Username: "carol", PasswordHash: "x"})

	_, err := ledger.Initialize(context.Background(), userID, "mega_plan", true)
	if !errors.Is(err, ErrUnknownPlan) {
		t.Fatalf("err = %v, want ErrUnknownPlan", err)
	}
}

func TestInitializeReplacesExistingRecord(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db, NewStaticPlanRegistry(), nil)
	ctx := context.Background()
	userID := seedUser(t, db, database.User{Username: "dave", PasswordHash: "x"})

	if _, err := ledger.Initialize(ctx, userID, "free_trial", true); err != nil {
		t.Fatalf("first initialize: %v", err)
	}
	if _, err := ledger.Decrement(ctx, userID, TypeClients, 1); err != nil {
		t.Fatalf("decrement: %v", err)
	}

	record, err := ledger.Initialize(ctx, userID, "enterprise_pro", true)
	if err != nil {
		t.Fatalf("re-initialize: %v", err)
	}
	if record.PlanID != "enterprise_pro" {
		t.Errorf("plan id = %q, want enterprise_pro", record.PlanID)
	}
	if record.Usage.Clients != 0 {
		t.Errorf("clients = %d, want 0 after replacement", record.Usage.Clients)
	}

	stored, err := ledger.Get(ctx, userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.PlanID != "enterprise_pro" || stored.Usage.Clients != 0 {
		t.Errorf("stored record = %+v, want full replacement", stored)
	}
}

func TestDecrementAppliesAtomicDelta(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db, NewStaticPlanRegistry(), nil)
	ctx := context.Background()
	userID := seedUser(t, db, database.User{Username: "erin", PasswordHash: "x"})

	if _, err := ledger.Initialize(ctx, userID, "starter_pro", true); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	for i := 0; i < 3; i++ {
		result, err := ledger.Decrement(ctx, userID, TypeResumeUploads, 1)
		if err != nil {
			t.Fatalf("decrement %d: %v", i, err)
		}
		if result.Skipped {
			t.Fatalf("decrement %d unexpectedly skipped", i)
		}
	}

	record, err := ledger.Get(ctx, userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Usage.ResumeUploads != -3 {
		t.Errorf("resumeUploads = %d, want -3", record.Usage.ResumeUploads)
	}
}

func TestDecrementSkipsTeamMembers(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db, NewStaticPlanRegistry(), nil)
	ctx := context.Background()

	// All four legacy markers must independently trigger the skip.
	users := []database.User{
		{Username: "tm1", PasswordHash: "x", IsTeamMember: true},
		{Username: "tm2", PasswordHash: "x", UserType: "team_member"},
		{Username: "tm3", PasswordHash: "x", CurrentProfile: "team_member"},
		{Username: "tm4", PasswordHash: "x", PlanType: "team_member"},
	}
	for i := range users {
		userID := seedUser(t, db, users[i])
		result, err := ledger.Decrement(ctx, userID, TypeClients, 1)
		if err != nil {
			t.Fatalf("decrement user %d: %v", i, err)
		}
		if !result.Skipped || result.Reason != "team_member" {
			t.Errorf("user %d: result = %+v, want skipped team_member", i, result)
		}
	}
}

func TestDecrementMissingRecord(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db, NewStaticPlanRegistry(), nil)
	userID := seedUser(t, db, database.User{Username: "frank", PasswordHash: "x"})

	_, err := ledger.Decrement(context.Background(), userID, TypeClients, 1)
	if !errors.Is(err, ErrRecordMissing) {
		t.Fatalf("err = %v, want ErrRecordMissing", err)
	}
}

func TestDecrementMissingUser(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db, NewStaticPlanRegistry(), nil)

	_, err := ledger.Decrement(context.Background(), 999, TypeClients, 1)
	if !errors.Is(err, ErrUserMissing) {
		t.Fatalf("err = %v, want ErrUserMissing", err)
	}
}

func TestDecrementExpiredWindow(t *testing.T) {
	db := newTestDB(t)
	current := time.Now()
	ledger := NewLedger(db, NewStaticPlanRegistry(), func() time.Time { return current })
	ctx := context.Background()
	userID := seedUser(t, db, database.User{Username: "grace", PasswordHash: "x"})

	if _, err := ledger.Initialize(ctx, userID, "starter_pro", true); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	current = current.Add(31 * 24 * time.Hour)
	_, err := ledger.Decrement(ctx, userID, TypeClients, 1)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestDecrementUnknownQuotaType(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db, NewStaticPlanRegistry(), nil)

	_, err := ledger.Decrement(context.Background(), 1, QuotaType("widgets"), 1)
	if !errors.Is(err, ErrUnknownQuotaType) {
		t.Fatalf("err = %v, want ErrUnknownQuotaType", err)
	}
}

func TestSyncOverwritesCountersWholesale(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db, NewStaticPlanRegistry(), nil)
	ctx := context.Background()
	userID := seedUser(t, db, database.User{Username: "heidi", PasswordHash: "x"})

	if _, err := ledger.Initialize(ctx, userID, "starter_pro", true); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	// Drift the counters away from the collections.
	for i := 0; i < 5; i++ {
		if _, err := ledger.Decrement(ctx, userID, TypeJdResumes, 1); err != nil {
			t.Fatalf("decrement: %v", err)
		}
	}
	db.Create(&database.JdResume{UserID: userID, JobTitle: "engineer"})
	db.Create(&database.JdResume{UserID: userID, JobTitle: "manager"})

	counts, err := ledger.Sync(ctx, userID)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if counts.JdResumes != 2 {
		t.Errorf("realCounts.jdResumes = %d, want 2", counts.JdResumes)
	}

	record, err := ledger.Get(ctx, userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Usage.JdResumes != 2 {
		t.Errorf("stored jdResumes = %d, want 2 after sync", record.Usage.JdResumes)
	}
}

func TestSyncMissingRecord(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db, NewStaticPlanRegistry(), nil)
	userID := seedUser(t, db, database.User{Username: "ivan", PasswordHash: "x"})

	_, err := ledger.Sync(context.Background(), userID)
	if !errors.Is(err, ErrRecordMissing) {
		t.Fatalf("err = %v, want ErrRecordMissing", err)
	}
}

func TestResetExpiredRewindowsOnlyLapsedRecords(t *testing.T) {
	db := newTestDB(t)
	current := time.Now()
	ledger := NewLedger(db, NewStaticPlanRegistry(), func() time.Time { return current })
	ctx := context.Background()

	expiredID := seedUser(t, db, database.User{Username: "old", PasswordHash: "x"})
	freshID := seedUser(t, db, database.User{Username: "new", PasswordHash: "x"})

	if _, err := ledger.Initialize(ctx, expiredID, "starter_pro", true); err != nil {
		t.Fatalf("initialize expired: %v", err)
	}
	if _, err := ledger.Decrement(ctx, expiredID, TypeClients, 2); err != nil {
		t.Fatalf("decrement: %v", err)
	}

	current = current.Add(31 * 24 * time.Hour)
	if _, err := ledger.Initialize(ctx, freshID, "starter_pro", true); err != nil {
		t.Fatalf("initialize fresh: %v", err)
	}

	count, err := ledger.ResetExpired(ctx)
	if err != nil {
		t.Fatalf("reset expired: %v", err)
	}
	if count != 1 {
		t.Errorf("reset count = %d, want 1", count)
	}

	record, err := ledger.Get(ctx, expiredID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Usage.Clients != 0 {
		t.Errorf("clients = %d, want 0 after reset", record.Usage.Clients)
	}
	if !record.ResetDate.After(current) {
		t.Errorf("resetDate = %v, want after %v", record.ResetDate, current)
	}
}

func TestPlanRegistryUnlimitedTier(t *testing.T) {
	plan, ok := NewStaticPlanRegistry().Resolve("ENTERPRISE_PRO")
	if !ok {
		t.Fatal("enterprise_pro not resolved")
	}
	if plan.Limits.MaxClients != -1 {
		t.Errorf("maxClients = %d, want -1 (unlimited)", plan.Limits.MaxClients)
	}
	if plan.Limits.MaxTeamMembers != 10 {
		t.Errorf("maxTeamMembers = %d, want 10", plan.Limits.MaxTeamMembers)
	}
}
