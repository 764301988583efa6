package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"expertresume/internal/database"
)

// QuotaType names one of the per-user counters.
type QuotaType string

const (
	TypeClients       QuotaType = "clients"
	TypeResumeUploads QuotaType = "resumeUploads"
	TypeAtsChecks     QuotaType = "atsChecks"
	TypeJdResumes     QuotaType = "jdResumes"
	TypeTeamMembers   QuotaType = "teamMembers"
)

// column maps a quota type to its usage column. The column name is our
// own schema, never caller input, so it is safe to splice into SQL.
func (t QuotaType) column() (string, bool) {
	switch t {
	case TypeClients:
		return "usage_clients", true
	case TypeResumeUploads:
		return "usage_resume_uploads", true
	case TypeAtsChecks:
		return "usage_ats_checks", true
	case TypeJdResumes:
		return "usage_jd_resumes", true
	case TypeTeamMembers:
		return "usage_team_members", true
	default:
		return "", false
	}
}

// quotaWindow is how long a quota window lasts from initialization.
const quotaWindow = 30 * 24 * time.Hour

// Ledger manages per-user quota records: plan-derived limits, atomic
// counter deltas, and recount-based reconciliation.
type Ledger struct {
	db    *gorm.DB
	plans PlanRegistry
	now   func() time.Time
}

// NewLedger constructs a Ledger. now may be nil to use the wall clock.
func NewLedger(db *gorm.DB, plans PlanRegistry, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{db: db, plans: plans, now: now}
}

// Initialize (re)creates the quota record for a user from a plan
// definition. With reset, usage starts at zero; otherwise it is seeded by
// recounting the history collections. The record is replaced wholesale:
// unlike the hosted-resume flag updates, full replacement is the correct
// semantic for (re)initialization.
func (l *Ledger) Initialize(ctx context.Context, userID uint, planKey string, reset bool) (*database.QuotaRecord, error) {
	plan, ok := l.plans.Resolve(planKey)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, planKey)
	}

	usage := database.QuotaUsage{}
	if !reset {
		counts, err := l.recount(ctx, userID)
		if err != nil {
			return nil, err
		}
		usage = counts
		usage.TeamMembers = 0
	}

	now := l.now()
	record := database.QuotaRecord{
		UserID:    userID,
		PlanID:    plan.ID,
		PlanName:  plan.Name,
		Limits:    plan.Limits,
		Usage:     usage,
		ResetDate: now.Add(quotaWindow),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error; err != nil {
		return nil, fmt.Errorf("save quota record: %w", err)
	}

	return &record, nil
}

// DecrementResult reports the outcome of a Decrement call.
type DecrementResult struct {
	Skipped bool
	Reason  string
}

// Decrement applies an atomic delta of -amount to one usage counter.
// Team members share their owner's pool and are skipped entirely. The
// delta is a single SQL update, not a read-modify-write, so concurrent
// decrements from parallel requests never lose updates.
func (l *Ledger) Decrement(ctx context.Context, userID uint, quotaType QuotaType, amount int) (DecrementResult, error) {
	column, ok := quotaType.column()
	if !ok {
		return DecrementResult{}, fmt.Errorf("%w: %q", ErrUnknownQuotaType, quotaType)
	}
	if amount <= 0 {
		amount = 1
	}

	var user database.User
	if err := l.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DecrementResult{}, ErrUserMissing
		}
		return DecrementResult{}, fmt.Errorf("load user: %w", err)
	}
	if user.TeamMember {
		return DecrementResult{Skipped: true, Reason: "team_member"}, nil
	}

	var record database.QuotaRecord
	if err := l.db.WithContext(ctx).First(&record, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DecrementResult{}, ErrRecordMissing
		}
		return DecrementResult{}, fmt.Errorf("load quota record: %w", err)
	}
	if record.Expired(l.now()) {
		return DecrementResult{}, ErrExpired
	}

	res := l.db.WithContext(ctx).
		Model(&database.QuotaRecord{}).
		Where("user_id = ?", userID).
		UpdateColumn(column, gorm.Expr(column+" - ?", amount))
	if res.Error != nil {
		return DecrementResult{}, fmt.Errorf("decrement %s: %w", quotaType, res.Error)
	}
	if res.RowsAffected == 0 {
		return DecrementResult{}, ErrRecordMissing
	}

	return DecrementResult{}, nil
}

// Sync recomputes the four history-backed counters and overwrites them
// wholesale, repairing any drift between the cached counters and the
// collections they summarize. The teamMembers counter is managed
// separately and never recounted.
func (l *Ledger) Sync(ctx context.Context, userID uint) (database.QuotaUsage, error) {
	counts, err := l.recount(ctx, userID)
	if err != nil {
		return database.QuotaUsage{}, err
	}

	res := l.db.WithContext(ctx).
		Model(&database.QuotaRecord{}).
		Where("user_id = ?", userID).
		UpdateColumns(map[string]any{
			"usage_clients":        counts.Clients,
			"usage_resume_uploads": counts.ResumeUploads,
			"usage_ats_checks":     counts.AtsChecks,
			"usage_jd_resumes":     counts.JdResumes,
			"updated_at":           l.now(),
		})
	if res.Error != nil {
		return database.QuotaUsage{}, fmt.Errorf("sync quota record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.QuotaUsage{}, ErrRecordMissing
	}

	return counts, nil
}

// Get returns the quota record for a user.
func (l *Ledger) Get(ctx context.Context, userID uint) (*database.QuotaRecord, error) {
	var record database.QuotaRecord
	if err := l.db.WithContext(ctx).First(&record, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordMissing
		}
		return nil, fmt.Errorf("load quota record: %w", err)
	}
	return &record, nil
}

// ResetExpired re-windows every quota record past its reset date, zeroing
// usage and starting a fresh 30-day window. This is the scheduled caller
// the advisory ResetDate anticipates; nothing in the request path resets
// implicitly.
func (l *Ledger) ResetExpired(ctx context.Context) (int64, error) {
	now := l.now()
	res := l.db.WithContext(ctx).
		Model(&database.QuotaRecord{}).
		Where("reset_date < ?", now).
		UpdateColumns(map[string]any{
			"usage_clients":        0,
			"usage_resume_uploads": 0,
			"usage_ats_checks":     0,
			"usage_jd_resumes":     0,
			"reset_date":           now.Add(quotaWindow),
			"updated_at":           now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("reset expired quotas: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// recount reads the authoritative history collections. This is a
// reconciliation read, never a cached value.
func (l *Ledger) recount(ctx context.Context, userID uint) (database.QuotaUsage, error) {
	db := l.db.WithContext(ctx)

	var counts database.QuotaUsage
	for _, c := range []struct {
		model any
		dst   *int
	}{
		{&database.ClientRecord{}, &counts.Clients},
		{&database.ResumeUpload{}, &counts.ResumeUploads},
		{&database.AtsCheck{}, &counts.AtsChecks},
		{&database.JdResume{}, &counts.JdResumes},
	} {
		var n int64
		if err := db.Model(c.model).Where("user_id = ?", userID).Count(&n).Error; err != nil {
			return database.QuotaUsage{}, fmt.Errorf("recount usage: %w", err)
		}
		*c.dst = int(n)
	}

	return counts, nil
}
