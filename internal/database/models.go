package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User represents an account. Admin capability rides on the row
// (AgentAdmin), not on the token, so it can be revoked immediately.
type User struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex;size:64"`
	Email        string `gorm:"index;size:255"`
	PasswordHash string `gorm:"size:255"`
	AgentAdmin   bool   `gorm:"default:false"`

	// Legacy team-member markers carried over from imported accounts.
	// Read TeamMember (populated by AfterFind) instead of these.
	UserType       string `gorm:"size:32"`
	CurrentProfile string `gorm:"size:32"`
	PlanType       string `gorm:"size:32"`
	IsTeamMember   bool

	TeamMember bool `gorm:"-"`
}

// AfterFind normalizes the several equivalent team-member markers into a
// single capability, so call sites never re-derive it ad hoc.
func (u *User) AfterFind(*gorm.DB) error {
	u.TeamMember = u.IsTeamMember ||
		u.UserType == "team_member" ||
		u.CurrentProfile == "team_member" ||
		u.PlanType == "team_member"
	return nil
}

// Payment status values for a HostedResume. Authoritative only after
// verification succeeds.
const (
	PaymentStatusUnset   = ""
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// PaymentOrder is the snapshot of the last-created checkout session,
// superseded on every new order creation.
type PaymentOrder struct {
	SessionID       string     `json:"sessionId"`
	PaymentIntentID string     `json:"paymentIntent,omitempty"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`
	CustomerName    string     `json:"customerName,omitempty"`
	CustomerEmail   string     `json:"customerEmail,omitempty"`
	CustomerContact string     `json:"customerContact,omitempty"`
}

// PaymentReceipt is the finalized record written once on successful
// verification and never touched again.
type PaymentReceipt struct {
	SessionID       string    `json:"sessionId"`
	PaymentIntentID string    `json:"paymentIntent"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	Email           string    `json:"email,omitempty"`
	Contact         string    `json:"contact,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// HostedResume is a publicly shareable, access-gated snapshot of a resume.
// Flag columns are written only via field-scoped updates; the whole row is
// never overwritten after creation.
type HostedResume struct {
	ID             string `gorm:"primaryKey;size:64"`
	SourceUserID   uint   `gorm:"index"`
	SourceResumeID uint
	ResumeName     string         `gorm:"size:255"`
	SnapshotData   datatypes.JSON `gorm:"type:jsonb"`

	DownloadEnabled bool `gorm:"default:false"`
	Locked          bool `gorm:"default:false"`
	EditEnabled     bool `gorm:"default:false"`

	PaymentAmount   float64
	PaymentCurrency string `gorm:"size:8"`
	PaymentStatus   string `gorm:"size:16;index"`

	LatestPaymentOrder datatypes.JSONType[PaymentOrder]
	PaymentDetails     datatypes.JSONType[PaymentReceipt]

	PdfObjectKey string `gorm:"size:512"`

	IsActive  bool `gorm:"default:true"`
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the hosted resume is past its expiry timestamp.
func (h *HostedResume) Expired(now time.Time) bool {
	return h.ExpiresAt != nil && now.After(*h.ExpiresAt)
}

// Payment log statuses. "initiated" from clients is stored as "pending".
const (
	PaymentLogStatusPending   = "pending"
	PaymentLogStatusCancelled = "cancelled"
	PaymentLogStatusFailed    = "failed"
	PaymentLogStatusSuccess   = "success"
)

// PaymentLogType discriminates hosted-resume payments from other log sources.
const PaymentLogTypeHostedResume = "hosted_resume_service"

// PaymentUserInfo identifies the paying customer on an audit entry.
type PaymentUserInfo struct {
	Name  string `gorm:"size:255" json:"name"`
	Email string `gorm:"size:255" json:"email"`
	Phone string `gorm:"size:64" json:"phone"`
}

// PaymentLog is an append-only audit entry, one per payment attempt.
// Rows are never updated or deleted; display order is computed at query
// time by Timestamp descending.
type PaymentLog struct {
	ID         uint            `gorm:"primaryKey" json:"-"`
	HostedID   string          `gorm:"index;size:64" json:"hostedId"`
	UserID     string          `gorm:"size:64" json:"userId"`
	UserInfo   PaymentUserInfo `gorm:"embedded;embeddedPrefix:user_" json:"userInfo"`
	Type       string          `gorm:"size:64;index" json:"type"`
	ResumeName string          `gorm:"size:255" json:"resumeName"`
	Amount     float64         `json:"amount"`
	Currency   string          `gorm:"size:8" json:"currency"`
	Status     string          `gorm:"size:16" json:"status"`
	OrderID    string          `gorm:"size:128" json:"orderId"`
	PaymentID  string          `gorm:"size:128" json:"paymentId"`
	Error      string          `gorm:"size:1024" json:"error,omitempty"`
	Timestamp  time.Time       `gorm:"index" json:"timestamp"`
}

// QuotaLimits holds the plan-derived ceilings, immutable until re-synced
// from a plan definition.
type QuotaLimits struct {
	MaxClients       int `json:"maxClients"`
	MaxResumeUploads int `json:"maxResumeUploads"`
	MaxAtsChecks     int `json:"maxAtsChecks"`
	MaxJdResumes     int `json:"maxJdResumes"`
	MaxTeamMembers   int `json:"maxTeamMembers"`
}

// QuotaUsage holds the mutable counters.
type QuotaUsage struct {
	Clients       int `json:"clients"`
	ResumeUploads int `json:"resumeUploads"`
	AtsChecks     int `json:"atsChecks"`
	JdResumes     int `json:"jdResumes"`
	TeamMembers   int `json:"teamMembers"`
}

// QuotaRecord is the per-user counter set. It is fully replaced by
// (re)initialization and sync; individual counters move via atomic deltas.
type QuotaRecord struct {
	UserID    uint        `gorm:"primaryKey"`
	PlanID    string      `gorm:"size:32"`
	PlanName  string      `gorm:"size:64"`
	Limits    QuotaLimits `gorm:"embedded;embeddedPrefix:limit_"`
	Usage     QuotaUsage  `gorm:"embedded;embeddedPrefix:usage_"`
	ResetDate time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the quota window has lapsed. Callers of every
// quota-consuming operation check this explicitly; nothing resets the
// window implicitly.
func (q *QuotaRecord) Expired(now time.Time) bool {
	return now.After(q.ResetDate)
}

// ClientRecord, ResumeUpload, AtsCheck and JdResume are the per-user
// history collections. Quota reconciliation counts these rows; the
// counters in QuotaRecord are only a cache of these counts.

type ClientRecord struct {
	gorm.Model
	UserID uint   `gorm:"index"`
	Name   string `gorm:"size:255"`
	Email  string `gorm:"size:255"`
}

type ResumeUpload struct {
	gorm.Model
	UserID    uint   `gorm:"index"`
	FileName  string `gorm:"size:255"`
	ObjectKey string `gorm:"size:512"`
	SizeBytes int64
}

type AtsCheck struct {
	gorm.Model
	UserID uint `gorm:"index"`
	Score  int
}

type JdResume struct {
	gorm.Model
	UserID   uint   `gorm:"index"`
	JobTitle string `gorm:"size:255"`
}
