package hosting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"expertresume/internal/database"
	"expertresume/internal/metrics"
	"expertresume/internal/payment"
)

// amountTolerance is the maximum allowed difference, in major units,
// between the gateway-reported paid amount and the expected amount.
const amountTolerance = 0.5

// Customer carries the optional buyer details attached to an order.
type Customer struct {
	Name    string
	Email   string
	Contact string
}

// Controller owns the hosted resume payment and access lifecycle.
// All access flag transitions go through it.
type Controller struct {
	db      *gorm.DB
	gateway payment.Gateway
	logs    *LogStore
	logger  *slog.Logger
	baseURL string
	now     func() time.Time
}

func NewController(db *gorm.DB, gateway payment.Gateway, logs *LogStore, logger *slog.Logger, frontendBaseURL string) *Controller {
	return &Controller{
		db:      db,
		gateway: gateway,
		logs:    logs,
		logger:  logger,
		baseURL: strings.TrimRight(frontendBaseURL, "/"),
		now:     time.Now,
	}
}

// HostParams describes a new hosted resume to publish.
type HostParams struct {
	SourceUserID    uint
	SourceResumeID  uint
	ResumeName      string
	SnapshotData    datatypes.JSON
	PaymentAmount   float64
	PaymentCurrency string
	ExpiresAt       *time.Time
}

// Host creates a hosted resume record. A record with a positive
// payment amount starts locked with downloads disabled.
func (c *Controller) Host(ctx context.Context, params HostParams) (*database.HostedResume, error) {
	currency := strings.ToUpper(params.PaymentCurrency)
	if currency == "" {
		currency = "USD"
	}
	record := &database.HostedResume{
		ID:              uuid.NewString(),
		SourceUserID:    params.SourceUserID,
		SourceResumeID:  params.SourceResumeID,
		ResumeName:      params.ResumeName,
		SnapshotData:    params.SnapshotData,
		PaymentAmount:   params.PaymentAmount,
		PaymentCurrency: currency,
		DownloadEnabled: params.PaymentAmount <= 0,
		Locked:          params.PaymentAmount > 0,
		EditEnabled:     false,
		IsActive:        true,
		ExpiresAt:       params.ExpiresAt,
	}
	if err := c.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("create hosted resume: %w", err)
	}
	return record, nil
}

// OrderResult is what the checkout flow needs to redirect the buyer.
type OrderResult struct {
	SessionID   string
	URL         string
	AmountMinor int64
	Currency    string
}

// CreateOrder opens a gateway checkout session for a hosted resume and
// stores it as the record's latest payment order. Creation is refused
// for records that are already paid or carry no payment amount. An
// origin overrides the configured frontend base URL for the redirect
// targets.
func (c *Controller) CreateOrder(ctx context.Context, hostedID string, customer Customer, origin string) (*OrderResult, error) {
	record, err := c.get(ctx, hostedID)
	if err != nil {
		return nil, err
	}

	if record.PaymentStatus == database.PaymentStatusPaid || record.DownloadEnabled {
		return nil, ErrAlreadyPaid
	}
	if record.PaymentAmount <= 0 {
		return nil, ErrPaymentNotRequired
	}

	currency := strings.ToUpper(record.PaymentCurrency)
	if currency == "" {
		currency = "USD"
	}
	amountMinor := payment.ToMinorUnits(record.PaymentAmount, currency)
	if amountMinor <= 0 {
		return nil, ErrInvalidAmount
	}

	resumeName := record.ResumeName
	if resumeName == "" {
		resumeName = "Resume"
	}

	baseURL := c.baseURL
	if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
		baseURL = origin
	}

	sess, err := c.gateway.CreateCheckoutSession(ctx, payment.CreateSessionParams{
		AmountMinor:   amountMinor,
		Currency:      currency,
		ProductName:   fmt.Sprintf("Resume Download - %s", resumeName),
		Description:   "One-time payment to unlock resume download",
		CustomerEmail: customer.Email,
		SuccessURL:    fmt.Sprintf("%s/hosted-resume/%s?payment=success&session_id={CHECKOUT_SESSION_ID}", baseURL, hostedID),
		CancelURL:     fmt.Sprintf("%s/hosted-resume/%s?payment=cancelled", baseURL, hostedID),
		Metadata: map[string]string{
			"type":            database.PaymentLogTypeHostedResume,
			"hostedId":        hostedID,
			"resumeName":      resumeName,
			"customerName":    customer.Name,
			"customerEmail":   customer.Email,
			"customerContact": customer.Contact,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	order := database.PaymentOrder{
		SessionID:       sess.ID,
		Amount:          amountMinor,
		Currency:        currency,
		Status:          database.PaymentStatusPending,
		CreatedAt:       c.now(),
		CustomerName:    customer.Name,
		CustomerEmail:   customer.Email,
		CustomerContact: customer.Contact,
	}

	// Conditional write: if another request settled the payment while
	// the session was being created, keep the paid state untouched.
	res := c.db.WithContext(ctx).Model(&database.HostedResume{}).
		Where("id = ? AND payment_status <> ?", hostedID, database.PaymentStatusPaid).
		Updates(map[string]any{
			"latest_payment_order": datatypes.NewJSONType(order),
			"payment_status":       database.PaymentStatusPending,
			"updated_at":           c.now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("store payment order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyPaid
	}

	return &OrderResult{
		SessionID:   sess.ID,
		URL:         sess.URL,
		AmountMinor: amountMinor,
		Currency:    currency,
	}, nil
}

// VerifyResult reports the outcome of a verification call.
type VerifyResult struct {
	Message        string
	AlreadyApplied bool
}

// VerifyPayment confirms a gateway session against its hosted resume
// and, on success, flips the access flags and appends an audit log
// entry. Verifying an already settled record is a no-op success and
// does not contact the gateway.
func (c *Controller) VerifyPayment(ctx context.Context, hostedID, sessionID string, customer Customer) (*VerifyResult, error) {
	record, err := c.get(ctx, hostedID)
	if err != nil {
		return nil, err
	}

	if record.PaymentStatus == database.PaymentStatusPaid && record.DownloadEnabled {
		return &VerifyResult{Message: "Payment already verified", AlreadyApplied: true}, nil
	}

	sess, err := c.gateway.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session: %w", err)
	}

	if !sess.Paid() {
		return nil, &PaymentIncompleteError{GatewayStatus: sess.PaymentStatus}
	}
	if sess.Metadata["hostedId"] != hostedID {
		return nil, ErrPaymentMismatch
	}

	currency := sess.Currency
	if currency == "" {
		currency = record.PaymentCurrency
	}
	paidAmount := payment.ToMajorUnits(sess.AmountTotal, currency)
	if record.PaymentAmount > 0 && math.Abs(paidAmount-record.PaymentAmount) > amountTolerance {
		return nil, ErrAmountMismatch
	}

	now := c.now()
	order := record.LatestPaymentOrder.Data()
	order.SessionID = sess.ID
	order.PaymentIntentID = sess.PaymentIntentID
	order.Status = database.PaymentStatusPaid
	order.PaidAt = &now

	email := customer.Email
	if email == "" {
		email = sess.CustomerEmail
	}
	receipt := database.PaymentReceipt{
		SessionID:       sess.ID,
		PaymentIntentID: sess.PaymentIntentID,
		Amount:          paidAmount,
		Currency:        strings.ToUpper(currency),
		Status:          database.PaymentStatusPaid,
		Email:           email,
		Contact:         customer.Contact,
		CreatedAt:       now,
	}

	res := c.db.WithContext(ctx).Model(&database.HostedResume{}).
		Where("id = ? AND payment_status <> ?", hostedID, database.PaymentStatusPaid).
		Updates(map[string]any{
			"download_enabled":     true,
			"locked":               false,
			"payment_status":       database.PaymentStatusPaid,
			"latest_payment_order": datatypes.NewJSONType(order),
			"payment_details":      datatypes.NewJSONType(receipt),
			"updated_at":           now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("apply verified payment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// A concurrent verification won the conditional update.
		return &VerifyResult{Message: "Payment already verified", AlreadyApplied: true}, nil
	}

	c.appendVerifiedLog(ctx, record, sess, customer, paidAmount, currency, now)

	return &VerifyResult{Message: "Payment verified successfully"}, nil
}

// appendVerifiedLog records the successful payment. Failures are
// logged and counted but never surfaced; the payment itself stands.
func (c *Controller) appendVerifiedLog(ctx context.Context, record *database.HostedResume, sess *payment.CheckoutSession, customer Customer, amount float64, currency string, at time.Time) {
	userID := "anonymous"
	if record.SourceUserID != 0 {
		userID = fmt.Sprint(record.SourceUserID)
	}
	entry := &database.PaymentLog{
		HostedID:   record.ID,
		UserID:     userID,
		UserInfo:   database.PaymentUserInfo{Name: customer.Name, Email: customer.Email, Phone: customer.Contact},
		Type:       database.PaymentLogTypeHostedResume,
		ResumeName: record.ResumeName,
		Amount:     amount,
		Currency:   strings.ToUpper(currency),
		Status:     database.PaymentLogStatusSuccess,
		OrderID:    sess.ID,
		PaymentID:  sess.PaymentIntentID,
		Timestamp:  at,
	}
	if err := c.logs.Append(ctx, entry); err != nil {
		metrics.PaymentLogAppendFailures.Inc()
		c.logger.Error("payment log append failed after verified payment",
			"hosted_id", record.ID, "session_id", sess.ID, "error", err)
	}
}

// AttemptDetails carries the client-reported fields for a payment
// attempt log entry.
type AttemptDetails struct {
	Customer  Customer
	Amount    float64
	Currency  string
	OrderID   string
	PaymentID string
	Error     string
}

// LogAttempt appends a client-reported payment attempt. It enriches
// the entry from the hosted record but never mutates the record
// itself. Status must be initiated, cancelled or failed; initiated is
// stored as pending.
func (c *Controller) LogAttempt(ctx context.Context, hostedID, status string, details AttemptDetails) error {
	var logStatus string
	switch status {
	case "initiated":
		logStatus = database.PaymentLogStatusPending
	case "cancelled":
		logStatus = database.PaymentLogStatusCancelled
	case "failed":
		logStatus = database.PaymentLogStatusFailed
	default:
		return ErrInvalidLogStatus
	}

	record, err := c.get(ctx, hostedID)
	if err != nil {
		return err
	}

	amount := details.Amount
	if amount == 0 {
		amount = record.PaymentAmount
	}
	currency := strings.ToUpper(details.Currency)
	if currency == "" {
		currency = record.PaymentCurrency
	}
	userID := "anonymous"
	if record.SourceUserID != 0 {
		userID = fmt.Sprint(record.SourceUserID)
	}

	entry := &database.PaymentLog{
		HostedID:   hostedID,
		UserID:     userID,
		UserInfo:   database.PaymentUserInfo{Name: details.Customer.Name, Email: details.Customer.Email, Phone: details.Customer.Contact},
		Type:       database.PaymentLogTypeHostedResume,
		ResumeName: record.ResumeName,
		Amount:     amount,
		Currency:   currency,
		Status:     logStatus,
		OrderID:    details.OrderID,
		PaymentID:  details.PaymentID,
		Error:      details.Error,
		Timestamp:  c.now(),
	}
	return c.logs.Append(ctx, entry)
}

// FlagUpdate names the admin-updatable access flags. Nil fields are
// left untouched.
type FlagUpdate struct {
	DownloadEnabled *bool
	Locked          *bool
	EditEnabled     *bool
}

// AdminSetFlags applies a partial access flag update and returns the
// fields that were written.
func (c *Controller) AdminSetFlags(ctx context.Context, hostedID string, update FlagUpdate) (map[string]bool, error) {
	applied := make(map[string]bool)
	values := map[string]any{}
	if update.DownloadEnabled != nil {
		applied["downloadEnabled"] = *update.DownloadEnabled
		values["download_enabled"] = *update.DownloadEnabled
	}
	if update.Locked != nil {
		applied["locked"] = *update.Locked
		values["locked"] = *update.Locked
	}
	if update.EditEnabled != nil {
		applied["editEnabled"] = *update.EditEnabled
		values["edit_enabled"] = *update.EditEnabled
	}
	if len(values) == 0 {
		return nil, ErrNoFlags
	}
	values["updated_at"] = c.now()

	res := c.db.WithContext(ctx).Model(&database.HostedResume{}).
		Where("id = ?", hostedID).
		Updates(values)
	if res.Error != nil {
		return nil, fmt.Errorf("update access flags: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return applied, nil
}

// UpdateSnapshot overwrites the stored resume snapshot. Access flags
// and payment state are untouched.
func (c *Controller) UpdateSnapshot(ctx context.Context, hostedID string, snapshot datatypes.JSON) error {
	res := c.db.WithContext(ctx).Model(&database.HostedResume{}).
		Where("id = ?", hostedID).
		Updates(map[string]any{
			"snapshot_data": snapshot,
			"updated_at":    c.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("update snapshot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PublicView is the read surface served to visitors of a hosted
// resume page.
type PublicView struct {
	Record  *database.HostedResume
	Expired bool
}

// View loads a hosted resume for public display. Expiry is computed,
// never written back.
func (c *Controller) View(ctx context.Context, hostedID string) (*PublicView, error) {
	record, err := c.get(ctx, hostedID)
	if err != nil {
		return nil, err
	}
	return &PublicView{Record: record, Expired: record.Expired(c.now())}, nil
}

// AdminRecord pairs a hosted resume with its payment history and
// convenience pointers into it.
type AdminRecord struct {
	Record     *database.HostedResume
	Logs       []database.PaymentLog
	Latest     *database.PaymentLog
	Successful *database.PaymentLog
	Pending    *database.PaymentLog
	Failed     *database.PaymentLog
	Cancelled  *database.PaymentLog
}

// AdminGet returns one hosted resume with its full payment history.
func (c *Controller) AdminGet(ctx context.Context, hostedID string) (*AdminRecord, error) {
	record, err := c.get(ctx, hostedID)
	if err != nil {
		return nil, err
	}
	logs, err := c.logs.ListByHosted(ctx, hostedID)
	if err != nil {
		return nil, err
	}
	return buildAdminRecord(record, logs), nil
}

// AdminList returns every hosted resume, newest first, each joined
// with its payment log history.
func (c *Controller) AdminList(ctx context.Context) ([]*AdminRecord, error) {
	var records []database.HostedResume
	err := c.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list hosted resumes: %w", err)
	}

	grouped, err := c.logs.ListByType(ctx, database.PaymentLogTypeHostedResume)
	if err != nil {
		return nil, err
	}

	out := make([]*AdminRecord, 0, len(records))
	for i := range records {
		out = append(out, buildAdminRecord(&records[i], grouped[records[i].ID]))
	}
	return out, nil
}

// buildAdminRecord picks the newest log per status bucket. Logs are
// expected newest first.
func buildAdminRecord(record *database.HostedResume, logs []database.PaymentLog) *AdminRecord {
	ar := &AdminRecord{Record: record, Logs: logs}
	for i := range logs {
		l := &logs[i]
		if ar.Latest == nil {
			ar.Latest = l
		}
		switch l.Status {
		case database.PaymentLogStatusSuccess:
			if ar.Successful == nil {
				ar.Successful = l
			}
		case database.PaymentLogStatusPending:
			if ar.Pending == nil {
				ar.Pending = l
			}
		case database.PaymentLogStatusFailed:
			if ar.Failed == nil {
				ar.Failed = l
			}
		case database.PaymentLogStatusCancelled:
			if ar.Cancelled == nil {
				ar.Cancelled = l
			}
		}
	}
	return ar
}

// DeactivateExpired flips is_active off for every active record whose
// expiry has passed. Returns the number of records deactivated.
func (c *Controller) DeactivateExpired(ctx context.Context) (int64, error) {
	res := c.db.WithContext(ctx).Model(&database.HostedResume{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at < ?", true, c.now()).
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": c.now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("deactivate expired hosted resumes: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SetPdfObjectKey stores the rendered PDF's object key after the
// snapshot render task completes.
func (c *Controller) SetPdfObjectKey(ctx context.Context, hostedID, objectKey string) error {
	res := c.db.WithContext(ctx).Model(&database.HostedResume{}).
		Where("id = ?", hostedID).
		Updates(map[string]any{
			"pdf_object_key": objectKey,
			"updated_at":     c.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("store pdf object key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Controller) get(ctx context.Context, hostedID string) (*database.HostedResume, error) {
	var record database.HostedResume
	err := c.db.WithContext(ctx).First(&record, "id = ?", hostedID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load hosted resume: %w", err)
	}
	return &record, nil
}
