package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"

	"expertresume/internal/api/middleware"
	"expertresume/internal/hosting"
	"expertresume/internal/storage"
	"expertresume/internal/tasks"
	"expertresume/internal/worker"
)

const downloadLinkTTL = 15 * time.Minute

// HostedHandler serves the public hosted resume surface: payment
// orders, verification, attempt logging, snapshot updates and
// downloads.
type HostedHandler struct {
	controller     *hosting.Controller
	storage        *storage.Client
	asynqClient    *asynq.Client
	redisClient    *redis.Client
	logger         *slog.Logger
	orderRateLimit int
}

func NewHostedHandler(
	controller *hosting.Controller,
	storageClient *storage.Client,
	asynqClient *asynq.Client,
	redisClient *redis.Client,
	logger *slog.Logger,
	orderRateLimit int,
) *HostedHandler {
	return &HostedHandler{
		controller:     controller,
		storage:        storageClient,
		asynqClient:    asynqClient,
		redisClient:    redisClient,
		logger:         logger,
		orderRateLimit: orderRateLimit,
	}
}

// hostingError maps controller errors onto the HTTP taxonomy.
func hostingError(c *gin.Context, err error) {
	var incomplete *hosting.PaymentIncompleteError
	switch {
	case errors.Is(err, hosting.ErrNotFound):
		NotFound(c, "hosted resume not found")
	case errors.Is(err, hosting.ErrAlreadyPaid),
		errors.Is(err, hosting.ErrPaymentNotRequired),
		errors.Is(err, hosting.ErrInvalidAmount),
		errors.Is(err, hosting.ErrPaymentMismatch),
		errors.Is(err, hosting.ErrAmountMismatch),
		errors.Is(err, hosting.ErrNoFlags),
		errors.Is(err, hosting.ErrInvalidLogStatus):
		BadRequest(c, err.Error())
	case errors.As(err, &incomplete):
		BadRequest(c, err.Error())
	default:
		middleware.LoggerFromContext(c).Error("hosted resume operation failed", slog.Any("error", err))
		Internal(c, "internal server error")
	}
}

type hostRequest struct {
	ResumeID        uint            `json:"resumeId"`
	ResumeName      string          `json:"resumeName" binding:"required"`
	SnapshotData    json.RawMessage `json:"snapshotData" binding:"required"`
	PaymentAmount   float64         `json:"paymentAmount"`
	PaymentCurrency string          `json:"paymentCurrency"`
	ExpiresInDays   int             `json:"expiresInDays"`
}

// Host publishes a new hosted resume for the authenticated user.
func (h *HostedHandler) Host(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		Unauthorized(c)
		return
	}

	var req hostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "resumeName and snapshotData are required")
		return
	}

	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := time.Now().AddDate(0, 0, req.ExpiresInDays)
		expiresAt = &t
	}

	record, err := h.controller.Host(c.Request.Context(), hosting.HostParams{
		SourceUserID:    userID,
		SourceResumeID:  req.ResumeID,
		ResumeName:      req.ResumeName,
		SnapshotData:    datatypes.JSON(req.SnapshotData),
		PaymentAmount:   req.PaymentAmount,
		PaymentCurrency: req.PaymentCurrency,
		ExpiresAt:       expiresAt,
	})
	if err != nil {
		hostingError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"hostedId": record.ID,
	})
}

// View serves the public page data for one hosted resume.
func (h *HostedHandler) View(c *gin.Context) {
	view, err := h.controller.View(c.Request.Context(), c.Param("id"))
	if err != nil {
		hostingError(c, err)
		return
	}
	record := view.Record
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"hostedId":        record.ID,
		"resumeName":      record.ResumeName,
		"snapshotData":    record.SnapshotData,
		"downloadEnabled": record.DownloadEnabled,
		"locked":          record.Locked,
		"editEnabled":     record.EditEnabled,
		"paymentAmount":   record.PaymentAmount,
		"paymentCurrency": record.PaymentCurrency,
		"paymentStatus":   record.PaymentStatus,
		"isActive":        record.IsActive,
		"isExpired":       view.Expired,
	})
}

type createOrderRequest struct {
	HostedID        string `json:"hostedId" binding:"required"`
	CustomerName    string `json:"customerName"`
	CustomerEmail   string `json:"customerEmail"`
	CustomerContact string `json:"customerContact"`
	Origin          string `json:"origin"`
}

// CreatePaymentOrder opens a checkout session for a hosted resume.
func (h *HostedHandler) CreatePaymentOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "hostedId is required")
		return
	}

	if h.orderRateLimit > 0 && h.redisClient != nil {
		key := fmt.Sprintf("rate:create-order:%s", c.ClientIP())
		exceeded, err := countAttempt(c.Request.Context(), h.redisClient, key, time.Minute, h.orderRateLimit)
		if err != nil {
			middleware.LoggerFromContext(c).Warn("order rate limit check failed", slog.Any("error", err))
		} else if exceeded {
			Error(c, http.StatusTooManyRequests, "too many order attempts, slow down")
			return
		}
	}

	result, err := h.controller.CreateOrder(c.Request.Context(), req.HostedID, hosting.Customer{
		Name:    req.CustomerName,
		Email:   req.CustomerEmail,
		Contact: req.CustomerContact,
	}, req.Origin)
	if err != nil {
		hostingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"url":       result.URL,
		"sessionId": result.SessionID,
		"amount":    result.AmountMinor,
		"currency":  result.Currency,
	})
}

type verifyPaymentRequest struct {
	HostedID        string `json:"hostedId" binding:"required"`
	SessionID       string `json:"sessionId" binding:"required"`
	CustomerName    string `json:"customerName"`
	CustomerEmail   string `json:"customerEmail"`
	CustomerContact string `json:"customerContact"`
}

// VerifyPayment confirms a checkout session and unlocks the download.
func (h *HostedHandler) VerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "hostedId and sessionId are required")
		return
	}

	result, err := h.controller.VerifyPayment(c.Request.Context(), req.HostedID, req.SessionID, hosting.Customer{
		Name:    req.CustomerName,
		Email:   req.CustomerEmail,
		Contact: req.CustomerContact,
	})
	if err != nil {
		hostingError(c, err)
		return
	}

	if !result.AlreadyApplied {
		h.afterVerified(c, req.HostedID)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": result.Message,
	})
}

// afterVerified publishes the unlock notification and queues the PDF
// render. Both are best-effort; the verified payment already stands.
func (h *HostedHandler) afterVerified(c *gin.Context, hostedID string) {
	log := middleware.LoggerFromContext(c)
	correlationID := middleware.GetCorrelationID(c)

	if h.redisClient != nil {
		notify := worker.HostedNotifyMessage{
			Event:         worker.EventPaymentVerified,
			Status:        "completed",
			HostedID:      hostedID,
			CorrelationID: correlationID,
		}
		if data, err := json.Marshal(notify); err == nil {
			if err := h.redisClient.Publish(c.Request.Context(), worker.NotifyChannel(hostedID), data).Err(); err != nil {
				log.Warn("publish payment notification failed", slog.Any("error", err))
			}
		}
	}

	if h.asynqClient != nil {
		task, err := tasks.NewSnapshotPDFTask(hostedID, correlationID)
		if err != nil {
			log.Warn("build snapshot pdf task failed", slog.Any("error", err))
			return
		}
		if _, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(5)); err != nil {
			log.Warn("enqueue snapshot pdf task failed", slog.Any("error", err))
		}
	}
}

type logPaymentRequest struct {
	HostedID        string  `json:"hostedId" binding:"required"`
	Status          string  `json:"status" binding:"required"`
	CustomerName    string  `json:"customerName"`
	CustomerEmail   string  `json:"customerEmail"`
	CustomerContact string  `json:"customerContact"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	OrderID         string  `json:"orderId"`
	PaymentID       string  `json:"paymentId"`
	Error           string  `json:"error"`
}

// LogPayment appends a client-reported payment attempt to the log.
func (h *HostedHandler) LogPayment(c *gin.Context) {
	var req logPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "hostedId and status are required")
		return
	}

	err := h.controller.LogAttempt(c.Request.Context(), req.HostedID, req.Status, hosting.AttemptDetails{
		Customer: hosting.Customer{
			Name:    req.CustomerName,
			Email:   req.CustomerEmail,
			Contact: req.CustomerContact,
		},
		Amount:    req.Amount,
		Currency:  req.Currency,
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Error:     req.Error,
	})
	if err != nil {
		hostingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Payment attempt logged",
	})
}

type updateSnapshotRequest struct {
	SnapshotData json.RawMessage `json:"snapshotData" binding:"required"`
}

// UpdateSnapshot overwrites the hosted copy of the resume content.
func (h *HostedHandler) UpdateSnapshot(c *gin.Context) {
	var req updateSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "snapshotData is required")
		return
	}

	if err := h.controller.UpdateSnapshot(c.Request.Context(), c.Param("id"), datatypes.JSON(req.SnapshotData)); err != nil {
		hostingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Hosted resume updated",
	})
}

// DownloadLink issues a presigned URL for the rendered PDF. The link
// is only available once the payment unlocked the download.
func (h *HostedHandler) DownloadLink(c *gin.Context) {
	view, err := h.controller.View(c.Request.Context(), c.Param("id"))
	if err != nil {
		hostingError(c, err)
		return
	}
	record := view.Record

	if !record.DownloadEnabled {
		Forbidden(c, "download is not enabled for this resume")
		return
	}
	if record.PdfObjectKey == "" {
		NotFound(c, "pdf is not ready yet")
		return
	}

	filename := record.ResumeName
	if filename == "" {
		filename = "resume"
	}
	url, err := h.storage.GeneratePresignedURLWithParams(c.Request.Context(), record.PdfObjectKey, downloadLinkTTL, map[string]string{
		"response-content-disposition": fmt.Sprintf("attachment; filename=%q", filename+".pdf"),
	})
	if err != nil {
		middleware.LoggerFromContext(c).Error("generate download link failed", slog.Any("error", err))
		Internal(c, "failed to generate download link")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"url":       url,
		"expiresIn": int(downloadLinkTTL.Seconds()),
	})
}

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, ok := c.Get("userID")
	if !ok {
		return 0, false
	}
	userID, ok := value.(uint)
	return userID, ok
}
