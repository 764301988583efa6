package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"expertresume/internal/api/middleware"
	"expertresume/internal/database"
	"expertresume/internal/quota"
)

// QuotaHandler serves the quota ledger operations.
type QuotaHandler struct {
	ledger *quota.Ledger
}

func NewQuotaHandler(ledger *quota.Ledger) *QuotaHandler {
	return &QuotaHandler{ledger: ledger}
}

func quotaError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, quota.ErrUnknownPlan):
		BadRequest(c, err.Error())
	case errors.Is(err, quota.ErrUnknownQuotaType):
		BadRequest(c, err.Error())
	case errors.Is(err, quota.ErrRecordMissing), errors.Is(err, quota.ErrUserMissing):
		NotFound(c, err.Error())
	case errors.Is(err, quota.ErrExpired):
		Conflict(c, err.Error())
	default:
		middleware.LoggerFromContext(c).Error("quota operation failed", slog.Any("error", err))
		Internal(c, "internal server error")
	}
}

type decrementRequest struct {
	UserID    uint   `json:"userId" binding:"required"`
	QuotaType string `json:"quotaType" binding:"required"`
	Amount    *int   `json:"amount"`
}

// Decrement consumes quota for one user. Team members are skipped.
func (h *QuotaHandler) Decrement(c *gin.Context) {
	var req decrementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "userId and quotaType are required")
		return
	}

	amount := 1
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount <= 0 {
		BadRequest(c, "amount must be positive")
		return
	}

	result, err := h.ledger.Decrement(c.Request.Context(), req.UserID, quota.QuotaType(req.QuotaType), amount)
	if err != nil {
		quotaError(c, err)
		return
	}

	resp := gin.H{"success": true}
	if result.Skipped {
		resp["skipped"] = true
		resp["reason"] = result.Reason
	}
	c.JSON(http.StatusOK, resp)
}

type initializeRequest struct {
	UserID      uint   `json:"userId" binding:"required"`
	PlanKey     string `json:"planKey" binding:"required"`
	ResetQuotas bool   `json:"resetQuotas"`
}

// Initialize creates or fully replaces a user's quota record.
func (h *QuotaHandler) Initialize(c *gin.Context) {
	var req initializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "userId and planKey are required")
		return
	}

	record, err := h.ledger.Initialize(c.Request.Context(), req.UserID, req.PlanKey, req.ResetQuotas)
	if err != nil {
		quotaError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Quotas initialized",
		"quotaData": gin.H{
			"planId":    record.PlanID,
			"planName":  record.PlanName,
			"limits":    record.Limits,
			"usage":     record.Usage,
			"resetDate": record.ResetDate,
		},
	})
}

type syncRequest struct {
	UserID uint `json:"userId" binding:"required"`
}

// Sync recounts the usage collections and overwrites the counters.
func (h *QuotaHandler) Sync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "userId is required")
		return
	}

	realCounts, err := h.ledger.Sync(c.Request.Context(), req.UserID)
	if err != nil {
		quotaError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Quotas synced with real counts",
		"realCounts": realCounts,
	})
}

// Usage returns the authenticated user's quota record.
func (h *QuotaHandler) Usage(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		Unauthorized(c)
		return
	}

	record, err := h.ledger.Get(c.Request.Context(), userID)
	if err != nil {
		quotaError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"planId":    record.PlanID,
		"planName":  record.PlanName,
		"limits":    record.Limits,
		"usage":     record.Usage,
		"remaining": remainingQuota(record),
		"resetDate": record.ResetDate,
	})
}

// remainingQuota computes limit minus usage per counter. Unlimited
// tiers carry a -1 limit and stay -1.
func remainingQuota(record *database.QuotaRecord) gin.H {
	left := func(limit, used int) int {
		if limit < 0 {
			return -1
		}
		if used > limit {
			return 0
		}
		return limit - used
	}
	return gin.H{
		"clients":       left(record.Limits.MaxClients, record.Usage.Clients),
		"resumeUploads": left(record.Limits.MaxResumeUploads, record.Usage.ResumeUploads),
		"atsChecks":     left(record.Limits.MaxAtsChecks, record.Usage.AtsChecks),
		"jdResumes":     left(record.Limits.MaxJdResumes, record.Usage.JdResumes),
		"teamMembers":   left(record.Limits.MaxTeamMembers, record.Usage.TeamMembers),
	}
}
