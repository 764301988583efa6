package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"expertresume/internal/database"
	"expertresume/internal/hosting"
)

// AdminHandler serves the admin override and inspection surface for
// hosted resumes. Authentication and the admin capability check run
// in middleware before these handlers.
type AdminHandler struct {
	controller      *hosting.Controller
	frontendBaseURL string
}

func NewAdminHandler(controller *hosting.Controller, frontendBaseURL string) *AdminHandler {
	return &AdminHandler{
		controller:      controller,
		frontendBaseURL: strings.TrimRight(frontendBaseURL, "/"),
	}
}

type setFlagsRequest struct {
	DownloadEnabled *bool `json:"downloadEnabled"`
	Locked          *bool `json:"locked"`
	EditEnabled     *bool `json:"editEnabled"`
}

// SetFlags applies a partial access flag override.
func (h *AdminHandler) SetFlags(c *gin.Context) {
	var req setFlagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "request body must be a JSON object of boolean flags")
		return
	}

	applied, err := h.controller.AdminSetFlags(c.Request.Context(), c.Param("id"), hosting.FlagUpdate{
		DownloadEnabled: req.DownloadEnabled,
		Locked:          req.Locked,
		EditEnabled:     req.EditEnabled,
	})
	if err != nil {
		hostingError(c, err)
		return
	}

	resp := gin.H{
		"success": true,
		"message": "Hosted resume flags updated",
	}
	for name, value := range applied {
		resp[name] = value
	}
	c.JSON(http.StatusOK, resp)
}

// Get returns one hosted resume's flags, payment state and share URL.
func (h *AdminHandler) Get(c *gin.Context) {
	record, err := h.controller.AdminGet(c.Request.Context(), c.Param("id"))
	if err != nil {
		hostingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"resume":  h.summarize(record),
	})
}

// List returns every hosted resume with its payment history attached.
func (h *AdminHandler) List(c *gin.Context) {
	records, err := h.controller.AdminList(c.Request.Context())
	if err != nil {
		hostingError(c, err)
		return
	}

	summaries := make([]gin.H, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, h.summarize(record))
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(summaries),
		"resumes": summaries,
	})
}

func (h *AdminHandler) summarize(ar *hosting.AdminRecord) gin.H {
	record := ar.Record
	summary := gin.H{
		"hostedId":        record.ID,
		"resumeName":      record.ResumeName,
		"sourceUserId":    record.SourceUserID,
		"downloadEnabled": record.DownloadEnabled,
		"locked":          record.Locked,
		"editEnabled":     record.EditEnabled,
		"paymentAmount":   record.PaymentAmount,
		"paymentCurrency": record.PaymentCurrency,
		"paymentStatus":   record.PaymentStatus,
		"isActive":        record.IsActive,
		"createdAt":       record.CreatedAt,
		"updatedAt":       record.UpdatedAt,
		"hostedUrl":       fmt.Sprintf("%s/hosted-resume/%s", h.frontendBaseURL, record.ID),
		"paymentLogs":     logsOrEmpty(ar.Logs),
	}
	if ar.Latest != nil {
		summary["latestPayment"] = ar.Latest
	}
	if ar.Successful != nil {
		summary["successfulPayment"] = ar.Successful
	}
	if ar.Pending != nil {
		summary["pendingPayment"] = ar.Pending
	}
	if ar.Failed != nil {
		summary["failedPayment"] = ar.Failed
	}
	if ar.Cancelled != nil {
		summary["cancelledPayment"] = ar.Cancelled
	}
	return summary
}

func logsOrEmpty(logs []database.PaymentLog) []database.PaymentLog {
	if logs == nil {
		return []database.PaymentLog{}
	}
	return logs
}
