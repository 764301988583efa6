package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"expertresume/internal/database"
	"expertresume/internal/quota"
	"expertresume/internal/storage"
)

// UploadHandler ingests resume files. Each accepted upload is scanned,
// stored, recorded in the upload history and charged against the
// user's resumeUploads quota.
type UploadHandler struct {
	db        *gorm.DB
	storage   *storage.Client
	ledger    *quota.Ledger
	logger    *slog.Logger
	clamdAddr string
	maxBytes  int64
}

func NewUploadHandler(db *gorm.DB, storageClient *storage.Client, ledger *quota.Ledger, logger *slog.Logger, clamdAddr string, maxBytes int64) *UploadHandler {
	return &UploadHandler{
		db:        db,
		storage:   storageClient,
		ledger:    ledger,
		logger:    logger,
		clamdAddr: clamdAddr,
		maxBytes:  maxBytes,
	}
}

const uploadHistoryLinkTTL = 15 * time.Minute

var allowedUploadExtensions = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// Upload handles a multipart resume file upload.
func (h *UploadHandler) Upload(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if h.maxBytes > 0 && file.Size > h.maxBytes {
		BadRequest(c, fmt.Sprintf("file exceeds maximum size of %d bytes", h.maxBytes))
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	contentType, ok := allowedUploadExtensions[ext]
	if !ok {
		BadRequest(c, "only pdf, doc and docx files are accepted")
		return
	}

	fileReader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}

	clamdClient := clamd.NewClamd(h.clamdAddr)
	abortChan := make(chan bool)
	scanChan, err := clamdClient.ScanStream(fileReader, abortChan)
	fileReader.Close()
	if err != nil {
		h.logger.Error("scan file", slog.String("error", err.Error()))
		Internal(c, "failed to scan file")
		return
	}
	defer close(abortChan)

	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			BadRequest(c, "malicious file detected")
			return
		}
	}

	fileReader, err = file.Open()
	if err != nil {
		Internal(c, "failed to reopen file")
		return
	}
	defer fileReader.Close()

	objectKey := fmt.Sprintf("resume-uploads/%d/%s%s", userID, uuid.NewString(), ext)
	if _, err := h.storage.UploadFile(c.Request.Context(), objectKey, fileReader, file.Size, contentType); err != nil {
		h.logger.Error("upload file", slog.String("error", err.Error()))
		Internal(c, "failed to upload file")
		return
	}

	record := database.ResumeUpload{
		UserID:    userID,
		FileName:  file.Filename,
		ObjectKey: objectKey,
		SizeBytes: file.Size,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&record).Error; err != nil {
		h.logger.Error("record upload", slog.String("error", err.Error()))
		Internal(c, "failed to record upload")
		return
	}

	result, err := h.ledger.Decrement(c.Request.Context(), userID, quota.TypeResumeUploads, 1)
	if err != nil && !errors.Is(err, quota.ErrRecordMissing) {
		quotaError(c, err)
		return
	}

	resp := gin.H{
		"success":   true,
		"objectKey": objectKey,
		"uploadId":  record.ID,
	}
	if result.Skipped {
		resp["quotaSkipped"] = true
		resp["reason"] = result.Reason
	}
	c.JSON(http.StatusCreated, resp)
}

// History lists the user's upload history, newest first.
func (h *UploadHandler) History(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var uploads []database.ResumeUpload
	err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(100).
		Find(&uploads).Error
	if err != nil {
		h.logger.Error("list uploads", slog.String("error", err.Error()))
		Internal(c, "failed to list uploads")
		return
	}

	items := make([]gin.H, 0, len(uploads))
	for _, u := range uploads {
		item := gin.H{
			"uploadId":   u.ID,
			"fileName":   u.FileName,
			"sizeBytes":  u.SizeBytes,
			"uploadedAt": u.CreatedAt,
		}
		url, err := h.storage.GeneratePresignedURL(c.Request.Context(), u.ObjectKey, uploadHistoryLinkTTL)
		if err != nil {
			h.logger.Warn("presign upload url", slog.String("object_key", u.ObjectKey), slog.String("error", err.Error()))
		} else {
			item["url"] = url
		}
		items = append(items, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"uploads": items,
	})
}
