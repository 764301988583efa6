package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"expertresume/internal/errcode"
	"expertresume/internal/hosting"
	"expertresume/internal/storage"
	"expertresume/internal/tasks"
)

// SnapshotTaskHandler renders a hosted resume snapshot to PDF and
// stores the object key on the record.
type SnapshotTaskHandler struct {
	controller      *hosting.Controller
	storage         *storage.Client
	redisClient     *redis.Client
	logger          *slog.Logger
	frontendBaseURL string
}

func NewSnapshotTaskHandler(
	controller *hosting.Controller,
	storage *storage.Client,
	redisClient *redis.Client,
	logger *slog.Logger,
	frontendBaseURL string,
) *SnapshotTaskHandler {
	return &SnapshotTaskHandler{
		controller:      controller,
		storage:         storage,
		redisClient:     redisClient,
		logger:          logger,
		frontendBaseURL: strings.TrimRight(strings.TrimSpace(frontendBaseURL), "/"),
	}
}

// ProcessTask implements asynq.Handler.
func (h *SnapshotTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.SnapshotPDFPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("hosted_id", payload.HostedID),
	)
	log.Info("starting hosted resume snapshot render")

	view, err := h.controller.View(ctx, payload.HostedID)
	if err != nil {
		if errors.Is(err, hosting.ErrNotFound) {
			log.Warn("hosted resume not found, skipping task")
			return nil
		}
		log.Error("load hosted resume failed", slog.Any("error", err))
		return err
	}
	record := view.Record

	if !record.DownloadEnabled {
		log.Warn("download not enabled, skipping snapshot render")
		return nil
	}

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}
		notify := HostedNotifyMessage{
			Event:         EventSnapshotPDF,
			Status:        "error",
			HostedID:      payload.HostedID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.publishNotify(ctx, payload.HostedID, notify); err != nil {
			log.Error("publish snapshot error notification failed", slog.Any("error", err))
		}
	}()

	targetURL := fmt.Sprintf("%s/hosted-resume/%s?print=1", h.frontendBaseURL, payload.HostedID)
	page, cleanup, err := renderHostedPage(log, targetURL)
	if err != nil {
		log.Error("render hosted page failed", slog.Any("error", err))
		return err
	}
	defer cleanup()

	pdfBytes, err := exportPDF(page)
	if err != nil {
		log.Error("export pdf failed", slog.Any("error", err))
		return err
	}

	objectName := fmt.Sprintf("hosted-pdfs/%s/%s.pdf", payload.HostedID, uuid.NewString())
	if _, err := h.storage.UploadFile(ctx, objectName, bytes.NewReader(pdfBytes), int64(len(pdfBytes)), "application/pdf"); err != nil {
		log.Error("upload pdf to minio failed", slog.Any("error", err))
		return err
	}

	if err := h.controller.SetPdfObjectKey(ctx, payload.HostedID, objectName); err != nil {
		log.Error("store pdf object key failed", slog.Any("error", err))
		return err
	}

	// The stale PDF from an earlier render is unreachable now; remove it.
	if old := record.PdfObjectKey; old != "" && old != objectName {
		if err := h.storage.DeleteObject(ctx, old); err != nil {
			log.Warn("delete stale pdf failed", slog.String("object_key", old), slog.Any("error", err))
		}
	}

	notify := HostedNotifyMessage{
		Event:         EventSnapshotPDF,
		Status:        "completed",
		HostedID:      payload.HostedID,
		CorrelationID: payload.CorrelationID,
		PdfObjectKey:  objectName,
		ErrorCode:     errcode.OK,
	}
	if err := h.publishNotify(ctx, payload.HostedID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("snapshot render task completed", slog.Int("pdf_bytes", len(pdfBytes)))
	return nil
}

func (h *SnapshotTaskHandler) publishNotify(ctx context.Context, hostedID string, notify HostedNotifyMessage) error {
	data, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := NotifyChannel(hostedID)
	if err := h.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
