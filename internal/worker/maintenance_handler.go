package worker

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"expertresume/internal/hosting"
	"expertresume/internal/quota"
)

// MaintenanceHandler runs the periodic housekeeping tasks: hosted
// resume expiry sweeps and quota window resets.
type MaintenanceHandler struct {
	controller *hosting.Controller
	ledger     *quota.Ledger
	logger     *slog.Logger
}

func NewMaintenanceHandler(controller *hosting.Controller, ledger *quota.Ledger, logger *slog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		controller: controller,
		ledger:     ledger,
		logger:     logger,
	}
}

// HandleExpirySweep deactivates hosted resumes whose expiry passed.
func (h *MaintenanceHandler) HandleExpirySweep(ctx context.Context, _ *asynq.Task) error {
	count, err := h.controller.DeactivateExpired(ctx)
	if err != nil {
		h.logger.Error("expiry sweep failed", slog.Any("error", err))
		return err
	}
	if count > 0 {
		h.logger.Info("expiry sweep deactivated hosted resumes", slog.Int64("count", count))
	}
	return nil
}

// HandleQuotaReset re-windows quota records whose reset date passed.
func (h *MaintenanceHandler) HandleQuotaReset(ctx context.Context, _ *asynq.Task) error {
	count, err := h.ledger.ResetExpired(ctx)
	if err != nil {
		h.logger.Error("quota reset failed", slog.Any("error", err))
		return err
	}
	if count > 0 {
		h.logger.Info("quota reset re-windowed records", slog.Int64("count", count))
	}
	return nil
}
